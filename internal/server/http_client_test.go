package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hapi-cache/hapi-cache/internal/config"
	"github.com/hapi-cache/hapi-cache/internal/version"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
	if NewUpstreamClient(nil).Timeout != 60*time.Second {
		t.Fatalf("nil config should fall back to the default timeout")
	}
}

func TestUpstreamClientSetsUserAgent(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer upstream.Close()

	resp, err := NewUpstreamClient(nil).Get(upstream.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got != version.UserAgent() {
		t.Fatalf("expected user agent %q, got %q", version.UserAgent(), got)
	}
}
