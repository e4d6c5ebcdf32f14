package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/hapi-cache/hapi-cache/internal/config"
	"github.com/hapi-cache/hapi-cache/internal/server"
)

func TestServersEndpointListsSortedBindings(t *testing.T) {
	registry, err := server.NewServerRegistry(&config.Config{
		Servers: []config.ServerConfig{
			{Name: "zeta", Upstream: "https://z.example.org/hapi"},
			{Name: "alpha", Upstream: "https://a.example.org/hapi"},
		},
	})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	app := fiber.New()
	RegisterServerRoutes(app, registry, "/var/cache/hapi")

	resp, err := app.Test(httptest.NewRequest("GET", "/-/servers", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		CacheDir string          `json:"cache_dir"`
		Servers  []serverPayload `json:"servers"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error: %v (%s)", err, body)
	}
	if payload.CacheDir != "/var/cache/hapi" || len(payload.Servers) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Servers[0].Name != "alpha" || payload.Servers[0].Prefix != "/alpha/hapi/" {
		t.Fatalf("servers should be sorted by name: %+v", payload.Servers)
	}
}
