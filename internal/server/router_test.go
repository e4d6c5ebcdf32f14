package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/hapi-cache/hapi-cache/internal/config"
)

func TestRouterRoutesRequestWhenServerMatches(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/cdaweb/hapi/data?dataset=X&start=2020-01-01&stop=2020-01-02", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if app.recorder.routeName != "cdaweb" {
		t.Fatalf("expected cdaweb route, got %s", app.recorder.routeName)
	}
	if app.recorder.target != "https://cdaweb.example.org/hapi/data?dataset=X&start=2020-01-01&stop=2020-01-02" {
		t.Fatalf("unexpected upstream target %s", app.recorder.target)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterReturns404WhenServerUnknown(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/unknown/hapi/catalog", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"server_unmapped"`)) {
		t.Fatalf("expected server_unmapped error, got %s", string(body))
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics output should include runtime collectors")
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("missing logger should fail")
	}
}

type testApp struct {
	*fiber.App
	recorder *proxyRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Servers: []config.ServerConfig{
			{Name: "cdaweb", Upstream: "https://cdaweb.example.org/hapi"},
		},
	}
	registry, err := NewServerRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:   logger,
		Registry: registry,
		Proxy:    recorder,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return &testApp{App: app, recorder: recorder}
}

type proxyRecorder struct {
	routeName string
	target    string
}

func (p *proxyRecorder) Handle(c fiber.Ctx, route *ServerRoute) error {
	p.routeName = route.Config.Name
	p.target = route.Target(c.Params("*"), string(c.Request().URI().QueryString()))
	return c.SendStatus(fiber.StatusNoContent)
}
