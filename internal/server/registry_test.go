package server

import (
	"testing"

	"github.com/hapi-cache/hapi-cache/internal/config"
)

func TestServerRegistryLookupByName(t *testing.T) {
	cfg := &config.Config{
		Servers: []config.ServerConfig{
			{Name: "cdaweb", Upstream: "https://cdaweb.gsfc.nasa.gov/hapi"},
			{Name: "demo", Upstream: "http://localhost:8080/HapiServerDemo/hapi"},
		},
	}

	registry, err := NewServerRegistry(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	route, ok := registry.Lookup("demo")
	if !ok {
		t.Fatalf("demo route not found")
	}
	if got := route.Target("info", "id=X&parameters=a"); got != "http://localhost:8080/HapiServerDemo/hapi/info?id=X&parameters=a" {
		t.Fatalf("unexpected target %s", got)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatalf("unknown name should not resolve")
	}

	list := registry.List()
	if len(list) != 2 || list[0].Config.Name != "cdaweb" {
		t.Fatalf("list should keep configuration order: %+v", list)
	}
}

func TestServerRegistryRejectsDuplicates(t *testing.T) {
	cfg := &config.Config{
		Servers: []config.ServerConfig{
			{Name: "a", Upstream: "https://x.example.org/hapi"},
			{Name: "a", Upstream: "https://y.example.org/hapi"},
		},
	}
	if _, err := NewServerRegistry(cfg); err == nil {
		t.Fatalf("duplicate names should fail")
	}
}
