package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/hapi-cache/hapi-cache/internal/server"
)

// RegisterServerRoutes 暴露 /-/servers 诊断接口，列出前端名称与上游的绑定关系。
func RegisterServerRoutes(app *fiber.App, registry *server.ServerRegistry, cacheDir string) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/servers", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cache_dir": cacheDir,
			"servers":   encodeServers(registry.List()),
		})
	})
}

type serverPayload struct {
	Name     string `json:"name"`
	Upstream string `json:"upstream"`
	Prefix   string `json:"prefix"`
}

func encodeServers(routes []server.ServerRoute) []serverPayload {
	result := make([]serverPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, serverPayload{
			Name:     route.Config.Name,
			Upstream: route.UpstreamURL.String(),
			Prefix:   "/" + route.Config.Name + "/hapi/",
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
