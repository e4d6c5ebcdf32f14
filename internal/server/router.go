package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that answers HAPI requests for a
// resolved upstream. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, *ServerRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *ServerRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *ServerRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger   *logrus.Logger
	Registry *ServerRegistry
	Proxy    ProxyHandler
}

const contextKeyRequestID = "_hapicache_request_id"

// NewApp builds a Fiber application that routes /<server>/hapi/<endpoint>
// to the proxy handler and exposes Prometheus metrics on /metrics.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("server registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/:server/hapi/*", func(c fiber.Ctx) error {
		name := c.Params("server")
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderServerUnmapped(c, opts.Logger, name)
		}
		return opts.Proxy.Handle(c, route)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID 并回写 X-Request-ID。
func requestIDMiddleware(c fiber.Ctx) error {
	reqID := uuid.NewString()
	c.Locals(contextKeyRequestID, reqID)
	c.Set("X-Request-ID", reqID)
	return c.Next()
}

func renderServerUnmapped(c fiber.Ctx, logger *logrus.Logger, name string) error {
	logger.WithFields(logrus.Fields{
		"action": "server_lookup",
		"server": name,
	}).Warn("server unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "server_unmapped",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
