package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/hapi-cache/hapi-cache/internal/hapi"
	"github.com/hapi-cache/hapi-cache/internal/hapicache"
	"github.com/hapi-cache/hapi-cache/internal/logging"
	"github.com/hapi-cache/hapi-cache/internal/server"
	"github.com/hapi-cache/hapi-cache/internal/stream"
)

// Opener 打开一个 HAPI 请求对应的响应流，*hapicache.Cache 即是其实现。
type Opener interface {
	Open(ctx context.Context, rawURL string) (*hapicache.Stream, error)
}

// Handler 把 /<server>/hapi/<endpoint> 请求翻译成上游 URL，交给缓存编排器，
// 并将结果流式写回客户端。
type Handler struct {
	opener Opener
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler backed by the given opener.
func NewHandler(opener Opener, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{opener: opener, logger: logger}
}

// Handle 打开缓存流并以 SendStream 返回；流在响应写完后由 fasthttp 关闭，
// 回源写缓存的收尾发生在关闭时。
func (h *Handler) Handle(c fiber.Ctx, route *server.ServerRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)
	target := route.Target(c.Params("*"), string(c.Request().URI().QueryString()))

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := h.opener.Open(ctx, target)
	if err != nil {
		status, code := classifyError(err)
		h.logResult(route, target, requestID, nil, status, started, err)
		return h.writeError(c, status, code)
	}

	if s.ContentType != "" {
		c.Set("Content-Type", s.ContentType)
	}
	c.Set("X-Hapi-Cache-State", string(s.State))
	c.Set("X-Hapi-Cache-Upstream", route.UpstreamURL.String())
	h.logResult(route, target, requestID, s, fiber.StatusOK, started, nil)
	return c.Status(fiber.StatusOK).SendStream(s)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// classifyError 把请求类错误映射为 400，其余（上游、schema、磁盘）映射为 502。
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, hapi.ErrMalformedRequest):
		return fiber.StatusBadRequest, "malformed_request"
	case errors.Is(err, hapi.ErrUnsupportedKey):
		return fiber.StatusBadRequest, "unsupported_key"
	case errors.Is(err, hapi.ErrUnsupportedFormat):
		return fiber.StatusBadRequest, "unsupported_format"
	case errors.Is(err, hapi.ErrUnsupportedEndpoint):
		return fiber.StatusBadRequest, "unsupported_endpoint"
	case errors.Is(err, hapi.ErrMalformedInfo):
		return fiber.StatusBadGateway, "malformed_info"
	case errors.Is(err, stream.ErrRemoteStatus):
		return fiber.StatusBadGateway, "upstream_status"
	default:
		return fiber.StatusBadGateway, "upstream_failed"
	}
}

func (h *Handler) logResult(
	route *server.ServerRoute,
	upstream string,
	requestID string,
	s *hapicache.Stream,
	status int,
	started time.Time,
	err error,
) {
	var fields logrus.Fields
	if s != nil {
		req := s.Request
		fields = logging.RequestFields(req.Dataset, string(req.Endpoint), req.Format, string(s.State))
	} else {
		fields = logrus.Fields{}
	}
	fields["action"] = "proxy"
	fields["server"] = route.Config.Name
	fields["upstream"] = upstream
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_streaming")
}
