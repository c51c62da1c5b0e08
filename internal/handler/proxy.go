package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/header"
	"relay-proxy-go/internal/model"
	"relay-proxy-go/internal/service"
)

// ProxyHandler funnels every inbound request, whatever its verb, into
// the forwarding pipeline and relays the backend response.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request to the resolved backend and streams the
// response back to the client.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		Path:       req.URL.EscapedPath(),
		RawQuery:   req.URL.RawQuery,
		Header:     req.Header,
		Body:       req.Body,
		RemoteAddr: req.RemoteAddr,
	}

	out, err := h.service.Forward(pr)
	if err != nil {
		h.logger.Error("backend resolution failed",
			"err", err,
			"path", req.URL.Path,
		)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "no backend available",
		})
	}

	switch out.Kind {
	case service.OutcomeSuccess:
		return h.relay(c, out.Response)
	case service.OutcomeCancelled:
		// The client is gone; there is nobody left to answer.
		h.logger.Warn("cancelled while awaiting backend",
			"path", req.URL.Path,
			"cause", out.Cause,
		)
		return nil
	default:
		return h.mapBackendError(c, out.Cause)
	}
}

// relay copies the backend response onto the client connection: status
// first, then headers filtered against the fixed hop-by-hop set, then
// the body streamed without buffering. The backend stream is drained
// exactly once.
func (h *ProxyHandler) relay(c echo.Context, resp *model.ProxyResponse) error {
	defer func() { _ = resp.Body.Close() }()

	dst := c.Response().Header()
	for name, vals := range resp.Header {
		if !header.Forwardable(name, nil) {
			continue
		}
		for _, v := range vals {
			dst.Add(name, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// If io.Copy fails mid-stream (e.g. client disconnect, network
	// error), the status code has already been committed, so the client
	// receives a truncated response. Inherent to streaming proxies; we
	// log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}

	return nil
}

// mapBackendError translates a transport failure into an explicit
// client-visible gateway status rather than dropping the request
// without an answer.
func (h *ProxyHandler) mapBackendError(c echo.Context, err error) error {
	h.logger.Error("backend request failed",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "backend request timed out",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "backend host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "backend request timed out",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "backend request failed",
	})
}
