// Package service implements the core proxy forwarding pipeline.
package service

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"relay-proxy-go/internal/client"
	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/header"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/model"
	"relay-proxy-go/internal/resolver"
)

// ProxyService turns one inbound request into one backend call:
// resolve an origin, translate the request, dispatch it, and hand the
// outcome back to the handler for relaying.
type ProxyService struct {
	resolver  resolver.BackendResolver
	transport client.Transport
	via       string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProxyService creates a ProxyService. Collaborators are passed in
// explicitly; the service holds no process-wide state beyond them.
// The metrics parameter is optional; pass nil to disable outcome recording.
func NewProxyService(r resolver.BackendResolver, t client.Transport, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		resolver:  r,
		transport: t,
		via:       cfg.Proxy.Via,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
	}
}

// Forward runs the pipeline for one inbound request. A non-nil error
// means the backend could not be resolved and nothing was sent; any
// result of the backend call itself, including failure and
// cancellation, is reported through the Outcome.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (Outcome, error) {
	origin, err := s.resolver.Resolve(pr.Ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve backend: %w", err)
	}

	spec := s.translate(pr, origin)

	s.logger.Debug("forwarding request",
		"method", spec.Method,
		"url", spec.URL,
	)

	out := s.dispatch(pr, spec)

	if s.metrics != nil {
		s.metrics.BackendOutcomes.WithLabelValues(metrics.NormalizeMethod(pr.Method), out.Kind.String()).Inc()
	}
	return out, nil
}

// translate builds the outbound request for the resolved origin. The
// inbound request is not modified; headers are copied value-for-value
// with per-name order and multiplicity preserved.
func (s *ProxyService) translate(pr *model.ProxyRequest, origin string) *model.OutboundRequest {
	excl := header.ConnectionTokens(pr.Header.Get("Connection"))

	dst := make(http.Header, len(pr.Header)+2)
	hasBody := false
	hasForwardedFor := false

	for name, values := range pr.Header {
		if !header.Forwardable(name, excl) {
			continue
		}
		if strings.EqualFold(name, "Content-Type") {
			hasBody = true
		}
		if strings.EqualFold(name, "X-Forwarded-For") {
			hasForwardedFor = true
		}
		dst[name] = append([]string(nil), values...)
	}

	dst.Add("Via", s.via)
	if !hasForwardedFor {
		dst.Add("X-Forwarded-For", clientAddr(pr.RemoteAddr))
	}

	target := origin + pr.Path
	if pr.RawQuery != "" {
		target += "?" + pr.RawQuery
	}

	spec := &model.OutboundRequest{
		Method: pr.Method,
		URL:    target,
		Header: dst,
	}
	// A body is attached only when the inbound request announced one
	// via Content-Type; otherwise the stream is ignored even if non-empty.
	if hasBody {
		spec.Body = pr.Body
	}
	return spec
}

// clientAddr strips the port from a host:port remote address. Addresses
// that don't carry a port are used as-is.
func clientAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
