// Package client provides the asynchronous HTTP transport for backend calls.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/model"
)

// Result is the terminal state of one backend call: a response or an error.
type Result struct {
	Response *model.ProxyResponse
	Err      error
}

// Pending is the handle for an in-flight backend call. Done yields
// exactly one Result; the channel is buffered so an abandoned handle
// never blocks the executing goroutine.
type Pending struct {
	done chan Result
}

// Done returns the channel on which the call's Result is delivered.
func (p *Pending) Done() <-chan Result {
	return p.done
}

// NewPending returns a fresh handle and the function that completes it.
// The completion function must be called exactly once.
func NewPending() (*Pending, func(Result)) {
	p := &Pending{done: make(chan Result, 1)}
	return p, func(r Result) { p.done <- r }
}

// Transport executes outbound requests against a backend. Execute
// submits the request asynchronously and returns immediately; the
// caller awaits completion through the returned handle. Implementations
// must be safe for concurrent use with no cap on in-flight requests
// per origin.
type Transport interface {
	Execute(ctx context.Context, spec *model.OutboundRequest) *Pending
}

// Upstream is the HTTP Transport implementation.
type Upstream struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstream creates an Upstream with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable backend metrics
// recording. MaxConnsPerHost is left unlimited: the proxy imposes no
// per-host cap on concurrent backend connections.
func NewUpstream(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Upstream {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Upstream{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Execute submits spec for asynchronous execution. The provided context
// bounds the lifetime of the backend call: when it is canceled, the
// in-flight request is torn down by the HTTP client.
func (u *Upstream) Execute(ctx context.Context, spec *model.OutboundRequest) *Pending {
	p, complete := NewPending()

	go func() {
		resp, err := u.do(ctx, spec)
		complete(Result{Response: resp, Err: err})
	}()

	return p
}

func (u *Upstream) do(ctx context.Context, spec *model.OutboundRequest) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, spec.Body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = spec.Header

	u.logger.Debug("backend request",
		"method", spec.Method,
		"url", spec.URL,
	)

	start := time.Now()
	resp, err := u.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(spec.Method)
	if u.metrics != nil {
		u.metrics.BackendDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
