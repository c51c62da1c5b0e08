// Package resolver locates the backend origin a request is forwarded to.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"relay-proxy-go/internal/config"
)

// ErrNoBackend is returned when no backend origin can be produced.
var ErrNoBackend = errors.New("no backend origin available")

// BackendResolver supplies the target origin (scheme://host:port) for
// one forwarded request. Implementations must be safe for concurrent
// use; the pipeline calls Resolve once per inbound request.
type BackendResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Static always resolves to a single configured origin.
type Static struct {
	origin string
}

// NewStatic creates a Static resolver for the given origin.
func NewStatic(origin string) *Static {
	return &Static{origin: origin}
}

// Resolve returns the configured origin.
func (s *Static) Resolve(_ context.Context) (string, error) {
	if s.origin == "" {
		return "", ErrNoBackend
	}
	return s.origin, nil
}

// RoundRobin rotates over a fixed list of origins.
type RoundRobin struct {
	origins []string
	next    atomic.Uint64
}

// NewRoundRobin creates a RoundRobin resolver over the given origins.
func NewRoundRobin(origins []string) *RoundRobin {
	return &RoundRobin{origins: origins}
}

// Resolve returns the next origin in rotation.
func (r *RoundRobin) Resolve(_ context.Context) (string, error) {
	if len(r.origins) == 0 {
		return "", ErrNoBackend
	}
	n := r.next.Add(1) - 1
	return r.origins[n%uint64(len(r.origins))], nil
}

// New builds the resolver selected by the upstream configuration.
// Origins are validated up front so a malformed entry fails at startup
// rather than on the first request.
func New(cfg *config.Config) (BackendResolver, error) {
	for _, origin := range cfg.Upstream.Origins {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("parse upstream origin %q: %w", origin, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("upstream origin %q: scheme must be http or https", origin)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("upstream origin %q: missing host", origin)
		}
	}

	switch cfg.Upstream.Strategy {
	case config.StrategyStatic:
		return NewStatic(cfg.Upstream.Origins[0]), nil
	case config.StrategyRoundRobin:
		return NewRoundRobin(cfg.Upstream.Origins), nil
	default:
		return nil, fmt.Errorf("unknown upstream strategy %q", cfg.Upstream.Strategy)
	}
}
