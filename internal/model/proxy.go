// Package model defines shared types for the proxy pipeline.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents an inbound client request to be forwarded to
// a backend. It is owned by the server framework and read-only to the
// pipeline for the duration of one request; the body stream is
// consumed at most once.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string
}

// OutboundRequest describes the request sent to the backend: the
// fully-qualified target URL, the filtered headers and, when the
// inbound request carried a Content-Type, the inbound body stream
// (lazily read, never buffered).
type OutboundRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   io.Reader
}

// ProxyResponse represents the backend response to be relayed back.
// The body must be drained exactly once by the relay.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
