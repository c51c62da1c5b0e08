package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"relay-proxy-go/internal/client"
	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/model"
)

// stubTransport records the spec it receives and completes every call
// with a fixed result.
type stubTransport struct {
	result  client.Result
	gotSpec *model.OutboundRequest
}

func (st *stubTransport) Execute(_ context.Context, spec *model.OutboundRequest) *client.Pending {
	st.gotSpec = spec
	p, complete := client.NewPending()
	complete(st.result)
	return p
}

// blockingTransport never completes; used for cancellation tests.
type blockingTransport struct{}

func (blockingTransport) Execute(_ context.Context, _ *model.OutboundRequest) *client.Pending {
	p, _ := client.NewPending()
	return p
}

type stubResolver struct {
	origin string
	err    error
}

func (r stubResolver) Resolve(_ context.Context) (string, error) {
	return r.origin, r.err
}

func newTestService(t client.Transport) *ProxyService {
	cfg := &config.Config{Proxy: config.ProxyConfig{Via: "1.1 relay-proxy"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProxyService(stubResolver{origin: "http://backend:8080"}, t, cfg, logger, nil)
}

func inbound(method, path, rawQuery string, h http.Header) *model.ProxyRequest {
	if h == nil {
		h = make(http.Header)
	}
	return &model.ProxyRequest{
		Ctx:        context.Background(),
		Method:     method,
		Path:       path,
		RawQuery:   rawQuery,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader("payload")),
		RemoteAddr: "203.0.113.9:54321",
	}
}

func TestTranslate_ForbiddenHeadersNeverForwarded(t *testing.T) {
	s := newTestService(&stubTransport{})

	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Proxy-Authorization", "Basic abc")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Upgrade", "h2c")
	h.Set("Trailer", "Expires")
	h.Set("Te", "trailers")
	h.Set("Keep-Alive", "timeout=5")

	spec := s.translate(inbound(http.MethodGet, "/x", "", h), "http://backend:8080")

	for _, name := range []string{"Proxy-Authorization", "Transfer-Encoding", "Upgrade", "Trailer", "Te", "Keep-Alive"} {
		if got := spec.Header.Values(name); len(got) != 0 {
			t.Errorf("header %q forwarded: %v", name, got)
		}
	}
	if got := spec.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want %q", got, "application/json")
	}
}

func TestTranslate_ConnectionTokensExcludedPerRequest(t *testing.T) {
	s := newTestService(&stubTransport{})

	h := http.Header{}
	h.Set("Connection", "keep-alive, X-Custom")
	h.Set("X-Custom", "secret")
	h.Set("X-Other", "kept")

	spec := s.translate(inbound(http.MethodGet, "/x", "", h), "http://backend:8080")

	if got := spec.Header.Values("X-Custom"); len(got) != 0 {
		t.Errorf("X-Custom forwarded despite Connection listing: %v", got)
	}
	if got := spec.Header.Get("X-Other"); got != "kept" {
		t.Errorf("X-Other = %q, want %q", got, "kept")
	}
	if got := spec.Header.Values("Connection"); len(got) != 0 {
		t.Errorf("Connection forwarded: %v", got)
	}

	// A second request without the Connection header forwards X-Custom.
	h2 := http.Header{}
	h2.Set("X-Custom", "secret")
	spec2 := s.translate(inbound(http.MethodGet, "/x", "", h2), "http://backend:8080")
	if got := spec2.Header.Get("X-Custom"); got != "secret" {
		t.Errorf("X-Custom = %q, want %q (no per-request exclusion)", got, "secret")
	}
}

func TestTranslate_ViaAlwaysAppendedOnce(t *testing.T) {
	s := newTestService(&stubTransport{})

	// Even when the inbound request already carries a Via, exactly one
	// hop for this proxy is appended.
	h := http.Header{}
	h.Add("Via", "1.1 upstream-lb")

	spec := s.translate(inbound(http.MethodGet, "/x", "", h), "http://backend:8080")

	vias := spec.Header.Values("Via")
	if len(vias) != 2 {
		t.Fatalf("Via values = %v, want inbound hop plus ours", vias)
	}
	if vias[1] != "1.1 relay-proxy" {
		t.Errorf("appended Via = %q, want %q", vias[1], "1.1 relay-proxy")
	}

	spec2 := s.translate(inbound(http.MethodGet, "/x", "", nil), "http://backend:8080")
	if got := spec2.Header.Values("Via"); len(got) != 1 || got[0] != "1.1 relay-proxy" {
		t.Errorf("Via = %v, want exactly one %q", got, "1.1 relay-proxy")
	}
}

func TestTranslate_XForwardedFor(t *testing.T) {
	s := newTestService(&stubTransport{})

	t.Run("synthesized from client address", func(t *testing.T) {
		spec := s.translate(inbound(http.MethodGet, "/x", "", nil), "http://backend:8080")
		got := spec.Header.Values("X-Forwarded-For")
		if len(got) != 1 || got[0] != "203.0.113.9" {
			t.Errorf("X-Forwarded-For = %v, want exactly [203.0.113.9]", got)
		}
	})

	t.Run("passed through unchanged when present", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Forwarded-For", "198.51.100.1, 192.0.2.2")
		spec := s.translate(inbound(http.MethodGet, "/x", "", h), "http://backend:8080")
		got := spec.Header.Values("X-Forwarded-For")
		if len(got) != 1 || got[0] != "198.51.100.1, 192.0.2.2" {
			t.Errorf("X-Forwarded-For = %v, want the inbound value untouched", got)
		}
	})
}

func TestTranslate_MethodPassthrough(t *testing.T) {
	s := newTestService(&stubTransport{})

	for _, method := range []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodDelete, http.MethodOptions, http.MethodTrace,
	} {
		spec := s.translate(inbound(method, "/x", "", nil), "http://backend:8080")
		if spec.Method != method {
			t.Errorf("outbound method = %q, want %q", spec.Method, method)
		}
	}
}

func TestTranslate_BodyOnlyWithContentType(t *testing.T) {
	s := newTestService(&stubTransport{})

	t.Run("no Content-Type, no body", func(t *testing.T) {
		spec := s.translate(inbound(http.MethodPost, "/x", "", nil), "http://backend:8080")
		if spec.Body != nil {
			t.Error("body attached without a Content-Type header")
		}
	})

	t.Run("Content-Type attaches the inbound stream", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		pr := inbound(http.MethodPost, "/x", "", h)
		spec := s.translate(pr, "http://backend:8080")
		if spec.Body == nil {
			t.Fatal("no body attached despite Content-Type")
		}
		data, err := io.ReadAll(spec.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(data) != "payload" {
			t.Errorf("body = %q, want %q", data, "payload")
		}
	})

	t.Run("lowercase content-type also counts", func(t *testing.T) {
		h := http.Header{"content-type": {"text/plain"}}
		spec := s.translate(inbound(http.MethodPost, "/x", "", h), "http://backend:8080")
		if spec.Body == nil {
			t.Error("no body attached for non-canonical content-type key")
		}
	})
}

func TestTranslate_URLComposition(t *testing.T) {
	s := newTestService(&stubTransport{})

	tests := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{"path with query", "/a/b", "x=1&y=2", "http://backend:8080/a/b?x=1&y=2"},
		{"path without query", "/a/b", "", "http://backend:8080/a/b"},
		{"root path", "/", "", "http://backend:8080/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := s.translate(inbound(http.MethodGet, tt.path, tt.rawQuery, nil), "http://backend:8080")
			if spec.URL != tt.want {
				t.Errorf("URL = %q, want %q", spec.URL, tt.want)
			}
		})
	}
}

func TestTranslate_MultiValueHeadersPreserved(t *testing.T) {
	s := newTestService(&stubTransport{})

	h := http.Header{}
	h.Add("X-Trace", "one")
	h.Add("X-Trace", "two")
	h.Add("X-Trace", "three")

	spec := s.translate(inbound(http.MethodGet, "/x", "", h), "http://backend:8080")

	got := spec.Header.Values("X-Trace")
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("X-Trace values = %v, want %v", got, want)
	}
}

func TestTranslate_Idempotent(t *testing.T) {
	s := newTestService(&stubTransport{})

	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Add("X-Trace", "one")
	h.Add("X-Trace", "two")

	pr := inbound(http.MethodGet, "/a", "q=1", h)
	first := s.translate(pr, "http://backend:8080")
	second := s.translate(pr, "http://backend:8080")

	if first.Method != second.Method || first.URL != second.URL {
		t.Errorf("method/URL differ between translations")
	}
	if !reflect.DeepEqual(first.Header, second.Header) {
		t.Errorf("headers differ: %v vs %v", first.Header, second.Header)
	}
}

func TestForward_Success(t *testing.T) {
	body := io.NopCloser(strings.NewReader("hello"))
	st := &stubTransport{result: client.Result{
		Response: &model.ProxyResponse{StatusCode: http.StatusOK, Header: http.Header{}, Body: body},
	}}
	s := newTestService(st)

	out, err := s.Forward(inbound(http.MethodGet, "/x", "", nil))
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %v, want success", out.Kind)
	}
	if out.Response.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", out.Response.StatusCode)
	}
	if st.gotSpec == nil || st.gotSpec.URL != "http://backend:8080/x" {
		t.Errorf("transport saw spec %+v", st.gotSpec)
	}
}

func TestForward_ResolutionFailure(t *testing.T) {
	cfg := &config.Config{Proxy: config.ProxyConfig{Via: "1.1 relay-proxy"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := &stubTransport{}
	s := NewProxyService(stubResolver{err: errors.New("finder down")}, st, cfg, logger, nil)

	_, err := s.Forward(inbound(http.MethodGet, "/x", "", nil))
	if err == nil {
		t.Fatal("Forward() error = nil, want resolution failure")
	}
	if st.gotSpec != nil {
		t.Error("transport was called despite resolution failure")
	}
}

func TestForward_BackendFailure(t *testing.T) {
	cause := errors.New("connection refused")
	s := newTestService(&stubTransport{result: client.Result{Err: cause}})

	out, err := s.Forward(inbound(http.MethodGet, "/x", "", nil))
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if out.Kind != OutcomeBackendFailure {
		t.Fatalf("outcome = %v, want backend failure", out.Kind)
	}
	if !errors.Is(out.Cause, cause) {
		t.Errorf("cause = %v, want %v", out.Cause, cause)
	}
	if out.Response != nil {
		t.Error("failure outcome carries a response")
	}
}

func TestForward_Cancelled(t *testing.T) {
	s := newTestService(blockingTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr := inbound(http.MethodGet, "/x", "", nil)
	pr.Ctx = ctx

	out, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if out.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", out.Kind)
	}
	if !errors.Is(out.Cause, context.Canceled) {
		t.Errorf("cause = %v, want context.Canceled", out.Cause)
	}
}

func TestOutcomeKind_String(t *testing.T) {
	tests := []struct {
		kind OutcomeKind
		want string
	}{
		{OutcomeSuccess, "success"},
		{OutcomeBackendFailure, "backend_failure"},
		{OutcomeCancelled, "cancelled"},
		{OutcomeKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("OutcomeKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
