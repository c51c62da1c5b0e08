package service

import (
	"relay-proxy-go/internal/model"
)

// OutcomeKind classifies the result of one dispatched backend call.
type OutcomeKind int

const (
	// OutcomeSuccess means the backend produced a response, whatever
	// its status code.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeBackendFailure means the transport could not complete the
	// call (connection refused, timeout, protocol error).
	OutcomeBackendFailure
	// OutcomeCancelled means the inbound request's context was torn
	// down while awaiting the backend.
	OutcomeCancelled
)

// String returns a bounded label for the kind, suitable for metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBackendFailure:
		return "backend_failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of dispatching a backend call. Response
// is set only for OutcomeSuccess; Cause only for the two failure kinds.
type Outcome struct {
	Kind     OutcomeKind
	Response *model.ProxyResponse
	Cause    error
}

// dispatch submits spec to the transport and blocks the handling
// goroutine until the asynchronous call completes or the inbound
// request's context is done. This synchronous facade over the async
// transport is deliberate; a later revision could propagate the
// pending handle instead of blocking on it.
func (s *ProxyService) dispatch(pr *model.ProxyRequest, spec *model.OutboundRequest) Outcome {
	pending := s.transport.Execute(pr.Ctx, spec)

	select {
	case res := <-pending.Done():
		if res.Err != nil {
			// A dead inbound context makes the transport error moot:
			// there is no client left to report a gateway failure to.
			if pr.Ctx.Err() != nil {
				return Outcome{Kind: OutcomeCancelled, Cause: pr.Ctx.Err()}
			}
			return Outcome{Kind: OutcomeBackendFailure, Cause: res.Err}
		}
		return Outcome{Kind: OutcomeSuccess, Response: res.Response}
	case <-pr.Ctx.Done():
		// The wait is abandoned; the transport tears the in-flight
		// call down through the shared context.
		return Outcome{Kind: OutcomeCancelled, Cause: pr.Ctx.Err()}
	}
}
