package network

import (
	"context"
	"net/http"
	"time"
)

// Outcome is how a partner request settled. Exactly one outcome is produced per request.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Request is everything the transport needs to make one partner call.
type Request struct {
	// PartnerID labels connection metrics.
	PartnerID     string
	URL           string
	Method        string
	Data          map[string]interface{}
	Body          []byte
	Headers       http.Header
	Timeout       time.Duration
	CorrelationID string
	SessionID     string
	// WithCredentials forwards Cookies to the partner.
	WithCredentials bool
	Cookies         []*http.Cookie
}

// Result carries the single outcome of a Send. Body and StatusCode are only set for OutcomeSuccess.
// Err explains a timeout or a failure.
type Result struct {
	Outcome    Outcome
	Body       []byte
	StatusCode int
	Err        error
}

// Transport performs one network call within the request's time budget.
//
// Send must return, and it must return exactly one Result. It never retries.
type Transport interface {
	Send(ctx context.Context, req *Request) Result
}

// TransportFunc adapts a function into a Transport.
type TransportFunc func(ctx context.Context, req *Request) Result

func (f TransportFunc) Send(ctx context.Context, req *Request) Result {
	return f(ctx, req)
}
