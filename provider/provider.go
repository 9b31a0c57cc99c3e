package provider

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

type Provider string

func (p Provider) Match(in Provider) bool {
	return p == in
}

const (
	UNKNOWN_PROVIDER Provider = ""
	DTONE            Provider = "dtone"
	PAYPAL           Provider = "paypal"
)

var (
	ErrProviderNotSet = errors.New("Provider not set")
	ErrCircuitOpen    = errors.New("circuit open")
)

// HTTPError non-2xx answer of a vendor API.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return "unexpected http status " + strconv.Itoa(e.StatusCode) + ": " + string(truncate(e.Body, 512))
}

// StatusCode of the vendor answer carried by err, 0 when there was none.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// IsTransient reports whether err means the vendor is unreachable or broken
// rather than rejecting the request.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if code := StatusCode(err); code >= 500 || code == 429 {
		return true
	}
	return false
}

// Call one outbound vendor request, reported to the Auditor.
type Call struct {
	Vendor     Provider
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// StartCallSpan opens the trace span of an outbound vendor call.
func StartCallSpan(ctx context.Context, c Call) (context.Context, *trace.Span) {
	ctx, span := trace.StartSpan(ctx, "Call."+string(c.Vendor), trace.WithSpanKind(trace.SpanKindClient))
	span.AddAttributes(
		trace.StringAttribute("method", c.Method),
		trace.StringAttribute("path", c.Path),
	)
	return ctx, span
}

// EndCallSpan records the vendor answer on the span and ends it.
func EndCallSpan(span *trace.Span, c Call) {
	span.AddAttributes(trace.Int64Attribute("status_code", int64(c.StatusCode)))
	switch {
	case c.Err == nil:
	case IsTransient(c.Err):
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnavailable, Message: c.Err.Error()})
	default:
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: c.Err.Error()})
	}
	span.End()
}

type Auditor interface {
	LogCall(ctx context.Context, c Call)
}

type nopAuditor struct{}

func (nopAuditor) LogCall(context.Context, Call) {}

// NopAuditor drops calls.
var NopAuditor Auditor = nopAuditor{}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
