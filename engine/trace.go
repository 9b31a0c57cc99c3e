package engine

import (
	"go.opencensus.io/trace"
)

// endStep records the outcome of a checkout step on its span and ends it.
func endStep(span *trace.Span, o *Outcome, err error) {
	defer span.End()
	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: err.Error()})
		return
	}
	if o == nil {
		return
	}
	attrs := []trace.Attribute{
		trace.StringAttribute("outcome", string(o.Status)),
	}
	if o.TransactionID != "" {
		attrs = append(attrs, trace.StringAttribute("transaction_id", o.TransactionID))
	}
	if o.PaymentID != "" {
		attrs = append(attrs, trace.StringAttribute("payment_id", o.PaymentID))
	}
	span.AddAttributes(attrs...)
}
