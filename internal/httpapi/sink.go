package httpapi

import (
	"context"

	"slatesign.org/internal/auth"
	"slatesign.org/internal/contract"
	"slatesign.org/internal/obs"
	"slatesign.org/internal/stream"
	"slatesign.org/internal/subscription"
)

// PlanFromClaims resolves the caller's plan from verified token claims.
// Unknown or absent plans fall back to the free tier, so authorization
// fails closed.
func PlanFromClaims(ctx context.Context, _ string) subscription.Plan {
	raw, _ := auth.PlanFromContext(ctx)
	plan, err := subscription.ParsePlan(raw)
	if err != nil {
		return subscription.PlanFree
	}
	return plan
}

// EventFanout builds the engine event sink: every committed timeline event
// updates the domain metrics and feeds the SSE stream. A nil stream keeps
// the metrics side only.
func EventFanout(st *stream.Stream) contract.EventSink {
	return func(evt contract.Event) {
		switch evt.Type {
		case contract.EventStatusChanged:
			obs.ObserveTransition(evt.Fields["from"], evt.Fields["to"])
		case contract.EventSigned:
			obs.ObserveSignature(evt.Fields["role"])
		case contract.EventPaymentAdded:
			obs.ObservePayment()
		}
		if st != nil {
			st.Publish(evt)
		}
	}
}
