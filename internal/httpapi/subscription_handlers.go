package httpapi

import (
	"net/http"

	"slatesign.org/internal/auth"
)

// handleSubscriptionLimits reports the caller's plan, its limit table, and
// current period usage so clients can render quota state without guessing.
func (a *API) handleSubscriptionLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	plan := planFromRequest(r)
	resp := map[string]any{
		"plan":   plan,
		"limits": a.gate.Limits(plan),
	}
	if a.usage != nil {
		accountID, _ := auth.AccountIDFromContext(r.Context())
		if usage, err := a.usage.Usage(r.Context(), accountID); err == nil {
			resp["usage"] = usage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
