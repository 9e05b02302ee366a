package httpapi

import (
	"net/http"
	"strings"
	"time"

	"slatesign.org/internal/auth"
	"slatesign.org/internal/subscription"
)

type tokenRequest struct {
	AccountID string   `json:"accountId"`
	Roles     []string `json:"roles"`
	Plan      string   `json:"plan"`
	TTLSec    int      `json:"ttlSec"`
}

// handleAuthToken mints a development token. Production deployments sit
// behind an identity provider; this endpoint exists for local and smoke use.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "accountId is required")
		return
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{auth.RoleProducer}
	}
	plan, err := subscription.ParsePlan(req.Plan)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "unknown plan")
		return
	}
	ttl := 15 * time.Minute
	if req.TTLSec > 0 {
		ttl = time.Duration(req.TTLSec) * time.Second
	}
	token, err := auth.GenerateToken(req.AccountID, req.Roles, string(plan), ttl)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(ttl.Seconds()),
	})
}
