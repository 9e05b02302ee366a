package httpapi

import (
	"net/http"
	"strings"
	"time"

	"slatesign.org/internal/auth"
	"slatesign.org/internal/contract"
	"slatesign.org/internal/subscription"
)

type createContractRequest struct {
	ActorID string         `json:"actor_id"`
	Terms   contract.Terms `json:"terms"`
}

type transitionRequest struct {
	Target string `json:"target"`
}

type signRequest struct {
	Role               string `json:"role"`
	SignerName         string `json:"signer_name"`
	AgreementConfirmed bool   `json:"agreement_confirmed"`
}

type postMessageRequest struct {
	Body           string `json:"body"`
	IsCounterOffer bool   `json:"is_counter_offer"`
}

type recordPaymentRequest struct {
	Amount     int64      `json:"amount"`
	PaidAt     *time.Time `json:"paid_at"`
	Notes      string     `json:"notes"`
	ReceiptRef string     `json:"receipt_ref"`
}

type assignActorRequest struct {
	ActorID string `json:"actor_id"`
}

func (a *API) handleContractsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createContract(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

// handleContractResource dispatches /v1/contracts/{id}[/subresource].
func (a *API) handleContractResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/contracts/")
	parts := strings.SplitN(rest, "/", 2)
	id := strings.TrimSpace(parts[0])
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "contract id is required")
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getContract(w, r, id)
	case "terms":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.updateTerms(w, r, id)
	case "actor":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assignActor(w, r, id)
	case "transition":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.transition(w, r, id)
	case "sign":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.sign(w, r, id)
	case "messages":
		switch r.Method {
		case http.MethodPost:
			a.postMessage(w, r, id)
		case http.MethodGet:
			a.listMessages(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "payments":
		switch r.Method {
		case http.MethodPost:
			a.recordPayment(w, r, id)
		case http.MethodGet:
			a.listPayments(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "timeline":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.timeline(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (a *API) createContract(w http.ResponseWriter, r *http.Request) {
	producerID, _ := auth.AccountIDFromContext(r.Context())

	var req createContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	c, err := a.contracts.CreateDraft(r.Context(), producerID, req.ActorID, req.Terms)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if a.usage != nil {
		a.usage.IncrementContracts(r.Context(), producerID)
	}
	a.audit(r.Context(), "contract.create", "contract", c.ID, map[string]string{
		"producer_id": producerID,
	})
	w.Header().Set("Location", "/v1/contracts/"+c.ID)
	writeJSON(w, http.StatusCreated, contractResponse(c))
}

func (a *API) getContract(w http.ResponseWriter, r *http.Request, id string) {
	c, err := a.contracts.GetContract(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractResponse(c))
}

func (a *API) updateTerms(w http.ResponseWriter, r *http.Request, id string) {
	var patch contract.TermsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	c, err := a.contracts.UpdateTerms(r.Context(), id, patch, accountID)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.audit(r.Context(), "contract.terms_update", "contract", c.ID, nil)
	writeJSON(w, http.StatusOK, contractResponse(c))
}

func (a *API) assignActor(w http.ResponseWriter, r *http.Request, id string) {
	var req assignActorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	c, err := a.contracts.AssignActor(r.Context(), id, req.ActorID)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.audit(r.Context(), "contract.assign_actor", "contract", c.ID, map[string]string{
		"actor_id": c.ActorID,
	})
	writeJSON(w, http.StatusOK, contractResponse(c))
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, id string) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	target, err := contract.ParseStatus(req.Target)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "unknown status")
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	c, err := a.contracts.TransitionStatus(r.Context(), id, target, accountID)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.audit(r.Context(), "contract.transition", "contract", c.ID, map[string]string{
		"to": string(c.Status),
	})
	writeJSON(w, http.StatusOK, contractResponse(c))
}

func (a *API) sign(w http.ResponseWriter, r *http.Request, id string) {
	plan := planFromRequest(r)
	if !a.gate.CanUseFeature(plan, subscription.FeatureSignatures) {
		writeQuotaError(w, r, "digital signatures require a paid plan")
		return
	}
	var req signRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	role, err := contract.ParseSignerRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "role must be producer or actor")
		return
	}
	sig, err := a.contracts.Sign(r.Context(), id, role, req.SignerName, req.AgreementConfirmed)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.audit(r.Context(), "contract.sign", "contract", id, map[string]string{
		"role": string(sig.Role),
	})
	writeJSON(w, http.StatusCreated, sig)
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request, id string) {
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	role := contract.RoleProducer
	if auth.HasRole(r.Context(), auth.RoleActor) && !auth.HasRole(r.Context(), auth.RoleProducer) {
		role = contract.RoleActor
	}
	msg, err := a.contracts.PostMessage(r.Context(), id, accountID, role, req.Body,
		req.IsCounterOffer, r.Header.Get("Idempotency-Key"))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.audit(r.Context(), "contract.message", "contract", id, map[string]string{
		"message_id": msg.ID,
	})
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request, id string) {
	limit, after, err := parseCursor(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	msgs, next, err := a.contracts.ListMessages(r.Context(), id, limit, after)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":   msgs,
		"next_after": next,
	})
}

func (a *API) recordPayment(w http.ResponseWriter, r *http.Request, id string) {
	var req recordPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var paidAt time.Time
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	p, err := a.contracts.RecordPayment(r.Context(), id, req.Amount, paidAt,
		req.Notes, req.ReceiptRef, r.Header.Get("Idempotency-Key"))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.audit(r.Context(), "contract.payment", "contract", id, map[string]string{
		"payment_id": p.ID,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request, id string) {
	limit, after, err := parseCursor(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	payments, next, err := a.contracts.ListPayments(r.Context(), id, limit, after)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	paid, err := a.contracts.PaidToDate(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	progress, err := a.contracts.Progress(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payments":         payments,
		"next_after":       next,
		"paid_to_date":     paid,
		"progress_percent": progress,
	})
}

func (a *API) timeline(w http.ResponseWriter, r *http.Request, id string) {
	limit, after, err := parseCursor(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	events, next, err := a.contracts.Timeline(r.Context(), id, limit, after)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":     events,
		"next_after": next,
	})
}

// contractResponse decorates the stored contract with the derived
// effective status. Expiry is visible on reads even before the explicit
// expired transition is recorded.
func contractResponse(c contract.Contract) map[string]any {
	return map[string]any{
		"contract":         c,
		"effective_status": contract.MarkExpiredIfDue(c, time.Now().UTC()),
	}
}

func planFromRequest(r *http.Request) subscription.Plan {
	return PlanFromClaims(r.Context(), "")
}
