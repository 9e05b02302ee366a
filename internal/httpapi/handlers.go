package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slatesign.org/internal/audit"
	"slatesign.org/internal/auth"
	"slatesign.org/internal/contract"
	"slatesign.org/internal/obs"
	"slatesign.org/internal/stream"
	"slatesign.org/internal/subscription"
)

// ReadyProbe is a simple readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// UsageCounter records plan usage after successful operations. The gate only
// reads counters; this is the write side owned by the account.
type UsageCounter interface {
	subscription.UsageReader
	IncrementContracts(ctx context.Context, accountID string)
}

// API is the HTTP layer over the contract lifecycle engine.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	contracts contract.Service
	gate      *subscription.Gate
	usage     UsageCounter
	stream    *stream.Stream

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// Option configures the API.
type Option func(*API)

// WithRateLimit overrides the default per-client rate limit.
func WithRateLimit(burst, perSec int) Option {
	return func(a *API) {
		if burst > 0 && perSec > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSec
		}
	}
}

// WithMaxBodyBytes overrides the request body cap.
func WithMaxBodyBytes(limit int64) Option {
	return func(a *API) {
		if limit > 0 {
			a.maxBody = limit
		}
	}
}

// New wires routes over the provided collaborators. A nil gate falls back to
// the default plan table; stream and usage may be nil to disable SSE and
// quota accounting.
func New(rp ReadyProbe, version string, svc contract.Service, gate *subscription.Gate, usage UsageCounter, st *stream.Stream, opts ...Option) *API {
	if gate == nil {
		gate = subscription.NewGate(nil)
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		contracts:  svc,
		gate:       gate,
		usage:      usage,
		stream:     st,
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// auth
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// contracts; only producers open drafts
	a.mux.Handle("/v1/contracts", RequireRole(auth.RoleProducer, http.HandlerFunc(a.handleContractsCollection)))
	a.mux.HandleFunc("/v1/contracts/", a.handleContractResource)
	a.mux.HandleFunc("/v1/contracts/events", a.Stream)

	// subscription
	a.mux.HandleFunc("/v1/subscription/limits", a.handleSubscriptionLimits)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = LoggingJSON(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Basic handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "slatesign-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "slatesign-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// audit emits one structured audit line; failures never affect the request.
func (a *API) audit(ctx context.Context, event, resourceType, resourceID string, meta map[string]string) {
	fields := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the JSON error envelope. The machine-readable code lets
// clients distinguish domain outcomes without parsing messages.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

// writeQuotaError is the soft denial: the client should surface an upgrade
// prompt, not an error page.
func writeQuotaError(w http.ResponseWriter, r *http.Request, msg string) {
	payload := map[string]any{
		"error":   msg,
		"code":    "quota_exceeded",
		"upgrade": true,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusPaymentRequired, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// decodeJSON decodes a request body strictly. Body size is already capped
// by the MaxBodyBytes middleware.
func decodeJSON(_ http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseCursor(r *http.Request) (limit int, after uint64, err error) {
	limit = 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 1 || v > 1000 {
			return 0, 0, errors.New("limit must be between 1 and 1000")
		}
		limit = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		v, convErr := strconv.ParseUint(raw, 10, 64)
		if convErr != nil {
			return 0, 0, errors.New("after must be a non-negative integer")
		}
		after = v
	}
	return limit, after, nil
}

// handleContractError maps the domain error taxonomy onto HTTP. Quota
// denials are soft: 402 plus an upgrade hint, never a 5xx.
func handleContractError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, contract.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, contract.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, contract.ErrAlreadySigned):
		writeError(w, r, http.StatusConflict, "already_signed", err.Error())
	case errors.Is(err, contract.ErrIllegalTransition):
		writeError(w, r, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, contract.ErrInvalidState):
		writeError(w, r, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, contract.ErrAgreementNotConfirmed):
		writeError(w, r, http.StatusPreconditionFailed, "agreement_not_confirmed", err.Error())
	case errors.Is(err, subscription.ErrQuotaExceeded):
		writeQuotaError(w, r, "plan quota exceeded")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
