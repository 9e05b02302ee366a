package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"slatesign.org/internal/auth"
	"slatesign.org/internal/contract"
	"slatesign.org/internal/stream"
	"slatesign.org/internal/subscription"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("SLATESIGN_AUTH_SECRET", "test-secret-0123456789abcdef0123456789")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	gate := subscription.NewGate(nil)
	usage := subscription.NewInMemoryUsage()
	st := stream.New()
	svc := contract.NewInMemory(
		contract.WithAuthorizer(&subscription.Authorizer{
			Gate:  gate,
			Usage: usage,
			Plan:  PlanFromClaims,
		}),
		contract.WithEventSink(EventFanout(st)),
	)
	api := New(ReadyProbe{}, "test", svc, gate, usage, st)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

type apiClient struct {
	t     *testing.T
	base  string
	http  *http.Client
	token string
}

func newAPIClient(t *testing.T, srv *httptest.Server) *apiClient {
	t.Helper()
	return &apiClient{t: t, base: srv.URL, http: srv.Client()}
}

func (c *apiClient) obtainToken(accountID string, roles []string, plan string) {
	c.t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := c.do(http.MethodPost, "/v1/auth/token", map[string]any{
		"accountId": accountID,
		"roles":     roles,
		"plan":      plan,
	}, &resp)
	if status != http.StatusOK {
		c.t.Fatalf("obtainToken status = %d", status)
	}
	c.token = resp.Token
}

func (c *apiClient) do(method, path string, body, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type contractEnvelope struct {
	Contract        contract.Contract `json:"contract"`
	EffectiveStatus contract.Status   `json:"effective_status"`
}

func draftTerms(amount int64) map[string]any {
	return map[string]any{
		"project_title":    "Night Shoot",
		"rate_type":        "flat",
		"amount":           amount,
		"payment_schedule": "net-30",
	}
}

func TestHealthAndInfoArePublic(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)

	var health map[string]any
	if status := c.do(http.MethodGet, "/healthz", nil, &health); status != http.StatusOK {
		t.Fatalf("healthz status = %d", status)
	}
	if health["service"] != "slatesign-api" {
		t.Fatalf("healthz service = %v", health["service"])
	}
	if status := c.do(http.MethodGet, "/readyz", nil, nil); status != http.StatusOK {
		t.Fatalf("readyz status = %d", status)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)

	var errResp map[string]any
	status := c.do(http.MethodPost, "/v1/contracts", map[string]any{
		"terms": draftTerms(5000),
	}, &errResp)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if errResp["code"] != "unauthorized" {
		t.Fatalf("code = %v", errResp["code"])
	}
}

func TestContractHappyPath(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("prod-1", []string{auth.RoleProducer}, "pro")

	// draft
	var created contractEnvelope
	status := c.do(http.MethodPost, "/v1/contracts", map[string]any{
		"actor_id": "act-1",
		"terms":    draftTerms(5000),
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	id := created.Contract.ID
	if id == "" || created.Contract.Status != contract.StatusDraft {
		t.Fatalf("unexpected draft: %+v", created.Contract)
	}

	// send
	var sent contractEnvelope
	if status := c.do(http.MethodPost, "/v1/contracts/"+id+"/transition", map[string]any{"target": "sent"}, &sent); status != http.StatusOK {
		t.Fatalf("transition status = %d", status)
	}
	if sent.Contract.Status != contract.StatusSent {
		t.Fatalf("status after send = %s", sent.Contract.Status)
	}

	// a message moves the thread into negotiation
	var msg contract.Message
	if status := c.do(http.MethodPost, "/v1/contracts/"+id+"/messages", map[string]any{"body": "can we do 6000?", "is_counter_offer": true}, &msg); status != http.StatusCreated {
		t.Fatalf("message status = %d", status)
	}
	var afterMsg contractEnvelope
	c.do(http.MethodGet, "/v1/contracts/"+id, nil, &afterMsg)
	if afterMsg.Contract.Status != contract.StatusNegotiating {
		t.Fatalf("status after message = %s", afterMsg.Contract.Status)
	}

	// both signatures; the second activates immediately with no start date
	for _, role := range []string{"producer", "actor"} {
		var sig contract.Signature
		status := c.do(http.MethodPost, "/v1/contracts/"+id+"/sign", map[string]any{
			"role":                role,
			"signer_name":         "Signer " + role,
			"agreement_confirmed": true,
		}, &sig)
		if status != http.StatusCreated {
			t.Fatalf("sign %s status = %d", role, status)
		}
	}
	var signed contractEnvelope
	c.do(http.MethodGet, "/v1/contracts/"+id, nil, &signed)
	if signed.Contract.Status != contract.StatusActive {
		t.Fatalf("status after both signatures = %s", signed.Contract.Status)
	}

	// half the face amount paid reads as 50 percent
	var payment contract.Payment
	if status := c.do(http.MethodPost, "/v1/contracts/"+id+"/payments", map[string]any{"amount": 2500, "notes": "first installment"}, &payment); status != http.StatusCreated {
		t.Fatalf("payment status = %d", status)
	}
	var ledger struct {
		Payments        []contract.Payment `json:"payments"`
		PaidToDate      int64              `json:"paid_to_date"`
		ProgressPercent float64            `json:"progress_percent"`
	}
	if status := c.do(http.MethodGet, "/v1/contracts/"+id+"/payments", nil, &ledger); status != http.StatusOK {
		t.Fatalf("list payments status = %d", status)
	}
	if ledger.PaidToDate != 2500 {
		t.Fatalf("paid_to_date = %d", ledger.PaidToDate)
	}
	if ledger.ProgressPercent != 50 {
		t.Fatalf("progress_percent = %v", ledger.ProgressPercent)
	}

	// full history is on the timeline
	var timeline struct {
		Events []contract.Event `json:"events"`
	}
	c.do(http.MethodGet, "/v1/contracts/"+id+"/timeline", nil, &timeline)
	if len(timeline.Events) == 0 {
		t.Fatal("timeline is empty")
	}
	last := timeline.Events[len(timeline.Events)-1]
	if last.Type != contract.EventPaymentAdded {
		t.Fatalf("last timeline event = %s", last.Type)
	}
}

func TestFreePlanContractQuota(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("indie-prod", []string{auth.RoleProducer}, "free")

	for i := 0; i < 3; i++ {
		status := c.do(http.MethodPost, "/v1/contracts", map[string]any{
			"terms": draftTerms(1000),
		}, nil)
		if status != http.StatusCreated {
			t.Fatalf("create %d status = %d", i+1, status)
		}
	}
	var errResp map[string]any
	status := c.do(http.MethodPost, "/v1/contracts", map[string]any{
		"terms": draftTerms(1000),
	}, &errResp)
	if status != http.StatusPaymentRequired {
		t.Fatalf("fourth create status = %d, want 402", status)
	}
	if errResp["code"] != "quota_exceeded" {
		t.Fatalf("code = %v", errResp["code"])
	}
}

func TestFreePlanCannotSign(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("indie-prod", []string{auth.RoleProducer}, "free")

	var created contractEnvelope
	if status := c.do(http.MethodPost, "/v1/contracts", map[string]any{"terms": draftTerms(1000)}, &created); status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	c.do(http.MethodPost, "/v1/contracts/"+created.Contract.ID+"/transition", map[string]any{"target": "sent"}, nil)

	var errResp map[string]any
	status := c.do(http.MethodPost, "/v1/contracts/"+created.Contract.ID+"/sign", map[string]any{
		"role":                "producer",
		"signer_name":         "Indie",
		"agreement_confirmed": true,
	}, &errResp)
	if status != http.StatusPaymentRequired {
		t.Fatalf("sign status = %d, want 402", status)
	}
	if errResp["code"] != "quota_exceeded" {
		t.Fatalf("code = %v", errResp["code"])
	}
}

func TestActorRoleCannotCreateContracts(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("act-1", []string{auth.RoleActor}, "pro")

	status := c.do(http.MethodPost, "/v1/contracts", map[string]any{
		"terms": draftTerms(1000),
	}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("prod-1", []string{auth.RoleProducer}, "pro")

	if status := c.do(http.MethodGet, "/v1/contracts/does-not-exist", nil, nil); status != http.StatusNotFound {
		t.Fatalf("unknown contract status = %d", status)
	}

	var created contractEnvelope
	c.do(http.MethodPost, "/v1/contracts", map[string]any{"terms": draftTerms(1000)}, &created)
	id := created.Contract.ID

	// draft cannot jump straight to active
	var errResp map[string]any
	if status := c.do(http.MethodPost, "/v1/contracts/"+id+"/transition", map[string]any{"target": "active"}, &errResp); status != http.StatusConflict {
		t.Fatalf("illegal transition status = %d", status)
	}
	if errResp["code"] != "illegal_transition" {
		t.Fatalf("code = %v", errResp["code"])
	}

	// unconfirmed agreement is a precondition failure
	c.do(http.MethodPost, "/v1/contracts/"+id+"/transition", map[string]any{"target": "sent"}, nil)
	errResp = nil
	if status := c.do(http.MethodPost, "/v1/contracts/"+id+"/sign", map[string]any{
		"role":        "producer",
		"signer_name": "P",
	}, &errResp); status != http.StatusPreconditionFailed {
		t.Fatalf("unconfirmed sign status = %d", status)
	}
	if errResp["code"] != "agreement_not_confirmed" {
		t.Fatalf("code = %v", errResp["code"])
	}

	// negative payment amount
	errResp = nil
	if status := c.do(http.MethodPost, "/v1/contracts/"+id+"/payments", map[string]any{"amount": -5}, &errResp); status != http.StatusBadRequest {
		t.Fatalf("negative payment status = %d", status)
	}
}

func TestSubscriptionLimitsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("prod-1", []string{auth.RoleProducer}, "studio")

	var resp struct {
		Plan   subscription.Plan   `json:"plan"`
		Limits subscription.Limits `json:"limits"`
	}
	if status := c.do(http.MethodGet, "/v1/subscription/limits", nil, &resp); status != http.StatusOK {
		t.Fatalf("limits status = %d", status)
	}
	if resp.Plan != subscription.PlanStudio {
		t.Fatalf("plan = %s", resp.Plan)
	}
	if resp.Limits.TeamMembers != 10 || resp.Limits.ContractsPerMonth != subscription.Unlimited {
		t.Fatalf("studio limits = %+v", resp.Limits)
	}
}

func TestUnknownPlanInTokenRequest(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)

	status := c.do(http.MethodPost, "/v1/auth/token", map[string]any{
		"accountId": "x",
		"plan":      "platinum",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("prod-1", []string{auth.RoleProducer}, "pro")

	status := c.do(http.MethodPost, "/v1/contracts", map[string]any{
		"terms":    draftTerms(1000),
		"surprise": true,
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestIdempotentPaymentViaHeader(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("prod-1", []string{auth.RoleProducer}, "pro")

	var created contractEnvelope
	c.do(http.MethodPost, "/v1/contracts", map[string]any{"terms": draftTerms(1000)}, &created)
	id := created.Contract.ID

	post := func() contract.Payment {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(map[string]any{"amount": 250})
		req, err := http.NewRequest(http.MethodPost, c.base+"/v1/contracts/"+id+"/payments", &buf)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Idempotency-Key", "pay-once")
		resp, err := c.http.Do(req)
		if err != nil {
			t.Fatalf("post payment: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("payment status = %d", resp.StatusCode)
		}
		var p contract.Payment
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			t.Fatalf("decode payment: %v", err)
		}
		return p
	}

	first := post()
	second := post()
	if first.ID != second.ID {
		t.Fatalf("replay created a new payment: %s vs %s", first.ID, second.ID)
	}

	var ledger struct {
		PaidToDate int64 `json:"paid_to_date"`
	}
	c.do(http.MethodGet, "/v1/contracts/"+id+"/payments", nil, &ledger)
	if ledger.PaidToDate != 250 {
		t.Fatalf("paid_to_date = %d, want 250", ledger.PaidToDate)
	}
}

func TestCreateSetsLocationHeader(t *testing.T) {
	srv := newTestServer(t)
	c := newAPIClient(t, srv)
	c.obtainToken("prod-1", []string{auth.RoleProducer}, "pro")

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(map[string]any{"terms": draftTerms(1000)})
	req, err := http.NewRequest(http.MethodPost, c.base+"/v1/contracts", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	var env contractEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := fmt.Sprintf("/v1/contracts/%s", env.Contract.ID)
	if got := resp.Header.Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}
