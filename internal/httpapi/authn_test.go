package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"slatesign.org/internal/auth"
)

func newAuthTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SLATESIGN_AUTH_SECRET", "test-secret-0123456789abcdef0123456789")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)
	return New(ReadyProbe{}, "test", nil, nil, nil, nil)
}

func TestWithAuthAllowsPublicPaths(t *testing.T) {
	a := newAuthTestAPI(t)
	h := a.withAuth(okHandler())

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want pass-through", path, rec.Code)
		}
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	a := newAuthTestAPI(t)
	h := a.withAuth(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/contracts/abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("WWW-Authenticate header missing")
	}
}

func TestWithAuthRejectsGarbageToken(t *testing.T) {
	a := newAuthTestAPI(t)
	h := a.withAuth(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/contracts/abc", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWithAuthPopulatesIdentity(t *testing.T) {
	a := newAuthTestAPI(t)

	var gotAccount, gotPlan string
	var gotProducer bool
	h := a.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount, _ = auth.AccountIDFromContext(r.Context())
		gotPlan, _ = auth.PlanFromContext(r.Context())
		gotProducer = auth.HasRole(r.Context(), auth.RoleProducer)
	}))

	token, err := auth.GenerateToken("prod-9", []string{auth.RoleProducer}, "pro", time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/contracts/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotAccount != "prod-9" {
		t.Fatalf("account = %q", gotAccount)
	}
	if gotPlan != "pro" {
		t.Fatalf("plan = %q", gotPlan)
	}
	if !gotProducer {
		t.Fatal("producer role missing from context")
	}
}

func TestWithAuthLetsPreflightThrough(t *testing.T) {
	a := newAuthTestAPI(t)
	h := a.withAuth(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/contracts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
}
