package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"slatesign.org/internal/contract"
	"slatesign.org/internal/subscription"
)

func TestMapAPIError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"validation", 400, "validation_error", contract.ErrValidation},
		{"not found", 404, "not_found", contract.ErrNotFound},
		{"already signed", 409, "already_signed", contract.ErrAlreadySigned},
		{"illegal transition", 409, "illegal_transition", contract.ErrIllegalTransition},
		{"invalid state", 409, "invalid_state", contract.ErrInvalidState},
		{"agreement", 412, "agreement_not_confirmed", contract.ErrAgreementNotConfirmed},
		{"quota", 402, "quota_exceeded", subscription.ErrQuotaExceeded},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := mapAPIError(tc.status, tc.code, "boom")
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapAPIError(%q) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}

	// unknown codes pass through as opaque errors
	got := mapAPIError(500, "internal", "boom")
	for _, sentinel := range []error{contract.ErrValidation, contract.ErrNotFound, subscription.ErrQuotaExceeded} {
		if errors.Is(got, sentinel) {
			t.Fatalf("internal error mapped to %v", sentinel)
		}
	}
}

func TestServiceRoundTripsDomainErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"producer already signed","code":"already_signed"}`))
	}))
	defer srv.Close()

	svc := NewService(New(srv.URL, WithToken("t")))
	_, err := svc.Sign(context.Background(), "c-1", contract.RoleProducer, "P", true)
	if !errors.Is(err, contract.ErrAlreadySigned) {
		t.Fatalf("err = %v, want ErrAlreadySigned", err)
	}
}

func TestServiceSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m-1","sequence":1}`))
	}))
	defer srv.Close()

	svc := NewService(New(srv.URL))
	msg, err := svc.PostMessage(context.Background(), "c-1", "prod-1", contract.RoleProducer, "hello", false, "msg-key")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if gotKey != "msg-key" {
		t.Fatalf("Idempotency-Key = %q", gotKey)
	}
	if msg.ID != "m-1" {
		t.Fatalf("message id = %q", msg.ID)
	}
}
