// Package remote adapts the HTTP API back to the contract.Service
// interface so tools and other services consume contracts through the same
// interface the engine exposes locally.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"slatesign.org/internal/contract"
	"slatesign.org/internal/subscription"
)

// Client talks to a slatesign API server.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// New creates a client for the given base URL, e.g. http://localhost:8080.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// SetToken replaces the bearer token, e.g. after minting one.
func (c *Client) SetToken(token string) { c.token = token }

// ObtainToken mints a development token from the server and installs it on
// the client.
func (c *Client) ObtainToken(ctx context.Context, accountID string, roles []string, plan string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/auth/token", map[string]any{
		"accountId": accountID,
		"roles":     roles,
		"plan":      plan,
	}, &resp, "")
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// Service adapts the client to contract.Service.
type Service struct {
	client *Client
}

func NewService(client *Client) *Service { return &Service{client: client} }

var _ contract.Service = (*Service)(nil)

type contractEnvelope struct {
	Contract contract.Contract `json:"contract"`
}

// CreateDraft creates a draft. The server derives the producer from the
// bearer token; producerID here must match the token subject.
func (s *Service) CreateDraft(ctx context.Context, producerID, actorID string, terms contract.Terms) (contract.Contract, error) {
	var env contractEnvelope
	err := s.client.do(ctx, http.MethodPost, "/v1/contracts", map[string]any{
		"actor_id": actorID,
		"terms":    terms,
	}, &env, "")
	return env.Contract, err
}

func (s *Service) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	var env contractEnvelope
	err := s.client.do(ctx, http.MethodGet, "/v1/contracts/"+url.PathEscape(id), nil, &env, "")
	return env.Contract, err
}

func (s *Service) AssignActor(ctx context.Context, id, actorID string) (contract.Contract, error) {
	var env contractEnvelope
	err := s.client.do(ctx, http.MethodPost, "/v1/contracts/"+url.PathEscape(id)+"/actor", map[string]any{
		"actor_id": actorID,
	}, &env, "")
	return env.Contract, err
}

func (s *Service) UpdateTerms(ctx context.Context, id string, patch contract.TermsPatch, _ string) (contract.Contract, error) {
	var env contractEnvelope
	err := s.client.do(ctx, http.MethodPatch, "/v1/contracts/"+url.PathEscape(id)+"/terms", patch, &env, "")
	return env.Contract, err
}

func (s *Service) TransitionStatus(ctx context.Context, id string, target contract.Status, _ string) (contract.Contract, error) {
	var env contractEnvelope
	err := s.client.do(ctx, http.MethodPost, "/v1/contracts/"+url.PathEscape(id)+"/transition", map[string]any{
		"target": string(target),
	}, &env, "")
	return env.Contract, err
}

func (s *Service) Sign(ctx context.Context, id string, role contract.SignerRole, signerName string, agreementConfirmed bool) (contract.Signature, error) {
	var sig contract.Signature
	err := s.client.do(ctx, http.MethodPost, "/v1/contracts/"+url.PathEscape(id)+"/sign", map[string]any{
		"role":                string(role),
		"signer_name":         signerName,
		"agreement_confirmed": agreementConfirmed,
	}, &sig, "")
	return sig, err
}

func (s *Service) PostMessage(ctx context.Context, id, _ string, _ contract.SignerRole, body string, isCounterOffer bool, idemKey string) (contract.Message, error) {
	var msg contract.Message
	err := s.client.do(ctx, http.MethodPost, "/v1/contracts/"+url.PathEscape(id)+"/messages", map[string]any{
		"body":             body,
		"is_counter_offer": isCounterOffer,
	}, &msg, idemKey)
	return msg, err
}

func (s *Service) ListMessages(ctx context.Context, id string, limit int, afterSeq uint64) ([]contract.Message, uint64, error) {
	var resp struct {
		Messages  []contract.Message `json:"messages"`
		NextAfter uint64             `json:"next_after"`
	}
	err := s.client.do(ctx, http.MethodGet, cursorPath(id, "messages", limit, afterSeq), nil, &resp, "")
	return resp.Messages, resp.NextAfter, err
}

func (s *Service) RecordPayment(ctx context.Context, id string, amount int64, paidAt time.Time, notes, receiptRef, idemKey string) (contract.Payment, error) {
	payload := map[string]any{
		"amount":      amount,
		"notes":       notes,
		"receipt_ref": receiptRef,
	}
	if !paidAt.IsZero() {
		payload["paid_at"] = paidAt
	}
	var p contract.Payment
	err := s.client.do(ctx, http.MethodPost, "/v1/contracts/"+url.PathEscape(id)+"/payments", payload, &p, idemKey)
	return p, err
}

type paymentsResponse struct {
	Payments        []contract.Payment `json:"payments"`
	NextAfter       uint64             `json:"next_after"`
	PaidToDate      int64              `json:"paid_to_date"`
	ProgressPercent float64            `json:"progress_percent"`
}

func (s *Service) ListPayments(ctx context.Context, id string, limit int, afterSeq uint64) ([]contract.Payment, uint64, error) {
	var resp paymentsResponse
	err := s.client.do(ctx, http.MethodGet, cursorPath(id, "payments", limit, afterSeq), nil, &resp, "")
	return resp.Payments, resp.NextAfter, err
}

func (s *Service) PaidToDate(ctx context.Context, id string) (int64, error) {
	var resp paymentsResponse
	err := s.client.do(ctx, http.MethodGet, cursorPath(id, "payments", 1, 0), nil, &resp, "")
	return resp.PaidToDate, err
}

func (s *Service) Progress(ctx context.Context, id string) (float64, error) {
	var resp paymentsResponse
	err := s.client.do(ctx, http.MethodGet, cursorPath(id, "payments", 1, 0), nil, &resp, "")
	return resp.ProgressPercent, err
}

func (s *Service) Timeline(ctx context.Context, id string, limit int, afterSeq uint64) ([]contract.Event, uint64, error) {
	var resp struct {
		Events    []contract.Event `json:"events"`
		NextAfter uint64           `json:"next_after"`
	}
	err := s.client.do(ctx, http.MethodGet, cursorPath(id, "timeline", limit, afterSeq), nil, &resp, "")
	return resp.Events, resp.NextAfter, err
}

func cursorPath(id, sub string, limit int, afterSeq uint64) string {
	path := "/v1/contracts/" + url.PathEscape(id) + "/" + sub
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if afterSeq > 0 {
		q.Set("after", strconv.FormatUint(afterSeq, 10))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, idemKey string) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return mapAPIError(resp.StatusCode, apiErr.Code, apiErr.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// mapAPIError turns the wire error envelope back into the domain error
// taxonomy so errors.Is works across the network boundary.
func mapAPIError(status int, code, msg string) error {
	var base error
	switch code {
	case "validation_error", "bad_request":
		base = contract.ErrValidation
	case "not_found":
		base = contract.ErrNotFound
	case "already_signed":
		base = contract.ErrAlreadySigned
	case "illegal_transition":
		base = contract.ErrIllegalTransition
	case "invalid_state":
		base = contract.ErrInvalidState
	case "agreement_not_confirmed":
		base = contract.ErrAgreementNotConfirmed
	case "quota_exceeded":
		base = subscription.ErrQuotaExceeded
	}
	if base != nil {
		return fmt.Errorf("%w: %s", base, msg)
	}
	return fmt.Errorf("api error: status %d, code %q: %s", status, code, msg)
}
