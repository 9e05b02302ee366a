package contract

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"slatesign.org/internal/ids"
)

// Authorizer is consulted before a draft is created. The subscription gate
// implements it; a nil authorizer allows everything.
type Authorizer interface {
	AuthorizeContractCreate(ctx context.Context, producerID string) error
}

// EventSink receives every appended timeline event after the owning
// operation commits. Delivery is fire-and-forget and never fails the
// operation.
type EventSink func(Event)

// Service defines the contract lifecycle operations.
type Service interface {
	CreateDraft(ctx context.Context, producerID, actorID string, terms Terms) (Contract, error)
	GetContract(ctx context.Context, id string) (Contract, error)
	AssignActor(ctx context.Context, id, actorID string) (Contract, error)
	UpdateTerms(ctx context.Context, id string, patch TermsPatch, byAccountID string) (Contract, error)
	TransitionStatus(ctx context.Context, id string, target Status, byAccountID string) (Contract, error)
	Sign(ctx context.Context, id string, role SignerRole, signerName string, agreementConfirmed bool) (Signature, error)
	PostMessage(ctx context.Context, id, authorID string, authorRole SignerRole, body string, isCounterOffer bool, idemKey string) (Message, error)
	ListMessages(ctx context.Context, id string, limit int, afterSeq uint64) ([]Message, uint64, error)
	RecordPayment(ctx context.Context, id string, amount int64, paidAt time.Time, notes, receiptRef, idemKey string) (Payment, error)
	ListPayments(ctx context.Context, id string, limit int, afterSeq uint64) ([]Payment, uint64, error)
	PaidToDate(ctx context.Context, id string) (int64, error)
	Progress(ctx context.Context, id string) (float64, error)
	Timeline(ctx context.Context, id string, limit int, afterSeq uint64) ([]Event, uint64, error)
}

// record keeps one contract with its append-only logs. All mutations to a
// record happen under the store lock, so operations on a single contract
// are serialized.
type record struct {
	contract Contract
	messages []Message
	payments []Payment
	events   []Event

	msgSeq uint64
	paySeq uint64
	evtSeq uint64

	lastMsgAt time.Time

	msgIdem map[string]Message
	payIdem map[string]Payment
}

// InMemory implements Service with in-process concurrency safety.
// NOTE: replace with the Postgres store for durable deployments.
type InMemory struct {
	mu    sync.RWMutex
	recs  map[string]*record
	authz Authorizer
	sink  EventSink
	now   func() time.Time
}

// Option configures InMemory.
type Option func(*InMemory)

// WithAuthorizer wires the subscription gate into draft creation.
func WithAuthorizer(a Authorizer) Option {
	return func(s *InMemory) { s.authz = a }
}

// WithEventSink wires a timeline event subscriber.
func WithEventSink(sink EventSink) Option {
	return func(s *InMemory) { s.sink = sink }
}

// WithClock overrides the time source. Test use.
func WithClock(now func() time.Time) Option {
	return func(s *InMemory) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInMemory creates a fresh store.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		recs: make(map[string]*record),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Service = (*InMemory)(nil)

func (s *InMemory) CreateDraft(ctx context.Context, producerID, actorID string, terms Terms) (Contract, error) {
	producerID = strings.TrimSpace(producerID)
	if producerID == "" {
		return Contract{}, ErrValidation
	}
	if err := terms.Validate(); err != nil {
		return Contract{}, err
	}
	if s.authz != nil {
		if err := s.authz.AuthorizeContractCreate(ctx, producerID); err != nil {
			return Contract{}, err
		}
	}

	s.mu.Lock()
	now := s.now()
	c := Contract{
		ID:         ids.New(),
		ProducerID: producerID,
		ActorID:    strings.TrimSpace(actorID),
		Terms:      terms,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	rec := &record{
		contract: c,
		msgIdem:  make(map[string]Message),
		payIdem:  make(map[string]Payment),
	}
	s.recs[c.ID] = rec
	evt := s.appendEvent(rec, EventCreated, producerID, map[string]string{
		"status": string(StatusDraft),
	})
	out := cloneContract(rec.contract)
	s.mu.Unlock()

	s.publish(evt)
	return out, nil
}

func (s *InMemory) GetContract(ctx context.Context, id string) (Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return Contract{}, ErrNotFound
	}
	return cloneContract(rec.contract), nil
}

func (s *InMemory) AssignActor(ctx context.Context, id, actorID string) (Contract, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Contract{}, ErrValidation
	}

	s.mu.Lock()
	rec, ok := s.recs[id]
	if !ok {
		s.mu.Unlock()
		return Contract{}, ErrNotFound
	}
	if !rec.contract.Status.Negotiable() {
		s.mu.Unlock()
		return Contract{}, ErrInvalidState
	}
	rec.contract.ActorID = actorID
	rec.contract.UpdatedAt = s.now()
	evt := s.appendEvent(rec, EventActorAssigned, actorID, map[string]string{
		"actor_id": actorID,
	})
	out := cloneContract(rec.contract)
	s.mu.Unlock()

	s.publish(evt)
	return out, nil
}

func (s *InMemory) UpdateTerms(ctx context.Context, id string, patch TermsPatch, byAccountID string) (Contract, error) {
	s.mu.Lock()
	rec, ok := s.recs[id]
	if !ok {
		s.mu.Unlock()
		return Contract{}, ErrNotFound
	}
	if !rec.contract.Status.Negotiable() {
		s.mu.Unlock()
		return Contract{}, ErrInvalidState
	}

	updated := patch.Apply(rec.contract.Terms)
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return Contract{}, err
	}
	// A no-op diff leaves the contract untouched: no event, no timestamp bump.
	if reflect.DeepEqual(updated, rec.contract.Terms) {
		out := cloneContract(rec.contract)
		s.mu.Unlock()
		return out, nil
	}

	rec.contract.Terms = updated
	rec.contract.UpdatedAt = s.now()
	evt := s.appendEvent(rec, EventTermsUpdated, byAccountID, map[string]string{
		"status": string(rec.contract.Status),
	})
	out := cloneContract(rec.contract)
	s.mu.Unlock()

	s.publish(evt)
	return out, nil
}

func (s *InMemory) TransitionStatus(ctx context.Context, id string, target Status, byAccountID string) (Contract, error) {
	s.mu.Lock()
	rec, ok := s.recs[id]
	if !ok {
		s.mu.Unlock()
		return Contract{}, ErrNotFound
	}

	evt, err := s.applyTransition(rec, target, byAccountID)
	if err != nil {
		s.mu.Unlock()
		return Contract{}, err
	}
	out := cloneContract(rec.contract)
	s.mu.Unlock()

	s.publish(evt)
	return out, nil
}

// applyTransition validates one edge and applies it. Caller holds the lock.
func (s *InMemory) applyTransition(rec *record, target Status, byAccountID string) (Event, error) {
	from := rec.contract.Status
	if !CanTransition(from, target) {
		return Event{}, ErrIllegalTransition
	}
	// Signed is reachable only with both signatures on file.
	if target == StatusSigned && !rec.contract.FullySigned() {
		return Event{}, ErrInvalidState
	}
	rec.contract.Status = target
	rec.contract.UpdatedAt = s.now()
	evt := s.appendEvent(rec, EventStatusChanged, byAccountID, map[string]string{
		"from": string(from),
		"to":   string(target),
	})
	return evt, nil
}

// appendEvent appends one immutable timeline entry. Caller holds the lock.
func (s *InMemory) appendEvent(rec *record, typ, actorID string, fields map[string]string) Event {
	rec.evtSeq++
	evt := Event{
		ID:         ids.New(),
		ContractID: rec.contract.ID,
		Sequence:   rec.evtSeq,
		Type:       typ,
		ActorID:    actorID,
		OccurredAt: s.now(),
		Fields:     fields,
	}
	rec.events = append(rec.events, evt)
	return evt
}

func (s *InMemory) publish(evts ...Event) {
	if s.sink == nil {
		return
	}
	for _, evt := range evts {
		if evt.ID == "" {
			continue
		}
		s.sink(evt)
	}
}

func (s *InMemory) Timeline(ctx context.Context, id string, limit int, afterSeq uint64) ([]Event, uint64, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	var res []Event
	last := afterSeq
	for _, evt := range rec.events {
		if evt.Sequence <= afterSeq {
			continue
		}
		res = append(res, evt)
		last = evt.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func cloneContract(c Contract) Contract {
	out := c
	if len(c.Signatures) > 0 {
		out.Signatures = append([]Signature(nil), c.Signatures...)
	}
	if len(c.Terms.UsageRights) > 0 {
		out.Terms.UsageRights = append([]string(nil), c.Terms.UsageRights...)
	}
	if c.Terms.StartDate != nil {
		sd := *c.Terms.StartDate
		out.Terms.StartDate = &sd
	}
	if c.Terms.EndDate != nil {
		ed := *c.Terms.EndDate
		out.Terms.EndDate = &ed
	}
	return out
}
