package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"slatesign.org/internal/contract"
	"slatesign.org/internal/ids"
)

// Store is the durable contract.Service. Every mutation locks the contract
// row first, so operations on one contract serialize the same way the
// in-memory store's lock does.
type Store struct {
	db    *sql.DB
	authz contract.Authorizer
	sink  contract.EventSink
	now   func() time.Time
}

var _ contract.Service = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithAuthorizer wires the subscription gate into draft creation.
func WithAuthorizer(a contract.Authorizer) Option {
	return func(s *Store) { s.authz = a }
}

// WithEventSink wires a timeline event subscriber.
func WithEventSink(sink contract.EventSink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithClock overrides the time source. Test use.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateDraft(ctx context.Context, producerID, actorID string, terms contract.Terms) (contract.Contract, error) {
	producerID = strings.TrimSpace(producerID)
	actorID = strings.TrimSpace(actorID)
	if producerID == "" {
		return contract.Contract{}, contract.ErrValidation
	}
	if err := terms.Validate(); err != nil {
		return contract.Contract{}, err
	}
	if s.authz != nil {
		if err := s.authz.AuthorizeContractCreate(ctx, producerID); err != nil {
			return contract.Contract{}, err
		}
	}

	termsJSON, err := json.Marshal(terms)
	if err != nil {
		return contract.Contract{}, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Contract{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	c := contract.Contract{
		ID:         ids.New(),
		ProducerID: producerID,
		ActorID:    actorID,
		Terms:      terms,
		Status:     contract.StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into contracts(id, producer_id, actor_id, terms, status, created_at, updated_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$6)
	`, c.ID, c.ProducerID, c.ActorID, termsJSON, c.Status, now); err != nil {
		return contract.Contract{}, err
	}

	evt, err := s.appendEvent(ctx, tx, c.ID, contract.EventCreated, producerID, now, map[string]string{
		"status": string(contract.StatusDraft),
	})
	if err != nil {
		return contract.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return contract.Contract{}, err
	}
	s.publish(evt)
	return c, nil
}

func (s *Store) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	return s.loadContract(ctx, s.db, id, false)
}

func (s *Store) AssignActor(ctx context.Context, id, actorID string) (contract.Contract, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return contract.Contract{}, contract.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Contract{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.loadContract(ctx, tx, id, true)
	if err != nil {
		return contract.Contract{}, err
	}
	if !c.Status.Negotiable() {
		return contract.Contract{}, contract.ErrInvalidState
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		update contracts set actor_id=$2, updated_at=$3 where id=$1
	`, id, actorID, now); err != nil {
		return contract.Contract{}, err
	}
	evt, err := s.appendEvent(ctx, tx, id, contract.EventActorAssigned, actorID, now, map[string]string{
		"actor_id": actorID,
	})
	if err != nil {
		return contract.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return contract.Contract{}, err
	}

	c.ActorID = actorID
	c.UpdatedAt = now
	s.publish(evt)
	return c, nil
}

func (s *Store) UpdateTerms(ctx context.Context, id string, patch contract.TermsPatch, byAccountID string) (contract.Contract, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Contract{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.loadContract(ctx, tx, id, true)
	if err != nil {
		return contract.Contract{}, err
	}
	if !c.Status.Negotiable() {
		return contract.Contract{}, contract.ErrInvalidState
	}

	next := patch.Apply(c.Terms)
	if err := next.Validate(); err != nil {
		return contract.Contract{}, err
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return contract.Contract{}, err
	}
	prevJSON, err := json.Marshal(c.Terms)
	if err != nil {
		return contract.Contract{}, err
	}
	if string(nextJSON) == string(prevJSON) {
		// no-op patch leaves the row untouched
		return c, nil
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		update contracts set terms=$2, updated_at=$3 where id=$1
	`, id, nextJSON, now); err != nil {
		return contract.Contract{}, err
	}
	evt, err := s.appendEvent(ctx, tx, id, contract.EventTermsUpdated, byAccountID, now, map[string]string{
		"project_title": next.ProjectTitle,
	})
	if err != nil {
		return contract.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return contract.Contract{}, err
	}

	c.Terms = next
	c.UpdatedAt = now
	s.publish(evt)
	return c, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, target contract.Status, byAccountID string) (contract.Contract, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Contract{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.loadContract(ctx, tx, id, true)
	if err != nil {
		return contract.Contract{}, err
	}

	now := s.now()
	evt, err := s.applyTransition(ctx, tx, &c, target, byAccountID, now)
	if err != nil {
		return contract.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return contract.Contract{}, err
	}
	s.publish(evt)
	return c, nil
}

// applyTransition validates and records one status change inside the
// caller's transaction. The caller commits.
func (s *Store) applyTransition(ctx context.Context, tx *sql.Tx, c *contract.Contract, target contract.Status, byAccountID string, now time.Time) (contract.Event, error) {
	if !contract.CanTransition(c.Status, target) {
		if c.Status.IsTerminal() {
			return contract.Event{}, contract.ErrInvalidState
		}
		return contract.Event{}, contract.ErrIllegalTransition
	}
	if target == contract.StatusSigned && !c.FullySigned() {
		return contract.Event{}, contract.ErrInvalidState
	}

	from := c.Status
	if _, err := tx.ExecContext(ctx, `
		update contracts set status=$2, updated_at=$3 where id=$1
	`, c.ID, target, now); err != nil {
		return contract.Event{}, err
	}
	evt, err := s.appendEvent(ctx, tx, c.ID, contract.EventStatusChanged, byAccountID, now, map[string]string{
		"from": string(from),
		"to":   string(target),
	})
	if err != nil {
		return contract.Event{}, err
	}
	c.Status = target
	c.UpdatedAt = now
	return evt, nil
}

func (s *Store) Sign(ctx context.Context, id string, role contract.SignerRole, signerName string, agreementConfirmed bool) (contract.Signature, error) {
	if _, err := contract.ParseSignerRole(string(role)); err != nil {
		return contract.Signature{}, contract.ErrValidation
	}
	signerName = strings.TrimSpace(signerName)
	if signerName == "" {
		return contract.Signature{}, contract.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Signature{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.loadContract(ctx, tx, id, true)
	if err != nil {
		return contract.Signature{}, err
	}
	if c.Status.IsTerminal() {
		return contract.Signature{}, contract.ErrInvalidState
	}
	if _, dup := c.SignatureFor(role); dup {
		return contract.Signature{}, contract.ErrAlreadySigned
	}
	if c.Status == contract.StatusDraft {
		return contract.Signature{}, contract.ErrInvalidState
	}
	if !agreementConfirmed {
		return contract.Signature{}, contract.ErrAgreementNotConfirmed
	}

	now := s.now()
	sig := contract.Signature{
		ContractID: id,
		Role:       role,
		SignerName: signerName,
		SignedAt:   now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into signatures(contract_id, role, signer_name, signed_at)
		values ($1,$2,$3,$4)
	`, id, sig.Role, sig.SignerName, now); err != nil {
		return contract.Signature{}, err
	}
	c.Signatures = append(c.Signatures, sig)

	events := make([]contract.Event, 0, 3)
	evt, err := s.appendEvent(ctx, tx, id, contract.EventSigned, signerName, now, map[string]string{
		"role":   string(role),
		"signer": signerName,
	})
	if err != nil {
		return contract.Signature{}, err
	}
	events = append(events, evt)

	if c.FullySigned() {
		evt, err := s.applyTransition(ctx, tx, &c, contract.StatusSigned, signerName, now)
		if err != nil {
			return contract.Signature{}, err
		}
		events = append(events, evt)
		if c.Terms.StartDate == nil || !c.Terms.StartDate.After(now) {
			evt, err := s.applyTransition(ctx, tx, &c, contract.StatusActive, signerName, now)
			if err != nil {
				return contract.Signature{}, err
			}
			events = append(events, evt)
		}
	}

	if err := tx.Commit(); err != nil {
		return contract.Signature{}, err
	}
	s.publish(events...)
	return sig, nil
}

func (s *Store) PostMessage(ctx context.Context, id, authorID string, authorRole contract.SignerRole, body string, isCounterOffer bool, idemKey string) (contract.Message, error) {
	authorID = strings.TrimSpace(authorID)
	body = strings.TrimSpace(body)
	if authorID == "" || body == "" {
		return contract.Message{}, contract.ErrValidation
	}
	if _, err := contract.ParseSignerRole(string(authorRole)); err != nil {
		return contract.Message{}, contract.ErrValidation
	}
	idemKey = strings.TrimSpace(idemKey)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.loadContract(ctx, tx, id, true)
	if err != nil {
		return contract.Message{}, err
	}
	if c.Status.IsTerminal() {
		return contract.Message{}, contract.ErrInvalidState
	}

	if idemKey != "" {
		var m contract.Message
		err := tx.QueryRowContext(ctx, `
			select id, contract_id, author_id, author_role, body, is_counter_offer, created_at, sequence, idempotency_key
			from messages where contract_id=$1 and idempotency_key=$2
		`, id, idemKey).Scan(&m.ID, &m.ContractID, &m.AuthorID, &m.AuthorRole, &m.Body,
			&m.IsCounterOffer, &m.CreatedAt, &m.Sequence, &m.IdempotencyKey)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return contract.Message{}, err
		}
	}

	now := s.now()
	// thread timestamps never go backwards, even if the clock does
	var lastMsgAt sql.NullTime
	if err := tx.QueryRowContext(ctx, `select last_msg_at from contracts where id=$1`, id).Scan(&lastMsgAt); err != nil {
		return contract.Message{}, err
	}
	if lastMsgAt.Valid && lastMsgAt.Time.After(now) {
		now = lastMsgAt.Time
	}

	var seq uint64
	if err := tx.QueryRowContext(ctx, `
		update contracts set msg_seq = msg_seq + 1, last_msg_at=$2, updated_at=$2
		where id=$1 returning msg_seq
	`, id, now).Scan(&seq); err != nil {
		return contract.Message{}, err
	}

	m := contract.Message{
		ID:             ids.New(),
		ContractID:     id,
		AuthorID:       authorID,
		AuthorRole:     authorRole,
		Body:           body,
		IsCounterOffer: isCounterOffer,
		CreatedAt:      now,
		Sequence:       seq,
		IdempotencyKey: idemKey,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into messages(id, contract_id, author_id, author_role, body, is_counter_offer, created_at, sequence, idempotency_key)
		values ($1,$2,$3,$4,$5,$6,$7,$8,nullif($9,''))
	`, m.ID, m.ContractID, m.AuthorID, m.AuthorRole, m.Body, m.IsCounterOffer, m.CreatedAt, m.Sequence, m.IdempotencyKey); err != nil {
		return contract.Message{}, err
	}

	events := make([]contract.Event, 0, 3)
	evt, err := s.appendEvent(ctx, tx, id, contract.EventMessagePosted, authorID, now, map[string]string{
		"role":          string(authorRole),
		"counter_offer": boolString(isCounterOffer),
	})
	if err != nil {
		return contract.Message{}, err
	}
	events = append(events, evt)

	// a message on a fresh offer pulls the thread into negotiation
	if c.Status == contract.StatusSent {
		evt, err := s.applyTransition(ctx, tx, &c, contract.StatusOpened, authorID, now)
		if err != nil {
			return contract.Message{}, err
		}
		events = append(events, evt)
	}
	if c.Status == contract.StatusOpened {
		evt, err := s.applyTransition(ctx, tx, &c, contract.StatusNegotiating, authorID, now)
		if err != nil {
			return contract.Message{}, err
		}
		events = append(events, evt)
	}

	if err := tx.Commit(); err != nil {
		return contract.Message{}, err
	}
	s.publish(events...)
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, id string, limit int, afterSeq uint64) ([]contract.Message, uint64, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, contract_id, author_id, author_role, body, is_counter_offer, created_at, sequence, coalesce(idempotency_key,'')
		from messages
		where contract_id=$1 and sequence > $2
		order by sequence asc
		limit $3
	`, id, afterSeq, clampLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []contract.Message
	last := afterSeq
	for rows.Next() {
		var m contract.Message
		if err := rows.Scan(&m.ID, &m.ContractID, &m.AuthorID, &m.AuthorRole, &m.Body,
			&m.IsCounterOffer, &m.CreatedAt, &m.Sequence, &m.IdempotencyKey); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
		last = m.Sequence
	}
	return out, last, rows.Err()
}

func (s *Store) RecordPayment(ctx context.Context, id string, amount int64, paidAt time.Time, notes, receiptRef, idemKey string) (contract.Payment, error) {
	if amount <= 0 {
		return contract.Payment{}, contract.ErrValidation
	}
	notes = strings.TrimSpace(notes)
	receiptRef = strings.TrimSpace(receiptRef)
	idemKey = strings.TrimSpace(idemKey)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return contract.Payment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.loadContract(ctx, tx, id, true); err != nil {
		return contract.Payment{}, err
	}

	if idemKey != "" {
		var p contract.Payment
		err := tx.QueryRowContext(ctx, `
			select id, contract_id, amount, paid_at, coalesce(notes,''), coalesce(receipt_ref,''), created_at, sequence, idempotency_key
			from payments where contract_id=$1 and idempotency_key=$2
		`, id, idemKey).Scan(&p.ID, &p.ContractID, &p.Amount, &p.PaidAt, &p.Notes,
			&p.ReceiptRef, &p.CreatedAt, &p.Sequence, &p.IdempotencyKey)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return contract.Payment{}, err
		}
	}

	now := s.now()
	if paidAt.IsZero() {
		paidAt = now
	}

	var seq uint64
	if err := tx.QueryRowContext(ctx, `
		update contracts set pay_seq = pay_seq + 1, updated_at=$2
		where id=$1 returning pay_seq
	`, id, now).Scan(&seq); err != nil {
		return contract.Payment{}, err
	}

	p := contract.Payment{
		ID:             ids.New(),
		ContractID:     id,
		Amount:         amount,
		PaidAt:         paidAt,
		Notes:          notes,
		ReceiptRef:     receiptRef,
		CreatedAt:      now,
		Sequence:       seq,
		IdempotencyKey: idemKey,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into payments(id, contract_id, amount, paid_at, notes, receipt_ref, created_at, sequence, idempotency_key)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7,$8,nullif($9,''))
	`, p.ID, p.ContractID, p.Amount, p.PaidAt, p.Notes, p.ReceiptRef, p.CreatedAt, p.Sequence, p.IdempotencyKey); err != nil {
		return contract.Payment{}, err
	}
	evt, err := s.appendEvent(ctx, tx, id, contract.EventPaymentAdded, "", now, map[string]string{
		"amount": int64String(amount),
	})
	if err != nil {
		return contract.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return contract.Payment{}, err
	}
	s.publish(evt)
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, id string, limit int, afterSeq uint64) ([]contract.Payment, uint64, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, contract_id, amount, paid_at, coalesce(notes,''), coalesce(receipt_ref,''), created_at, sequence, coalesce(idempotency_key,'')
		from payments
		where contract_id=$1 and sequence > $2
		order by sequence asc
		limit $3
	`, id, afterSeq, clampLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []contract.Payment
	last := afterSeq
	for rows.Next() {
		var p contract.Payment
		if err := rows.Scan(&p.ID, &p.ContractID, &p.Amount, &p.PaidAt, &p.Notes,
			&p.ReceiptRef, &p.CreatedAt, &p.Sequence, &p.IdempotencyKey); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
		last = p.Sequence
	}
	return out, last, rows.Err()
}

func (s *Store) PaidToDate(ctx context.Context, id string) (int64, error) {
	if err := s.exists(ctx, id); err != nil {
		return 0, err
	}
	var total int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(amount),0) from payments where contract_id=$1
	`, id).Scan(&total)
	return total, err
}

func (s *Store) Progress(ctx context.Context, id string) (float64, error) {
	c, err := s.GetContract(ctx, id)
	if err != nil {
		return 0, err
	}
	paid, err := s.PaidToDate(ctx, id)
	if err != nil {
		return 0, err
	}
	return contract.ProgressPercent(paid, c.Terms.Amount), nil
}

func (s *Store) Timeline(ctx context.Context, id string, limit int, afterSeq uint64) ([]contract.Event, uint64, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, contract_id, sequence, type, coalesce(actor_id,''), occurred_at, fields
		from timeline_events
		where contract_id=$1 and sequence > $2
		order by sequence asc
		limit $3
	`, id, afterSeq, clampLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []contract.Event
	last := afterSeq
	for rows.Next() {
		var e contract.Event
		var fieldsJSON []byte
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Sequence, &e.Type, &e.ActorID, &e.OccurredAt, &fieldsJSON); err != nil {
			return nil, 0, err
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, e)
		last = e.Sequence
	}
	return out, last, rows.Err()
}

// --- helpers ---

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadContract reads one contract and its signatures. With forUpdate set
// the contract row is locked for the remainder of the transaction.
func (s *Store) loadContract(ctx context.Context, q querier, id string, forUpdate bool) (contract.Contract, error) {
	query := `
		select id, producer_id, coalesce(actor_id,''), terms, status, created_at, updated_at
		from contracts where id=$1`
	if forUpdate {
		query += ` for update`
	}

	var c contract.Contract
	var termsJSON []byte
	err := q.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.ProducerID, &c.ActorID, &termsJSON, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Contract{}, contract.ErrNotFound
	}
	if err != nil {
		return contract.Contract{}, err
	}
	if err := json.Unmarshal(termsJSON, &c.Terms); err != nil {
		return contract.Contract{}, err
	}

	rows, err := q.QueryContext(ctx, `
		select contract_id, role, signer_name, signed_at
		from signatures where contract_id=$1 order by signed_at asc
	`, id)
	if err != nil {
		return contract.Contract{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sig contract.Signature
		if err := rows.Scan(&sig.ContractID, &sig.Role, &sig.SignerName, &sig.SignedAt); err != nil {
			return contract.Contract{}, err
		}
		c.Signatures = append(c.Signatures, sig)
	}
	return c, rows.Err()
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from contracts where id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.ErrNotFound
	}
	return err
}

func (s *Store) appendEvent(ctx context.Context, tx *sql.Tx, contractID, typ, actorID string, now time.Time, fields map[string]string) (contract.Event, error) {
	var seq uint64
	if err := tx.QueryRowContext(ctx, `
		update contracts set evt_seq = evt_seq + 1 where id=$1 returning evt_seq
	`, contractID).Scan(&seq); err != nil {
		return contract.Event{}, err
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return contract.Event{}, err
	}
	e := contract.Event{
		ID:         ids.New(),
		ContractID: contractID,
		Sequence:   seq,
		Type:       typ,
		ActorID:    actorID,
		OccurredAt: now,
		Fields:     fields,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into timeline_events(id, contract_id, sequence, type, actor_id, occurred_at, fields)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7)
	`, e.ID, e.ContractID, e.Sequence, e.Type, e.ActorID, e.OccurredAt, fieldsJSON); err != nil {
		return contract.Event{}, err
	}
	return e, nil
}

func (s *Store) publish(events ...contract.Event) {
	if s.sink == nil {
		return
	}
	for _, e := range events {
		s.sink(e)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func int64String(v int64) string {
	return strconv.FormatInt(v, 10)
}
