package contract

import (
	"errors"
	"strings"
	"time"
)

// Domain errors. All are expected, typed outcomes; only storage failures are
// treated as transient.
var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrInvalidState          = errors.New("operation not legal in current status")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrAlreadySigned         = errors.New("already signed")
	ErrAgreementNotConfirmed = errors.New("agreement not confirmed")
)

// SignerRole identifies which party a signature or message belongs to.
type SignerRole string

const (
	RoleProducer SignerRole = "producer"
	RoleActor    SignerRole = "actor"
)

// ParseSignerRole validates a role name.
func ParseSignerRole(raw string) (SignerRole, error) {
	switch SignerRole(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleProducer:
		return RoleProducer, nil
	case RoleActor:
		return RoleActor, nil
	}
	return "", ErrValidation
}

// RateType is how the agreed amount is counted.
type RateType string

const (
	RateDaily      RateType = "daily"
	RateWeekly     RateType = "weekly"
	RateFlat       RateType = "flat"
	RatePerEpisode RateType = "per-episode"
)

func (r RateType) valid() bool {
	switch r {
	case RateDaily, RateWeekly, RateFlat, RatePerEpisode:
		return true
	}
	return false
}

// PaymentSchedule is the agreed settlement window.
type PaymentSchedule string

const (
	ScheduleNet15        PaymentSchedule = "net-15"
	ScheduleNet30        PaymentSchedule = "net-30"
	ScheduleNet60        PaymentSchedule = "net-60"
	ScheduleOnCompletion PaymentSchedule = "upon-completion"
)

func (p PaymentSchedule) valid() bool {
	switch p {
	case ScheduleNet15, ScheduleNet30, ScheduleNet60, ScheduleOnCompletion:
		return true
	}
	return false
}

// Terms are the negotiable contract fields. Amounts are integer minor units
// (cents); no floats carry money.
type Terms struct {
	ProjectTitle    string          `json:"project_title"`
	RateType        RateType        `json:"rate_type"`
	Amount          int64           `json:"amount"`
	PaymentSchedule PaymentSchedule `json:"payment_schedule"`
	KillFeePercent  int             `json:"kill_fee_percent"`
	OvertimeRate    int64           `json:"overtime_rate"`
	UsageRights     []string        `json:"usage_rights,omitempty"`
	Territory       string          `json:"territory,omitempty"`
	UsageTerm       string          `json:"usage_term,omitempty"`
	Exclusive       bool            `json:"exclusive"`
	Nudity          bool            `json:"nudity"`
	Stunts          bool            `json:"stunts"`
	Minors          bool            `json:"minors"`
	SpecialNotes    string          `json:"special_notes,omitempty"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
}

// Validate checks term fields that have closed value sets.
func (t Terms) Validate() error {
	if strings.TrimSpace(t.ProjectTitle) == "" {
		return ErrValidation
	}
	if !t.RateType.valid() {
		return ErrValidation
	}
	if !t.PaymentSchedule.valid() {
		return ErrValidation
	}
	if t.Amount < 0 || t.OvertimeRate < 0 {
		return ErrValidation
	}
	if t.KillFeePercent < 0 || t.KillFeePercent > 100 {
		return ErrValidation
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return ErrValidation
	}
	return nil
}

// TermsPatch is a partial term update; nil fields are left unchanged.
type TermsPatch struct {
	ProjectTitle    *string          `json:"project_title,omitempty"`
	RateType        *RateType        `json:"rate_type,omitempty"`
	Amount          *int64           `json:"amount,omitempty"`
	PaymentSchedule *PaymentSchedule `json:"payment_schedule,omitempty"`
	KillFeePercent  *int             `json:"kill_fee_percent,omitempty"`
	OvertimeRate    *int64           `json:"overtime_rate,omitempty"`
	UsageRights     *[]string        `json:"usage_rights,omitempty"`
	Territory       *string          `json:"territory,omitempty"`
	UsageTerm       *string          `json:"usage_term,omitempty"`
	Exclusive       *bool            `json:"exclusive,omitempty"`
	Nudity          *bool            `json:"nudity,omitempty"`
	Stunts          *bool            `json:"stunts,omitempty"`
	Minors          *bool            `json:"minors,omitempty"`
	SpecialNotes    *string          `json:"special_notes,omitempty"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
}

// Apply returns the terms with non-nil patch fields overlaid.
func (p TermsPatch) Apply(t Terms) Terms {
	if p.ProjectTitle != nil {
		t.ProjectTitle = *p.ProjectTitle
	}
	if p.RateType != nil {
		t.RateType = *p.RateType
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.PaymentSchedule != nil {
		t.PaymentSchedule = *p.PaymentSchedule
	}
	if p.KillFeePercent != nil {
		t.KillFeePercent = *p.KillFeePercent
	}
	if p.OvertimeRate != nil {
		t.OvertimeRate = *p.OvertimeRate
	}
	if p.UsageRights != nil {
		t.UsageRights = append([]string(nil), (*p.UsageRights)...)
	}
	if p.Territory != nil {
		t.Territory = *p.Territory
	}
	if p.UsageTerm != nil {
		t.UsageTerm = *p.UsageTerm
	}
	if p.Exclusive != nil {
		t.Exclusive = *p.Exclusive
	}
	if p.Nudity != nil {
		t.Nudity = *p.Nudity
	}
	if p.Stunts != nil {
		t.Stunts = *p.Stunts
	}
	if p.Minors != nil {
		t.Minors = *p.Minors
	}
	if p.SpecialNotes != nil {
		t.SpecialNotes = *p.SpecialNotes
	}
	if p.StartDate != nil {
		sd := *p.StartDate
		t.StartDate = &sd
	}
	if p.EndDate != nil {
		ed := *p.EndDate
		t.EndDate = &ed
	}
	return t
}

// Signature is one party's executed signature. Immutable once created; at
// most one per role per contract.
type Signature struct {
	ContractID string     `json:"contract_id"`
	Role       SignerRole `json:"role"`
	SignerName string     `json:"signer_name"`
	SignedAt   time.Time  `json:"signed_at"`
}

// Contract is the negotiable agreement between a producer and an actor.
type Contract struct {
	ID         string      `json:"id"`
	ProducerID string      `json:"producer_id"`
	ActorID    string      `json:"actor_id,omitempty"`
	Terms      Terms       `json:"terms"`
	Status     Status      `json:"status"`
	Signatures []Signature `json:"signatures,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// SignatureFor returns the signature for a role, if present.
func (c Contract) SignatureFor(role SignerRole) (Signature, bool) {
	for _, s := range c.Signatures {
		if s.Role == role {
			return s, true
		}
	}
	return Signature{}, false
}

// FullySigned reports whether both required signatures exist.
func (c Contract) FullySigned() bool {
	_, p := c.SignatureFor(RoleProducer)
	_, a := c.SignatureFor(RoleActor)
	return p && a
}

// Message is one entry in a contract's negotiation thread. Append-only;
// counter-offers are tagged, never parsed here.
type Message struct {
	ID             string     `json:"id"`
	ContractID     string     `json:"contract_id"`
	AuthorID       string     `json:"author_id"`
	AuthorRole     SignerRole `json:"author_role"`
	Body           string     `json:"body"`
	IsCounterOffer bool       `json:"is_counter_offer,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Sequence       uint64     `json:"sequence"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

// Payment is one appended payment record. The sum of amounts is the
// authoritative paid-to-date; over-recording is allowed.
type Payment struct {
	ID             string    `json:"id"`
	ContractID     string    `json:"contract_id"`
	Amount         int64     `json:"amount"`
	PaidAt         time.Time `json:"paid_at"`
	Notes          string    `json:"notes,omitempty"`
	ReceiptRef     string    `json:"receipt_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Sequence       uint64    `json:"sequence"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// Event is an immutable timeline entry describing one state-changing
// operation on a contract.
type Event struct {
	ID         string            `json:"id"`
	ContractID string            `json:"contract_id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	ActorID    string            `json:"actor_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Timeline event types.
const (
	EventCreated       = "contract.created"
	EventTermsUpdated  = "contract.terms_updated"
	EventActorAssigned = "contract.actor_assigned"
	EventStatusChanged = "contract.status_changed"
	EventSigned        = "contract.signature_added"
	EventMessagePosted = "negotiation.message_posted"
	EventPaymentAdded  = "payment.recorded"
)
