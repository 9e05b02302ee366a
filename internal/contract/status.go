package contract

import (
	"strings"
	"time"
)

// Status is the contract lifecycle state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSent        Status = "sent"
	StatusOpened      Status = "opened"
	StatusNegotiating Status = "negotiating"
	StatusSigned      Status = "signed"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusExpired     Status = "expired"
	StatusCancelled   Status = "cancelled"
)

// ParseStatus validates a status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := transitions[s]; ok {
		return s, nil
	}
	return "", ErrValidation
}

// transitions is the authoritative edge table. Signed is reachable only once
// both signatures exist; TransitionStatus enforces that guard separately.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusSent, StatusCancelled},
	StatusSent:        {StatusOpened, StatusSigned, StatusCancelled},
	StatusOpened:      {StatusNegotiating, StatusSigned, StatusCancelled},
	StatusNegotiating: {StatusNegotiating, StatusSigned, StatusCancelled},
	StatusSigned:      {StatusActive},
	StatusActive:      {StatusCompleted, StatusExpired},
	StatusCompleted:   {},
	StatusExpired:     {},
	StatusCancelled:   {},
}

// CanTransition reports whether from->to is a listed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0 && s != ""
}

// Negotiable reports whether term updates are still permitted.
func (s Status) Negotiable() bool {
	switch s {
	case StatusDraft, StatusSent, StatusOpened, StatusNegotiating:
		return true
	}
	return false
}

// MarkExpiredIfDue returns the effective status at the given instant: an
// active contract whose end date has passed reads as expired. Pure — the
// stored status is only changed by an explicit transition.
func MarkExpiredIfDue(c Contract, now time.Time) Status {
	if c.Status == StatusActive && c.Terms.EndDate != nil && c.Terms.EndDate.Before(now) {
		return StatusExpired
	}
	return c.Status
}
