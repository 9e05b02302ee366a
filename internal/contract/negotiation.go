package contract

import (
	"context"
	"strings"

	"slatesign.org/internal/ids"
)

// PostMessage appends one entry to the contract's negotiation thread.
// Timestamps are server-assigned and forced non-decreasing per contract;
// the sequence number breaks ties. Posting on a sent or opened contract
// moves it to negotiating.
func (s *InMemory) PostMessage(ctx context.Context, id, authorID string, authorRole SignerRole, body string, isCounterOffer bool, idemKey string) (Message, error) {
	if _, err := ParseSignerRole(string(authorRole)); err != nil {
		return Message{}, err
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return Message{}, ErrValidation
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrValidation
	}
	idemKey = strings.TrimSpace(idemKey)

	s.mu.Lock()
	rec, ok := s.recs[id]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrNotFound
	}
	if rec.contract.Status.IsTerminal() {
		s.mu.Unlock()
		return Message{}, ErrInvalidState
	}

	// Idempotency: a retried submission replays the original entry.
	if idemKey != "" {
		if m, ok := rec.msgIdem[idemKey]; ok {
			s.mu.Unlock()
			return m, nil
		}
	}

	ts := s.now()
	if ts.Before(rec.lastMsgAt) {
		ts = rec.lastMsgAt
	}
	rec.lastMsgAt = ts

	rec.msgSeq++
	msg := Message{
		ID:             ids.New(),
		ContractID:     id,
		AuthorID:       authorID,
		AuthorRole:     authorRole,
		Body:           body,
		IsCounterOffer: isCounterOffer,
		CreatedAt:      ts,
		Sequence:       rec.msgSeq,
		IdempotencyKey: idemKey,
	}
	rec.messages = append(rec.messages, msg)
	if idemKey != "" {
		rec.msgIdem[idemKey] = msg
	}

	evts := []Event{s.appendEvent(rec, EventMessagePosted, authorID, map[string]string{
		"role":          string(authorRole),
		"counter_offer": boolString(isCounterOffer),
	})}

	if rec.contract.Status == StatusSent || rec.contract.Status == StatusOpened {
		if rec.contract.Status == StatusSent {
			// The counterpart necessarily saw the contract to reply to it.
			evt, err := s.applyTransition(rec, StatusOpened, authorID)
			if err != nil {
				s.mu.Unlock()
				return Message{}, err
			}
			evts = append(evts, evt)
		}
		evt, err := s.applyTransition(rec, StatusNegotiating, authorID)
		if err != nil {
			s.mu.Unlock()
			return Message{}, err
		}
		evts = append(evts, evt)
	}
	s.mu.Unlock()

	s.publish(evts...)
	return msg, nil
}

// ListMessages returns the thread ascending by creation time (insertion
// order for equal timestamps), restartable via the sequence cursor.
func (s *InMemory) ListMessages(ctx context.Context, id string, limit int, afterSeq uint64) ([]Message, uint64, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	var res []Message
	last := afterSeq
	for _, m := range rec.messages {
		if m.Sequence <= afterSeq {
			continue
		}
		res = append(res, m)
		last = m.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
