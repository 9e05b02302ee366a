package contract

import (
	"context"
	"strings"
)

// Sign captures one party's signature. Re-signing is rejected, not replayed;
// the second distinct-role signature drives the signed transition and, when
// the start date has already arrived, the signed->active follow-up.
func (s *InMemory) Sign(ctx context.Context, id string, role SignerRole, signerName string, agreementConfirmed bool) (Signature, error) {
	if _, err := ParseSignerRole(string(role)); err != nil {
		return Signature{}, err
	}
	signerName = strings.TrimSpace(signerName)
	if signerName == "" {
		return Signature{}, ErrValidation
	}

	s.mu.Lock()
	rec, ok := s.recs[id]
	if !ok {
		s.mu.Unlock()
		return Signature{}, ErrNotFound
	}

	if rec.contract.Status.IsTerminal() {
		s.mu.Unlock()
		return Signature{}, ErrInvalidState
	}
	if _, exists := rec.contract.SignatureFor(role); exists {
		s.mu.Unlock()
		return Signature{}, ErrAlreadySigned
	}
	// A draft has not been sent to the counterpart yet.
	if rec.contract.Status == StatusDraft {
		s.mu.Unlock()
		return Signature{}, ErrInvalidState
	}
	if !agreementConfirmed {
		s.mu.Unlock()
		return Signature{}, ErrAgreementNotConfirmed
	}

	now := s.now()
	sig := Signature{
		ContractID: id,
		Role:       role,
		SignerName: signerName,
		SignedAt:   now,
	}
	rec.contract.Signatures = append(rec.contract.Signatures, sig)
	rec.contract.UpdatedAt = now

	evts := []Event{s.appendEvent(rec, EventSigned, signerName, map[string]string{
		"role":   string(role),
		"signer": signerName,
	})}

	if rec.contract.FullySigned() {
		evt, err := s.applyTransition(rec, StatusSigned, signerName)
		if err != nil {
			// Both signatures exist, so the only failure is an unlisted edge,
			// which the draft guard above already excludes.
			s.mu.Unlock()
			return Signature{}, err
		}
		evts = append(evts, evt)

		start := rec.contract.Terms.StartDate
		if start == nil || !start.After(now) {
			evt, err := s.applyTransition(rec, StatusActive, signerName)
			if err != nil {
				s.mu.Unlock()
				return Signature{}, err
			}
			evts = append(evts, evt)
		}
	}
	s.mu.Unlock()

	s.publish(evts...)
	return sig, nil
}
