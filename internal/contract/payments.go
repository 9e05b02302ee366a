package contract

import (
	"context"
	"strconv"
	"strings"
	"time"

	"slatesign.org/internal/ids"
)

// RecordPayment appends one payment against the contract. Amounts are minor
// units and must be positive; there is no ceiling against the face amount —
// over-payment is surfaced, not rejected.
func (s *InMemory) RecordPayment(ctx context.Context, id string, amount int64, paidAt time.Time, notes, receiptRef, idemKey string) (Payment, error) {
	if amount <= 0 {
		return Payment{}, ErrValidation
	}
	idemKey = strings.TrimSpace(idemKey)

	s.mu.Lock()
	rec, ok := s.recs[id]
	if !ok {
		s.mu.Unlock()
		return Payment{}, ErrNotFound
	}

	if idemKey != "" {
		if p, ok := rec.payIdem[idemKey]; ok {
			s.mu.Unlock()
			return p, nil
		}
	}

	now := s.now()
	if paidAt.IsZero() {
		paidAt = now
	}
	rec.paySeq++
	p := Payment{
		ID:             ids.New(),
		ContractID:     id,
		Amount:         amount,
		PaidAt:         paidAt,
		Notes:          strings.TrimSpace(notes),
		ReceiptRef:     strings.TrimSpace(receiptRef),
		CreatedAt:      now,
		Sequence:       rec.paySeq,
		IdempotencyKey: idemKey,
	}
	rec.payments = append(rec.payments, p)
	if idemKey != "" {
		rec.payIdem[idemKey] = p
	}

	evt := s.appendEvent(rec, EventPaymentAdded, "", map[string]string{
		"amount": strconv.FormatInt(amount, 10),
	})
	s.mu.Unlock()

	s.publish(evt)
	return p, nil
}

// ListPayments returns recorded payments in insertion order, restartable
// via the sequence cursor.
func (s *InMemory) ListPayments(ctx context.Context, id string, limit int, afterSeq uint64) ([]Payment, uint64, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	var res []Payment
	last := afterSeq
	for _, p := range rec.payments {
		if p.Sequence <= afterSeq {
			continue
		}
		res = append(res, p)
		last = p.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

// PaidToDate sums all recorded amounts; zero for a contract with no
// payments.
func (s *InMemory) PaidToDate(ctx context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return 0, ErrNotFound
	}
	return sumPayments(rec.payments), nil
}

// Progress derives paid-to-date as a percentage of the face amount. A zero
// or unset amount reads as 0% so the read path stays total; values over
// 100 are reported as-is.
func (s *InMemory) Progress(ctx context.Context, id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return 0, ErrNotFound
	}
	return ProgressPercent(sumPayments(rec.payments), rec.contract.Terms.Amount), nil
}

// ProgressPercent is the shared derivation used by every store.
func ProgressPercent(paid, faceAmount int64) float64 {
	if faceAmount <= 0 {
		return 0
	}
	return float64(paid) / float64(faceAmount) * 100
}

func sumPayments(payments []Payment) int64 {
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}
