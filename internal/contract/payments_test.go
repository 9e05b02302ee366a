package contract

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestRecordPaymentAndPaidToDate(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	c, _ := s.CreateDraft(ctx, "prod-1", "actor-1", validTerms())

	if _, err := s.RecordPayment(ctx, c.ID, 0, time.Time{}, "", "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero amount, got %v", err)
	}
	if _, err := s.RecordPayment(ctx, c.ID, -5, time.Time{}, "", "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative amount, got %v", err)
	}

	paid, err := s.PaidToDate(ctx, c.ID)
	if err != nil || paid != 0 {
		t.Fatalf("empty ledger paid=%d err=%v, want 0", paid, err)
	}

	if _, err := s.RecordPayment(ctx, c.ID, 2500, time.Time{}, "first installment", "rcpt-1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPayment(ctx, c.ID, 1500, time.Time{}, "", "", ""); err != nil {
		t.Fatal(err)
	}
	paid, _ = s.PaidToDate(ctx, c.ID)
	if paid != 4000 {
		t.Fatalf("paid to date = %d, want 4000", paid)
	}
}

// Property: paid-to-date equals the exact sum regardless of recording order.
func TestPaidToDateOrderIndependent(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	ctx := context.Background()

	amounts := make([]int64, 20)
	var want int64
	for i := range amounts {
		amounts[i] = int64(rnd.Intn(5000) + 1)
		want += amounts[i]
	}

	for trial := 0; trial < 5; trial++ {
		s := NewInMemory()
		c, _ := s.CreateDraft(ctx, "prod-1", "", validTerms())
		rnd.Shuffle(len(amounts), func(i, j int) { amounts[i], amounts[j] = amounts[j], amounts[i] })
		for _, a := range amounts {
			if _, err := s.RecordPayment(ctx, c.ID, a, time.Time{}, "", "", ""); err != nil {
				t.Fatal(err)
			}
		}
		paid, _ := s.PaidToDate(ctx, c.ID)
		if paid != want {
			t.Fatalf("trial %d: paid=%d want=%d", trial, paid, want)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	terms := validTerms()
	terms.Amount = 1000
	c, _ := s.CreateDraft(ctx, "prod-1", "", terms)

	pct, err := s.Progress(ctx, c.ID)
	if err != nil || pct != 0 {
		t.Fatalf("no payments: %v %v", pct, err)
	}

	// Over-payment is surfaced, not clamped.
	if _, err := s.RecordPayment(ctx, c.ID, 600, time.Time{}, "", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPayment(ctx, c.ID, 600, time.Time{}, "", "", ""); err != nil {
		t.Fatal(err)
	}
	pct, _ = s.Progress(ctx, c.ID)
	if pct != 120 {
		t.Fatalf("progress = %v, want 120", pct)
	}
}

func TestProgressZeroAmountContract(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	terms := validTerms()
	terms.Amount = 0
	c, _ := s.CreateDraft(ctx, "prod-1", "", terms)

	if _, err := s.RecordPayment(ctx, c.ID, 100, time.Time{}, "", "", ""); err != nil {
		t.Fatal(err)
	}
	pct, err := s.Progress(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pct != 0 {
		t.Fatalf("zero face amount reads %v, want 0", pct)
	}
}

func TestRecordPaymentIdempotency(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	c, _ := s.CreateDraft(ctx, "prod-1", "", validTerms())

	p1, err := s.RecordPayment(ctx, c.ID, 700, time.Time{}, "", "", "pay-1")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.RecordPayment(ctx, c.ID, 700, time.Time{}, "", "", "pay-1")
	if err != nil {
		t.Fatal(err)
	}
	if p1.ID != p2.ID || p1.Sequence != p2.Sequence {
		t.Fatalf("idempotency violated: %#v != %#v", p1, p2)
	}
	paid, _ := s.PaidToDate(ctx, c.ID)
	if paid != 700 {
		t.Fatalf("paid = %d, want 700", paid)
	}
}

func TestConcurrentPayments(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	c, _ := s.CreateDraft(ctx, "prod-1", "", validTerms())

	var wg sync.WaitGroup
	N := 50
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordPayment(ctx, c.ID, 10, time.Time{}, "", "", "")
		}()
	}
	wg.Wait()

	paid, err := s.PaidToDate(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if paid != int64(N)*10 {
		t.Fatalf("paid = %d, want %d", paid, N*10)
	}
}

func TestTimelineRecordsEverything(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	c, _ := s.CreateDraft(ctx, "prod-1", "actor-1", validTerms())
	if _, err := s.TransitionStatus(ctx, c.ID, StatusSent, "prod-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PostMessage(ctx, c.ID, "actor-1", RoleActor, "offer", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sign(ctx, c.ID, RoleProducer, "Pat", true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sign(ctx, c.ID, RoleActor, "Alex", true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPayment(ctx, c.ID, 2500, time.Time{}, "", "", ""); err != nil {
		t.Fatal(err)
	}

	evts, _, err := s.Timeline(ctx, c.ID, 1000, 0)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for i, evt := range evts {
		counts[evt.Type]++
		if evt.Sequence != uint64(i+1) {
			t.Fatalf("event %d has sequence %d", i, evt.Sequence)
		}
	}
	if counts[EventCreated] != 1 || counts[EventMessagePosted] != 1 || counts[EventSigned] != 2 || counts[EventPaymentAdded] != 1 {
		t.Fatalf("unexpected event mix: %v", counts)
	}
	// draft->sent, sent->opened, opened->negotiating, negotiating->signed, signed->active.
	if counts[EventStatusChanged] != 5 {
		t.Fatalf("status change events = %d, want 5", counts[EventStatusChanged])
	}
}
