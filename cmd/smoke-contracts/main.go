package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"slatesign.org/internal/auth"
	"slatesign.org/internal/contract"
	"slatesign.org/internal/contract/remote"
)

func main() {
	base := os.Getenv("SLATESIGN_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	client := remote.New(base)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.ObtainToken(ctx, "smoke-producer", []string{auth.RoleProducer}, "pro"); err != nil {
		log.Fatalf("obtain token at %s: %v", base, err)
	}
	svc := remote.NewService(client)

	terms := contract.Terms{
		ProjectTitle:    "Smoke Feature",
		RateType:        contract.RateFlat,
		Amount:          5_000,
		PaymentSchedule: contract.ScheduleNet30,
	}
	c, err := svc.CreateDraft(ctx, "smoke-producer", "smoke-actor", terms)
	if err != nil {
		log.Fatalf("create draft: %v", err)
	}

	if _, err := svc.TransitionStatus(ctx, c.ID, contract.StatusSent, "smoke-producer"); err != nil {
		log.Fatalf("send: %v", err)
	}
	if _, err := svc.PostMessage(ctx, c.ID, "smoke-producer", contract.RoleProducer, "counter at 5500?", true, fmt.Sprintf("smoke-msg-%d", rand.Int())); err != nil {
		log.Fatalf("post message: %v", err)
	}

	for _, role := range []contract.SignerRole{contract.RoleProducer, contract.RoleActor} {
		if _, err := svc.Sign(ctx, c.ID, role, "Smoke "+string(role), true); err != nil {
			log.Fatalf("sign %s: %v", role, err)
		}
	}

	got, err := svc.GetContract(ctx, c.ID)
	if err != nil {
		log.Fatalf("get contract: %v", err)
	}
	if got.Status != contract.StatusActive {
		log.Fatalf("expected active after both signatures, got %s", got.Status)
	}

	if _, err := svc.RecordPayment(ctx, c.ID, 2_500, time.Time{}, "first installment", "", fmt.Sprintf("smoke-pay-%d", rand.Int())); err != nil {
		log.Fatalf("record payment: %v", err)
	}
	progress, err := svc.Progress(ctx, c.ID)
	if err != nil {
		log.Fatalf("progress: %v", err)
	}
	if progress != 50 {
		log.Fatalf("expected 50%% progress, got %.2f", progress)
	}

	events, _, err := svc.Timeline(ctx, c.ID, 100, 0)
	if err != nil {
		log.Fatalf("timeline: %v", err)
	}

	fmt.Printf("✅ contracts smoke test passed: contract=%s events=%d\n", c.ID, len(events))
}
