package config

import (
	"testing"
	"time"

	"slatesign.org/internal/subscription"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.RateBurst != 20 || cfg.RatePerSec != 10 {
		t.Fatalf("rate settings = %d/%d", cfg.RateBurst, cfg.RatePerSec)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SLATESIGN_ADDR", ":9090")
	t.Setenv("SLATESIGN_PG_DSN", "postgres://localhost/slatesign")
	t.Setenv("SLATESIGN_SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.PGDSN != "postgres://localhost/slatesign" {
		t.Fatalf("PGDSN = %q", cfg.PGDSN)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoadRejectsBadRateSettings(t *testing.T) {
	t.Setenv("SLATESIGN_RATE_BURST", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero rate burst")
	}
}

func TestPlanTableOverrides(t *testing.T) {
	t.Setenv("SLATESIGN_FREE_CONTRACTS_PER_MONTH", "5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	table := cfg.PlanTable()
	if got := table[subscription.PlanFree].ContractsPerMonth; got != 5 {
		t.Fatalf("free contracts override = %d", got)
	}
	// untouched tiers keep their published limits
	if got := table[subscription.PlanPro].ContractsPerMonth; got != subscription.Unlimited {
		t.Fatalf("pro contracts = %d", got)
	}
}
