package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"slatesign.org/internal/subscription"
)

// Config holds the service runtime knobs. Everything comes from the
// environment; flags are reserved for the operational tools.
type Config struct {
	Addr            string        `env:"SLATESIGN_ADDR" envDefault:":8080"`
	PGDSN           string        `env:"SLATESIGN_PG_DSN"`
	Version         string        `env:"SLATESIGN_VERSION" envDefault:"dev"`
	Commit          string        `env:"SLATESIGN_COMMIT" envDefault:"unknown"`
	ShutdownTimeout time.Duration `env:"SLATESIGN_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	RateBurst    int   `env:"SLATESIGN_RATE_BURST" envDefault:"20"`
	RatePerSec   int   `env:"SLATESIGN_RATE_PER_SEC" envDefault:"10"`
	MaxBodyBytes int64 `env:"SLATESIGN_MAX_BODY_BYTES" envDefault:"1048576"`

	// Per-plan quota overrides; -1 means unlimited. Zero values fall back
	// to the built-in table so unset variables change nothing.
	FreeContractsPerMonth int `env:"SLATESIGN_FREE_CONTRACTS_PER_MONTH"`
	FreeCastingsPerMonth  int `env:"SLATESIGN_FREE_CASTINGS_PER_MONTH"`
	FreeSelfTapesPerMonth int `env:"SLATESIGN_FREE_SELF_TAPES_PER_MONTH"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.RateBurst < 1 || cfg.RatePerSec < 1 {
		return Config{}, fmt.Errorf("rate limit settings must be positive")
	}
	if cfg.MaxBodyBytes < 1 {
		return Config{}, fmt.Errorf("max body bytes must be positive")
	}
	return cfg, nil
}

// PlanTable returns the subscription limit table with any configured free
// tier overrides applied.
func (c Config) PlanTable() subscription.Table {
	table := subscription.DefaultTable()
	free := table[subscription.PlanFree]
	if c.FreeContractsPerMonth != 0 {
		free.ContractsPerMonth = c.FreeContractsPerMonth
	}
	if c.FreeCastingsPerMonth != 0 {
		free.CastingsPerMonth = c.FreeCastingsPerMonth
	}
	if c.FreeSelfTapesPerMonth != 0 {
		free.SelfTapesPerMonth = c.FreeSelfTapesPerMonth
	}
	table[subscription.PlanFree] = free
	return table
}
