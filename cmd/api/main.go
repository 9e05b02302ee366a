package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"slatesign.org/internal/config"
	"slatesign.org/internal/contract"
	"slatesign.org/internal/httpapi"
	"slatesign.org/internal/obs"
	pgstore "slatesign.org/internal/store/pg"
	"slatesign.org/internal/stream"
	"slatesign.org/internal/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	gate := subscription.NewGate(cfg.PlanTable())
	st := stream.New()
	sink := httpapi.EventFanout(st)

	// Durable store when a DSN is configured, in-memory otherwise.
	var (
		svc   contract.Service
		usage httpapi.UsageCounter
		db    *sql.DB
	)
	if cfg.PGDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
		usage = pgstore.NewUsageStore(db)
		svc = pgstore.New(db,
			pgstore.WithAuthorizer(&subscription.Authorizer{
				Gate:  gate,
				Usage: usage,
				Plan:  httpapi.PlanFromClaims,
			}),
			pgstore.WithEventSink(sink),
		)
	} else {
		usage = subscription.NewInMemoryUsage()
		svc = contract.NewInMemory(
			contract.WithAuthorizer(&subscription.Authorizer{
				Gate:  gate,
				Usage: usage,
				Plan:  httpapi.PlanFromClaims,
			}),
			contract.WithEventSink(sink),
		)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, cfg.Version, svc, gate, usage, st,
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: the SSE feed holds connections open
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting slatesign-api %s on %s", cfg.Version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
