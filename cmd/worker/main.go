// Package main is the entry point for the stockflow housekeeping worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockflow/internal/config"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for the worker")
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockflow worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	if err := postgres.Migrate(ctx, txm); err != nil {
		log.Fatalw("failed to migrate database", "error", err)
	}

	worker := NewHousekeeper(
		postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		func(ctx context.Context) { postgres.LogPoolStats(ctx, pool) },
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// ExpiredPurger deletes records past their retention.
type ExpiredPurger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Housekeeper runs periodic maintenance against the journal database.
type Housekeeper struct {
	purger ExpiredPurger
	stats  func(ctx context.Context)
	log    *logger.Logger

	CleanupInterval time.Duration
	StatsInterval   time.Duration
}

func NewHousekeeper(purger ExpiredPurger, stats func(ctx context.Context), log *logger.Logger) *Housekeeper {
	return &Housekeeper{
		purger:          purger,
		stats:           stats,
		log:             log.WithComponent("worker"),
		CleanupInterval: time.Hour,
		StatsInterval:   time.Minute,
	}
}

// Run purges once immediately, then on every tick until ctx is cancelled.
func (w *Housekeeper) Run(ctx context.Context) {
	cleanupTicker := time.NewTicker(w.CleanupInterval)
	defer cleanupTicker.Stop()

	statsTicker := time.NewTicker(w.StatsInterval)
	defer statsTicker.Stop()

	w.cleanupIdempotency(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		case <-statsTicker.C:
			if w.stats != nil {
				w.stats(ctx)
			}
		}
	}
}

func (w *Housekeeper) cleanupIdempotency(ctx context.Context) {
	n, err := w.purger.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}
