// Package main is the entry point for the stockflow API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockflow/internal/config"
	"stockflow/internal/domain/catalog"
	"stockflow/internal/domain/entry"
	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/policy"
	"stockflow/internal/domain/report"
	"stockflow/internal/domain/scrap"
	"stockflow/internal/domain/stock"
	"stockflow/internal/domain/transfer"
	"stockflow/internal/erp"
	v1 "stockflow/internal/infrastructure/http/v1"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/lock"
	"stockflow/internal/infrastructure/notify"
	"stockflow/internal/infrastructure/odoo"
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

	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting stockflow server", "env", cfg.AppEnv, "erp", cfg.Odoo.URL)

	// --- ERP ---
	client := odoo.NewClient(odoo.Config{
		URL:      cfg.Odoo.URL,
		Database: cfg.Odoo.Database,
		Username: cfg.Odoo.User,
		Password: cfg.Odoo.Password,
		Timeout:  cfg.Odoo.Timeout,
	}, nil)
	// Listing reads retry; orchestrator phases use the bare client.
	reads := erp.NewRetrying(client, cfg.Odoo.Retries, cfg.Odoo.RetryBackoff)

	health := map[string]handlers.Check{"erp": client.Ping}

	// --- Optional Postgres: journal + idempotency ---
	var (
		recorder    journal.Recorder
		journalList handlers.JournalLister
		idempotency *postgres.IdempotencyStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		txm := postgres.NewTxManager(pool)
		if err := postgres.Migrate(ctx, txm); err != nil {
			log.Fatalw("failed to migrate database", "error", err)
		}
		store, err := postgres.NewJournalStore(txm)
		if err != nil {
			log.Fatalw("failed to create journal store", "error", err)
		}
		recorder, journalList = store, store
		idempotency = postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)
		health["database"] = func(ctx context.Context) error { return pool.Ping(ctx) }
		log.Info("journal and idempotency enabled")
	}

	// --- Services ---
	cache := catalog.New(reads, catalog.Config{Limit: cfg.CatalogLimit})
	reader := stock.NewReader(reads)
	dir := stock.NewDirectory(reads)
	previewer := stock.NewPreviewer(reader)

	shortage, err := policy.NewShortage(cfg.ShortagePolicy)
	if err != nil {
		log.Fatalw("invalid shortage policy", "expression", cfg.ShortagePolicy, "error", err)
	}

	transferOpts := []transfer.Option{transfer.WithNamer(dir), transfer.WithJournal(recorder)}
	if cfg.TransferLock {
		rdb, err := lock.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer func() { _ = rdb.Close() }()
		locker := lock.NewRedisLocker(rdb, lock.Config{
			TTL:     cfg.TransferLockTTL,
			Retries: 20,
			Backoff: 250 * time.Millisecond,
		})
		transferOpts = append(transferOpts, transfer.WithLocker(locker))
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Infow("transfer lock enabled", "ttl", cfg.TransferLockTTL)
	}

	transfers := transfer.NewService(client, transfer.Config{
		ValidateMethods: cfg.ValidateMethods,
		DoneField:       cfg.DoneField,
	}, transferOpts...)
	entries := entry.NewService(client, entry.Config{DefaultWarehouseID: cfg.EntryWarehouseID}, entry.WithJournal(recorder))
	orders := order.NewService(client, order.WithJournal(recorder))
	scraps := scrap.NewService(client, reader, scrap.WithJournal(recorder))
	sessions := order.NewSessionResolver(client)
	reports := report.NewService(reads)

	if webhook := notify.NewWebhook(notify.Config{URL: cfg.NotifyURL, Chat: cfg.NotifyChat}, nil); webhook != nil {
		transfers.Hooks().OnAfterCreate(notify.TransferHook(webhook))
		orders.Hooks().OnAfterCreate(notify.OrderHook(webhook))
		entries.Hooks().OnAfterCreate(notify.EntryHook(webhook))
		log.Info("notifications enabled")
	}

	// Warm the catalog without holding up startup.
	go func() {
		if err := cache.EnsureLoaded(ctx); err != nil {
			log.Warnw("catalog warm-up failed, will load on first search", "error", err)
		}
	}()

	routerCfg := v1.RouterConfig{
		Logger:    log,
		Health:    health,
		Locations: dir,
		Catalog:   cache,
		Previewer: previewer,
		Policy:    shortage,
		Transfers: transfers,
		Entries:   entries,
		Orders:    orders,
		Sessions:  sessions,
		OrderConfig: handlers.OrderConfig{
			ConfigName: cfg.POSConfigName,
			LocationID: cfg.POSLocationID,
		},
		Scraps:  scraps,
		Reports: reports,
		Journal: journalList,
	}
	if idempotency != nil {
		routerCfg.Idempotency = idempotency
	}
	router := v1.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
