// Package main implements the Operator CLI: fetch, activate-latest-extractors,
// and backfill-extractor-stats — the only external surface in scope (§6).
// Bootstrap order follows cmd/refyne-api/main.go's: logger, config, database,
// migrations, repositories, services, minus the HTTP server this system
// doesn't have.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/falense/PriceTracker-sub001/internal/artifact"
	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/database"
	"github.com/falense/PriceTracker-sub001/internal/fetch"
	"github.com/falense/PriceTracker-sub001/internal/fetch/browser"
	"github.com/falense/PriceTracker-sub001/internal/generator"
	"github.com/falense/PriceTracker-sub001/internal/lifecycle"
	"github.com/falense/PriceTracker-sub001/internal/logging"
	"github.com/falense/PriceTracker-sub001/internal/notify"
	"github.com/falense/PriceTracker-sub001/internal/orchestrator"
	"github.com/falense/PriceTracker-sub001/internal/ratelimit"
	"github.com/falense/PriceTracker-sub001/internal/repository"
	"github.com/falense/PriceTracker-sub001/internal/scheduler"
	"github.com/falense/PriceTracker-sub001/internal/validate"
)

// app bundles every component the CLI's subcommands share, wired once per
// process invocation and torn down before exit.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	products repository.ProductRepository
	listings repository.ListingRepository

	pool      *browser.Pool
	scheduler *scheduler.Scheduler

	closers []func()
}

// newApp performs the full bootstrap sequence. Callers must call app.Close
// when done.
func newApp(ctx context.Context) (*app, error) {
	logger := logging.SetDefault()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}

	if err := database.MigrateWithLogger(db, logger); err != nil {
		for _, c := range closers {
			c()
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	products := repository.NewSQLiteProductRepository(db)
	listings := repository.NewSQLiteListingRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)
	subs := repository.NewSQLiteSubscriptionRepository(db)
	notifications := repository.NewSQLiteNotificationRepository(db)

	gen := generator.New(cfg.Notify, logger)
	lc := lifecycle.New(stores, patterns, history, gen, logger)
	notifier := notify.New(subs, notifications, logger)

	artifacts, err := artifact.New(ctx, cfg.Storage, logger)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, fmt.Errorf("init artifact store: %w", err)
	}

	pool := browser.NewPool(cfg.Fetcher, logger)
	if err := pool.Warmup(ctx, 1); err != nil {
		logger.Warn("browser pool warmup failed, will retry lazily on first fetch", "error", err)
	}
	closers = append(closers, pool.Close)

	fetcher := fetch.New(pool, cfg.Fetcher, logger)
	limiter := ratelimit.New(cfg.DelayFor)
	validator := validate.New(validate.Config{
		MinConfidence:     cfg.Validation.MinConfidence,
		MaxPriceChangePct: cfg.Validation.MaxPriceChangePct,
		MaxPlausiblePrice: validate.DefaultConfig().MaxPlausiblePrice,
	})

	orch := orchestrator.New(lc, patterns, products, listings, history, limiter, fetcher, validator, notifier, artifacts, cfg.Fetcher, logger)
	sched := scheduler.New(listings, orch, cfg.Scheduler, cfg.Priority, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		products:  products,
		listings:  listings,
		pool:      pool,
		scheduler: sched,
		closers:   closers,
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
