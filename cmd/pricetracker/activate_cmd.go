package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/database"
	"github.com/falense/PriceTracker-sub001/internal/lifecycle"
	"github.com/falense/PriceTracker-sub001/internal/logging"
	"github.com/falense/PriceTracker-sub001/internal/repository"
)

// runActivateLatestExtractors implements `activate-latest-extractors
// [--dry-run]`: the idempotent version-activation sweep.
func runActivateLatestExtractors(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("activate-latest-extractors", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report what would be activated without writing")
	fs.Parse(args)

	lc, closeDB, err := newLifecycleManager(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "activate-latest-extractors: %v\n", err)
		return 1
	}
	defer closeDB()

	results, err := lc.ActivateLatestSweep(ctx, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "activate-latest-extractors: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		fmt.Fprintf(os.Stderr, "activate-latest-extractors: failed to encode results: %v\n", err)
		return 1
	}
	return 0
}

// runBackfillExtractorStats implements `backfill-extractor-stats
// [--dry-run]`: the idempotent attempt-counter recompute from PriceHistory.
func runBackfillExtractorStats(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("backfill-extractor-stats", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	fs.Parse(args)

	lc, closeDB, err := newLifecycleManager(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill-extractor-stats: %v\n", err)
		return 1
	}
	defer closeDB()

	results, err := lc.BackfillStats(ctx, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill-extractor-stats: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		fmt.Fprintf(os.Stderr, "backfill-extractor-stats: failed to encode results: %v\n", err)
		return 1
	}
	return 0
}

// newLifecycleManager is a lighter bootstrap than newApp: these two
// maintenance commands only touch Store/Pattern/PriceHistory data, so they
// skip the browser pool and rate limiter entirely.
func newLifecycleManager(ctx context.Context) (*lifecycle.Manager, func(), error) {
	logger := logging.SetDefault()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.MigrateWithLogger(db, logger); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)

	lc := lifecycle.New(stores, patterns, history, noopGenerationRequester{}, logger)
	return lc, func() { _ = db.Close() }, nil
}

// noopGenerationRequester satisfies lifecycle.GenerationRequester for
// maintenance commands that never call EnsurePattern.
type noopGenerationRequester struct{}

func (noopGenerationRequester) RequestGeneration(ctx context.Context, domain, sampleURL string) error {
	return nil
}
