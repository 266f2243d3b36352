// Package scheduler implements the Scheduler (C9): every tick, select
// listings due for refresh, order them by aggregated subscriber priority,
// and dispatch bounded concurrent fetch jobs to the Fetch Orchestrator.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/repository"
)

// Processor runs one listing through the Fetch Orchestrator (C10). A
// non-nil error marks that listing's outcome as failed; runOne logs it and
// records it in the Summary, and the rest of the batch continues (spec.md
// §7's "partial failure is the norm").
type Processor interface {
	Process(ctx context.Context, listing *models.ProductListing) error
}

// Scheduler drives the IDLE -> DUE -> RUNNING -> IDLE state machine
// described in spec.md §4.9 on a fixed tick, bounded by a worker pool.
type Scheduler struct {
	listings  repository.ListingRepository
	processor Processor
	cfg       config.SchedulerConfig
	priority  config.PriorityConfig

	stop       chan struct{}
	wg         sync.WaitGroup
	activeJobs int64
	activeMu   sync.Mutex
	logger     *slog.Logger

	shutdownGracePeriod time.Duration
}

func New(listings repository.ListingRepository, processor Processor, cfg config.SchedulerConfig, priority config.PriorityConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		listings:            listings,
		processor:           processor,
		cfg:                 cfg,
		priority:            priority,
		stop:                make(chan struct{}),
		logger:              logger.With("component", "scheduler"),
		shutdownGracePeriod: 2 * time.Minute,
	}
}

// Start runs the tick loop in a background goroutine. Call Stop to drain it.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// ActiveJobs reports how many fetch jobs are currently in flight.
func (s *Scheduler) ActiveJobs() int64 {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.activeJobs
}

// Stop signals the tick loop to exit and waits for in-flight jobs to drain,
// up to a bounded grace period, mirroring the worker pool's shutdown.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler, waiting for active jobs", "grace_period", s.shutdownGracePeriod)
	close(s.stop)

	deadline := time.Now().Add(s.shutdownGracePeriod)
	for time.Now().Before(deadline) {
		if s.ActiveJobs() == 0 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if remaining := s.ActiveJobs(); remaining > 0 {
		s.logger.Warn("shutdown grace period exceeded, jobs may be interrupted", "remaining", remaining)
	}

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick selects the due set and dispatches it through RunOnce.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.listings.DueForRefresh(ctx, time.Now(), s.priority.Intervals, s.cfg.MaxBatch)
	if err != nil {
		s.logger.Error("failed to select due listings", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Info("dispatching due listings", "count", len(due))
	summary := s.RunOnce(ctx, due)
	s.logger.Info("tick complete", "total", summary.Total, "success", summary.Success, "failed", summary.Failed)
}

// Outcome reports one listing's result within a RunOnce batch, the
// per-listing shape §7 requires for the partial-failure contract.
type Outcome struct {
	ListingID  string `json:"listing_id"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"` // another worker already claimed this listing
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates a RunOnce batch's outcomes.
type Summary struct {
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	PerListing []Outcome `json:"per_listing"`
}

// RunOnce dispatches exactly the given listings through the claim ->
// process pipeline, bounded by cfg.Workers, and returns a summary — used
// both by the continuous tick loop (with the due-set) and by the Operator
// CLI's fetch command (with an explicit --all/--listing/--product set).
// Every listing still goes through Claim, so a CLI-driven fetch still
// respects the same per-listing single-flight guarantee as the scheduled
// path (§5).
func (s *Scheduler) RunOnce(ctx context.Context, listings []*models.ProductListing) Summary {
	summary := Summary{Total: len(listings)}
	if len(listings) == 0 {
		return summary
	}

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, listing := range listings {
		select {
		case <-s.stop:
			return summary
		case <-ctx.Done():
			return summary
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(listing *models.ProductListing) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.runOne(ctx, listing)
			mu.Lock()
			defer mu.Unlock()
			summary.PerListing = append(summary.PerListing, outcome)
			switch {
			case outcome.Skipped:
			case outcome.Success:
				summary.Success++
			default:
				summary.Failed++
			}
		}(listing)
	}
	wg.Wait()
	return summary
}

func (s *Scheduler) runOne(ctx context.Context, listing *models.ProductListing) Outcome {
	start := time.Now()
	claimed, err := s.listings.Claim(ctx, listing.ID, listing.LastChecked, start)
	if err != nil {
		s.logger.Error("claim failed", "listing_id", listing.ID, "error", err)
		return Outcome{ListingID: listing.ID, Error: err.Error(), DurationMS: time.Since(start).Milliseconds()}
	}
	if !claimed {
		// Another worker (or another scheduler process sharing the DB)
		// already claimed this listing this tick.
		return Outcome{ListingID: listing.ID, Skipped: true}
	}

	s.activeMu.Lock()
	s.activeJobs++
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		s.activeJobs--
		s.activeMu.Unlock()
	}()

	procErr := s.processor.Process(ctx, listing)
	outcome := Outcome{ListingID: listing.ID, DurationMS: time.Since(start).Milliseconds(), Success: procErr == nil}
	if procErr != nil {
		s.logger.Error("listing processing failed", "listing_id", listing.ID, "error", procErr)
		outcome.Error = procErr.Error()
	}
	return outcome
}
