// Package lifecycle implements the Pattern Lifecycle Manager (C8):
// first-sight pattern registration, version commits, the periodic
// activation sweep, and extractor statistics backfill.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/repository"
)

// rollbackStickyWindow is how long a manual rollback sticks before the
// activation sweep is allowed to activate a newer version over it again.
const rollbackStickyWindow = 7 * 24 * time.Hour

// GenerationRequester emits the outbound pattern_generation_requested event
// when ensure_pattern finds no Pattern for a domain. Implemented by
// internal/generator; kept as an interface here so this package doesn't
// depend on the HMAC-signing/HTTP delivery concerns.
type GenerationRequester interface {
	RequestGeneration(ctx context.Context, domain, sampleURL string) error
}

// Manager implements the Pattern Lifecycle operations against the
// repository layer.
type Manager struct {
	stores    repository.StoreRepository
	patterns  repository.PatternRepository
	history   repository.PriceHistoryRepository
	generator GenerationRequester
	logger    *slog.Logger
}

func New(stores repository.StoreRepository, patterns repository.PatternRepository, history repository.PriceHistoryRepository, generator GenerationRequester, logger *slog.Logger) *Manager {
	return &Manager{stores: stores, patterns: patterns, history: history, generator: generator, logger: logger}
}

// EnsurePattern returns the domain's active Pattern if one exists.
// Otherwise it registers the Store (first-sight), fires a
// pattern_generation_requested event, and returns nil, nil — the caller
// (C10) must tolerate this by skipping the fetch while keeping the listing
// alive, not by treating it as an error.
func (m *Manager) EnsurePattern(ctx context.Context, domain, sampleURL string) (*models.Pattern, error) {
	if _, _, err := m.stores.GetOrCreate(ctx, domain); err != nil {
		return nil, err
	}

	p, err := m.patterns.GetActive(ctx, domain)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	if err := m.generator.RequestGeneration(ctx, domain, sampleURL); err != nil {
		// Generation requests are fire-and-forget from the caller's
		// perspective: a delivery failure doesn't block the listing.
		m.logger.Warn("pattern generation request failed", "domain", domain, "error", err)
	}
	return nil, nil
}

// CommitNewVersion writes a new active PatternVersion for domain, the write
// path behind manual edits, auto-generation, API updates, and rollbacks
// that create a fresh version (change_type != rollback).
func (m *Manager) CommitNewVersion(ctx context.Context, domain, patternJSON, reason string, changeType models.ChangeType) (*models.PatternVersion, error) {
	existing, err := m.patterns.GetActive(ctx, domain)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing == nil {
		return m.patterns.PutInitial(ctx, domain, patternJSON, changeType)
	}
	return m.patterns.Replace(ctx, domain, patternJSON, reason, changeType)
}

// Rollback re-activates versionNumber without creating a new version, per
// spec.md §3's PatternVersion lifecycle note ("rollback re-activates a
// chosen prior version... unless change_type=rollback").
func (m *Manager) Rollback(ctx context.Context, domain string, versionNumber int64) (*models.PatternVersion, error) {
	return m.patterns.Rollback(ctx, domain, versionNumber)
}

// SweepResult reports what ActivateLatestSweep did, for the CLI to print.
type SweepResult struct {
	Domain    string
	Activated bool
	Skipped   bool
	Reason    string
}

// ActivateLatestSweep runs the activation rule across every domain with
// recorded PatternVersions: the newest-by-created-at version should be
// active, all others deactivated. Idempotent.
//
// This diverges from the Django original
// (activate_latest_extractors.py), which activates unconditionally. Here
// the sweep is sticky with respect to rollbacks: a domain whose currently
// active version has change_type=rollback and was created within the last
// 7 days is skipped, so a deliberate operator rollback isn't silently
// undone by the next scheduled sweep.
func (m *Manager) ActivateLatestSweep(ctx context.Context, dryRun bool) ([]SweepResult, error) {
	domains, err := m.patterns.ListDomainsWithVersions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, 0, len(domains))
	for _, domain := range domains {
		active, err := m.patterns.GetActiveVersion(ctx, domain)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return results, err
		}
		if active != nil && active.ChangeType == models.ChangeTypeRollback && time.Since(active.CreatedAt) < rollbackStickyWindow {
			results = append(results, SweepResult{Domain: domain, Skipped: true, Reason: "active version is a recent rollback"})
			continue
		}

		if dryRun {
			results = append(results, SweepResult{Domain: domain, Reason: "dry-run"})
			continue
		}

		changed, err := m.patterns.ActivateLatest(ctx, domain)
		if err != nil {
			return results, err
		}
		results = append(results, SweepResult{Domain: domain, Activated: changed})
	}
	return results, nil
}

// BackfillResult reports what BackfillStats did for one PatternVersion.
type BackfillResult struct {
	VersionID  string
	Total      int64
	Successful int64
	Skipped    bool
}

// BackfillStats recomputes total_attempts/successful_attempts for every
// active PatternVersion from PriceHistory, the same recomputation
// backfill_extractor_stats.py performs. Idempotent.
func (m *Manager) BackfillStats(ctx context.Context, dryRun bool) ([]BackfillResult, error) {
	domains, err := m.patterns.ListDomainsWithVersions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]BackfillResult, 0, len(domains))
	for _, domain := range domains {
		active, err := m.patterns.GetActiveVersion(ctx, domain)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return results, err
		}

		total, successful, err := m.history.CountByExtractorVersion(ctx, active.ID)
		if err != nil {
			return results, err
		}
		if total == 0 {
			results = append(results, BackfillResult{VersionID: active.ID, Skipped: true})
			continue
		}

		if !dryRun {
			if err := m.patterns.SetVersionStats(ctx, active.ID, total, successful); err != nil {
				return results, err
			}
		}
		results = append(results, BackfillResult{VersionID: active.ID, Total: total, Successful: successful})
	}
	return results, nil
}
