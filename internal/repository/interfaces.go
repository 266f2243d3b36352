// Package repository defines repository interfaces for data access and their
// SQLite-backed implementations.
package repository

import (
	"context"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// StoreRepository persists Store rows (§3).
type StoreRepository interface {
	GetByDomain(ctx context.Context, domain string) (*models.Store, error)
	GetOrCreate(ctx context.Context, domain string) (*models.Store, bool, error)
	Update(ctx context.Context, store *models.Store) error
}

// PatternRepository implements the Pattern Store (C2).
type PatternRepository interface {
	// GetActive returns the denormalized active Pattern for a domain, or
	// sql.ErrNoRows if none exists yet.
	GetActive(ctx context.Context, domain string) (*models.Pattern, error)

	// PutInitial creates the first PatternVersion (version 1, active) for a
	// domain and its denormalized Pattern row.
	PutInitial(ctx context.Context, domain, patternJSON string, changeType models.ChangeType) (*models.PatternVersion, error)

	// Replace atomically writes a new active PatternVersion (version =
	// max+1), deactivates all others for the domain, and refreshes the
	// Pattern row.
	Replace(ctx context.Context, domain, patternJSON, changeReason string, changeType models.ChangeType) (*models.PatternVersion, error)

	// RecordAttempt atomically increments total/successful attempts and
	// recomputes success_rate for both the Pattern row and its active
	// PatternVersion, using a single serialised UPDATE rather than
	// read-modify-write.
	RecordAttempt(ctx context.Context, domain string, success bool) error

	// Rollback re-activates a prior version number, deactivating all
	// others and marking the re-activated version's change_type as
	// rollback, without creating a new version and without touching stats.
	Rollback(ctx context.Context, domain string, versionNumber int64) (*models.PatternVersion, error)

	// ListVersions returns every PatternVersion for a domain, newest first.
	ListVersions(ctx context.Context, domain string) ([]*models.PatternVersion, error)

	// GetActiveVersion returns the currently active PatternVersion for a
	// domain, or sql.ErrNoRows if the domain has no versions.
	GetActiveVersion(ctx context.Context, domain string) (*models.PatternVersion, error)

	// GetVersionByID fetches a single PatternVersion.
	GetVersionByID(ctx context.Context, id string) (*models.PatternVersion, error)

	// ListDomainsWithVersions returns every domain that has at least one
	// PatternVersion row, for the activation sweep.
	ListDomainsWithVersions(ctx context.Context) ([]string, error)

	// ActivateLatest makes the newest-by-created_at version of domain the
	// active one, deactivating the rest. Idempotent.
	ActivateLatest(ctx context.Context, domain string) (changed bool, err error)

	// SetVersionStats overwrites a PatternVersion's attempt counters
	// (used by the stats backfill operation). Idempotent.
	SetVersionStats(ctx context.Context, versionID string, total, successful int64) error

	// UnhealthyDomains returns domains whose active Pattern has
	// total_attempts >= minAttempts and success_rate < maxSuccessRate.
	UnhealthyDomains(ctx context.Context, minAttempts int64, maxSuccessRate float64) ([]string, error)
}

// ProductRepository persists Product rows.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	IncrementSubscriberCount(ctx context.Context, productID string, delta int) error
}

// ListingRepository persists ProductListing rows.
type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*models.ProductListing, error)

	// GetActiveByStoreAndURLBase enforces the "at most one active listing
	// per (store, url_base)" invariant by letting callers find-before-create.
	GetActiveByStoreAndURLBase(ctx context.Context, storeID, urlBase string) (*models.ProductListing, error)

	Create(ctx context.Context, listing *models.ProductListing) error

	// DueForRefresh returns active listings whose last_checked is null or
	// older than interval(priority), ordered by priority descending then
	// last_checked ascending, bounded to limit rows (C9's due-set query).
	DueForRefresh(ctx context.Context, now time.Time, priorityIntervals map[models.Priority]time.Duration, limit int) ([]*models.ProductListing, error)

	// ListActiveAll returns every active listing, for the Operator CLI's
	// `fetch --all` mode.
	ListActiveAll(ctx context.Context) ([]*models.ProductListing, error)

	// ListActiveByProduct returns every active listing for one product, for
	// the Operator CLI's `fetch --product` mode.
	ListActiveByProduct(ctx context.Context, productID string) ([]*models.ProductListing, error)

	// Claim performs the Scheduler's compare-and-set: it advances
	// last_checked only if the row's last_checked still matches
	// expectedLastChecked, returning claimed=false if another worker won
	// the race.
	Claim(ctx context.Context, listingID string, expectedLastChecked *time.Time, now time.Time) (claimed bool, err error)

	// CommitFetchResult persists the outcome of one fetch cycle: updates
	// the listing row and, iff price is non-nil, appends a PriceHistory
	// row — all in a single transaction (§4.10 step 7).
	CommitFetchResult(ctx context.Context, listingID string, price *float64, currency string, available bool, extractorVersionID *string, checkedAt time.Time, extractionMethod string, confidence float64) error

	// Deactivate soft-deletes a listing (untrack, no active subscribers left).
	Deactivate(ctx context.Context, listingID string) error

	// AggregatedPriority returns the highest priority across a product's
	// active subscriptions, or models.PriorityLow if none.
	AggregatedPriority(ctx context.Context, productID string) (models.Priority, error)
}

// PriceHistoryRepository persists append-only PriceHistory rows.
type PriceHistoryRepository interface {
	LastForListing(ctx context.Context, listingID string) (*models.PriceHistory, error)
	CountForListing(ctx context.Context, listingID string) (int, error)

	// CountByExtractorVersion returns (total, successful) PriceHistory rows
	// whose listing's extractor_version_id equals versionID, for the stats
	// backfill operation.
	CountByExtractorVersion(ctx context.Context, versionID string) (total, successful int64, err error)

	// DeleteOlderThan purges history rows past the retention window.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionRepository persists UserSubscription rows.
type SubscriptionRepository interface {
	GetByUserAndProduct(ctx context.Context, userID, productID string) (*models.UserSubscription, error)
	Upsert(ctx context.Context, sub *models.UserSubscription) error
	Deactivate(ctx context.Context, userID, productID string) error
	ListActiveByProduct(ctx context.Context, productID string) ([]*models.UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]*models.UserSubscription, error)
}

// NotificationRepository persists Notification rows.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error

	// ExistsWithin reports whether a notification of (userID, productID,
	// type) was created within the dedup window ending at now.
	ExistsWithin(ctx context.Context, userID, productID string, notifType models.NotificationType, since time.Time) (bool, error)
}
