package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLiteListingRepository implements ListingRepository.
type SQLiteListingRepository struct {
	db *sql.DB
}

func NewSQLiteListingRepository(db *sql.DB) *SQLiteListingRepository {
	return &SQLiteListingRepository{db: db}
}

func (r *SQLiteListingRepository) GetByID(ctx context.Context, id string) (*models.ProductListing, error) {
	row := r.db.QueryRowContext(ctx, listingSelect+` WHERE id = ?`, id)
	return scanListing(row)
}

func (r *SQLiteListingRepository) GetActiveByStoreAndURLBase(ctx context.Context, storeID, urlBase string) (*models.ProductListing, error) {
	row := r.db.QueryRowContext(ctx, listingSelect+` WHERE store_id = ? AND url_base = ? AND active = 1`, storeID, urlBase)
	return scanListing(row)
}

func (r *SQLiteListingRepository) Create(ctx context.Context, l *models.ProductListing) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_listings (id, product_id, store_id, url, url_base, current_price, currency, available, last_checked, last_available, extractor_version_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		l.ID, l.ProductID, l.StoreID, l.URL, l.URLBase, l.CurrentPrice, l.Currency, l.Available,
		formatNullTime(l.LastChecked), formatNullTime(l.LastAvailable), l.ExtractorVersionID, now, now)
	return err
}

// priorityRankCase mirrors models.Priority.Rank() for use in SQL CASE
// expressions, keeping the two in lockstep deliberately.
const priorityRankCase = `CASE s.priority WHEN 'high' THEN 3 WHEN 'normal' THEN 2 WHEN 'low' THEN 1 ELSE 1 END`

func rankToPriority(rank int64) models.Priority {
	switch rank {
	case 3:
		return models.PriorityHigh
	case 2:
		return models.PriorityNormal
	default:
		return models.PriorityLow
	}
}

// DueForRefresh loads every active listing along with its product's
// aggregated subscriber priority, then applies the priority-specific
// refresh interval in Go — SQLite has no clean way to parameterize a
// per-row interval lookup from a Go map inside the query itself.
func (r *SQLiteListingRepository) DueForRefresh(ctx context.Context, now time.Time, priorityIntervals map[models.Priority]time.Duration, limit int) ([]*models.ProductListing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.product_id, l.store_id, l.url, l.url_base, l.current_price, l.currency, l.available,
		       l.last_checked, l.last_available, l.extractor_version_id, l.active, l.created_at, l.updated_at,
		       COALESCE((SELECT MAX(`+priorityRankCase+`) FROM user_subscriptions s WHERE s.product_id = l.product_id AND s.active = 1), 1) AS priority_rank
		FROM product_listings l
		WHERE l.active = 1
		ORDER BY priority_rank DESC, (l.last_checked IS NOT NULL) ASC, l.last_checked ASC`)
	if err != nil {
		return nil, fmt.Errorf("query due listings: %w", err)
	}
	defer rows.Close()

	var due []*models.ProductListing
	for rows.Next() {
		l, rank, err := scanListingWithRank(rows)
		if err != nil {
			return nil, err
		}
		interval, ok := priorityIntervals[rankToPriority(rank)]
		if !ok {
			interval = priorityIntervals[models.PriorityNormal]
		}
		if l.LastChecked == nil || now.Sub(*l.LastChecked) >= interval {
			due = append(due, l)
			if limit > 0 && len(due) >= limit {
				break
			}
		}
	}
	return due, rows.Err()
}

func (r *SQLiteListingRepository) ListActiveAll(ctx context.Context) ([]*models.ProductListing, error) {
	rows, err := r.db.QueryContext(ctx, listingSelect+` WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active listings: %w", err)
	}
	defer rows.Close()
	return scanListings(rows)
}

func (r *SQLiteListingRepository) ListActiveByProduct(ctx context.Context, productID string) ([]*models.ProductListing, error) {
	rows, err := r.db.QueryContext(ctx, listingSelect+` WHERE active = 1 AND product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("query active listings for product: %w", err)
	}
	defer rows.Close()
	return scanListings(rows)
}

func (r *SQLiteListingRepository) Claim(ctx context.Context, listingID string, expectedLastChecked *time.Time, now time.Time) (bool, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	if expectedLastChecked == nil {
		res, err = r.db.ExecContext(ctx, `
			UPDATE product_listings SET last_checked = ? WHERE id = ? AND last_checked IS NULL AND active = 1`,
			nowStr, listingID)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE product_listings SET last_checked = ? WHERE id = ? AND last_checked = ? AND active = 1`,
			nowStr, listingID, expectedLastChecked.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return false, fmt.Errorf("claim listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteListingRepository) CommitFetchResult(ctx context.Context, listingID string, price *float64, currency string, available bool, extractorVersionID *string, checkedAt time.Time, extractionMethod string, confidence float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	checkedAtStr := checkedAt.UTC().Format(time.RFC3339)

	if available {
		_, err = tx.ExecContext(ctx, `
			UPDATE product_listings
			SET current_price = ?, currency = ?, available = 1, last_checked = ?, last_available = ?, extractor_version_id = ?, updated_at = ?
			WHERE id = ?`,
			price, currency, checkedAtStr, checkedAtStr, extractorVersionID, checkedAtStr, listingID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE product_listings
			SET current_price = ?, currency = ?, available = 0, last_checked = ?, extractor_version_id = ?, updated_at = ?
			WHERE id = ?`,
			price, currency, checkedAtStr, extractorVersionID, checkedAtStr, listingID)
	}
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}

	if price != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO price_history (id, listing_id, price, currency, available, recorded_at, extraction_method, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ulid.Make().String(), listingID, *price, currency, available, checkedAtStr, extractionMethod, confidence)
		if err != nil {
			return fmt.Errorf("insert price_history: %w", err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteListingRepository) Deactivate(ctx context.Context, listingID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE product_listings SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), listingID)
	return err
}

func (r *SQLiteListingRepository) AggregatedPriority(ctx context.Context, productID string) (models.Priority, error) {
	var rank sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(`+priorityRankCase+`) FROM user_subscriptions s WHERE s.product_id = ? AND s.active = 1`, productID).Scan(&rank)
	if err != nil {
		return models.PriorityLow, err
	}
	if !rank.Valid {
		return models.PriorityLow, nil
	}
	return rankToPriority(rank.Int64), nil
}

const listingSelect = `
	SELECT id, product_id, store_id, url, url_base, current_price, currency, available,
	       last_checked, last_available, extractor_version_id, active, created_at, updated_at
	FROM product_listings`

func scanListing(row rowScanner) (*models.ProductListing, error) {
	var l models.ProductListing
	var currency sql.NullString
	var lastChecked, lastAvailable, extractorVersionID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.ProductID, &l.StoreID, &l.URL, &l.URLBase, &l.CurrentPrice, &currency, &l.Available,
		&lastChecked, &lastAvailable, &extractorVersionID, &l.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.Currency = currency.String
	l.LastChecked = parseNullTime(lastChecked)
	l.LastAvailable = parseNullTime(lastAvailable)
	if extractorVersionID.Valid {
		v := extractorVersionID.String
		l.ExtractorVersionID = &v
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &l, nil
}

func scanListings(rows *sql.Rows) ([]*models.ProductListing, error) {
	var out []*models.ProductListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListingWithRank(rows *sql.Rows) (*models.ProductListing, int64, error) {
	var l models.ProductListing
	var currency sql.NullString
	var lastChecked, lastAvailable, extractorVersionID sql.NullString
	var createdAt, updatedAt string
	var rank int64
	err := rows.Scan(&l.ID, &l.ProductID, &l.StoreID, &l.URL, &l.URLBase, &l.CurrentPrice, &currency, &l.Available,
		&lastChecked, &lastAvailable, &extractorVersionID, &l.Active, &createdAt, &updatedAt, &rank)
	if err != nil {
		return nil, 0, err
	}
	l.Currency = currency.String
	l.LastChecked = parseNullTime(lastChecked)
	l.LastAvailable = parseNullTime(lastAvailable)
	if extractorVersionID.Valid {
		v := extractorVersionID.String
		l.ExtractorVersionID = &v
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &l, rank, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
