package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLitePriceHistoryRepository implements PriceHistoryRepository.
type SQLitePriceHistoryRepository struct {
	db *sql.DB
}

func NewSQLitePriceHistoryRepository(db *sql.DB) *SQLitePriceHistoryRepository {
	return &SQLitePriceHistoryRepository{db: db}
}

func (r *SQLitePriceHistoryRepository) LastForListing(ctx context.Context, listingID string) (*models.PriceHistory, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, listing_id, price, currency, available, recorded_at, extraction_method, confidence
		FROM price_history WHERE listing_id = ? ORDER BY recorded_at DESC LIMIT 1`, listingID)

	var h models.PriceHistory
	var currency, extractionMethod sql.NullString
	var recordedAt string
	err := row.Scan(&h.ID, &h.ListingID, &h.Price, &currency, &h.Available, &recordedAt, &extractionMethod, &h.Confidence)
	if err != nil {
		return nil, err
	}
	h.Currency = currency.String
	h.ExtractionMethod = extractionMethod.String
	h.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
	return &h, nil
}

func (r *SQLitePriceHistoryRepository) CountForListing(ctx context.Context, listingID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_history WHERE listing_id = ?`, listingID).Scan(&n)
	return n, err
}

func (r *SQLitePriceHistoryRepository) CountByExtractorVersion(ctx context.Context, versionID string) (int64, int64, error) {
	var total, successful int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN ph.price IS NOT NULL AND ph.available = 1 THEN 1 ELSE 0 END), 0)
		FROM price_history ph
		JOIN product_listings l ON l.id = ph.listing_id
		WHERE l.extractor_version_id = ?`, versionID).Scan(&total, &successful)
	if err != nil {
		return 0, 0, fmt.Errorf("count by extractor version: %w", err)
	}
	return total, successful, nil
}

func (r *SQLitePriceHistoryRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM price_history WHERE recorded_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete old price_history: %w", err)
	}
	return res.RowsAffected()
}
