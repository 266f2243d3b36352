package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLiteStoreRepository implements StoreRepository against the stores table.
type SQLiteStoreRepository struct {
	db *sql.DB
}

func NewSQLiteStoreRepository(db *sql.DB) *SQLiteStoreRepository {
	return &SQLiteStoreRepository{db: db}
}

func (r *SQLiteStoreRepository) GetByDomain(ctx context.Context, domain string) (*models.Store, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, active, rate_limit_seconds, currency_hint, created_at, updated_at
		FROM stores WHERE domain = ?`, domain)
	return scanStore(row)
}

func (r *SQLiteStoreRepository) GetOrCreate(ctx context.Context, domain string) (*models.Store, bool, error) {
	existing, err := r.GetByDomain(ctx, domain)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	store := &models.Store{
		ID:               ulid.Make().String(),
		Domain:           domain,
		Active:           true,
		RateLimitSeconds: 2.0,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO stores (id, domain, active, rate_limit_seconds, currency_hint, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(domain) DO NOTHING`,
		store.ID, store.Domain, store.RateLimitSeconds, store.CurrencyHint, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert store: %w", err)
	}

	// Another caller may have won the race; reload to get the row that
	// actually persisted.
	final, err := r.GetByDomain(ctx, domain)
	if err != nil {
		return nil, false, err
	}
	return final, final.ID == store.ID, nil
}

func (r *SQLiteStoreRepository) Update(ctx context.Context, store *models.Store) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE stores SET active = ?, rate_limit_seconds = ?, currency_hint = ?, updated_at = ?
		WHERE id = ?`,
		store.Active, store.RateLimitSeconds, store.CurrencyHint,
		time.Now().UTC().Format(time.RFC3339), store.ID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (*models.Store, error) {
	var s models.Store
	var currencyHint sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.Domain, &s.Active, &s.RateLimitSeconds, &currencyHint, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.CurrencyHint = currencyHint.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}
