package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLiteSubscriptionRepository implements SubscriptionRepository.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

const subscriptionSelect = `
	SELECT id, user_id, product_id, priority, target_price, notify_on_drop, notify_on_restock, notify_on_target, active, created_at, updated_at
	FROM user_subscriptions`

func (r *SQLiteSubscriptionRepository) GetByUserAndProduct(ctx context.Context, userID, productID string) (*models.UserSubscription, error) {
	row := r.db.QueryRowContext(ctx, subscriptionSelect+` WHERE user_id = ? AND product_id = ?`, userID, productID)
	return scanSubscription(row)
}

func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, sub *models.UserSubscription) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_subscriptions (id, user_id, product_id, priority, target_price, notify_on_drop, notify_on_restock, notify_on_target, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			priority = excluded.priority,
			target_price = excluded.target_price,
			notify_on_drop = excluded.notify_on_drop,
			notify_on_restock = excluded.notify_on_restock,
			notify_on_target = excluded.notify_on_target,
			active = 1,
			updated_at = excluded.updated_at`,
		sub.ID, sub.UserID, sub.ProductID, string(sub.Priority), sub.TargetPrice,
		sub.NotifyOnDrop, sub.NotifyOnRestock, sub.NotifyOnTarget, now, now)
	return err
}

func (r *SQLiteSubscriptionRepository) Deactivate(ctx context.Context, userID, productID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_subscriptions SET active = 0, updated_at = ? WHERE user_id = ? AND product_id = ?`,
		time.Now().UTC().Format(time.RFC3339), userID, productID)
	return err
}

func (r *SQLiteSubscriptionRepository) ListActiveByProduct(ctx context.Context, productID string) ([]*models.UserSubscription, error) {
	rows, err := r.db.QueryContext(ctx, subscriptionSelect+` WHERE product_id = ? AND active = 1`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *SQLiteSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*models.UserSubscription, error) {
	rows, err := r.db.QueryContext(ctx, subscriptionSelect+` WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscription(row rowScanner) (*models.UserSubscription, error) {
	var s models.UserSubscription
	var priority string
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.UserID, &s.ProductID, &priority, &s.TargetPrice,
		&s.NotifyOnDrop, &s.NotifyOnRestock, &s.NotifyOnTarget, &s.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.Priority = models.Priority(priority)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

func scanSubscriptions(rows *sql.Rows) ([]*models.UserSubscription, error) {
	var out []*models.UserSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
