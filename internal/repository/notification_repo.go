package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLiteNotificationRepository implements NotificationRepository.
type SQLiteNotificationRepository struct {
	db *sql.DB
}

func NewSQLiteNotificationRepository(db *sql.DB) *SQLiteNotificationRepository {
	return &SQLiteNotificationRepository{db: db}
}

func (r *SQLiteNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, product_id, type, old_price, new_price, message, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		n.ID, n.UserID, n.ProductID, string(n.Type), n.OldPrice, n.NewPrice, n.Message,
		n.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteNotificationRepository) ExistsWithin(ctx context.Context, userID, productID string, notifType models.NotificationType, since time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = ? AND product_id = ? AND type = ? AND created_at >= ?`,
		userID, productID, string(notifType), since.UTC().Format(time.RFC3339)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
