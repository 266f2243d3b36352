package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

func TestNotificationRepository_CreateAndExistsWithin(t *testing.T) {
	db := newTestDB(t)
	products := NewSQLiteProductRepository(db)
	notifs := NewSQLiteNotificationRepository(db)
	ctx := context.Background()

	product := &models.Product{ID: ulid.Make().String(), CanonicalName: "Widget"}
	if err := products.Create(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	old, new_ := 20.0, 15.0
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	n := &models.Notification{
		ID:        ulid.Make().String(),
		UserID:    "user-1",
		ProductID: product.ID,
		Type:      models.NotificationPriceDrop,
		OldPrice:  &old,
		NewPrice:  &new_,
		Message:   "price dropped",
		CreatedAt: now,
	}
	if err := notifs.Create(ctx, n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exists, err := notifs.ExistsWithin(ctx, "user-1", product.ID, models.NotificationPriceDrop, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExistsWithin: %v", err)
	}
	if !exists {
		t.Error("exists = false, want true within window")
	}

	exists, err = notifs.ExistsWithin(ctx, "user-1", product.ID, models.NotificationPriceDrop, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ExistsWithin (future window): %v", err)
	}
	if exists {
		t.Error("exists = true, want false when since is after the notification's creation")
	}

	exists, err = notifs.ExistsWithin(ctx, "user-1", product.ID, models.NotificationRestock, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExistsWithin (different type): %v", err)
	}
	if exists {
		t.Error("exists = true, want false for a different notification type")
	}
}
