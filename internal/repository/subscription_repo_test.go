package repository

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

func TestSubscriptionRepository_UpsertAndDeactivate(t *testing.T) {
	db := newTestDB(t)
	products := NewSQLiteProductRepository(db)
	subs := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	product := &models.Product{ID: ulid.Make().String(), CanonicalName: "Widget"}
	if err := products.Create(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	sub := &models.UserSubscription{UserID: "user-1", ProductID: product.ID, Priority: models.PriorityNormal, NotifyOnDrop: true}
	if err := subs.Upsert(ctx, sub); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := subs.GetByUserAndProduct(ctx, "user-1", product.ID)
	if err != nil {
		t.Fatalf("GetByUserAndProduct: %v", err)
	}
	if got.Priority != models.PriorityNormal || !got.Active {
		t.Errorf("got = %+v, want normal/active", got)
	}

	// Re-subscribing at a higher priority should update in place, not
	// create a second row (UNIQUE(user_id, product_id)).
	sub.Priority = models.PriorityHigh
	if err := subs.Upsert(ctx, sub); err != nil {
		t.Fatalf("Upsert (2nd): %v", err)
	}
	list, err := subs.ListActiveByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("ListActiveByProduct: %v", err)
	}
	if len(list) != 1 || list[0].Priority != models.PriorityHigh {
		t.Fatalf("list = %v, want single high-priority row", list)
	}

	if err := subs.Deactivate(ctx, "user-1", product.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	list, err = subs.ListActiveByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("ListActiveByProduct (2nd): %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list = %v, want empty after deactivate", list)
	}
}
