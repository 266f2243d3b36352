package repository

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

func TestProductRepository_CreateAndUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteProductRepository(db)
	ctx := context.Background()

	p := &models.Product{ID: ulid.Make().String(), CanonicalName: "Widget 3000", Brand: "Acme"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CanonicalName != "Widget 3000" || got.Brand != "Acme" {
		t.Errorf("got = %+v, want Widget 3000/Acme", got)
	}

	got.CanonicalName = "Widget 3000 Pro"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	reloaded, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID (2nd): %v", err)
	}
	if reloaded.CanonicalName != "Widget 3000 Pro" {
		t.Errorf("canonical_name = %q, want Widget 3000 Pro", reloaded.CanonicalName)
	}
}

func TestProductRepository_IncrementSubscriberCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteProductRepository(db)
	ctx := context.Background()

	p := &models.Product{ID: ulid.Make().String(), CanonicalName: "Widget"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.IncrementSubscriberCount(ctx, p.ID, 3); err != nil {
		t.Fatalf("IncrementSubscriberCount(+3): %v", err)
	}
	if err := repo.IncrementSubscriberCount(ctx, p.ID, -1); err != nil {
		t.Fatalf("IncrementSubscriberCount(-1): %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.SubscriberCount != 2 {
		t.Errorf("subscriber_count = %d, want 2", got.SubscriberCount)
	}

	if err := repo.IncrementSubscriberCount(ctx, p.ID, -100); err != nil {
		t.Fatalf("IncrementSubscriberCount(-100): %v", err)
	}
	got, err = repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID (2nd): %v", err)
	}
	if got.SubscriberCount != 0 {
		t.Errorf("subscriber_count = %d, want floor of 0", got.SubscriberCount)
	}
}
