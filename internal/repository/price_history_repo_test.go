package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

func seedPriceHistoryFixture(t *testing.T) (*SQLiteListingRepository, *SQLitePriceHistoryRepository, *models.ProductListing) {
	t.Helper()
	db := newTestDB(t)
	stores := NewSQLiteStoreRepository(db)
	products := NewSQLiteProductRepository(db)
	listings := NewSQLiteListingRepository(db)
	history := NewSQLitePriceHistoryRepository(db)
	ctx := context.Background()

	store, _, err := stores.GetOrCreate(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	product := &models.Product{ID: ulid.Make().String(), CanonicalName: "Widget"}
	if err := products.Create(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	listing := &models.ProductListing{ID: ulid.Make().String(), ProductID: product.ID, StoreID: store.ID, URL: "https://shop.example.com/p/1", URLBase: "https://shop.example.com/p/1"}
	if err := listings.Create(ctx, listing); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listings, history, listing
}

func TestPriceHistoryRepository_LastForListing(t *testing.T) {
	listings, history, listing := seedPriceHistoryFixture(t)
	ctx := context.Background()

	t1 := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	p1, p2 := 10.0, 12.0
	if err := listings.CommitFetchResult(ctx, listing.ID, &p1, "USD", true, nil, t1, "css", 0.9); err != nil {
		t.Fatalf("commit t1: %v", err)
	}
	if err := listings.CommitFetchResult(ctx, listing.ID, &p2, "USD", true, nil, t2, "css", 0.9); err != nil {
		t.Fatalf("commit t2: %v", err)
	}

	last, err := history.LastForListing(ctx, listing.ID)
	if err != nil {
		t.Fatalf("LastForListing: %v", err)
	}
	if last.Price == nil || *last.Price != 12.0 {
		t.Errorf("last price = %v, want 12.0", last.Price)
	}

	count, err := history.CountForListing(ctx, listing.ID)
	if err != nil {
		t.Fatalf("CountForListing: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestPriceHistoryRepository_DeleteOlderThan(t *testing.T) {
	listings, history, listing := seedPriceHistoryFixture(t)
	ctx := context.Background()

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	p := 5.0
	if err := listings.CommitFetchResult(ctx, listing.ID, &p, "USD", true, nil, old, "css", 0.9); err != nil {
		t.Fatalf("commit old: %v", err)
	}
	if err := listings.CommitFetchResult(ctx, listing.ID, &p, "USD", true, nil, recent, "css", 0.9); err != nil {
		t.Fatalf("commit recent: %v", err)
	}

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	deleted, err := history.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	count, err := history.CountForListing(ctx, listing.ID)
	if err != nil {
		t.Fatalf("CountForListing: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 remaining", count)
	}
}
