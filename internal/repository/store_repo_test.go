package repository

import (
	"context"
	"testing"
)

func TestStoreRepository_GetOrCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteStoreRepository(db)
	ctx := context.Background()

	store, created, err := repo.GetOrCreate(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Error("created = false, want true for a brand new domain")
	}
	if store.Domain != "shop.example.com" {
		t.Errorf("domain = %q, want shop.example.com", store.Domain)
	}
	if !store.Active {
		t.Error("want a newly created store to be active")
	}

	again, created2, err := repo.GetOrCreate(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetOrCreate (2nd): %v", err)
	}
	if created2 {
		t.Error("created = true on 2nd call, want false (already exists)")
	}
	if again.ID != store.ID {
		t.Errorf("id = %s, want %s (same row)", again.ID, store.ID)
	}
}

func TestStoreRepository_Update(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteStoreRepository(db)
	ctx := context.Background()

	store, _, err := repo.GetOrCreate(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	store.CurrencyHint = "USD"
	store.RateLimitSeconds = 5.0
	if err := repo.Update(ctx, store); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := repo.GetByDomain(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetByDomain: %v", err)
	}
	if reloaded.CurrencyHint != "USD" {
		t.Errorf("currency_hint = %q, want USD", reloaded.CurrencyHint)
	}
	if reloaded.RateLimitSeconds != 5.0 {
		t.Errorf("rate_limit_seconds = %v, want 5.0", reloaded.RateLimitSeconds)
	}
}
