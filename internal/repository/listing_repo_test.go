package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

func seedListing(t *testing.T, db *listingFixtureDB) *models.ProductListing {
	t.Helper()
	ctx := context.Background()

	store, _, err := db.stores.GetOrCreate(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	product := &models.Product{ID: ulid.Make().String(), CanonicalName: "Widget"}
	if err := db.products.Create(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	id := ulid.Make().String()
	listing := &models.ProductListing{
		ID:        id,
		ProductID: product.ID,
		StoreID:   store.ID,
		URL:       "https://shop.example.com/p/" + id,
		URLBase:   "https://shop.example.com/p/" + id,
	}
	if err := db.listings.Create(ctx, listing); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

type listingFixtureDB struct {
	stores   *SQLiteStoreRepository
	products *SQLiteProductRepository
	listings *SQLiteListingRepository
}

func newListingFixtureDB(t *testing.T) *listingFixtureDB {
	db := newTestDB(t)
	return &listingFixtureDB{
		stores:   NewSQLiteStoreRepository(db),
		products: NewSQLiteProductRepository(db),
		listings: NewSQLiteListingRepository(db),
	}
}

func TestListingRepository_CreateAndGetActive(t *testing.T) {
	f := newListingFixtureDB(t)
	ctx := context.Background()
	listing := seedListing(t, f)

	got, err := f.listings.GetActiveByStoreAndURLBase(ctx, listing.StoreID, listing.URLBase)
	if err != nil {
		t.Fatalf("GetActiveByStoreAndURLBase: %v", err)
	}
	if got.ID != listing.ID {
		t.Errorf("id = %s, want %s", got.ID, listing.ID)
	}
}

func TestListingRepository_ClaimIsCompareAndSet(t *testing.T) {
	f := newListingFixtureDB(t)
	ctx := context.Background()
	listing := seedListing(t, f)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	claimed, err := f.listings.Claim(ctx, listing.ID, nil, now)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatal("claimed = false, want true for a never-checked listing")
	}

	// Same expectedLastChecked (nil) should now fail: the row's
	// last_checked is no longer null.
	claimedAgain, err := f.listings.Claim(ctx, listing.ID, nil, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Claim (2nd): %v", err)
	}
	if claimedAgain {
		t.Error("claimed = true on stale CAS, want false")
	}

	claimedWithMatch, err := f.listings.Claim(ctx, listing.ID, &now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Claim (matching): %v", err)
	}
	if !claimedWithMatch {
		t.Error("claimed = false with matching expectedLastChecked, want true")
	}
}

func TestListingRepository_CommitFetchResult(t *testing.T) {
	f := newListingFixtureDB(t)
	ctx := context.Background()
	listing := seedListing(t, f)
	price := 29.99
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	err := f.listings.CommitFetchResult(ctx, listing.ID, &price, "USD", true, nil, now, "css", 0.9)
	if err != nil {
		t.Fatalf("CommitFetchResult: %v", err)
	}

	got, err := f.listings.GetByID(ctx, listing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CurrentPrice == nil || *got.CurrentPrice != 29.99 {
		t.Fatalf("current_price = %v, want 29.99", got.CurrentPrice)
	}
	if !got.Available {
		t.Error("available = false, want true")
	}
	if got.LastChecked == nil {
		t.Fatal("last_checked = nil, want set")
	}
}

func TestListingRepository_ListActiveAllAndByProduct(t *testing.T) {
	f := newListingFixtureDB(t)
	ctx := context.Background()
	first := seedListing(t, f)
	second := seedListing(t, f)

	all, err := f.listings.ListActiveAll(ctx)
	if err != nil {
		t.Fatalf("ListActiveAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListActiveAll = %d listings, want 2", len(all))
	}

	if err := f.listings.Deactivate(ctx, first.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	all, err = f.listings.ListActiveAll(ctx)
	if err != nil {
		t.Fatalf("ListActiveAll (2nd): %v", err)
	}
	if len(all) != 1 || all[0].ID != second.ID {
		t.Fatalf("ListActiveAll after deactivate = %v, want [%s]", all, second.ID)
	}

	byProduct, err := f.listings.ListActiveByProduct(ctx, second.ProductID)
	if err != nil {
		t.Fatalf("ListActiveByProduct: %v", err)
	}
	if len(byProduct) != 1 || byProduct[0].ID != second.ID {
		t.Fatalf("ListActiveByProduct = %v, want [%s]", byProduct, second.ID)
	}

	byProduct, err = f.listings.ListActiveByProduct(ctx, first.ProductID)
	if err != nil {
		t.Fatalf("ListActiveByProduct (deactivated product): %v", err)
	}
	if len(byProduct) != 0 {
		t.Fatalf("ListActiveByProduct for deactivated listing's product = %v, want none", byProduct)
	}
}

func TestListingRepository_DueForRefresh(t *testing.T) {
	f := newListingFixtureDB(t)
	ctx := context.Background()
	listing := seedListing(t, f)

	intervals := map[models.Priority]time.Duration{
		models.PriorityLow:    24 * time.Hour,
		models.PriorityNormal: 6 * time.Hour,
		models.PriorityHigh:   time.Hour,
	}

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	due, err := f.listings.DueForRefresh(ctx, now, intervals, 10)
	if err != nil {
		t.Fatalf("DueForRefresh: %v", err)
	}
	if len(due) != 1 || due[0].ID != listing.ID {
		t.Fatalf("due = %v, want [%s] (never checked)", due, listing.ID)
	}

	price := 10.0
	if err := f.listings.CommitFetchResult(ctx, listing.ID, &price, "USD", true, nil, now, "css", 0.9); err != nil {
		t.Fatalf("CommitFetchResult: %v", err)
	}

	due, err = f.listings.DueForRefresh(ctx, now.Add(time.Minute), intervals, 10)
	if err != nil {
		t.Fatalf("DueForRefresh (2nd): %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due = %v, want none (just checked, low priority)", due)
	}

	due, err = f.listings.DueForRefresh(ctx, now.Add(25*time.Hour), intervals, 10)
	if err != nil {
		t.Fatalf("DueForRefresh (3rd): %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %v, want 1 listing due after 25h (no subscribers, so low priority interval of 24h)", due)
	}
}
