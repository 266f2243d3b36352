package lifecycle

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/falense/PriceTracker-sub001/internal/database/migrations"
	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

type noopGenerator struct{ requested []string }

func (g *noopGenerator) RequestGeneration(ctx context.Context, domain, sampleURL string) error {
	g.requested = append(g.requested, domain)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_EnsurePattern_NoPatternRequestsGeneration(t *testing.T) {
	db := newTestDB(t)
	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)
	gen := &noopGenerator{}
	mgr := New(stores, patterns, history, gen, testLogger())
	ctx := context.Background()

	p, err := mgr.EnsurePattern(ctx, "shop.example.com", "https://shop.example.com/p/1")
	if err != nil {
		t.Fatalf("EnsurePattern: %v", err)
	}
	if p != nil {
		t.Fatalf("got pattern %+v, want nil for first sight", p)
	}
	if len(gen.requested) != 1 || gen.requested[0] != "shop.example.com" {
		t.Errorf("requested = %v, want one request for shop.example.com", gen.requested)
	}

	store, err := stores.GetByDomain(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetByDomain: %v", err)
	}
	if store == nil {
		t.Fatal("store was not registered on first sight")
	}
}

func TestManager_EnsurePattern_ReturnsExisting(t *testing.T) {
	db := newTestDB(t)
	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)
	gen := &noopGenerator{}
	mgr := New(stores, patterns, history, gen, testLogger())
	ctx := context.Background()

	if _, err := patterns.PutInitial(ctx, "shop.example.com", `{"store_domain":"shop.example.com"}`, models.ChangeTypeAutoGenerate); err != nil {
		t.Fatalf("PutInitial: %v", err)
	}

	p, err := mgr.EnsurePattern(ctx, "shop.example.com", "https://shop.example.com/p/1")
	if err != nil {
		t.Fatalf("EnsurePattern: %v", err)
	}
	if p == nil {
		t.Fatal("want existing pattern, got nil")
	}
	if len(gen.requested) != 0 {
		t.Errorf("requested = %v, want no generation request when a pattern exists", gen.requested)
	}
}

func TestManager_ActivateLatestSweep_StickyRollback(t *testing.T) {
	db := newTestDB(t)
	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)
	mgr := New(stores, patterns, history, &noopGenerator{}, testLogger())
	ctx := context.Background()

	v1, err := patterns.PutInitial(ctx, "shop.example.com", `{"v":1}`, models.ChangeTypeAutoGenerate)
	if err != nil {
		t.Fatalf("PutInitial: %v", err)
	}
	if _, err := patterns.Replace(ctx, "shop.example.com", `{"v":2}`, "update", models.ChangeTypeManualEdit); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	// Roll back to v1; this is the recent, sticky rollback.
	if _, err := patterns.Rollback(ctx, "shop.example.com", v1.VersionNumber); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	results, err := mgr.ActivateLatestSweep(ctx, false)
	if err != nil {
		t.Fatalf("ActivateLatestSweep: %v", err)
	}
	if len(results) != 1 || !results[0].Skipped {
		t.Fatalf("results = %+v, want a single skipped result for the sticky rollback", results)
	}

	active, err := patterns.GetActiveVersion(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetActiveVersion: %v", err)
	}
	if active.VersionNumber != v1.VersionNumber {
		t.Errorf("active version = %d, want rollback target %d to remain active", active.VersionNumber, v1.VersionNumber)
	}
}

func TestManager_ActivateLatestSweep_ActivatesNewest(t *testing.T) {
	db := newTestDB(t)
	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)
	mgr := New(stores, patterns, history, &noopGenerator{}, testLogger())
	ctx := context.Background()

	v1, err := patterns.PutInitial(ctx, "shop.example.com", `{"v":1}`, models.ChangeTypeAutoGenerate)
	if err != nil {
		t.Fatalf("PutInitial: %v", err)
	}
	v2, err := patterns.Replace(ctx, "shop.example.com", `{"v":2}`, "update", models.ChangeTypeManualEdit)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	// Reactivate v1 via Rollback, then rewrite its change_type so it no
	// longer counts as a rollback, to simulate drift the sweep should
	// correct (stickiness doesn't apply).
	if _, err := patterns.Rollback(ctx, "shop.example.com", v1.VersionNumber); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := forceChangeType(db, v1.ID, models.ChangeTypeManualEdit); err != nil {
		t.Fatalf("forceChangeType: %v", err)
	}

	results, err := mgr.ActivateLatestSweep(ctx, false)
	if err != nil {
		t.Fatalf("ActivateLatestSweep: %v", err)
	}
	if len(results) != 1 || !results[0].Activated {
		t.Fatalf("results = %+v, want the newest version activated", results)
	}

	active, err := patterns.GetActiveVersion(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetActiveVersion: %v", err)
	}
	if active.VersionNumber != v2.VersionNumber {
		t.Errorf("active version = %d, want newest %d", active.VersionNumber, v2.VersionNumber)
	}
}

func forceChangeType(db *sql.DB, versionID string, ct models.ChangeType) error {
	_, err := db.Exec(`UPDATE pattern_versions SET change_type = ? WHERE id = ?`, string(ct), versionID)
	return err
}

func TestManager_BackfillStats(t *testing.T) {
	db := newTestDB(t)
	stores := repository.NewSQLiteStoreRepository(db)
	patterns := repository.NewSQLitePatternRepository(db)
	history := repository.NewSQLitePriceHistoryRepository(db)
	mgr := New(stores, patterns, history, &noopGenerator{}, testLogger())
	ctx := context.Background()

	v1, err := patterns.PutInitial(ctx, "shop.example.com", `{"v":1}`, models.ChangeTypeAutoGenerate)
	if err != nil {
		t.Fatalf("PutInitial: %v", err)
	}

	products := repository.NewSQLiteProductRepository(db)
	product := &models.Product{ID: "prod1", CanonicalName: "Widget"}
	if err := products.Create(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	listings := repository.NewSQLiteListingRepository(db)
	store, _, err := stores.GetOrCreate(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetOrCreate store: %v", err)
	}
	listing := &models.ProductListing{
		ID:        "listing1",
		ProductID: product.ID,
		StoreID:   store.ID,
		URL:       "https://shop.example.com/p/1",
		URLBase:   "https://shop.example.com/p/1",
		Active:    true,
	}
	if err := listings.Create(ctx, listing); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	price := 9.99
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if err := listings.CommitFetchResult(ctx, listing.ID, &price, "USD", true, &v1.ID, now, "css", 0.9); err != nil {
		t.Fatalf("CommitFetchResult: %v", err)
	}

	results, err := mgr.BackfillStats(ctx, false)
	if err != nil {
		t.Fatalf("BackfillStats: %v", err)
	}
	if len(results) != 1 || results[0].Total != 1 || results[0].Successful != 1 {
		t.Fatalf("results = %+v, want total=1 successful=1", results)
	}

	updated, err := patterns.GetVersionByID(ctx, v1.ID)
	if err != nil {
		t.Fatalf("GetVersionByID: %v", err)
	}
	if updated.TotalAttempts != 1 || updated.SuccessfulAttempts != 1 {
		t.Errorf("updated = %+v, want stats backfilled", updated)
	}
}
