package orchestrator

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/falense/PriceTracker-sub001/internal/artifact"
	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/database/migrations"
	"github.com/falense/PriceTracker-sub001/internal/fetch"
	"github.com/falense/PriceTracker-sub001/internal/lifecycle"
	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/notify"
	"github.com/falense/PriceTracker-sub001/internal/pricerr"
	"github.com/falense/PriceTracker-sub001/internal/ratelimit"
	"github.com/falense/PriceTracker-sub001/internal/repository"
	"github.com/falense/PriceTracker-sub001/internal/validate"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopGenerator struct{ requested []string }

func (g *noopGenerator) RequestGeneration(ctx context.Context, domain, sampleURL string) error {
	g.requested = append(g.requested, domain)
	return nil
}

type fakeFetcher struct {
	calls  int
	html   string
	err    error
	errSeq []error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, captureScreenshot bool) (*fetch.Result, error) {
	f.calls++
	if len(f.errSeq) > 0 {
		err := f.errSeq[0]
		f.errSeq = f.errSeq[1:]
		if err != nil {
			return nil, err
		}
		return &fetch.Result{HTML: f.html}, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{HTML: f.html}, nil
}

type harness struct {
	db       *sql.DB
	stores   *repository.SQLiteStoreRepository
	patterns *repository.SQLitePatternRepository
	products *repository.SQLiteProductRepository
	listings *repository.SQLiteListingRepository
	history  *repository.SQLitePriceHistoryRepository
	subs     *repository.SQLiteSubscriptionRepository
	notifs   *repository.SQLiteNotificationRepository
	gen      *noopGenerator
}

func newHarness(t *testing.T) *harness {
	db := newTestDB(t)
	return &harness{
		db:       db,
		stores:   repository.NewSQLiteStoreRepository(db),
		patterns: repository.NewSQLitePatternRepository(db),
		products: repository.NewSQLiteProductRepository(db),
		listings: repository.NewSQLiteListingRepository(db),
		history:  repository.NewSQLitePriceHistoryRepository(db),
		subs:     repository.NewSQLiteSubscriptionRepository(db),
		notifs:   repository.NewSQLiteNotificationRepository(db),
		gen:      &noopGenerator{},
	}
}

func (h *harness) newOrchestrator(f Fetcher) *Orchestrator {
	lc := lifecycle.New(h.stores, h.patterns, h.history, h.gen, testLogger())
	limiter := ratelimit.New(func(string) time.Duration { return 0 })
	validator := validate.New(validate.DefaultConfig())
	notifier := notify.New(h.subs, h.notifs, testLogger())
	store, _ := artifact.New(context.Background(), config.StorageConfig{}, testLogger())
	return New(lc, h.patterns, h.products, h.listings, h.history, limiter, f, validator, notifier, store, config.FetcherConfig{RequestDelay: time.Millisecond, MaxRetries: 2}, testLogger())
}

func (h *harness) seedListing(t *testing.T, domain string) *models.ProductListing {
	t.Helper()
	ctx := context.Background()
	product := &models.Product{ID: "prod1", CanonicalName: "Widget"}
	if err := h.products.Create(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	store, _, err := h.stores.GetOrCreate(ctx, domain)
	if err != nil {
		t.Fatalf("GetOrCreate store: %v", err)
	}
	listing := &models.ProductListing{
		ID:        "listing1",
		ProductID: product.ID,
		StoreID:   store.ID,
		URL:       "https://" + domain + "/p/1",
		URLBase:   "https://" + domain + "/p/1",
		Currency:  "USD",
		Active:    true,
	}
	if err := h.listings.Create(ctx, listing); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return listing
}

const testHTML = `<html><body><span class="price">$29.99</span><h1 class="title">Widget 3000</h1></body></html>`

func seedPattern(t *testing.T, h *harness, domain string) {
	t.Helper()
	patternJSON := `{"store_domain":"` + domain + `","patterns":{
		"price":{"primary":{"type":"css","selector":".price","confidence":0.9}},
		"title":{"primary":{"type":"css","selector":".title","confidence":0.9}}
	}}`
	if _, err := h.patterns.PutInitial(context.Background(), domain, patternJSON, models.ChangeTypeAutoGenerate); err != nil {
		t.Fatalf("PutInitial: %v", err)
	}
}

func TestOrchestrator_Process_SuccessfulFetch(t *testing.T) {
	h := newHarness(t)
	domain := "shop.example.com"
	listing := h.seedListing(t, domain)
	seedPattern(t, h, domain)

	f := &fakeFetcher{html: testHTML}
	o := h.newOrchestrator(f)

	if err := o.Process(context.Background(), listing); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls)
	}

	updated, err := h.listings.GetByID(context.Background(), listing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.CurrentPrice == nil || *updated.CurrentPrice != 29.99 {
		t.Errorf("current_price = %v, want 29.99", updated.CurrentPrice)
	}
	if !updated.Available {
		t.Error("available = false, want true")
	}

	n, err := h.history.CountForListing(context.Background(), listing.ID)
	if err != nil {
		t.Fatalf("CountForListing: %v", err)
	}
	if n != 1 {
		t.Errorf("price history rows = %d, want 1", n)
	}

	pattern, err := h.patterns.GetActive(context.Background(), domain)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if pattern.TotalAttempts != 1 || pattern.SuccessfulAttempts != 1 {
		t.Errorf("pattern attempts = %+v, want 1/1", pattern)
	}
}

func TestOrchestrator_Process_NoPattern_RequestsGeneration(t *testing.T) {
	h := newHarness(t)
	domain := "shop.example.com"
	listing := h.seedListing(t, domain)

	f := &fakeFetcher{html: testHTML}
	o := h.newOrchestrator(f)

	err := o.Process(context.Background(), listing)
	if err != pricerr.ErrPatternMissing {
		t.Fatalf("err = %v, want ErrPatternMissing", err)
	}
	if f.calls != 0 {
		t.Errorf("fetch calls = %d, want 0 (no pattern to extract with)", f.calls)
	}
	if len(h.gen.requested) != 1 {
		t.Errorf("generation requests = %v, want one", h.gen.requested)
	}
}

func TestOrchestrator_Process_FetchBlocked_NotRetried(t *testing.T) {
	h := newHarness(t)
	domain := "shop.example.com"
	listing := h.seedListing(t, domain)
	seedPattern(t, h, domain)

	f := &fakeFetcher{err: pricerr.Wrap(pricerr.ErrFetchBlocked, nil)}
	o := h.newOrchestrator(f)

	err := o.Process(context.Background(), listing)
	if err == nil {
		t.Fatal("Process: want error for blocked fetch")
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want exactly 1 (FetchBlocked must not retry)", f.calls)
	}
}

func TestOrchestrator_Process_TimeoutRetriedThenSucceeds(t *testing.T) {
	h := newHarness(t)
	domain := "shop.example.com"
	listing := h.seedListing(t, domain)
	seedPattern(t, h, domain)

	f := &fakeFetcher{html: testHTML, errSeq: []error{pricerr.Wrap(pricerr.ErrFetchTimeout, nil), nil}}
	o := h.newOrchestrator(f)

	if err := o.Process(context.Background(), listing); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (one retry after timeout)", f.calls)
	}
}
