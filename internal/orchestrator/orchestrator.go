// Package orchestrator implements the Fetch Orchestrator (C10): for one
// claimed listing, acquire a domain rate-limit token, fetch the page
// through the Stealth Fetcher, extract and validate against the domain's
// active pattern, persist the outcome, and hand the before/after pair to
// the Notification Evaluator. Grounded on internal/worker/worker.go's
// processExtractJob — same "acquire resource, do the risky thing, persist,
// never let a downstream failure unwind an upstream success" shape, walked
// through the domain's actual pipeline instead of an LLM call.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/artifact"
	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/extract"
	"github.com/falense/PriceTracker-sub001/internal/fetch"
	"github.com/falense/PriceTracker-sub001/internal/lifecycle"
	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/notify"
	"github.com/falense/PriceTracker-sub001/internal/pricerr"
	"github.com/falense/PriceTracker-sub001/internal/ratelimit"
	"github.com/falense/PriceTracker-sub001/internal/repository"
	"github.com/falense/PriceTracker-sub001/internal/selector"
	"github.com/falense/PriceTracker-sub001/internal/urlnorm"
	"github.com/falense/PriceTracker-sub001/internal/validate"
)

// outOfStockPhrases/inStockPhrases classify the availability field's free
// text when a pattern defines one. Availability is a recognized but
// non-critical field with no canonical mapping from text to boolean;
// absent a match, availability follows whether a price was extracted at
// all, which is the strongest signal most storefronts give.
var (
	outOfStockPhrases = []string{"out of stock", "sold out", "unavailable", "no longer available", "currently unavailable"}
	inStockPhrases    = []string{"in stock", "add to cart", "in-stock", "available now"}
)

// Fetcher is the subset of *fetch.Fetcher the orchestrator depends on,
// kept as an interface so tests can exercise the retry/persistence/notify
// wiring without a real browser pool.
type Fetcher interface {
	Fetch(ctx context.Context, url string, captureScreenshot bool) (*fetch.Result, error)
}

// Orchestrator implements scheduler.Processor.
type Orchestrator struct {
	lifecycle *lifecycle.Manager
	patterns  repository.PatternRepository
	products  repository.ProductRepository
	listings  repository.ListingRepository
	history   repository.PriceHistoryRepository

	limiter   *ratelimit.Limiter
	fetcher   Fetcher
	validator *validate.Validator
	notifier  *notify.Evaluator
	artifacts *artifact.Store

	cfg    config.FetcherConfig
	logger *slog.Logger
}

func New(
	lc *lifecycle.Manager,
	patterns repository.PatternRepository,
	products repository.ProductRepository,
	listings repository.ListingRepository,
	history repository.PriceHistoryRepository,
	limiter *ratelimit.Limiter,
	fetcher Fetcher,
	validator *validate.Validator,
	notifier *notify.Evaluator,
	artifacts *artifact.Store,
	cfg config.FetcherConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		lifecycle: lc,
		patterns:  patterns,
		products:  products,
		listings:  listings,
		history:   history,
		limiter:   limiter,
		fetcher:   fetcher,
		validator: validator,
		notifier:  notifier,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Process runs one claimed listing through C10's algorithm (§4.10). It
// returns nil on success and otherwise an error for logging purposes,
// wrapping a pricerr sentinel except when ctx is cancelled during a retry
// backoff; the scheduler treats every outcome as "logged, move on" — partial
// failure is the norm for a fetch cycle, not an aborting condition.
func (o *Orchestrator) Process(ctx context.Context, listing *models.ProductListing) error {
	log := o.logger.With("listing_id", listing.ID, "url", listing.URL)

	domain, err := urlnorm.Domain(listing.URL)
	if err != nil {
		log.Error("cannot derive domain from listing URL", "error", err)
		return pricerr.Wrap(pricerr.ErrFetchUnknown, err)
	}

	pattern, err := o.lifecycle.EnsurePattern(ctx, domain, listing.URL)
	if err != nil {
		log.Error("ensure_pattern failed", "error", err)
		return pricerr.Wrap(pricerr.ErrPersistence, err)
	}
	if pattern == nil {
		// No active Pattern: a generation request was already fired inside
		// EnsurePattern, and last_checked was already advanced by the
		// Scheduler's claim (§4.9). Nothing further to do this tick.
		log.Info("no active pattern yet, generation requested", "domain", domain)
		return pricerr.ErrPatternMissing
	}

	var doc models.PatternDocument
	if err := json.Unmarshal([]byte(pattern.PatternJSON), &doc); err != nil {
		log.Error("stored pattern is not valid JSON", "domain", domain, "error", err)
		return pricerr.Wrap(pricerr.ErrPersistence, err)
	}

	activeVersion, err := o.patterns.GetActiveVersion(ctx, domain)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to load active pattern version", "error", err)
		return pricerr.Wrap(pricerr.ErrPersistence, err)
	}
	var extractorVersionID *string
	if activeVersion != nil {
		extractorVersionID = &activeVersion.ID
	}

	if err := o.limiter.Acquire(ctx, domain); err != nil {
		log.Warn("rate limiter acquire aborted", "error", err)
		return pricerr.Wrap(pricerr.ErrFetchTimeout, err)
	}

	result, fetchErr := o.fetchWithRetry(ctx, listing.URL)
	if fetchErr != nil {
		if recordErr := o.patterns.RecordAttempt(ctx, domain, false); recordErr != nil {
			log.Error("record_attempt failed after fetch error", "error", recordErr)
		}
		log.Warn("fetch failed", "error", fetchErr)
		return fetchErr
	}

	if o.artifacts != nil {
		if err := o.artifacts.PutHTML(ctx, listing.URL, result.HTML); err != nil {
			log.Warn("artifact upload failed", "kind", "html", "error", err)
		}
		if result.Screenshot != nil {
			if err := o.artifacts.PutScreenshot(ctx, listing.URL, result.Screenshot); err != nil {
				log.Warn("artifact upload failed", "kind", "screenshot", "error", err)
			}
		}
	}

	parsed := selector.Parse(result.HTML)
	extraction := extract.Extract(parsed, doc, listing.URL)

	if len(extraction) == 0 {
		if recordErr := o.patterns.RecordAttempt(ctx, domain, false); recordErr != nil {
			log.Error("record_attempt failed after empty extraction", "error", recordErr)
		}
		return pricerr.ErrExtractionEmpty
	}

	prior, err := o.priorExtraction(ctx, listing.ID)
	if err != nil {
		log.Warn("failed to load prior price history for validation", "error", err)
	}

	validation := o.validator.Validate(extraction, prior)
	if len(validation.Warnings) > 0 {
		log.Warn("validation warnings", "warnings", validation.Warnings)
	}
	if !validation.Valid {
		if recordErr := o.patterns.RecordAttempt(ctx, domain, false); recordErr != nil {
			log.Error("record_attempt failed after validation failure", "error", recordErr)
		}
		log.Warn("validation failed", "errors", validation.Errors)
		return pricerr.Wrap(pricerr.ErrValidationFailed, errors.New(strings.Join(validation.Errors, "; ")))
	}

	price, hasPrice := extraction.PriceValue()
	var priceP *float64
	if hasPrice {
		priceP = &price
	}
	available := deriveAvailability(extraction, hasPrice)
	priceField := extraction[models.FieldPrice]
	now := time.Now()

	if err := o.listings.CommitFetchResult(ctx, listing.ID, priceP, listing.Currency, available, extractorVersionID, now, priceField.Method, priceField.Confidence); err != nil {
		log.Error("persistence failed", "error", err)
		return pricerr.Wrap(pricerr.ErrPersistence, err)
	}

	if recordErr := o.patterns.RecordAttempt(ctx, domain, true); recordErr != nil {
		log.Error("record_attempt failed after successful commit", "error", recordErr)
	}

	priorListing := *listing
	newListing := *listing
	newListing.CurrentPrice = priceP
	newListing.Available = available

	product, err := o.products.GetByID(ctx, listing.ProductID)
	if err != nil {
		log.Error("failed to load product for notification evaluation", "error", err)
		return pricerr.Wrap(pricerr.ErrNotification, err)
	}
	if product == nil {
		return nil
	}
	if _, err := o.notifier.Evaluate(ctx, &priorListing, &newListing, product); err != nil {
		log.Error("notification evaluation failed", "error", err)
		return pricerr.Wrap(pricerr.ErrNotification, err)
	}

	return nil
}

// priorExtraction reconstructs a synthetic extract.Result carrying just the
// price field from the listing's last PriceHistory row, the only prior
// state the Validator's suspicious-price-change check needs (§4.5).
func (o *Orchestrator) priorExtraction(ctx context.Context, listingID string) (*extract.Result, error) {
	last, err := o.history.LastForListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if last == nil || last.Price == nil {
		return nil, nil
	}
	value := strconv.FormatFloat(*last.Price, 'f', 2, 64)
	r := extract.Result{
		models.FieldPrice: extract.Field{
			Value:      &value,
			Method:     last.ExtractionMethod,
			Confidence: last.Confidence,
		},
	}
	return &r, nil
}

func deriveAvailability(extraction extract.Result, hasPrice bool) bool {
	f, ok := extraction[models.FieldAvailability]
	if !ok || f.Value == nil {
		return hasPrice
	}
	text := strings.ToLower(*f.Value)
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(text, phrase) {
			return false
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return hasPrice
}

// fetchWithRetry implements §4.10 step 3: retry FetchTimeout/FetchIOError
// up to cfg.MaxRetries with exponential backoff starting at RequestDelay;
// FetchBlocked and anything else is returned immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, url string) (*fetch.Result, error) {
	delay := o.cfg.RequestDelay
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			delay *= 2
		}

		captureScreenshot := o.artifacts != nil && o.artifacts.Enabled()
		result, err := o.fetcher.Fetch(ctx, url, captureScreenshot)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, pricerr.ErrFetchBlocked) {
			return nil, err
		}
		if !errors.Is(err, pricerr.ErrFetchTimeout) && !errors.Is(err, pricerr.ErrFetchIOError) {
			return nil, err
		}
	}
	return nil, lastErr
}
