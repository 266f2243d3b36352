// Package pricerr defines the sentinel error taxonomy shared by the fetch
// and extraction pipeline, so callers can branch with errors.Is/errors.As
// instead of string matching.
package pricerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fetch-cycle taxonomy. Each wraps an underlying
// cause; compare with errors.Is against these values.
var (
	// ErrPatternMissing means no active Pattern exists yet for the domain.
	// Recovered locally: advance last_checked, emit a generation request.
	ErrPatternMissing = errors.New("pattern missing for domain")

	// ErrFetchTimeout means browser navigation exceeded its deadline.
	// Retried with backoff up to max_retries.
	ErrFetchTimeout = errors.New("fetch timed out")

	// ErrFetchIOError means the browser process crashed or a protocol error
	// occurred. Retried with backoff up to max_retries.
	ErrFetchIOError = errors.New("fetch io error")

	// ErrFetchBlocked means a bot-wall or CAPTCHA was detected. Not retried
	// within the same tick.
	ErrFetchBlocked = errors.New("fetch blocked by bot wall")

	// ErrFetchUnknown is the catch-all for fetch failures that don't match
	// a more specific category.
	ErrFetchUnknown = errors.New("fetch failed for an unknown reason")

	// ErrExtractionEmpty means the extractor produced no usable fields.
	// Counted as a failed attempt; no PriceHistory row.
	ErrExtractionEmpty = errors.New("extraction produced no usable fields")

	// ErrValidationFailed means the Validator reported one or more errors
	// (warnings alone do not trigger this). Counted as a failed attempt; no
	// PriceHistory row.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPersistence means the final transaction failed. Fatal for this
	// listing in this tick. The Scheduler's claim has already advanced
	// last_checked before processing and it is not reset, so the listing
	// is retried when it next falls due, not on the next tick.
	ErrPersistence = errors.New("persistence error")

	// ErrNotification means the Notification Evaluator failed. Logged only;
	// never rolls back the price write.
	ErrNotification = errors.New("notification error")
)

// Wrap attaches a sentinel to an underlying cause. Only the sentinel is
// wrapped for errors.Is/errors.As; the cause is kept as message text.
func Wrap(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
