// Package fetch implements the Stealth Fetcher (C6): drive a headless
// browser with anti-detection hooks, cookie-dialog dismissal and bot-wall
// detection, and return the rendered page's HTML and a PNG artifact.
package fetch

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/fetch/browser"
	"github.com/falense/PriceTracker-sub001/internal/fetch/challenge"
	"github.com/falense/PriceTracker-sub001/internal/fetch/consent"
	"github.com/falense/PriceTracker-sub001/internal/pricerr"
	"github.com/falense/PriceTracker-sub001/internal/urlnorm"
)

// Result is what a successful Fetch hands to the Extractor.
type Result struct {
	HTML           string
	Screenshot     []byte // PNG, nil if capture was skipped
	PageTitle      string
	FinalURL       string
	FetchDuration  time.Duration
}

// Fetcher renders a page through a pooled, stealth-patched browser.
type Fetcher struct {
	pool      *browser.Pool
	consent   *consent.Dismisser
	challenge *challenge.Detector
	cfg       config.FetcherConfig
	logger    *slog.Logger
}

// New wires a Fetcher on top of an already-warmed Pool.
func New(pool *browser.Pool, cfg config.FetcherConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		pool:      pool,
		consent:   consent.NewDismisser(logger),
		challenge: challenge.NewDetector(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Fetch navigates to url and returns its rendered HTML. Errors wrap one of
// pricerr's FetchTimeout/FetchIOError/FetchBlocked sentinels: a context
// deadline during navigation is FetchTimeout, a detected bot-wall is
// FetchBlocked, and every other browser or navigation failure is
// FetchIOError. FetchUnknown is never returned here.
func (f *Fetcher) Fetch(ctx context.Context, url string, captureScreenshot bool) (*Result, error) {
	start := time.Now()

	mb, err := f.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pricerr.Wrap(pricerr.ErrFetchTimeout, err)
		}
		return nil, pricerr.Wrap(pricerr.ErrFetchIOError, err)
	}
	defer f.pool.Release(mb)

	page, err := browser.CreateStealthPage(mb.Browser)
	if err != nil {
		return nil, pricerr.Wrap(pricerr.ErrFetchIOError, err)
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return nil, classifyNavError(err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, classifyNavError(err)
	}

	// Unconditional grace period: many sites paint meaningful content only
	// after `load` fires.
	time.Sleep(2 * time.Second)

	if f.cfg.WaitForJS {
		idleCtx, cancel := context.WithTimeout(ctx, f.cfg.BrowserTimeout)
		err := page.Context(idleCtx).WaitIdle(time.Second)
		cancel()
		if err != nil && ctx.Err() == nil {
			// networkidle is best-effort; a page that never goes idle
			// (streaming widgets, polling scripts) is not a fetch failure.
			f.logger.Debug("networkidle wait did not settle", "url", url, "error", err)
		}
	}

	time.Sleep(time.Duration(1000+rand.Intn(1000)) * time.Millisecond)

	if domain, err := urlnorm.Domain(url); err == nil && f.cfg.DifficultDomains[domain] {
		simulateHumanInteraction(ctx, page)
	}

	f.consent.Dismiss(ctx, page)

	det, err := f.challenge.Detect(ctx, page)
	if err != nil {
		return nil, classifyNavError(err)
	}
	if det.Type != challenge.TypeNone {
		if det.CanAuto {
			resolved, err := f.challenge.WaitForChallenge(ctx, page, f.cfg.BrowserTimeout)
			if err != nil {
				return nil, pricerr.Wrap(pricerr.ErrFetchBlocked, err)
			}
			if resolved.Type != challenge.TypeNone {
				return nil, pricerr.Wrap(pricerr.ErrFetchBlocked, nil)
			}
		} else {
			return nil, pricerr.Wrap(pricerr.ErrFetchBlocked, nil)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, classifyNavError(err)
	}

	info, err := page.Info()
	title, finalURL := "", url
	if err == nil {
		title, finalURL = info.Title, info.URL
	}

	var shot []byte
	if captureScreenshot {
		shot, err = page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			f.logger.Warn("screenshot capture failed", "url", url, "error", err)
			shot = nil
		}
	}

	return &Result{
		HTML:          html,
		Screenshot:    shot,
		PageTitle:     title,
		FinalURL:      finalURL,
		FetchDuration: time.Since(start),
	}, nil
}

func classifyNavError(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return pricerr.Wrap(pricerr.ErrFetchTimeout, err)
	}
	return pricerr.Wrap(pricerr.ErrFetchIOError, err)
}
