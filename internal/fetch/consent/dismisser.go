// Package consent dismisses cookie-consent banners that would otherwise sit
// on top of the content a selector needs to read, carrying the single
// canonical selector list spec.md §9 calls for (a union of every cookie
// dialog routine duplicated elsewhere in the corpus).
package consent

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// buttonSelectors covers the common consent-management platforms (OneTrust,
// Cookiebot, Quantcast/TCF, TrustArc, Didomi) plus generic accept-button
// naming conventions, ordered by specificity.
var buttonSelectors = []string{
	`button#onetrust-accept-btn-handler`,
	`button.onetrust-close-btn-handler`,
	`#onetrust-accept-btn-handler`,
	`button[id*="onetrust-accept"]`,
	`button[class*="onetrust-accept"]`,
	`#accept-recommended-btn-handler`,

	`button#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,
	`button#CybotCookiebotDialogBodyButtonAccept`,
	`a#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,

	`button.qc-cmp2-summary-buttons button[mode="primary"]`,
	`button.qc-cmp-button`,
	`button[class*="qc-cmp"]`,

	`button.trustarc-agree-btn`,
	`a.call[onclick*="accept"]`,
	`#truste-consent-button`,

	`button#didomi-notice-agree-button`,
	`button[class*="didomi-agree"]`,

	`button[data-testid="cookie-policy-dialog-accept-button"]`,
	`button[data-testid="accept-cookies"]`,
	`button[data-testid="cookie-accept"]`,
	`button[aria-label*="Accept"]`,
	`button[aria-label*="accept"]`,
	`button[aria-label*="Agree"]`,

	`button.cookie-accept`,
	`button.accept-cookies`,
	`button.consent-accept`,
	`button.gdpr-accept`,
	`button#accept-cookies`,
	`button#acceptCookies`,
	`button#cookie-accept`,
	`button#cookieAccept`,
	`a.cookie-accept`,
	`a.accept-cookies`,

	`button[class*="accept"][class*="cookie"]`,
	`button[class*="cookie"][class*="accept"]`,
	`div[class*="cookie"] button[class*="accept"]`,
	`div[class*="consent"] button[class*="accept"]`,
	`div[class*="gdpr"] button[class*="accept"]`,
}

// acceptTexts is the text-search fallback for dialogs whose button carries
// none of buttonSelectors' id/class/data-testid conventions.
var acceptTexts = []string{
	"Accept All",
	"Accept all",
	"Accept All Cookies",
	"Accept Cookies",
	"I Accept",
	"I Agree",
	"Got it",
	"Allow All",
	"Allow all",
	"Agree",
}

// Dismisser attempts to close a cookie-consent banner before the page is
// handed to the selector engine.
type Dismisser struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewDismisser returns a Dismisser with a short per-attempt timeout; long
// waits here would eat into the fetch's overall navigation budget.
func NewDismisser(logger *slog.Logger) *Dismisser {
	return &Dismisser{logger: logger, timeout: 2 * time.Second}
}

// Dismiss tries every known selector, then a text-search fallback. Returns
// true if a banner was found and clicked.
func (d *Dismisser) Dismiss(ctx context.Context, page *rod.Page) bool {
	time.Sleep(500 * time.Millisecond)

	for _, selector := range buttonSelectors {
		if d.tryClickSelector(page, selector) {
			return true
		}
	}
	return d.tryClickByText(page)
}

func (d *Dismisser) tryClickSelector(page *rod.Page, selector string) bool {
	elem, err := page.Timeout(d.timeout).Element(selector)
	if err != nil {
		return false
	}
	visible, err := elem.Visible()
	if err != nil || !visible {
		return false
	}
	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		d.logger.Debug("failed to click consent button", "selector", selector, "error", err)
		return false
	}
	d.logger.Info("dismissed cookie consent banner", "selector", selector)
	time.Sleep(300 * time.Millisecond)
	return true
}

func (d *Dismisser) tryClickByText(page *rod.Page) bool {
	for _, text := range acceptTexts {
		findJS := `(text) => {
			const els = [...document.querySelectorAll('button'), ...document.querySelectorAll('a')];
			for (const el of els) {
				if (el.textContent.trim() === text || el.textContent.includes(text)) {
					const rect = el.getBoundingClientRect();
					if (rect.width > 0 && rect.height > 0) return el;
				}
			}
			return null;
		}`
		result, err := page.Timeout(d.timeout).Eval(findJS, text)
		if err != nil || result.Value.Nil() {
			continue
		}

		clickJS := `(text) => {
			const els = [...document.querySelectorAll('button'), ...document.querySelectorAll('a')];
			for (const el of els) {
				if (el.textContent.trim() === text || el.textContent.includes(text)) {
					el.click();
					return true;
				}
			}
			return false;
		}`
		clickResult, err := page.Timeout(d.timeout).Eval(clickJS, text)
		if err == nil && clickResult.Value.Bool() {
			d.logger.Info("dismissed cookie consent banner", "method", "text_search", "text", text)
			time.Sleep(300 * time.Millisecond)
			return true
		}
	}
	return false
}
