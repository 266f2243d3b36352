// Package challenge detects bot-walls and CAPTCHA interstitials on a
// rendered page. There is no solver in scope here (the tracker has no
// external CAPTCHA-solving dependency): any challenge that cannot resolve
// itself by waiting is surfaced to the caller as blocked.
package challenge

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Type identifies the kind of challenge a page presented.
type Type string

const (
	TypeNone                   Type = "none"
	TypeCloudflareJS           Type = "cloudflare_js"
	TypeCloudflareInterstitial Type = "cloudflare_interstitial"
	TypeDDoSGuard              Type = "ddosguard"
	TypeCloudflareTurnstile    Type = "cloudflare_turnstile"
	TypeHCaptcha               Type = "hcaptcha"
	TypeReCaptcha              Type = "recaptcha"
)

// Detection describes what Detect found on the page.
type Detection struct {
	Type    Type
	PageURL string
	Title   string
	// CanAuto is true for challenges that resolve themselves if the caller
	// waits (Cloudflare's JS check, DDoS-Guard); false for anything that
	// needs a human or a solver, which this fetcher doesn't have.
	CanAuto bool
}

// Detector inspects a rod.Page for known bot-wall and CAPTCHA fingerprints.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect classifies the current page. A TypeNone result with no error means
// the page is clear to hand to the selector engine.
func (d *Detector) Detect(ctx context.Context, page *rod.Page) (*Detection, error) {
	info, err := page.Info()
	if err != nil {
		return nil, err
	}

	det := &Detection{Type: TypeNone, PageURL: info.URL, Title: info.Title}

	if d.isCloudflareChallenge(info.Title) {
		det.Type = TypeCloudflareJS
		det.CanAuto = true
		return det, nil
	}
	if d.isCloudflareInterstitial(page) {
		det.Type = TypeCloudflareInterstitial
		det.CanAuto = true
		return det, nil
	}
	if d.hasTurnstile(page) {
		det.Type = TypeCloudflareTurnstile
		return det, nil
	}
	if d.hasHCaptcha(page) {
		det.Type = TypeHCaptcha
		return det, nil
	}
	if d.hasReCaptcha(page) {
		det.Type = TypeReCaptcha
		return det, nil
	}
	if d.isDDoSGuard(page, info.Title) {
		det.Type = TypeDDoSGuard
		det.CanAuto = true
		return det, nil
	}

	return det, nil
}

// WaitForChallenge polls until an auto-resolvable challenge clears, a
// non-auto challenge is detected (returns immediately so the caller can
// classify the fetch as blocked), or timeout elapses.
func (d *Detector) WaitForChallenge(ctx context.Context, page *rod.Page, timeout time.Duration) (*Detection, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		det, err := d.Detect(ctx, page)
		if err != nil {
			return nil, err
		}
		if det.Type == TypeNone || !det.CanAuto {
			return det, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil, context.DeadlineExceeded
}

func (d *Detector) isCloudflareChallenge(title string) bool {
	patterns := []string{
		"Just a moment", "Checking your browser", "Please wait",
		"Attention Required", "One more step", "Verify you are human",
	}
	titleLower := strings.ToLower(title)
	for _, p := range patterns {
		if strings.Contains(titleLower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (d *Detector) isCloudflareInterstitial(page *rod.Page) bool {
	for _, sel := range []string{"#cf-browser-verification", ".challenge-running", "#cf-challenge-running"} {
		if has, _, _ := page.Has(sel); has {
			return true
		}
	}
	return false
}

func (d *Detector) hasTurnstile(page *rod.Page) bool {
	if has, _, _ := page.Has(`iframe[src*="challenges.cloudflare.com"]`); has {
		return true
	}
	has, _, _ := page.Has(`.cf-turnstile`)
	return has
}

func (d *Detector) hasHCaptcha(page *rod.Page) bool {
	if has, _, _ := page.Has(`iframe[src*="hcaptcha.com"]`); has {
		return true
	}
	has, _, _ := page.Has(`.h-captcha`)
	return has
}

func (d *Detector) hasReCaptcha(page *rod.Page) bool {
	if has, _, _ := page.Has(`.g-recaptcha`); has {
		return true
	}
	result, err := page.Eval(`() => !!(window.grecaptcha && window.grecaptcha.enterprise)`)
	return err == nil && result.Value.Bool()
}

func (d *Detector) isDDoSGuard(page *rod.Page, title string) bool {
	if strings.Contains(strings.ToLower(title), "ddos-guard") {
		return true
	}
	if has, _, _ := page.Has(`meta[name="generator"][content*="DDoS-GUARD"]`); has {
		return true
	}
	result, err := page.Eval(`() => document.body.innerText.includes('DDoS-GUARD')`)
	return err == nil && result.Value.Bool()
}
