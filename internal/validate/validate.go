// Package validate implements the Validator (C5): enforce field invariants
// (numeric price > 0, plausible range, confidence floor, large-delta
// warning) on an extract.Result, optionally compared against a prior
// extraction.
package validate

import (
	"fmt"
	"strings"

	"github.com/falense/PriceTracker-sub001/internal/extract"
	"github.com/falense/PriceTracker-sub001/internal/models"
)

const (
	defaultMinConfidence     = 0.6
	defaultMaxPriceChangePct = 50.0
	defaultMaxPlausiblePrice = 100_000.0
	minTitleLength           = 3
)

// Config holds the Validator's tunables; all have documented defaults.
type Config struct {
	MinConfidence     float64
	MaxPriceChangePct float64
	MaxPlausiblePrice float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:     defaultMinConfidence,
		MaxPriceChangePct: defaultMaxPriceChangePct,
		MaxPlausiblePrice: defaultMaxPlausiblePrice,
	}
}

// Result is the outcome of validating one extraction.
type Result struct {
	Valid      bool
	Confidence float64
	Errors     []string
	Warnings   []string
}

// Validator enforces C5's field invariants.
type Validator struct {
	cfg Config
}

// New constructs a Validator. A zero Config falls back to spec defaults for
// any field left at its zero value.
func New(cfg Config) *Validator {
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = defaultMinConfidence
	}
	if cfg.MaxPriceChangePct == 0 {
		cfg.MaxPriceChangePct = defaultMaxPriceChangePct
	}
	if cfg.MaxPlausiblePrice == 0 {
		cfg.MaxPlausiblePrice = defaultMaxPlausiblePrice
	}
	return &Validator{cfg: cfg}
}

// Validate validates current against an optional prior extraction (nil if
// there is no prior PriceHistory row for this listing).
func (v *Validator) Validate(current extract.Result, prior *extract.Result) Result {
	var errs, warns []string
	confidence := 1.0

	priceField, hasPrice := current[models.FieldPrice]
	switch {
	case !hasPrice || priceField.Value == nil:
		errs = append(errs, "Price not found")
	default:
		numeric, ok := extract.ParsePrice(*priceField.Value)
		if !ok {
			errs = append(errs, "No numeric value in price")
		} else if numeric <= 0 {
			errs = append(errs, "Price is zero or negative")
		} else {
			if numeric > v.cfg.MaxPlausiblePrice {
				warns = append(warns, fmt.Sprintf("price %.2f is unusually high", numeric))
			}
			if priceField.Confidence < confidence {
				confidence = priceField.Confidence
			}
			if priceField.Confidence < v.cfg.MinConfidence {
				errs = append(errs, fmt.Sprintf("price confidence %.2f is below threshold %.2f", priceField.Confidence, v.cfg.MinConfidence))
			}
			if prior != nil {
				if priorPrice, priorOK := (*prior).PriceValue(); priorOK && priorPrice != 0 {
					delta := (numeric - priorPrice) / priorPrice
					if delta < 0 {
						delta = -delta
					}
					if delta*100 > v.cfg.MaxPriceChangePct {
						warns = append(warns, fmt.Sprintf("price changed by %.1f%% since last check", delta*100))
					}
				}
			}
		}
	}

	if titleField, ok := current[models.FieldTitle]; ok && titleField.Value != nil {
		if len(strings.TrimSpace(*titleField.Value)) < minTitleLength {
			warns = append(warns, "title too short")
		}
	}

	if titleField, ok := current[models.FieldTitle]; ok && titleField.Value != nil && titleField.Confidence < confidence {
		confidence = titleField.Confidence
	}
	if !hasPrice {
		confidence = 0
	}

	return Result{
		Valid:      len(errs) == 0,
		Confidence: confidence,
		Errors:     errs,
		Warnings:   warns,
	}
}
