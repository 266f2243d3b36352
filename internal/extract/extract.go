// Package extract implements the Extractor (C4): apply a full pattern
// (primary selector plus ordered fallbacks per field) via the Selector
// Engine and emit a typed ExtractionResult. Extract never fails the overall
// call — any subset of fields may come back null.
package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/selector"
)

// Field is one extracted field's value, the selector method that produced
// it, and that method's declared confidence.
type Field struct {
	Value      *string
	Method     string // css | xpath | jsonld | meta | ""
	Confidence float64
}

// Result is keyed by recognized field name (models.FieldPrice, etc).
type Result map[string]Field

// PriceValue parses the critical price field's numeric value, if any. It
// returns ok=false if the field is absent or has no numeric substring.
func (r Result) PriceValue() (float64, bool) {
	f, exists := r[models.FieldPrice]
	if !exists || f.Value == nil {
		return 0, false
	}
	return ParsePrice(*f.Value)
}

// Extract applies pattern to parsed HTML (document base URL pageURL is used
// to resolve relative image URLs) and returns a Result with one entry per
// recognized field present in the pattern.
func Extract(doc *selector.Document, pattern models.PatternDocument, pageURL string) Result {
	result := make(Result, len(pattern.Patterns))

	for field, fp := range pattern.Patterns {
		result[field] = extractField(doc, fp)
	}

	if f, ok := result[models.FieldPrice]; ok && f.Value != nil {
		normalized, numOK := ParsePrice(*f.Value)
		if numOK && normalized > 0 {
			s := strconv.FormatFloat(normalized, 'f', 2, 64)
			f.Value = &s
			result[models.FieldPrice] = f
		} else {
			// No numeric substring, or zero/negative: extraction failure for
			// this field, not a hard error for the whole call.
			f.Value = nil
			f.Method = ""
			f.Confidence = 0
			result[models.FieldPrice] = f
		}
	}

	if f, ok := result[models.FieldImage]; ok && f.Value != nil {
		resolved := resolveURL(pageURL, *f.Value)
		f.Value = &resolved
		result[models.FieldImage] = f
	}

	return result
}

func extractField(doc *selector.Document, fp models.FieldPattern) Field {
	if v, ok := selector.Eval(doc, fp.Primary); ok && strings.TrimSpace(v) != "" {
		return Field{Value: &v, Method: fp.Primary.Type, Confidence: fp.Primary.Confidence}
	}
	for _, fb := range fp.Fallbacks {
		if v, ok := selector.Eval(doc, fb); ok && strings.TrimSpace(v) != "" {
			return Field{Value: &v, Method: fb.Type, Confidence: fb.Confidence}
		}
	}
	return Field{Value: nil, Method: "", Confidence: 0}
}

// numericRe matches the first numeric substring, optionally signed, with
// either '.' or ',' as a decimal separator — a deliberately locale-agnostic,
// deterministic rule. It does not disambiguate thousands vs. decimal
// grouping (e.g. "1,299" is read as 1.299); this is a documented, accepted
// limitation inherited from the source system.
var numericRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// ParsePrice extracts the first numeric substring from s and normalizes its
// decimal separator to '.'. ok is false if no numeric substring is present.
func ParsePrice(s string) (float64, bool) {
	match := numericRe.FindString(s)
	if match == "" {
		return 0, false
	}
	match = strings.Replace(match, ",", ".", 1)
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func resolveURL(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}
