// Package selector implements the Selector Engine (C3): given a parsed
// document and a single typed selector, return a raw string or null. Errors
// never cross a selector boundary — any parse/selector failure yields a nil
// result so a fallback chain can continue.
package selector

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// Document wraps the two parse trees the engine needs: goquery for CSS/meta,
// and golang.org/x/net/html (shared by antchfx) for XPath. Both are built
// from the same HTML bytes so callers only parse once.
type Document struct {
	goquery *goquery.Document
	xmlRoot *html.Node
	raw     string
}

// Parse builds a Document from raw HTML. Parse never returns an error for
// malformed HTML — both underlying parsers are forgiving, matching the
// "extract is total" property required of the pipeline built on top of it.
func Parse(rawHTML string) *Document {
	doc := &Document{raw: rawHTML}

	if gq, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML)); err == nil {
		doc.goquery = gq
	}
	if root, err := htmlquery.Parse(strings.NewReader(rawHTML)); err == nil {
		doc.xmlRoot = root
	}
	return doc
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Eval evaluates a single Selector against the document, returning the raw
// string value or "" with ok=false if nothing matched or an error occurred
// anywhere in evaluation. It never panics and never returns an error.
func Eval(doc *Document, sel models.Selector) (value string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			value, ok = "", false
		}
	}()

	switch sel.Type {
	case "css":
		return evalCSS(doc, sel)
	case "xpath":
		return evalXPath(doc, sel)
	case "jsonld":
		return evalJSONLD(doc, sel)
	case "meta":
		return evalMeta(doc, sel)
	default:
		return "", false
	}
}

func evalCSS(doc *Document, sel models.Selector) (string, bool) {
	if doc.goquery == nil {
		return "", false
	}
	node := doc.goquery.Find(sel.Selector).First()
	if node.Length() == 0 {
		return "", false
	}
	if sel.Attribute != "" {
		v, exists := node.Attr(sel.Attribute)
		if !exists {
			return "", false
		}
		return normalizeText(v), v != ""
	}
	text := normalizeText(node.Text())
	return text, text != ""
}

func evalXPath(doc *Document, sel models.Selector) (string, bool) {
	if doc.xmlRoot == nil {
		return "", false
	}
	expr, err := xpath.Compile(sel.Selector)
	if err != nil {
		return "", false
	}
	node := htmlquery.QuerySelector(doc.xmlRoot, expr)
	if node == nil {
		return "", false
	}
	if sel.Attribute != "" {
		v := htmlquery.SelectAttr(node, sel.Attribute)
		return normalizeText(v), v != ""
	}
	text := normalizeText(htmlquery.InnerText(node))
	return text, text != ""
}

// evalJSONLD collects every <script type="application/ld+json"> block,
// flattens @graph arrays and top-level arrays, and walks a dot-separated
// path (e.g. "offers.price") looking for the first scalar match.
func evalJSONLD(doc *Document, sel models.Selector) (string, bool) {
	if doc.goquery == nil {
		return "", false
	}

	var found string
	var ok bool

	doc.goquery.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.Text()
		if !gjson.Valid(raw) {
			return true
		}
		root := gjson.Parse(raw)

		for _, candidate := range flattenJSONLD(root) {
			res := candidate.Get(sel.Selector)
			if !res.Exists() {
				continue
			}
			if res.IsArray() || res.IsObject() {
				continue
			}
			found, ok = res.String(), true
			return false
		}
		return true
	})

	return found, ok
}

// flattenJSONLD expands @graph arrays and top-level JSON arrays into a flat
// list of candidate objects to search.
func flattenJSONLD(root gjson.Result) []gjson.Result {
	var out []gjson.Result
	switch {
	case root.IsArray():
		root.ForEach(func(_, v gjson.Result) bool {
			out = append(out, flattenJSONLD(v)...)
			return true
		})
	case root.IsObject():
		if graph := root.Get("@graph"); graph.Exists() && graph.IsArray() {
			graph.ForEach(func(_, v gjson.Result) bool {
				out = append(out, v)
				return true
			})
		}
		out = append(out, root)
	}
	return out
}

func evalMeta(doc *Document, sel models.Selector) (string, bool) {
	if doc.goquery == nil {
		return "", false
	}
	var content string
	var ok bool
	doc.goquery.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if prop == sel.Selector || name == sel.Selector {
			content, ok = s.AttrOr("content", ""), true
			return false
		}
		return true
	})
	return normalizeText(content), ok && content != ""
}
