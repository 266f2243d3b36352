// Package generator emits the outbound pattern_generation_requested event
// (§6) to an external pattern-generation agent: a fire-and-forget, signed
// POST to a single well-known destination instead of a per-user
// subscription list.
package generator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/falense/PriceTracker-sub001/internal/config"
)

const hkdfInfo = "pricetracker-pattern-generator-signing-key"

// Event is the payload delivered to the pattern generator.
type Event struct {
	Event       string    `json:"event"`
	Domain      string    `json:"domain"`
	SampleURL   string    `json:"sample_url"`
	RequestedAt time.Time `json:"requested_at"`
}

// claims is the JWT carried alongside Event as a signed assertion of its
// contents, so the receiving agent can verify authenticity independent of
// transport.
type claims struct {
	Domain    string `json:"domain"`
	SampleURL string `json:"sample_url"`
	jwt.RegisteredClaims
}

// Generator implements lifecycle.GenerationRequester.
type Generator struct {
	url    string
	key    []byte
	client *http.Client
	logger *slog.Logger
}

// New derives a signing key from cfg.PatternGeneratorSecret via HKDF-SHA256
// (rather than using the raw secret directly, so the HMAC key is never the
// operator-supplied value itself) and wires a Generator. If the URL is
// unset, RequestGeneration logs and no-ops — first-sight pattern
// registration must not be a hard dependency on the generator being
// reachable. If only the secret is unset, the event is still delivered,
// without a signature header.
func New(cfg config.NotifyConfig, logger *slog.Logger) *Generator {
	g := &Generator{
		url:    cfg.PatternGeneratorURL,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	if cfg.PatternGeneratorSecret != "" {
		key := make([]byte, 32)
		kdf := hkdf.New(sha256.New, []byte(cfg.PatternGeneratorSecret), nil, []byte(hkdfInfo))
		if _, err := io.ReadFull(kdf, key); err == nil {
			g.key = key
		}
	}
	return g
}

// RequestGeneration fires the pattern_generation_requested event and
// returns immediately; delivery happens on a background goroutine and
// delivery failures are only logged, matching §6's "fire-and-forget;
// handled asynchronously" contract.
func (g *Generator) RequestGeneration(ctx context.Context, domain, sampleURL string) error {
	if g.url == "" {
		g.logger.Debug("pattern generator not configured, skipping request", "domain", domain)
		return nil
	}

	event := Event{
		Event:       "pattern_generation_requested",
		Domain:      domain,
		SampleURL:   sampleURL,
		RequestedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("generator: marshal event: %w", err)
	}

	token, err := g.sign(domain, sampleURL, event.RequestedAt)
	if err != nil {
		return fmt.Errorf("generator: sign event: %w", err)
	}

	go g.deliver(context.Background(), body, token, domain)
	return nil
}

func (g *Generator) sign(domain, sampleURL string, issuedAt time.Time) (string, error) {
	if g.key == nil {
		return "", nil
	}
	c := claims{
		Domain:    domain,
		SampleURL: sampleURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(g.key)
}

func (g *Generator) deliver(ctx context.Context, body []byte, token, domain string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		g.logger.Error("pattern generator: failed to build request", "domain", domain, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PriceTracker-Generator/1.0")
	if token != "" {
		req.Header.Set("X-Pattern-Generator-Signature", token)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("pattern generator: delivery failed", "domain", domain, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("pattern generator: non-2xx response", "domain", domain, "status", resp.StatusCode, "response_time_ms", time.Since(start).Milliseconds())
		return
	}
	g.logger.Info("pattern generator: event delivered", "domain", domain, "status", resp.StatusCode, "response_time_ms", time.Since(start).Milliseconds())
}
