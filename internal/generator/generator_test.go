package generator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/falense/PriceTracker-sub001/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerator_NoURLConfigured_NoOp(t *testing.T) {
	g := New(config.NotifyConfig{}, testLogger())
	if err := g.RequestGeneration(context.Background(), "shop.example.com", "https://shop.example.com/p/1"); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}
}

func TestGenerator_DeliversSignedEvent(t *testing.T) {
	received := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := New(config.NotifyConfig{PatternGeneratorURL: srv.URL, PatternGeneratorSecret: "s3cr3t"}, testLogger())

	if err := g.RequestGeneration(context.Background(), "shop.example.com", "https://shop.example.com/p/1"); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}

	select {
	case req := <-received:
		sig := req.Header.Get("X-Pattern-Generator-Signature")
		if sig == "" {
			t.Fatal("missing signature header")
		}
		parsed, err := jwt.ParseWithClaims(sig, &claims{}, func(t *jwt.Token) (any, error) {
			return g.key, nil
		})
		if err != nil || !parsed.Valid {
			t.Fatalf("signature did not validate: %v", err)
		}
		c := parsed.Claims.(*claims)
		if c.Domain != "shop.example.com" {
			t.Errorf("claims domain = %q, want shop.example.com", c.Domain)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
