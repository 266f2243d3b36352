package config

import (
	"testing"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Fetcher.RequestDelay != 2*time.Second {
		t.Errorf("Fetcher.RequestDelay = %v, want 2s", cfg.Fetcher.RequestDelay)
	}
	if cfg.Fetcher.MaxRetries != 3 {
		t.Errorf("Fetcher.MaxRetries = %d, want 3", cfg.Fetcher.MaxRetries)
	}
	if cfg.Validation.MinConfidence != 0.6 {
		t.Errorf("Validation.MinConfidence = %v, want 0.6", cfg.Validation.MinConfidence)
	}
	if cfg.Validation.MaxPriceChangePct != 50.0 {
		t.Errorf("Validation.MaxPriceChangePct = %v, want 50.0", cfg.Validation.MaxPriceChangePct)
	}
	if cfg.Scheduler.Tick != 5*time.Minute {
		t.Errorf("Scheduler.Tick = %v, want 5m", cfg.Scheduler.Tick)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Errorf("Scheduler.Workers = %d, want 4", cfg.Scheduler.Workers)
	}
	if cfg.Priority.Intervals[models.PriorityHigh] != 15*time.Minute {
		t.Errorf("Priority.Intervals[high] = %v, want 15m", cfg.Priority.Intervals[models.PriorityHigh])
	}
	if cfg.Priority.Intervals[models.PriorityNormal] != 60*time.Minute {
		t.Errorf("Priority.Intervals[normal] = %v, want 60m", cfg.Priority.Intervals[models.PriorityNormal])
	}
	if cfg.Priority.Intervals[models.PriorityLow] != 24*time.Hour {
		t.Errorf("Priority.Intervals[low] = %v, want 24h", cfg.Priority.Intervals[models.PriorityLow])
	}
	if cfg.Retention.PriceHistoryDays != 30 {
		t.Errorf("Retention.PriceHistoryDays = %d, want 30", cfg.Retention.PriceHistoryDays)
	}
}

func TestLoad_DomainDelays(t *testing.T) {
	t.Setenv("FETCHER_DOMAIN_DELAYS", "shop.example.com=5, other.example.com=0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DelayFor("shop.example.com") != 5*time.Second {
		t.Errorf("DelayFor(shop) = %v, want 5s", cfg.DelayFor("shop.example.com"))
	}
	if cfg.DelayFor("other.example.com") != 500*time.Millisecond {
		t.Errorf("DelayFor(other) = %v, want 500ms", cfg.DelayFor("other.example.com"))
	}
	if cfg.DelayFor("unconfigured.example.com") != cfg.Fetcher.RequestDelay {
		t.Errorf("DelayFor(unconfigured) = %v, want default RequestDelay", cfg.DelayFor("unconfigured.example.com"))
	}
}

func TestLoad_InvalidSchedulerWorkers(t *testing.T) {
	t.Setenv("SCHEDULER_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("want error for SCHEDULER_WORKERS=0")
	}
}

func TestLoad_StorageEnabledRequiresBucketAndEndpoint(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Enabled {
		t.Error("Storage.Enabled = true with no bucket/endpoint configured, want false")
	}

	t.Setenv("AWS_ENDPOINT_URL_S3", "https://fly.storage.tigris.dev")
	t.Setenv("STORAGE_BUCKET", "pricetracker-artifacts")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load (2nd): %v", err)
	}
	if !cfg.Storage.Enabled {
		t.Error("Storage.Enabled = false with bucket+endpoint set, want true")
	}
}
