// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// FetcherConfig tunes the Stealth Fetcher (C6) and its retry policy.
type FetcherConfig struct {
	RequestDelay   time.Duration // minimum delay between requests to the same domain
	Timeout        time.Duration // loaded from FETCHER_TIMEOUT; no fetch path applies it as a deadline
	MaxRetries     int           // retries on FetchTimeout/FetchIOError before giving up for this tick
	BrowserTimeout time.Duration // networkidle wait bound inside the browser
	WaitForJS      bool
	DomainDelays   map[string]time.Duration // per-domain override of RequestDelay

	// DifficultDomains gates the extra randomised mouse-move/scroll
	// simulation onto only the storefronts known to fingerprint pointer
	// behavior; most sites don't need the added fetch latency.
	DifficultDomains map[string]bool

	ChromePath         string        // custom Chrome/Chromium binary; empty lets rod auto-download
	BrowserPoolSize    int           // max concurrent browser instances
	BrowserMaxAge      time.Duration // recycle a browser once it's this old
	BrowserMaxRequests int           // recycle a browser after this many fetches
	BrowserIdleTimeout time.Duration // close an idle, unused browser after this long
}

// ValidationConfig tunes the Validator (C5).
type ValidationConfig struct {
	MinConfidence     float64
	MaxPriceChangePct float64
}

// SchedulerConfig tunes the Scheduler (C9).
type SchedulerConfig struct {
	Tick     time.Duration // how often the scheduler loop selects due listings
	Workers  int           // worker pool size
	MaxBatch int           // max due listings dispatched per tick
}

// PriorityConfig maps subscriber priority tiers to refresh intervals.
type PriorityConfig struct {
	Intervals map[models.Priority]time.Duration
}

// RetentionConfig tunes the PriceHistory retention sweep.
type RetentionConfig struct {
	PriceHistoryDays int
}

// StorageConfig configures the S3-compatible object store used for fetch
// artifacts (raw HTML, page screenshots, product images).
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// DatabaseConfig configures the libsql/SQLite connection.
type DatabaseConfig struct {
	DSN string
}

// NotifyConfig configures the outbound pattern-generation-requested webhook
// (C generator) signing.
type NotifyConfig struct {
	PatternGeneratorURL    string
	PatternGeneratorSecret string
}

// Config holds all application configuration, loaded once at process start
// and passed by reference to every component's constructor.
type Config struct {
	Fetcher    FetcherConfig
	Validation ValidationConfig
	Scheduler  SchedulerConfig
	Priority   PriorityConfig
	Retention  RetentionConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Notify     NotifyConfig

	LogFormat string
	LogLevel  string
}

// Load reads configuration from environment variables, applying sensible
// defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Fetcher: FetcherConfig{
			RequestDelay:   getEnvDuration("FETCHER_REQUEST_DELAY", 2*time.Second),
			Timeout:        getEnvDuration("FETCHER_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvInt("FETCHER_MAX_RETRIES", 3),
			BrowserTimeout: getEnvDuration("FETCHER_BROWSER_TIMEOUT", 60*time.Second),
			WaitForJS:      getEnvBool("FETCHER_WAIT_FOR_JS", true),
			DomainDelays:   getEnvDomainDelays("FETCHER_DOMAIN_DELAYS"),
			DifficultDomains: getEnvStringSet("FETCHER_DIFFICULT_DOMAINS"),

			ChromePath:         getEnv("FETCHER_CHROME_PATH", ""),
			BrowserPoolSize:    getEnvInt("FETCHER_BROWSER_POOL_SIZE", 4),
			BrowserMaxAge:      getEnvDuration("FETCHER_BROWSER_MAX_AGE", 30*time.Minute),
			BrowserMaxRequests: getEnvInt("FETCHER_BROWSER_MAX_REQUESTS", 100),
			BrowserIdleTimeout: getEnvDuration("FETCHER_BROWSER_IDLE_TIMEOUT", 5*time.Minute),
		},
		Validation: ValidationConfig{
			MinConfidence:     getEnvFloat("VALIDATION_MIN_CONFIDENCE", 0.6),
			MaxPriceChangePct: getEnvFloat("VALIDATION_MAX_PRICE_CHANGE_PCT", 50.0),
		},
		Scheduler: SchedulerConfig{
			Tick:     getEnvDuration("SCHEDULER_TICK", 5*time.Minute),
			Workers:  getEnvInt("SCHEDULER_WORKERS", 4),
			MaxBatch: getEnvInt("SCHEDULER_MAX_BATCH", 100),
		},
		Priority: PriorityConfig{
			Intervals: map[models.Priority]time.Duration{
				models.PriorityHigh:   getEnvDuration("PRIORITY_INTERVAL_HIGH", 15*time.Minute),
				models.PriorityNormal: getEnvDuration("PRIORITY_INTERVAL_NORMAL", 60*time.Minute),
				models.PriorityLow:    getEnvDuration("PRIORITY_INTERVAL_LOW", 24*time.Hour),
			},
		},
		Retention: RetentionConfig{
			PriceHistoryDays: getEnvInt("RETENTION_PRICEHISTORY_DAYS", 30),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
			AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
			Region:    getEnv("AWS_REGION", "auto"),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_URL", "file:pricetracker.db?_journal=WAL&_timeout=5000"),
		},
		Notify: NotifyConfig{
			PatternGeneratorURL:    getEnv("PATTERN_GENERATOR_URL", ""),
			PatternGeneratorSecret: getEnv("PATTERN_GENERATOR_SECRET", ""),
		},
		LogFormat: getEnv("LOG_FORMAT", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	cfg.Storage.Enabled = cfg.Storage.Bucket != "" && cfg.Storage.Endpoint != ""

	if cfg.Scheduler.Workers < 1 {
		return nil, fmt.Errorf("SCHEDULER_WORKERS must be >= 1, got %d", cfg.Scheduler.Workers)
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return nil, fmt.Errorf("FETCHER_MAX_RETRIES must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}

	return cfg, nil
}

// DelayFor returns the per-domain request delay override if one is
// configured, else the fetcher's default RequestDelay.
func (c *Config) DelayFor(domain string) time.Duration {
	if d, ok := c.Fetcher.DomainDelays[domain]; ok {
		return d
	}
	return c.Fetcher.RequestDelay
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

// getEnvStringSet parses a "host,host,host" env var into a membership set,
// the same comma-joined idiom getEnvDomainDelays uses for its pairs.
func getEnvStringSet(key string) map[string]bool {
	out := make(map[string]bool)
	raw := os.Getenv(key)
	if raw == "" {
		return out
	}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out[item] = true
		}
	}
	return out
}

// getEnvDomainDelays parses a "host=seconds,host=seconds" env var into a
// per-domain delay map, the same comma-joined-pairs idiom used for the
// other list-shaped env vars.
func getEnvDomainDelays(key string) map[string]time.Duration {
	out := make(map[string]time.Duration)
	raw := os.Getenv(key)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(parts[0])] = time.Duration(seconds * float64(time.Second))
	}
	return out
}
