// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeout bounds graceful shutdown of the server and notifier.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// StoreDriver is memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is the sqlite file path or the postgres connection string.
	StoreDSN string `koanf:"store_dsn"`
	// AutoMigrate creates missing tables when the store opens.
	AutoMigrate bool `koanf:"auto_migrate"`

	// Judges is the active roster.
	Judges []string `koanf:"judges"`
	// RosterVersion labels the roster on leaderboard responses.
	RosterVersion string `koanf:"roster_version"`
	// JudgeWeights maps judge -> category -> weight.
	JudgeWeights map[string]map[string]float64 `koanf:"judge_weights"`

	// RevisionBound is the round-2 adjustment limit as a fraction of the round-1 total.
	RevisionBound float64 `koanf:"revision_bound"`

	// MaxTokenWeight caps token vote weights. Zero disables the cap.
	MaxTokenWeight float64 `koanf:"max_token_weight"`
	// DedupeSize bounds the vote event id window.
	DedupeSize int `koanf:"dedupe_size"`

	// NotifyQueueSize bounds pending transition events.
	NotifyQueueSize int `koanf:"notify_queue_size"`
	// NotifyWorkers is the number of publishing workers.
	NotifyWorkers int `koanf:"notify_workers"`
	// NatsURL switches the transition publisher from in-process to NATS.
	NatsURL string `koanf:"nats_url"`
	// NotifyTopic is the topic transition events are published on.
	NotifyTopic string `koanf:"notify_topic"`

	// MaxPageSize caps GET /leaderboard?size.
	MaxPageSize int `koanf:"max_page_size"`

	// WriteRateLimit is the per-client write budget in requests per second. Zero disables it.
	WriteRateLimit float64 `koanf:"write_rate_limit"`
	// WriteRateBurst is the per-client burst.
	WriteRateBurst int `koanf:"write_rate_burst"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		ShutdownTimeout: 10 * time.Second,
		StoreDriver:     DriverMemory,
		AutoMigrate:     true,
		Judges:          []string{"aimarc", "aishaw", "peepo", "spartan"},
		RosterVersion:   "v1",
		RevisionBound:   0.20,
		DedupeSize:      50_000,
		NotifyQueueSize: 1024,
		NotifyWorkers:   2,
		NotifyTopic:     "submission.transitioned",
		MaxPageSize:     100,
		WriteRateLimit:  50,
		WriteRateBurst:  100,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverSQLite && c.StoreDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver != DriverMemory && strings.TrimSpace(c.StoreDSN) == "":
		return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
	case len(c.Judges) == 0:
		return fmt.Errorf("%w: judges must not be empty", ErrInvalidConfig)
	case c.RevisionBound < 0 || math.IsNaN(c.RevisionBound) || math.IsInf(c.RevisionBound, 0):
		return fmt.Errorf("%w: revision_bound must be a non-negative number", ErrInvalidConfig)
	case c.MaxTokenWeight < 0:
		return fmt.Errorf("%w: max_token_weight must not be negative", ErrInvalidConfig)
	case c.NotifyQueueSize < 1:
		return fmt.Errorf("%w: notify_queue_size must be positive", ErrInvalidConfig)
	case c.NotifyWorkers < 1:
		return fmt.Errorf("%w: notify_workers must be positive", ErrInvalidConfig)
	case c.MaxPageSize < 1:
		return fmt.Errorf("%w: max_page_size must be positive", ErrInvalidConfig)
	case c.WriteRateLimit < 0:
		return fmt.Errorf("%w: write_rate_limit must not be negative", ErrInvalidConfig)
	}
	for judge, weights := range c.JudgeWeights {
		for category, w := range weights {
			if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("%w: judge_weights.%s.%s must be positive", ErrInvalidConfig, judge, category)
			}
		}
	}
	return nil
}
