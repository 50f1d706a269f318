// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package config loads and validates Vantage configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Vantage server.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Badger      BadgerConfig      `koanf:"badger"`
	Database    DatabaseConfig    `koanf:"database"`
	NATS        NATSConfig        `koanf:"nats"`
	Counter     CounterConfig     `koanf:"counter"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Rollup      RollupConfig      `koanf:"rollup"`
	Fallback    FallbackConfig    `koanf:"fallback"`
	Position    PositionConfig    `koanf:"position"`
	Rebuild     RebuildConfig     `koanf:"rebuild"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// BadgerConfig holds fast-store settings.
type BadgerConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// NATSConfig holds event-log settings.
type NATSConfig struct {
	Enabled             bool          `koanf:"enabled"`
	EmbeddedServer      bool          `koanf:"embedded_server"`
	URL                 string        `koanf:"url"`
	StoreDir            string        `koanf:"store_dir"`
	MaxMemory           int64         `koanf:"max_memory"`
	MaxStore            int64         `koanf:"max_store"`
	StreamRetentionDays int           `koanf:"stream_retention_days" validate:"gt=0"`
	DurableName         string        `koanf:"durable_name"`
	QueueGroup          string        `koanf:"queue_group"`
	AckWait             time.Duration `koanf:"ack_wait" validate:"gt=0"`
	MaxDeliver          int           `koanf:"max_deliver" validate:"gt=0"`
}

// CounterConfig holds view-counter settings.
type CounterConfig struct {
	// DedupTTL is how long processed event IDs are remembered.
	DedupTTL time.Duration `koanf:"dedup_ttl" validate:"gt=0"`
}

// LeaderboardConfig holds leaderboard builder settings.
type LeaderboardConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`

	// Retention is the sliding-window age pruned after each refresh.
	Retention time.Duration `koanf:"retention" validate:"gt=0"`

	// MaxTopK caps the k accepted by the read API.
	MaxTopK int `koanf:"max_top_k" validate:"gt=0"`
}

// RollupConfig holds rollup scheduler settings.
type RollupConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval" validate:"gt=0"`
	RetentionDays   int           `koanf:"retention_days" validate:"gt=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gt=0"`
}

// FallbackConfig holds read-cascade settings.
type FallbackConfig struct {
	// Timeout bounds each fast-store read; exceeding it counts as
	// store-unavailable and triggers fallback.
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gt=0"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

// PositionConfig holds position-cache settings.
type PositionConfig struct {
	TTL            time.Duration `koanf:"ttl" validate:"gt=0"`
	FlushInterval  time.Duration `koanf:"flush_interval" validate:"gt=0"`
	FlushBatchSize int           `koanf:"flush_batch_size" validate:"gt=0"`
}

// RebuildConfig holds disaster-recovery rebuild settings.
type RebuildConfig struct {
	BatchSize     int `koanf:"batch_size" validate:"gt=0"`
	WindowDays    int `koanf:"window_days" validate:"gt=0"`
	RatePerSecond int `koanf:"rate_per_second" validate:"gt=0"`
}

// Validate checks the configuration against struct tags plus
// cross-field rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when the embedded server is disabled")
	}
	if !c.Badger.InMemory && c.Badger.Path == "" {
		return fmt.Errorf("badger.path is required unless badger.in_memory is set")
	}
	return nil
}
