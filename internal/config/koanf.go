// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vantage/config.yaml",
	"/etc/vantage/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces Vantage environment variables:
// VANTAGE_SERVER_PORT -> server.port.
const envPrefix = "VANTAGE_"

// defaultConfig returns the built-in defaults. These are applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Badger: BadgerConfig{
			Path:     "/data/vantage/badger",
			InMemory: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/vantage/vantage.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		NATS: NATSConfig{
			Enabled:             true,
			EmbeddedServer:      true,
			URL:                 "nats://127.0.0.1:4222",
			StoreDir:            "/data/vantage/nats",
			MaxMemory:           1 << 30,  // 1GB
			MaxStore:            10 << 30, // 10GB
			StreamRetentionDays: 7,
			DurableName:         "vantage-consumer",
			QueueGroup:          "vantage",
			AckWait:             30 * time.Second,
			MaxDeliver:          5,
		},
		Counter: CounterConfig{
			DedupTTL: 7 * 24 * time.Hour,
		},
		Leaderboard: LeaderboardConfig{
			RefreshInterval: 5 * time.Minute,
			Retention:       30 * 24 * time.Hour,
			MaxTopK:         100,
		},
		Rollup: RollupConfig{
			PollInterval:    time.Minute,
			RetentionDays:   90,
			CleanupInterval: 7 * 24 * time.Hour,
		},
		Fallback: FallbackConfig{
			Timeout:          2 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Position: PositionConfig{
			TTL:            7 * 24 * time.Hour,
			FlushInterval:  30 * time.Second,
			FlushBatchSize: 100,
		},
		Rebuild: RebuildConfig{
			BatchSize:     1000,
			WindowDays:    30,
			RatePerSecond: 10,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. built-in defaults
//  2. optional YAML config file
//  3. VANTAGE_* environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// VANTAGE_SERVER_PORT -> server.port, VANTAGE_NATS_MAX_DELIVER ->
	// nats.max_deliver. Only the first underscore becomes a separator;
	// the rest of the name is the snake_case field key.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(key, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first readable config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
