// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8420 {
		t.Fatalf("wrong default port: %d", cfg.Server.Port)
	}
	if cfg.Leaderboard.RefreshInterval != 5*time.Minute {
		t.Fatalf("wrong refresh interval: %v", cfg.Leaderboard.RefreshInterval)
	}
	if cfg.Rollup.PollInterval != time.Minute {
		t.Fatalf("wrong poll interval: %v", cfg.Rollup.PollInterval)
	}
	if cfg.Position.FlushInterval != 30*time.Second {
		t.Fatalf("wrong flush interval: %v", cfg.Position.FlushInterval)
	}
	if !cfg.NATS.Enabled || !cfg.NATS.EmbeddedServer {
		t.Fatalf("event log should default on: %+v", cfg.NATS)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("wrong logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VANTAGE_SERVER_PORT", "9000")
	t.Setenv("VANTAGE_LOGGING_LEVEL", "debug")
	t.Setenv("VANTAGE_POSITION_FLUSH_BATCH_SIZE", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Fatalf("env port not applied: %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("env level not applied: %s", cfg.Logging.Level)
	}
	if cfg.Position.FlushBatchSize != 250 {
		t.Fatalf("env batch size not applied: %d", cfg.Position.FlushBatchSize)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("server:\n  port: 9100\nleaderboard:\n  max_top_k: 50\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Fatalf("file port not applied: %d", cfg.Server.Port)
	}
	if cfg.Leaderboard.MaxTopK != 50 {
		t.Fatalf("file max_top_k not applied: %d", cfg.Leaderboard.MaxTopK)
	}
	// Untouched keys keep their defaults.
	if cfg.Rollup.RetentionDays != 90 {
		t.Fatalf("default retention lost: %d", cfg.Rollup.RetentionDays)
	}
}

func TestEnvBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("VANTAGE_SERVER_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Fatalf("environment should win over the file, got %d", cfg.Server.Port)
	}
}

func TestValidateCrossFieldRules(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg = defaultConfig()
	cfg.NATS.EmbeddedServer = false
	cfg.NATS.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("external NATS without a URL should fail")
	}

	cfg = defaultConfig()
	cfg.Badger.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("on-disk badger without a path should fail")
	}
	cfg.Badger.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("in-memory badger needs no path: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 0 should fail validation")
	}

	cfg = defaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown log level should fail validation")
	}
}
