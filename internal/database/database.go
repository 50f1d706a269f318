// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package database provides the durable DuckDB store: the video catalog,
// the append-only raw view log, pre-aggregated rollups, and watch history.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb sql driver
)

// Config holds DuckDB connection settings.
type Config struct {
	// Path is the database file path. ":memory:" opens an in-memory
	// database (tests).
	Path string

	// MaxMemory is DuckDB's memory limit, e.g. "2GB".
	MaxMemory string

	// Threads is DuckDB's thread count. 0 means runtime.NumCPU().
	Threads int
}

// DB wraps the DuckDB connection pool.
type DB struct {
	conn *sql.DB
}

// New opens the database, configures the pool, and applies the schema.
func New(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = "2GB"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, cfg.Threads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{conn: conn}
	if err := db.applySchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// NewInMemory opens an in-memory database for tests.
func NewInMemory() (*DB, error) {
	return New(Config{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
}

// Ping verifies the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
