// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package database

import (
	"context"
	"fmt"
)

// schemaStatements creates all tables and indexes. Statements are
// idempotent so startup can apply them unconditionally.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS views_id_seq`,

	`CREATE TABLE IF NOT EXISTS videos (
		id BIGINT PRIMARY KEY,
		title VARCHAR NOT NULL,
		media_type VARCHAR NOT NULL DEFAULT 'video',
		duration_seconds DOUBLE NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS views (
		id BIGINT PRIMARY KEY DEFAULT nextval('views_id_seq'),
		video_id BIGINT NOT NULL,
		user_id VARCHAR,
		viewed_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_views_video_time ON views (video_id, viewed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_views_time ON views (viewed_at)`,

	`CREATE TABLE IF NOT EXISTS video_stats (
		video_id BIGINT NOT NULL,
		bucket_start TIMESTAMP NOT NULL,
		granularity VARCHAR NOT NULL,
		view_count BIGINT NOT NULL,
		PRIMARY KEY (video_id, bucket_start, granularity)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stats_bucket ON video_stats (granularity, bucket_start)`,

	`CREATE TABLE IF NOT EXISTS watch_history (
		user_id VARCHAR NOT NULL,
		video_id BIGINT NOT NULL,
		position_seconds DOUBLE NOT NULL,
		duration_seconds DOUBLE NOT NULL,
		progress_percent DOUBLE NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		watch_count INTEGER NOT NULL DEFAULT 1,
		last_watched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, video_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_history_user ON watch_history (user_id, last_watched_at)`,
}

// applySchema creates missing tables and indexes.
func (db *DB) applySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
