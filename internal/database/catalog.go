// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/vantage/internal/models"
)

// UpsertVideo creates or updates a catalog entry. Upload events are
// at-least-once, so redelivery must be a harmless overwrite.
func (db *DB) UpsertVideo(ctx context.Context, v models.Video) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO videos (id, title, media_type, duration_seconds, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			media_type = excluded.media_type,
			duration_seconds = excluded.duration_seconds,
			uploaded_at = excluded.uploaded_at`,
		v.ID, v.Title, v.MediaType, v.DurationSeconds, v.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert video %d: %w", v.ID, err)
	}
	return nil
}

// GetVideo returns one catalog entry.
func (db *DB) GetVideo(ctx context.Context, id int64) (models.Video, error) {
	var v models.Video
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, media_type, duration_seconds, uploaded_at
		 FROM videos WHERE id = ?`, id).Scan(
		&v.ID, &v.Title, &v.MediaType, &v.DurationSeconds, &v.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("get video %d: %w", id, err)
	}
	v.UploadedAt = v.UploadedAt.UTC()
	return v, nil
}

// ListVideoIDs returns every catalog video ID in ascending order. The
// leaderboard builder scores this full set each cycle.
func (db *DB) ListVideoIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list video ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan video id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
