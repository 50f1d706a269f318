// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/vantage/internal/models"
)

// InsertView appends one raw view event. The log is append-only; the
// consumer-side dedup guard is what keeps redeliveries from double
// counting, not this table.
func (db *DB) InsertView(ctx context.Context, videoID int64, userID string, viewedAt time.Time) error {
	user := sql.NullString{String: userID, Valid: userID != ""}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO views (video_id, user_id, viewed_at) VALUES (?, ?, ?)`,
		videoID, user, viewedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert view: %w", err)
	}
	return nil
}

// CountViews returns the all-time view count for a video.
func (db *DB) CountViews(ctx context.Context, videoID int64) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM views WHERE video_id = ?`, videoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count views: %w", err)
	}
	return count, nil
}

// CountViewsSince returns the view count for a video since the cutoff.
func (db *DB) CountViewsSince(ctx context.Context, videoID int64, since time.Time) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM views WHERE video_id = ? AND viewed_at >= ?`,
		videoID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count views since: %w", err)
	}
	return count, nil
}

// TopVideosSince ranks videos by raw view count since the cutoff. A zero
// since ranks over the full log. Ties break on ascending video ID.
func (db *DB) TopVideosSince(ctx context.Context, since time.Time, k int) ([]models.VideoCount, error) {
	query := `SELECT video_id, COUNT(*) AS cnt FROM views`
	args := []any{}
	if !since.IsZero() {
		query += ` WHERE viewed_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY video_id ORDER BY cnt DESC, video_id ASC LIMIT ?`
	args = append(args, k)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top videos raw: %w", err)
	}
	defer rows.Close()

	var out []models.VideoCount
	for rows.Next() {
		var vc models.VideoCount
		if err := rows.Scan(&vc.VideoID, &vc.Views); err != nil {
			return nil, fmt.Errorf("scan top video: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// ListViewsPage returns up to limit view rows with id > lastID in primary
// key order, optionally restricted to a window. Keyset pagination keeps
// rebuild scans cheap regardless of table size.
func (db *DB) ListViewsPage(ctx context.Context, lastID int64, limit int, since time.Time) ([]models.ViewRow, error) {
	query := `SELECT id, video_id, COALESCE(user_id, ''), viewed_at
		FROM views WHERE id > ?`
	args := []any{lastID}
	if !since.IsZero() {
		query += ` AND viewed_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list views page: %w", err)
	}
	defer rows.Close()

	var out []models.ViewRow
	for rows.Next() {
		var row models.ViewRow
		if err := rows.Scan(&row.ID, &row.VideoID, &row.UserID, &row.ViewedAt); err != nil {
			return nil, fmt.Errorf("scan view row: %w", err)
		}
		row.ViewedAt = row.ViewedAt.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListVideoViewsPage is ListViewsPage restricted to one video.
func (db *DB) ListVideoViewsPage(ctx context.Context, videoID, lastID int64, limit int, since time.Time) ([]models.ViewRow, error) {
	query := `SELECT id, video_id, COALESCE(user_id, ''), viewed_at
		FROM views WHERE id > ? AND video_id = ?`
	args := []any{lastID, videoID}
	if !since.IsZero() {
		query += ` AND viewed_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list video views page: %w", err)
	}
	defer rows.Close()

	var out []models.ViewRow
	for rows.Next() {
		var row models.ViewRow
		if err := rows.Scan(&row.ID, &row.VideoID, &row.UserID, &row.ViewedAt); err != nil {
			return nil, fmt.Errorf("scan view row: %w", err)
		}
		row.ViewedAt = row.ViewedAt.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// AllTimeTotals returns the unwindowed view count for every video that
// has at least one view. Used to recompute monotonic totals on rebuild.
func (db *DB) AllTimeTotals(ctx context.Context) ([]models.VideoCount, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id, COUNT(*) FROM views GROUP BY video_id ORDER BY video_id`)
	if err != nil {
		return nil, fmt.Errorf("all-time totals: %w", err)
	}
	defer rows.Close()

	var out []models.VideoCount
	for rows.Next() {
		var vc models.VideoCount
		if err := rows.Scan(&vc.VideoID, &vc.Views); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// SampleVideoIDs returns up to n distinct video IDs in random order.
// Used by consistency verification.
func (db *DB) SampleVideoIDs(ctx context.Context, n int) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id FROM (SELECT DISTINCT video_id FROM views)
		 ORDER BY random() LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("sample video ids: %w", err)
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
