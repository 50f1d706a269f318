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
	"time"

	"github.com/tomtom215/vantage/internal/models"
)

const (
	// completeThresholdPercent marks a watch as completed once progress
	// reaches it.
	completeThresholdPercent = 90.0

	// restartCutoffSeconds: a new position below this on a completed
	// video counts as a rewatch.
	restartCutoffSeconds = 60.0
)

// ApplyPosition upserts a flushed playback position into watch history.
//
// Progress is derived from position/duration and the completed flag
// always tracks it: at or above 90% the watch is completed, below it is
// not. A position under 60 seconds on a previously completed video is a
// restart: watch_count increments and completed resets.
func (db *DB) ApplyPosition(ctx context.Context, rec models.PositionRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply position: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		prevCompleted  bool
		prevWatchCount int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT completed, watch_count FROM watch_history
		 WHERE user_id = ? AND video_id = ?`,
		rec.UserID, rec.VideoID).Scan(&prevCompleted, &prevWatchCount)

	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("read watch history: %w", err)
	}

	progress := 0.0
	if rec.DurationSeconds > 0 {
		progress = rec.PositionSeconds / rec.DurationSeconds * 100
		if progress > 100 {
			progress = 100
		}
	}
	completed := progress >= completeThresholdPercent

	watchedAt := rec.UpdatedAt.UTC()
	if watchedAt.IsZero() {
		watchedAt = time.Now().UTC()
	}

	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO watch_history
			 (user_id, video_id, position_seconds, duration_seconds,
			  progress_percent, completed, watch_count, last_watched_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			rec.UserID, rec.VideoID, rec.PositionSeconds, rec.DurationSeconds,
			progress, completed, watchedAt)
		if err != nil {
			return fmt.Errorf("insert watch history: %w", err)
		}
		return tx.Commit()
	}

	watchCount := prevWatchCount
	if prevCompleted && rec.PositionSeconds < restartCutoffSeconds {
		// Rewatch from the top.
		watchCount++
		completed = false
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE watch_history SET
			position_seconds = ?, duration_seconds = ?, progress_percent = ?,
			completed = ?, watch_count = ?, last_watched_at = ?
		 WHERE user_id = ? AND video_id = ?`,
		rec.PositionSeconds, rec.DurationSeconds, progress,
		completed, watchCount, watchedAt,
		rec.UserID, rec.VideoID)
	if err != nil {
		return fmt.Errorf("update watch history: %w", err)
	}
	return tx.Commit()
}

// GetHistory returns the watch record for one (user, video) pair.
func (db *DB) GetHistory(ctx context.Context, userID string, videoID int64) (models.WatchHistory, error) {
	var h models.WatchHistory
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, video_id, position_seconds, duration_seconds,
		        progress_percent, completed, watch_count, last_watched_at
		 FROM watch_history WHERE user_id = ? AND video_id = ?`,
		userID, videoID).Scan(
		&h.UserID, &h.VideoID, &h.PositionSeconds, &h.DurationSeconds,
		&h.ProgressPercent, &h.Completed, &h.WatchCount, &h.LastWatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WatchHistory{}, ErrNotFound
	}
	if err != nil {
		return models.WatchHistory{}, fmt.Errorf("get watch history: %w", err)
	}
	h.LastWatchedAt = h.LastWatchedAt.UTC()
	return h, nil
}

// ListUserHistory returns a user's watch records, most recent first.
func (db *DB) ListUserHistory(ctx context.Context, userID string, limit int) ([]models.WatchHistory, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, video_id, position_seconds, duration_seconds,
		        progress_percent, completed, watch_count, last_watched_at
		 FROM watch_history WHERE user_id = ?
		 ORDER BY last_watched_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list watch history: %w", err)
	}
	defer rows.Close()

	var out []models.WatchHistory
	for rows.Next() {
		var h models.WatchHistory
		if err := rows.Scan(
			&h.UserID, &h.VideoID, &h.PositionSeconds, &h.DurationSeconds,
			&h.ProgressPercent, &h.Completed, &h.WatchCount, &h.LastWatchedAt); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		h.LastWatchedAt = h.LastWatchedAt.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHistory removes one watch record. Deleting a missing record
// returns ErrNotFound.
func (db *DB) DeleteHistory(ctx context.Context, userID string, videoID int64) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM watch_history WHERE user_id = ? AND video_id = ?`,
		userID, videoID)
	if err != nil {
		return fmt.Errorf("delete watch history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted force-completes a watch record: position snaps to the
// duration and progress to 100%. Missing records are created.
func (db *DB) MarkCompleted(ctx context.Context, userID string, videoID int64, durationSeconds float64) error {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE watch_history SET
			position_seconds = ?, duration_seconds = ?,
			progress_percent = 100, completed = TRUE, last_watched_at = ?
		 WHERE user_id = ? AND video_id = ?`,
		durationSeconds, durationSeconds, now, userID, videoID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO watch_history
		 (user_id, video_id, position_seconds, duration_seconds,
		  progress_percent, completed, watch_count, last_watched_at)
		 VALUES (?, ?, ?, ?, 100, TRUE, 1, ?)`,
		userID, videoID, durationSeconds, durationSeconds, now)
	if err != nil {
		return fmt.Errorf("insert completed history: %w", err)
	}
	return nil
}
