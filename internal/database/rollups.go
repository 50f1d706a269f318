// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vantage/internal/models"
)

// AggregateHour materializes the hourly rollup for the bucket starting at
// bucketStart. Re-running a bucket overwrites it (late events win).
func (db *DB) AggregateHour(ctx context.Context, bucketStart time.Time) (int64, error) {
	start := bucketStart.UTC().Truncate(time.Hour)
	end := start.Add(time.Hour)

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO video_stats (video_id, bucket_start, granularity, view_count)
		SELECT video_id, ?, 'hour', COUNT(*)
		FROM views WHERE viewed_at >= ? AND viewed_at < ?
		GROUP BY video_id
		ON CONFLICT (video_id, bucket_start, granularity)
		DO UPDATE SET view_count = excluded.view_count`,
		start, start, end)
	if err != nil {
		return 0, fmt.Errorf("aggregate hour %s: %w", start.Format(time.RFC3339), err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// BackfillHour is AggregateHour with skip-if-present semantics, so a
// backfill never clobbers buckets the scheduler already materialized.
func (db *DB) BackfillHour(ctx context.Context, bucketStart time.Time) (int64, error) {
	start := bucketStart.UTC().Truncate(time.Hour)
	end := start.Add(time.Hour)

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO video_stats (video_id, bucket_start, granularity, view_count)
		SELECT video_id, ?, 'hour', COUNT(*)
		FROM views WHERE viewed_at >= ? AND viewed_at < ?
		GROUP BY video_id
		ON CONFLICT (video_id, bucket_start, granularity) DO NOTHING`,
		start, start, end)
	if err != nil {
		return 0, fmt.Errorf("backfill hour %s: %w", start.Format(time.RFC3339), err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AggregateDay materializes the daily rollup for the day starting at
// dayStart from that day's hourly rollups.
func (db *DB) AggregateDay(ctx context.Context, dayStart time.Time) (int64, error) {
	start := dayStart.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO video_stats (video_id, bucket_start, granularity, view_count)
		SELECT video_id, ?, 'day', SUM(view_count)
		FROM video_stats
		WHERE granularity = 'hour' AND bucket_start >= ? AND bucket_start < ?
		GROUP BY video_id
		ON CONFLICT (video_id, bucket_start, granularity)
		DO UPDATE SET view_count = excluded.view_count`,
		start, start, end)
	if err != nil {
		return 0, fmt.Errorf("aggregate day %s: %w", start.Format("2006-01-02"), err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteRollupsBefore removes rollup buckets older than the cutoff and
// returns the number of rows deleted.
func (db *DB) DeleteRollupsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM video_stats WHERE bucket_start < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old rollups: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RollupWindowCount sums rollup buckets of the given granularity for one
// video since the cutoff. A zero since sums all buckets.
func (db *DB) RollupWindowCount(ctx context.Context, videoID int64, granularity string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(view_count), 0) FROM video_stats
		WHERE video_id = ? AND granularity = ?`
	args := []any{videoID, granularity}
	if !since.IsZero() {
		query += ` AND bucket_start >= ?`
		args = append(args, since.UTC())
	}

	var count int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("rollup window count: %w", err)
	}
	return count, nil
}

// TopVideosFromRollups ranks videos by summed rollup counts of the given
// granularity since the cutoff. Ties break on ascending video ID.
func (db *DB) TopVideosFromRollups(ctx context.Context, granularity string, since time.Time, k int) ([]models.VideoCount, error) {
	query := `SELECT video_id, SUM(view_count) AS cnt FROM video_stats
		WHERE granularity = ?`
	args := []any{granularity}
	if !since.IsZero() {
		query += ` AND bucket_start >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY video_id ORDER BY cnt DESC, video_id ASC LIMIT ?`
	args = append(args, k)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top videos from rollups: %w", err)
	}
	defer rows.Close()

	var out []models.VideoCount
	for rows.Next() {
		var vc models.VideoCount
		if err := rows.Scan(&vc.VideoID, &vc.Views); err != nil {
			return nil, fmt.Errorf("scan rollup top: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}
