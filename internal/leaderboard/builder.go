// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package leaderboard materializes ranked top-video snapshots from live
// view counts on a schedule.
//
// Each timeframe is built completely in a staging slot and then published
// atomically, so readers always see a complete snapshot. Timeframes fail
// independently; a failed one keeps serving its previous snapshot.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
	"github.com/tomtom215/vantage/internal/models"
	"github.com/tomtom215/vantage/internal/store"
)

// DefaultRetention is the sliding-window age pruned after each refresh.
const DefaultRetention = 30 * 24 * time.Hour

// SnapshotName is the published snapshot slot for a timeframe.
func SnapshotName(tf models.Timeframe) string {
	return "top:" + string(tf)
}

// Catalog lists the videos to score. Backed by the durable video catalog.
type Catalog interface {
	ListVideoIDs(ctx context.Context) ([]int64, error)
}

// Counter reads and prunes per-video view counts.
type Counter interface {
	GetCount(ctx context.Context, videoID int64, window time.Duration) (int64, error)
	CleanupOldViews(ctx context.Context, videoID int64, maxAge time.Duration) (int64, error)
}

// Builder refreshes leaderboard snapshots for every timeframe.
type Builder struct {
	catalog   Catalog
	counter   Counter
	snapshots store.SnapshotStore
	retention time.Duration
}

// New creates a Builder. A zero retention uses DefaultRetention.
func New(catalog Catalog, counter Counter, snapshots store.SnapshotStore, retention time.Duration) *Builder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Builder{
		catalog:   catalog,
		counter:   counter,
		snapshots: snapshots,
		retention: retention,
	}
}

// Refresh rebuilds and publishes every timeframe, then prunes aged window
// members for all catalog videos. Timeframe failures are isolated: the
// rest still refresh, and the joined error is returned for logging.
func (b *Builder) Refresh(ctx context.Context) error {
	started := time.Now()
	defer func() {
		metrics.LeaderboardRefreshDuration.Observe(time.Since(started).Seconds())
	}()

	ids, err := b.catalog.ListVideoIDs(ctx)
	if err != nil {
		return fmt.Errorf("list catalog videos: %w", err)
	}

	var errs []error
	for _, tf := range models.Timeframes() {
		err := b.refreshTimeframe(ctx, tf, ids)
		metrics.RecordLeaderboardRefresh(string(tf), err)
		if err != nil {
			// Previous snapshot for this timeframe stays servable.
			logging.Error().Err(err).
				Str("timeframe", string(tf)).
				Msg("leaderboard refresh failed")
			errs = append(errs, fmt.Errorf("timeframe %s: %w", tf, err))
			continue
		}
	}

	b.cleanupViews(ctx, ids)
	return errors.Join(errs...)
}

// refreshTimeframe builds one timeframe's full ranked set, writes it to
// staging, and publishes it atomically. If the staged swap fails, the
// published slot is overwritten directly with the same complete set.
func (b *Builder) refreshTimeframe(ctx context.Context, tf models.Timeframe, ids []int64) error {
	entries, err := b.score(ctx, tf, ids)
	if err != nil {
		return err
	}

	name := SnapshotName(tf)
	if err := b.snapshots.WriteStaging(ctx, name, entries); err != nil {
		return fmt.Errorf("write staging: %w", err)
	}
	if err := b.snapshots.Publish(ctx, name); err != nil {
		logging.Warn().Err(err).
			Str("timeframe", string(tf)).
			Msg("staged publish failed, overwriting directly")
		if err := b.snapshots.PublishDirect(ctx, name, entries); err != nil {
			return fmt.Errorf("publish direct: %w", err)
		}
	}

	logging.Debug().
		Str("timeframe", string(tf)).
		Int("entries", len(entries)).
		Msg("leaderboard published")
	return nil
}

// score ranks the catalog for one timeframe. Zero-score videos are
// dropped; an empty catalog yields a valid empty snapshot.
func (b *Builder) score(ctx context.Context, tf models.Timeframe, ids []int64) ([]models.LeaderboardEntry, error) {
	entries := make([]models.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		views, err := b.counter.GetCount(ctx, id, tf.Window())
		if err != nil {
			return nil, fmt.Errorf("score video %d: %w", id, err)
		}
		if views <= 0 {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{VideoID: id, Views: views})
	}

	// Descending views; ascending video ID as the deterministic tie-break.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Views != entries[j].Views {
			return entries[i].Views > entries[j].Views
		}
		return entries[i].VideoID < entries[j].VideoID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// cleanupViews prunes aged window members for every video. Failures are
// logged and skipped; pruning catches up next cycle.
func (b *Builder) cleanupViews(ctx context.Context, ids []int64) {
	var removed int64
	for _, id := range ids {
		n, err := b.counter.CleanupOldViews(ctx, id, b.retention)
		if err != nil {
			logging.Warn().Err(err).
				Int64("video_id", id).
				Msg("view cleanup failed")
			continue
		}
		removed += n
	}
	if removed > 0 {
		logging.Info().Int64("removed", removed).Msg("pruned aged view members")
	}
}
