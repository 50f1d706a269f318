// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package fallback serves analytics reads through a three-level cascade:
// fast store (leaderboard snapshots, live counters) -> durable rollups ->
// raw view log.
//
// Fallback triggers only when a level is unreachable; an empty answer
// from a healthy level is final. Every answer is tagged with the level
// that served it so callers can surface degraded freshness. A circuit
// breaker in front of the fast store turns repeated failures into
// immediate fallbacks instead of repeated timeouts.
package fallback

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vantage/internal/leaderboard"
	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
	"github.com/tomtom215/vantage/internal/models"
	"github.com/tomtom215/vantage/internal/store"
)

// Serving levels, in cascade order.
const (
	SourceLeaderboard = "leaderboard"
	SourceCounter     = "counter"
	SourceRollup      = "rollup"
	SourceRaw         = "raw"
)

// TopKResult is a ranked answer tagged with its serving level.
type TopKResult struct {
	Entries []models.LeaderboardEntry `json:"entries"`
	Source  string                    `json:"source"`
}

// CountResult is a count answer tagged with its serving level.
type CountResult struct {
	Views  int64  `json:"views"`
	Source string `json:"source"`
}

// SnapshotReader reads published leaderboard snapshots.
type SnapshotReader interface {
	ReadTop(ctx context.Context, name string, k int) ([]models.LeaderboardEntry, error)
}

// CounterReader reads live per-video counts.
type CounterReader interface {
	GetCount(ctx context.Context, videoID int64, window time.Duration) (int64, error)
}

// RollupReader reads pre-aggregated buckets. Satisfied by *database.DB.
type RollupReader interface {
	TopVideosFromRollups(ctx context.Context, granularity string, since time.Time, k int) ([]models.VideoCount, error)
	RollupWindowCount(ctx context.Context, videoID int64, granularity string, since time.Time) (int64, error)
}

// RawReader scans the raw view log. Satisfied by *database.DB.
type RawReader interface {
	TopVideosSince(ctx context.Context, since time.Time, k int) ([]models.VideoCount, error)
	CountViews(ctx context.Context, videoID int64) (int64, error)
	CountViewsSince(ctx context.Context, videoID int64, since time.Time) (int64, error)
}

// Config holds cascade tuning.
type Config struct {
	// Timeout bounds each fast-store read. Exceeding it counts as
	// store-unavailable.
	Timeout time.Duration

	// BreakerThreshold is the consecutive-failure count that opens the
	// fast-store breaker.
	BreakerThreshold uint32

	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          2 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Reader answers top-K and count queries through the cascade.
type Reader struct {
	snapshots SnapshotReader
	counter   CounterReader
	rollups   RollupReader
	raw       RawReader
	breaker   *gobreaker.CircuitBreaker[any]
	timeout   time.Duration
	now       func() time.Time
}

// New creates a Reader over the three levels.
func New(snapshots SnapshotReader, counter CounterReader, rollups RollupReader, raw RawReader, cfg Config) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = DefaultConfig().BreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultConfig().BreakerCooldown
	}

	settings := gobreaker.Settings{
		Name:    "fast-store",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Reader{
		snapshots: snapshots,
		counter:   counter,
		rollups:   rollups,
		raw:       raw,
		breaker:   gobreaker.NewCircuitBreaker[any](settings),
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// fast runs a fast-store read behind the breaker with a hard timeout. An
// open breaker or an expired deadline both surface as store-unavailable.
func (r *Reader) fast(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		type outcome struct {
			v   any
			err error
		}
		ch := make(chan outcome, 1)
		go func() {
			v, err := fn(cctx)
			ch <- outcome{v, err}
		}()

		select {
		case <-cctx.Done():
			return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, cctx.Err())
		case o := <-ch:
			return o.v, o.err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return result, nil
}

// GetTopK returns the top k videos for a timeframe through the cascade.
func (r *Reader) GetTopK(ctx context.Context, tf models.Timeframe, k int) (*TopKResult, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("invalid timeframe %q", tf)
	}
	var causes []error

	// Level 1: published leaderboard snapshot. An empty snapshot from a
	// healthy store is a final answer.
	v, err := r.fast(ctx, func(ctx context.Context) (any, error) {
		return r.snapshots.ReadTop(ctx, leaderboard.SnapshotName(tf), k)
	})
	if err == nil {
		metrics.RecordCascadeRead(SourceLeaderboard)
		return &TopKResult{Entries: v.([]models.LeaderboardEntry), Source: SourceLeaderboard}, nil
	}
	causes = append(causes, err)
	logging.Warn().Err(err).Str("timeframe", string(tf)).Msg("leaderboard level unavailable, trying rollups")

	// Level 2: pre-aggregated rollups.
	granularity, since := r.rollupWindow(tf.Window())
	counts, err := r.rollups.TopVideosFromRollups(ctx, granularity, since, k)
	if err == nil {
		metrics.RecordCascadeRead(SourceRollup)
		return &TopKResult{Entries: rank(counts), Source: SourceRollup}, nil
	}
	causes = append(causes, err)
	logging.Warn().Err(err).Str("timeframe", string(tf)).Msg("rollup level unavailable, trying raw scan")

	// Level 3: raw log scan.
	var rawSince time.Time
	if w := tf.Window(); w > 0 {
		rawSince = r.now().UTC().Add(-w)
	}
	counts, err = r.raw.TopVideosSince(ctx, rawSince, k)
	if err == nil {
		metrics.RecordCascadeRead(SourceRaw)
		return &TopKResult{Entries: rank(counts), Source: SourceRaw}, nil
	}
	causes = append(causes, err)

	metrics.CascadeExhausted.Inc()
	return nil, &ServiceUnavailableError{Op: "get top videos", Causes: causes}
}

// GetCount returns a video's view count through the cascade. A zero
// window means all-time.
func (r *Reader) GetCount(ctx context.Context, videoID int64, window time.Duration) (*CountResult, error) {
	var causes []error

	// Level 1: live counters.
	v, err := r.fast(ctx, func(ctx context.Context) (any, error) {
		return r.counter.GetCount(ctx, videoID, window)
	})
	if err == nil {
		metrics.RecordCascadeRead(SourceCounter)
		return &CountResult{Views: v.(int64), Source: SourceCounter}, nil
	}
	causes = append(causes, err)
	logging.Warn().Err(err).Int64("video_id", videoID).Msg("counter level unavailable, trying rollups")

	// Level 2: rollups.
	granularity, since := r.rollupWindow(window)
	views, err := r.rollups.RollupWindowCount(ctx, videoID, granularity, since)
	if err == nil {
		metrics.RecordCascadeRead(SourceRollup)
		return &CountResult{Views: views, Source: SourceRollup}, nil
	}
	causes = append(causes, err)
	logging.Warn().Err(err).Int64("video_id", videoID).Msg("rollup level unavailable, trying raw scan")

	// Level 3: raw log scan.
	if window == 0 {
		views, err = r.raw.CountViews(ctx, videoID)
	} else {
		views, err = r.raw.CountViewsSince(ctx, videoID, r.now().UTC().Add(-window))
	}
	if err == nil {
		metrics.RecordCascadeRead(SourceRaw)
		return &CountResult{Views: views, Source: SourceRaw}, nil
	}
	causes = append(causes, err)

	metrics.CascadeExhausted.Inc()
	return nil, &ServiceUnavailableError{Op: fmt.Sprintf("get count for video %d", videoID), Causes: causes}
}

// rollupWindow picks the rollup granularity and cutoff for a window.
// Short windows read hourly buckets; longer ones read daily buckets. A
// zero window (all-time) sums every daily bucket, which is a knowingly
// degraded answer bounded by rollup retention.
func (r *Reader) rollupWindow(window time.Duration) (string, time.Time) {
	if window == 0 {
		return models.GranularityDay, time.Time{}
	}
	since := r.now().UTC().Add(-window)
	if window <= 24*time.Hour {
		return models.GranularityHour, since
	}
	return models.GranularityDay, since
}

// rank converts ordered counts into ranked leaderboard entries.
func rank(counts []models.VideoCount) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(counts))
	for i, vc := range counts {
		entries[i] = models.LeaderboardEntry{Rank: i + 1, VideoID: vc.VideoID, Views: vc.Views}
	}
	return entries
}
