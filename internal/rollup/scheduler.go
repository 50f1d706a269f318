// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package rollup pre-aggregates the raw view log into hourly and daily
// buckets so windowed reads stay cheap as the log grows.
//
// A minute-resolution poll loop drives three jobs off in-memory
// watermarks: hourly aggregation of completed hours, daily aggregation of
// completed days (from the hourly buckets), and a periodic retention
// sweep. Watermarks are not persisted; re-running a bucket after a
// restart is harmless because aggregation upserts by natural key.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
)

const day = 24 * time.Hour

// Defaults for retention and cleanup cadence.
const (
	DefaultRetentionDays   = 90
	DefaultCleanupInterval = 7 * day
)

// Aggregator is the durable-store surface the scheduler drives.
type Aggregator interface {
	AggregateHour(ctx context.Context, bucketStart time.Time) (int64, error)
	AggregateDay(ctx context.Context, dayStart time.Time) (int64, error)
	BackfillHour(ctx context.Context, bucketStart time.Time) (int64, error)
	DeleteRollupsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler decides on every tick which buckets are complete and not yet
// materialized, and aggregates them.
type Scheduler struct {
	db              Aggregator
	retentionDays   int
	cleanupInterval time.Duration
	now             func() time.Time

	mu          sync.Mutex
	hourMark    time.Time // start of the last fully aggregated hour + 1h
	dayMark     time.Time
	lastCleanup time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetentionDays overrides how long rollup buckets are kept.
func WithRetentionDays(days int) Option {
	return func(s *Scheduler) { s.retentionDays = days }
}

// WithCleanupInterval overrides the retention sweep cadence.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.cleanupInterval = d }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. Watermarks start at the current hour and day,
// so history is not re-aggregated on startup; Backfill covers gaps.
func New(db Aggregator, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:              db,
		retentionDays:   DefaultRetentionDays,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	now := s.now().UTC()
	s.hourMark = now.Truncate(time.Hour)
	s.dayMark = now.Truncate(day)
	s.lastCleanup = now
	return s
}

// Tick runs all due jobs for the given instant. Job failures are logged
// and isolated: a failed bucket keeps its watermark and is retried on the
// next tick. The joined error is returned for the caller's log line.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	errs = append(errs, s.runHourly(ctx, now)...)
	errs = append(errs, s.runDaily(ctx, now)...)
	if err := s.runCleanup(ctx, now); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runHourly aggregates every completed hour past the watermark. Multiple
// missed hours (long tick gaps) are caught up in order.
func (s *Scheduler) runHourly(ctx context.Context, now time.Time) []error {
	currentHour := now.Truncate(time.Hour)
	var errs []error
	for h := s.hourMark; h.Before(currentHour); h = h.Add(time.Hour) {
		rows, err := s.db.AggregateHour(ctx, h)
		metrics.RecordRollupRun("hourly", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("hourly rollup %s: %w", h.Format(time.RFC3339), err))
			// Keep the watermark; this bucket retries next tick.
			return errs
		}
		logging.Info().
			Time("bucket", h).
			Int64("rows", rows).
			Msg("hourly rollup complete")
		s.hourMark = h.Add(time.Hour)
	}
	return errs
}

// runDaily aggregates every completed day past the watermark, built from
// that day's hourly buckets.
func (s *Scheduler) runDaily(ctx context.Context, now time.Time) []error {
	currentDay := now.Truncate(day)
	var errs []error
	for d := s.dayMark; d.Before(currentDay); d = d.Add(day) {
		// The day's final hourly bucket must land first.
		if s.hourMark.Before(d.Add(day)) {
			break
		}
		rows, err := s.db.AggregateDay(ctx, d)
		metrics.RecordRollupRun("daily", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("daily rollup %s: %w", d.Format("2006-01-02"), err))
			return errs
		}
		logging.Info().
			Time("bucket", d).
			Int64("rows", rows).
			Msg("daily rollup complete")
		s.dayMark = d.Add(day)
	}
	return errs
}

// runCleanup deletes rollup buckets past retention on the configured
// cadence.
func (s *Scheduler) runCleanup(ctx context.Context, now time.Time) error {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return nil
	}
	cutoff := now.Add(-time.Duration(s.retentionDays) * day)
	deleted, err := s.db.DeleteRollupsBefore(ctx, cutoff)
	metrics.RecordRollupRun("cleanup", err)
	if err != nil {
		return fmt.Errorf("rollup cleanup: %w", err)
	}
	s.lastCleanup = now
	logging.Info().
		Time("cutoff", cutoff).
		Int64("deleted", deleted).
		Msg("rollup retention sweep complete")
	return nil
}

// Backfill materializes hourly buckets for the past N days with
// skip-if-present semantics, so existing buckets are never clobbered.
// Returns the number of rows inserted. Operator-invoked.
func (s *Scheduler) Backfill(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("backfill days must be positive")
	}
	end := s.now().UTC().Truncate(time.Hour)
	start := end.Add(-time.Duration(days) * day)

	var inserted int64
	for h := start; h.Before(end); h = h.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		rows, err := s.db.BackfillHour(ctx, h)
		if err != nil {
			metrics.RecordRollupRun("backfill", err)
			return inserted, fmt.Errorf("backfill bucket %s: %w", h.Format(time.RFC3339), err)
		}
		inserted += rows
	}
	metrics.RecordRollupRun("backfill", nil)
	logging.Info().
		Int("days", days).
		Int64("rows", inserted).
		Msg("rollup backfill complete")
	return inserted, nil
}
