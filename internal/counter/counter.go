// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package counter implements real-time view counting on the fast store.
//
// Each view updates two structures: a monotonic per-video total that only
// ever grows, and a timestamp-scored member set that serves sliding-window
// queries and is pruned by age. An optional event-ID guard with a TTL
// drops bus redeliveries.
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
	"github.com/tomtom215/vantage/internal/store"
)

// DefaultDedupTTL is how long processed event IDs are remembered.
const DefaultDedupTTL = 7 * 24 * time.Hour

// ViewSetKey is the member set holding a video's recent views.
func ViewSetKey(videoID int64) string {
	return fmt.Sprintf("video:%d:views", videoID)
}

// TotalKey is the monotonic all-time counter for a video.
func TotalKey(videoID int64) string {
	return fmt.Sprintf("video:%d:total", videoID)
}

// dedupKey guards one processed event ID.
func dedupKey(eventID string) string {
	return "processed:" + eventID
}

// ViewCounter records and reads per-video view counts.
type ViewCounter struct {
	counters store.CounterStore
	members  store.MemberStore
	cache    store.CacheStore
	dedupTTL time.Duration
	now      func() time.Time
}

// Option configures a ViewCounter.
type Option func(*ViewCounter)

// WithDedupTTL overrides the dedup guard TTL.
func WithDedupTTL(ttl time.Duration) Option {
	return func(vc *ViewCounter) { vc.dedupTTL = ttl }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(vc *ViewCounter) { vc.now = now }
}

// New creates a ViewCounter over the given fast-store capabilities.
func New(counters store.CounterStore, members store.MemberStore, cache store.CacheStore, opts ...Option) *ViewCounter {
	vc := &ViewCounter{
		counters: counters,
		members:  members,
		cache:    cache,
		dedupTTL: DefaultDedupTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

// RecordView records one view at viewedAt. A non-empty eventID enables the
// dedup guard: a remembered ID is skipped and reported as not recorded,
// with no error.
//
// The member insert lands before the total increment, so a crash between
// the two loses at most the increment; it never double counts.
func (vc *ViewCounter) RecordView(ctx context.Context, videoID int64, userID, eventID string, viewedAt time.Time) (bool, error) {
	if viewedAt.IsZero() {
		viewedAt = vc.now()
	}
	viewedAt = viewedAt.UTC()

	if eventID != "" {
		seen, err := vc.cache.Exists(ctx, dedupKey(eventID))
		if err != nil {
			return false, fmt.Errorf("check dedup guard: %w", err)
		}
		if seen {
			metrics.DuplicateEvents.Inc()
			logging.Debug().
				Str("event_id", eventID).
				Int64("video_id", videoID).
				Msg("duplicate view event skipped")
			return false, nil
		}
	}

	member := MemberID(userID, viewedAt)
	if err := vc.members.AddMember(ctx, ViewSetKey(videoID), member, viewedAt); err != nil {
		return false, fmt.Errorf("add view member: %w", err)
	}
	if _, err := vc.counters.Incr(ctx, TotalKey(videoID), 1); err != nil {
		return false, fmt.Errorf("increment total: %w", err)
	}

	if eventID != "" {
		if err := vc.cache.Set(ctx, dedupKey(eventID), []byte{1}, vc.dedupTTL); err != nil {
			// The view is already counted; a failed guard write only
			// risks a duplicate on redelivery, which at-least-once
			// delivery permits.
			logging.Warn().Err(err).
				Str("event_id", eventID).
				Msg("failed to set dedup guard")
		}
	}

	metrics.ViewsRecorded.Inc()
	return true, nil
}

// Seen reports whether eventID is remembered by the dedup guard. An
// empty ID is never seen.
func (vc *ViewCounter) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	seen, err := vc.cache.Exists(ctx, dedupKey(eventID))
	if err != nil {
		return false, fmt.Errorf("check dedup guard: %w", err)
	}
	return seen, nil
}

// GetCount returns the view count for a video. A zero window means the
// monotonic all-time total; otherwise the count within [now-window, now].
// A video with no recorded views counts as zero.
func (vc *ViewCounter) GetCount(ctx context.Context, videoID int64, window time.Duration) (int64, error) {
	if window == 0 {
		total, err := vc.counters.GetCounter(ctx, TotalKey(videoID))
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("get total: %w", err)
		}
		return total, nil
	}

	now := vc.now().UTC()
	count, err := vc.members.CountRange(ctx, ViewSetKey(videoID), now.Add(-window), now)
	if err != nil {
		return 0, fmt.Errorf("count windowed views: %w", err)
	}
	return count, nil
}

// CleanupOldViews prunes window members older than maxAge. The monotonic
// total is untouched. Returns the number of members removed.
func (vc *ViewCounter) CleanupOldViews(ctx context.Context, videoID int64, maxAge time.Duration) (int64, error) {
	cutoff := vc.now().UTC().Add(-maxAge)
	removed, err := vc.members.RemoveOlderThan(ctx, ViewSetKey(videoID), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old views: %w", err)
	}
	return removed, nil
}

// MemberID builds the member identity for one view. Anonymous views get
// an "anon" marker; the timestamp suffix keeps distinct views distinct.
// Rebuilds derive the same identity from raw rows, which is what makes
// member re-inserts idempotent.
func MemberID(userID string, viewedAt time.Time) string {
	if userID == "" {
		userID = "anon"
	}
	return fmt.Sprintf("%s:%d", userID, viewedAt.UnixNano())
}
