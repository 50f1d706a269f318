// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package position implements the write-through playback-position cache.
//
// Writes land in the fast store immediately (7-day TTL, dirty flag) and
// a queue entry schedules the durable flush; reads hit the cache first
// and fall back to watch history. The flusher drains the queue in
// batches, skipping entries whose cached record is already clean.
package position

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vantage/internal/database"
	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
	"github.com/tomtom215/vantage/internal/models"
	"github.com/tomtom215/vantage/internal/store"
)

// DefaultTTL is how long cached positions live without updates.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultFlushBatchSize bounds one flush batch.
const DefaultFlushBatchSize = 100

// flushQueueSet is the member set ordering pending flushes by write time.
const flushQueueSet = "watch:flushq"

// cacheKey is the cached position slot for one (user, video) pair.
func cacheKey(userID string, videoID int64) string {
	return fmt.Sprintf("watch:pos:%s:%d", userID, videoID)
}

// queueMember encodes the pair as a queue entry.
func queueMember(userID string, videoID int64) string {
	return fmt.Sprintf("%s:%d", userID, videoID)
}

// parseQueueMember inverts queueMember. The video ID is the suffix after
// the last colon since user IDs may contain colons.
func parseQueueMember(member string) (string, int64, error) {
	i := strings.LastIndexByte(member, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed queue member %q", member)
	}
	videoID, err := strconv.ParseInt(member[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed queue member %q: %w", member, err)
	}
	return member[:i], videoID, nil
}

// HistoryStore is the durable surface positions flush into. Satisfied by
// *database.DB.
type HistoryStore interface {
	ApplyPosition(ctx context.Context, rec models.PositionRecord) error
	GetHistory(ctx context.Context, userID string, videoID int64) (models.WatchHistory, error)
	DeleteHistory(ctx context.Context, userID string, videoID int64) error
	MarkCompleted(ctx context.Context, userID string, videoID int64, durationSeconds float64) error
}

// Cache is the write-through position cache.
type Cache struct {
	cache   store.CacheStore
	members store.MemberStore
	history HistoryStore
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the cached-position TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache.
func New(cache store.CacheStore, members store.MemberStore, history HistoryStore, opts ...Option) *Cache {
	c := &Cache{
		cache:   cache,
		members: members,
		history: history,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordPosition caches a playback position as dirty and enqueues it for
// the next flush. Repeated writes for the same pair collapse into one
// queue entry at the latest write time.
func (c *Cache) RecordPosition(ctx context.Context, userID string, videoID int64, positionSeconds, durationSeconds float64) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}
	if positionSeconds < 0 {
		return fmt.Errorf("position must be non-negative")
	}

	now := c.now().UTC()
	rec := models.PositionRecord{
		UserID:          userID,
		VideoID:         videoID,
		PositionSeconds: positionSeconds,
		DurationSeconds: durationSeconds,
		UpdatedAt:       now,
		Dirty:           true,
	}
	if err := c.writeRecord(ctx, rec); err != nil {
		return err
	}
	if err := c.members.AddMember(ctx, flushQueueSet, queueMember(userID, videoID), now); err != nil {
		return fmt.Errorf("enqueue position flush: %w", err)
	}
	return nil
}

// ReadPosition returns the current position for a pair: cache first, then
// watch history (filling the cache as clean), then store.ErrNotFound.
func (c *Cache) ReadPosition(ctx context.Context, userID string, videoID int64) (models.PositionRecord, error) {
	rec, err := c.readRecord(ctx, userID, videoID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.PositionRecord{}, err
	}

	h, err := c.history.GetHistory(ctx, userID, videoID)
	if errors.Is(err, database.ErrNotFound) {
		return models.PositionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return models.PositionRecord{}, fmt.Errorf("read watch history: %w", err)
	}

	// Cache fill from durable state is clean: nothing new to flush.
	rec = models.PositionRecord{
		UserID:          h.UserID,
		VideoID:         h.VideoID,
		PositionSeconds: h.PositionSeconds,
		DurationSeconds: h.DurationSeconds,
		UpdatedAt:       h.LastWatchedAt,
		Dirty:           false,
	}
	if err := c.writeRecord(ctx, rec); err != nil {
		logging.Warn().Err(err).
			Str("user_id", userID).
			Int64("video_id", videoID).
			Msg("position cache fill failed")
	}
	return rec, nil
}

// MarkCompleted force-completes a watch durably and refreshes the cache.
func (c *Cache) MarkCompleted(ctx context.Context, userID string, videoID int64, durationSeconds float64) error {
	if err := c.history.MarkCompleted(ctx, userID, videoID, durationSeconds); err != nil {
		return err
	}
	rec := models.PositionRecord{
		UserID:          userID,
		VideoID:         videoID,
		PositionSeconds: durationSeconds,
		DurationSeconds: durationSeconds,
		UpdatedAt:       c.now().UTC(),
		Dirty:           false,
	}
	return c.writeRecord(ctx, rec)
}

// Delete removes a pair from history, cache, and the flush queue.
func (c *Cache) Delete(ctx context.Context, userID string, videoID int64) error {
	if err := c.history.DeleteHistory(ctx, userID, videoID); err != nil &&
		!errors.Is(err, database.ErrNotFound) {
		return err
	}
	if err := c.cache.Delete(ctx, cacheKey(userID, videoID)); err != nil {
		return fmt.Errorf("delete cached position: %w", err)
	}
	if err := c.members.RemoveMember(ctx, flushQueueSet, queueMember(userID, videoID)); err != nil {
		return fmt.Errorf("dequeue position: %w", err)
	}
	return nil
}

// Flush drains up to batchSize queue entries into watch history. Entries
// whose cached record expired or is already clean are dropped. A failed
// upsert keeps its entry queued for the next run, as does a write that
// lands while its entry is mid-flush. Returns the number of positions
// flushed.
func (c *Cache) Flush(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultFlushBatchSize
	}
	started := time.Now()

	pending, err := c.members.OldestMembers(ctx, flushQueueSet, batchSize)
	if err != nil {
		return 0, fmt.Errorf("read flush queue: %w", err)
	}

	flushed := 0
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			break
		}
		userID, videoID, err := parseQueueMember(m.ID)
		if err != nil {
			logging.Warn().Err(err).Msg("dropping malformed flush queue entry")
			c.dequeue(ctx, m.ID)
			continue
		}

		rec, err := c.readRecord(ctx, userID, videoID)
		if errors.Is(err, store.ErrNotFound) {
			// Expired or deleted since enqueue; nothing to flush.
			c.dequeue(ctx, m.ID)
			continue
		}
		if err != nil {
			logging.Warn().Err(err).
				Str("user_id", userID).
				Int64("video_id", videoID).
				Msg("flush read failed, keeping entry queued")
			continue
		}
		if !rec.Dirty {
			c.dequeue(ctx, m.ID)
			continue
		}

		if err := c.history.ApplyPosition(ctx, rec); err != nil {
			logging.Error().Err(err).
				Str("user_id", userID).
				Int64("video_id", videoID).
				Msg("position flush failed, keeping entry queued")
			continue
		}

		flushed++

		// Re-read before marking clean: a write that landed during the
		// upsert must stay dirty and queued or it would be lost.
		latest, err := c.readRecord(ctx, userID, videoID)
		if errors.Is(err, store.ErrNotFound) {
			c.dequeue(ctx, m.ID)
			continue
		}
		if err != nil {
			logging.Warn().Err(err).
				Str("user_id", userID).
				Int64("video_id", videoID).
				Msg("flush re-read failed, keeping entry queued")
			continue
		}
		if latest.UpdatedAt.After(rec.UpdatedAt) {
			continue
		}

		latest.Dirty = false
		if err := c.writeRecord(ctx, latest); err != nil {
			// Durable write landed; a dirty-looking cache entry only
			// causes one redundant flush.
			logging.Warn().Err(err).
				Str("user_id", userID).
				Int64("video_id", videoID).
				Msg("failed to mark cached position clean")
		}
		c.dequeue(ctx, m.ID)
	}

	metrics.ObserveFlushBatch(started, flushed)
	if flushed > 0 {
		logging.Debug().
			Int("flushed", flushed).
			Int("pending", len(pending)).
			Msg("position flush batch complete")
	}
	return flushed, nil
}

// dequeue removes a queue entry, logging instead of failing; a leaked
// entry is retried and dropped as clean next run.
func (c *Cache) dequeue(ctx context.Context, member string) {
	if err := c.members.RemoveMember(ctx, flushQueueSet, member); err != nil {
		logging.Warn().Err(err).Str("member", member).Msg("failed to dequeue flush entry")
	}
}

func (c *Cache) writeRecord(ctx context.Context, rec models.PositionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal position record: %w", err)
	}
	if err := c.cache.Set(ctx, cacheKey(rec.UserID, rec.VideoID), data, c.ttl); err != nil {
		return fmt.Errorf("cache position: %w", err)
	}
	return nil
}

func (c *Cache) readRecord(ctx context.Context, userID string, videoID int64) (models.PositionRecord, error) {
	data, err := c.cache.Get(ctx, cacheKey(userID, videoID))
	if err != nil {
		return models.PositionRecord{}, err
	}
	var rec models.PositionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.PositionRecord{}, fmt.Errorf("unmarshal position record: %w", err)
	}
	return rec, nil
}
