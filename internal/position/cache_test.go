// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package position

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/vantage/internal/database"
	"github.com/tomtom215/vantage/internal/models"
	"github.com/tomtom215/vantage/internal/store"
)

// fakeHistory is an in-memory durable store keyed by (user, video).
type fakeHistory struct {
	rows      map[string]models.WatchHistory
	applied   []models.PositionRecord
	completed []string
	failApply bool
	onApply   func(models.PositionRecord)
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rows: make(map[string]models.WatchHistory)}
}

func historyKey(userID string, videoID int64) string {
	return fmt.Sprintf("%s:%d", userID, videoID)
}

func (f *fakeHistory) ApplyPosition(ctx context.Context, rec models.PositionRecord) error {
	if f.failApply {
		return errors.New("duckdb locked")
	}
	f.applied = append(f.applied, rec)
	f.rows[historyKey(rec.UserID, rec.VideoID)] = models.WatchHistory{
		UserID:          rec.UserID,
		VideoID:         rec.VideoID,
		PositionSeconds: rec.PositionSeconds,
		DurationSeconds: rec.DurationSeconds,
		LastWatchedAt:   rec.UpdatedAt,
	}
	if f.onApply != nil {
		f.onApply(rec)
	}
	return nil
}

func (f *fakeHistory) GetHistory(ctx context.Context, userID string, videoID int64) (models.WatchHistory, error) {
	h, ok := f.rows[historyKey(userID, videoID)]
	if !ok {
		return models.WatchHistory{}, database.ErrNotFound
	}
	return h, nil
}

func (f *fakeHistory) DeleteHistory(ctx context.Context, userID string, videoID int64) error {
	key := historyKey(userID, videoID)
	if _, ok := f.rows[key]; !ok {
		return database.ErrNotFound
	}
	delete(f.rows, key)
	return nil
}

func (f *fakeHistory) MarkCompleted(ctx context.Context, userID string, videoID int64, durationSeconds float64) error {
	f.completed = append(f.completed, historyKey(userID, videoID))
	f.rows[historyKey(userID, videoID)] = models.WatchHistory{
		UserID:          userID,
		VideoID:         videoID,
		PositionSeconds: durationSeconds,
		DurationSeconds: durationSeconds,
		Completed:       true,
	}
	return nil
}

func newTestCache(t *testing.T, history *fakeHistory) (*Cache, *store.Badger) {
	t.Helper()
	b, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return New(b, b, history), b
}

func TestRecordAndReadPosition(t *testing.T) {
	c, _ := newTestCache(t, newFakeHistory())
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "alice", 1, 120.5, 600); err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, err := c.ReadPosition(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.PositionSeconds != 120.5 || rec.DurationSeconds != 600 {
		t.Fatalf("wrong record: %+v", rec)
	}
	if !rec.Dirty {
		t.Fatal("fresh write should be dirty")
	}
}

func TestRecordPositionValidation(t *testing.T) {
	c, _ := newTestCache(t, newFakeHistory())
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "", 1, 10, 600); err == nil {
		t.Fatal("empty user ID should be rejected")
	}
	if err := c.RecordPosition(ctx, "alice", 1, -5, 600); err == nil {
		t.Fatal("negative position should be rejected")
	}
}

func TestReadPositionFillsFromHistory(t *testing.T) {
	history := newFakeHistory()
	history.rows[historyKey("alice", 1)] = models.WatchHistory{
		UserID:          "alice",
		VideoID:         1,
		PositionSeconds: 300,
		DurationSeconds: 600,
		LastWatchedAt:   time.Now().UTC().Add(-time.Hour),
	}
	c, b := newTestCache(t, history)
	ctx := context.Background()

	rec, err := c.ReadPosition(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.PositionSeconds != 300 {
		t.Fatalf("wrong position: %+v", rec)
	}
	if rec.Dirty {
		t.Fatal("history fill must be clean")
	}

	// The fill stays cached and a flush has nothing to write back.
	if _, err := b.Get(ctx, cacheKey("alice", 1)); err != nil {
		t.Fatalf("expected cached fill: %v", err)
	}
	flushed, err := c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 0 || len(history.applied) != 0 {
		t.Fatalf("clean fill was flushed: %d applied %d", flushed, len(history.applied))
	}
}

func TestReadPositionUnknownPair(t *testing.T) {
	c, _ := newTestCache(t, newFakeHistory())

	_, err := c.ReadPosition(context.Background(), "alice", 404)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFlushDrainsDirtyEntries(t *testing.T) {
	history := newFakeHistory()
	c, _ := newTestCache(t, history)
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "alice", 1, 100, 600); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.RecordPosition(ctx, "bob", 2, 50, 300); err != nil {
		t.Fatalf("record: %v", err)
	}

	flushed, err := c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 2 || len(history.applied) != 2 {
		t.Fatalf("expected 2 flushed, got %d (%d applied)", flushed, len(history.applied))
	}

	// Cached records are clean now; a second flush is a no-op.
	rec, err := c.ReadPosition(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Dirty {
		t.Fatal("flushed record should be clean")
	}
	flushed, err = c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if flushed != 0 {
		t.Fatalf("second flush re-wrote entries: %d", flushed)
	}
}

func TestFlushCollapsesRepeatedWrites(t *testing.T) {
	history := newFakeHistory()
	c, _ := newTestCache(t, history)
	ctx := context.Background()

	// Scrubbing writes many positions for one pair; only the latest lands.
	for _, pos := range []float64{10, 20, 30} {
		if err := c.RecordPosition(ctx, "alice", 1, pos, 600); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	flushed, err := c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 1 || len(history.applied) != 1 {
		t.Fatalf("expected 1 flush, got %d (%d applied)", flushed, len(history.applied))
	}
	if history.applied[0].PositionSeconds != 30 {
		t.Fatalf("expected latest position 30, got %f", history.applied[0].PositionSeconds)
	}
}

func TestFlushKeepsFailedEntriesQueued(t *testing.T) {
	history := newFakeHistory()
	history.failApply = true
	c, _ := newTestCache(t, history)
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "alice", 1, 100, 600); err != nil {
		t.Fatalf("record: %v", err)
	}

	flushed, err := c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 0 {
		t.Fatalf("failed apply counted as flushed: %d", flushed)
	}

	// The store recovers; the entry is still queued and drains.
	history.failApply = false
	flushed, err = c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if flushed != 1 {
		t.Fatalf("entry lost after failed flush: %d", flushed)
	}
}

func TestFlushKeepsRacingWriteQueued(t *testing.T) {
	history := newFakeHistory()
	b, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	// Each write gets a strictly later timestamp so a mid-flush write is
	// distinguishable from the record being flushed.
	base := time.Now().UTC()
	ticks := 0
	c := New(b, b, history, WithClock(func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}))
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "alice", 1, 100, 600); err != nil {
		t.Fatalf("record: %v", err)
	}

	// A new position lands while the first one is being upserted.
	history.onApply = func(models.PositionRecord) {
		history.onApply = nil
		if err := c.RecordPosition(ctx, "alice", 1, 999, 600); err != nil {
			t.Fatalf("racing record: %v", err)
		}
	}

	flushed, err := c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 1 {
		t.Fatalf("expected 1 flushed, got %d", flushed)
	}

	// The racing write survives in the cache, dirty and queued.
	rec, err := c.ReadPosition(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.PositionSeconds != 999 || !rec.Dirty {
		t.Fatalf("racing write lost: %+v", rec)
	}

	flushed, err = c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if flushed != 1 {
		t.Fatalf("racing write never drained: %d", flushed)
	}
	last := history.applied[len(history.applied)-1]
	if last.PositionSeconds != 999 {
		t.Fatalf("wrong flushed position: %+v", last)
	}
}

func TestFlushRespectsBatchSize(t *testing.T) {
	history := newFakeHistory()
	c, _ := newTestCache(t, history)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := c.RecordPosition(ctx, "alice", i, 10, 600); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	flushed, err := c.Flush(ctx, 2)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 2 {
		t.Fatalf("expected batch of 2, got %d", flushed)
	}
	flushed, err = c.Flush(ctx, 10)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if flushed != 3 {
		t.Fatalf("expected remaining 3, got %d", flushed)
	}
}

func TestMarkCompletedWritesThroughAndCleans(t *testing.T) {
	history := newFakeHistory()
	c, _ := newTestCache(t, history)
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "alice", 1, 500, 600); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.MarkCompleted(ctx, "alice", 1, 600); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if len(history.completed) != 1 {
		t.Fatalf("durable completion missing: %v", history.completed)
	}

	rec, err := c.ReadPosition(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.PositionSeconds != 600 || rec.Dirty {
		t.Fatalf("completion should refresh the cache clean: %+v", rec)
	}
}

func TestDeleteRemovesEverywhere(t *testing.T) {
	history := newFakeHistory()
	c, b := newTestCache(t, history)
	ctx := context.Background()

	if err := c.RecordPosition(ctx, "alice", 1, 100, 600); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := c.Flush(ctx, 10); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := c.Delete(ctx, "alice", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := c.ReadPosition(ctx, "alice", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, ok := history.rows[historyKey("alice", 1)]; ok {
		t.Fatal("durable row survived delete")
	}
	if _, err := b.Get(ctx, cacheKey("alice", 1)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cached position survived delete: %v", err)
	}
}

func TestDeleteUnknownPairIsIdempotent(t *testing.T) {
	c, _ := newTestCache(t, newFakeHistory())

	if err := c.Delete(context.Background(), "alice", 404); err != nil {
		t.Fatalf("delete of missing pair should succeed: %v", err)
	}
}
