// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/vantage/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndCountViews(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	views := []struct {
		videoID int64
		userID  string
		at      time.Time
	}{
		{1, "alice", now.Add(-2 * time.Hour)},
		{1, "bob", now.Add(-time.Hour)},
		{1, "", now.Add(-30 * time.Hour)},
		{2, "alice", now.Add(-10 * time.Minute)},
	}
	for _, v := range views {
		if err := db.InsertView(ctx, v.videoID, v.userID, v.at); err != nil {
			t.Fatalf("insert view: %v", err)
		}
	}

	total, err := db.CountViews(ctx, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 views, got %d", total)
	}

	recent, err := db.CountViewsSince(ctx, 1, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if recent != 2 {
		t.Fatalf("expected 2 recent views, got %d", recent)
	}
}

func TestTopVideosSince(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Video 2 leads, videos 1 and 3 tie.
	for i := 0; i < 3; i++ {
		if err := db.InsertView(ctx, 2, "u", now.Add(-time.Hour)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := db.InsertView(ctx, 1, "u", now.Add(-time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertView(ctx, 3, "u", now.Add(-time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	top, err := db.TopVideosSince(ctx, time.Time{}, 10)
	if err != nil {
		t.Fatalf("top videos: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 videos, got %d", len(top))
	}
	if top[0].VideoID != 2 || top[1].VideoID != 1 || top[2].VideoID != 3 {
		t.Fatalf("wrong order: %+v", top)
	}
}

func TestListViewsPageKeysetPagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := db.InsertView(ctx, 1, "u", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page1, err := db.ListViewsPage(ctx, 0, 3, time.Time{})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(page1))
	}

	page2, err := db.ListViewsPage(ctx, page1[len(page1)-1].ID, 3, time.Time{})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page2))
	}
	if page2[0].ID <= page1[2].ID {
		t.Fatalf("pages overlap: %d <= %d", page2[0].ID, page1[2].ID)
	}
}

func TestHourlyRollupAggregation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bucket := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := db.InsertView(ctx, 1, "u", bucket.Add(time.Duration(i*10)*time.Minute)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Outside the bucket.
	if err := db.InsertView(ctx, 1, "u", bucket.Add(2*time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := db.AggregateHour(ctx, bucket); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	count, err := db.RollupWindowCount(ctx, 1, models.GranularityHour, time.Time{})
	if err != nil {
		t.Fatalf("window count: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 views in the bucket, got %d", count)
	}

	// Late event arrives; re-aggregation overwrites the bucket.
	if err := db.InsertView(ctx, 1, "late", bucket.Add(55*time.Minute)); err != nil {
		t.Fatalf("insert late: %v", err)
	}
	if _, err := db.AggregateHour(ctx, bucket); err != nil {
		t.Fatalf("re-aggregate: %v", err)
	}
	count, err = db.RollupWindowCount(ctx, 1, models.GranularityHour, time.Time{})
	if err != nil {
		t.Fatalf("window count: %v", err)
	}
	if count != 5 {
		t.Fatalf("late event lost: %d", count)
	}
}

func TestBackfillHourSkipsExistingBuckets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bucket := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	if err := db.InsertView(ctx, 1, "u", bucket.Add(time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.AggregateHour(ctx, bucket); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// More raw rows land, but the backfill must not clobber the bucket.
	if err := db.InsertView(ctx, 1, "u", bucket.Add(2*time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.BackfillHour(ctx, bucket); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	count, err := db.RollupWindowCount(ctx, 1, models.GranularityHour, time.Time{})
	if err != nil {
		t.Fatalf("window count: %v", err)
	}
	if count != 1 {
		t.Fatalf("backfill clobbered an existing bucket: %d", count)
	}
}

func TestDailyRollupFromHourlyBuckets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	for hour := 0; hour < 3; hour++ {
		at := day.Add(time.Duration(hour) * time.Hour)
		for i := 0; i < 2; i++ {
			if err := db.InsertView(ctx, 1, "u", at.Add(time.Minute)); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		if _, err := db.AggregateHour(ctx, at); err != nil {
			t.Fatalf("aggregate hour: %v", err)
		}
	}

	if _, err := db.AggregateDay(ctx, day); err != nil {
		t.Fatalf("aggregate day: %v", err)
	}

	count, err := db.RollupWindowCount(ctx, 1, models.GranularityDay, time.Time{})
	if err != nil {
		t.Fatalf("window count: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6 views in the daily bucket, got %d", count)
	}

	top, err := db.TopVideosFromRollups(ctx, models.GranularityDay, time.Time{}, 10)
	if err != nil {
		t.Fatalf("top from rollups: %v", err)
	}
	if len(top) != 1 || top[0].Views != 6 {
		t.Fatalf("wrong rollup ranking: %+v", top)
	}
}

func TestDeleteRollupsBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	old := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	for _, bucket := range []time.Time{old, recent} {
		if err := db.InsertView(ctx, 1, "u", bucket.Add(time.Minute)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := db.AggregateHour(ctx, bucket); err != nil {
			t.Fatalf("aggregate: %v", err)
		}
	}

	deleted, err := db.DeleteRollupsBefore(ctx, recent.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted bucket, got %d", deleted)
	}

	count, err := db.RollupWindowCount(ctx, 1, models.GranularityHour, time.Time{})
	if err != nil {
		t.Fatalf("window count: %v", err)
	}
	if count != 1 {
		t.Fatalf("recent bucket lost: %d", count)
	}
}

func TestApplyPositionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Partial watch.
	err := db.ApplyPosition(ctx, models.PositionRecord{
		UserID: "alice", VideoID: 1,
		PositionSeconds: 300, DurationSeconds: 600, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	h, err := db.GetHistory(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if h.Completed || h.WatchCount != 1 || h.ProgressPercent != 50 {
		t.Fatalf("wrong partial state: %+v", h)
	}

	// Crossing 90% completes the watch.
	err = db.ApplyPosition(ctx, models.PositionRecord{
		UserID: "alice", VideoID: 1,
		PositionSeconds: 580, DurationSeconds: 600, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	h, err = db.GetHistory(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !h.Completed {
		t.Fatalf("expected completed: %+v", h)
	}

	// Scrubbing back below 90% clears the flag again; completed always
	// tracks the current progress.
	err = db.ApplyPosition(ctx, models.PositionRecord{
		UserID: "alice", VideoID: 1,
		PositionSeconds: 400, DurationSeconds: 600, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	h, _ = db.GetHistory(ctx, "alice", 1)
	if h.Completed || h.WatchCount != 1 {
		t.Fatalf("completed flag stuck after scrub-back: %+v", h)
	}
	if h.ProgressPercent >= 90 {
		t.Fatalf("wrong progress after scrub-back: %+v", h)
	}

	// Finish again, then restarting from the top is a rewatch.
	err = db.ApplyPosition(ctx, models.PositionRecord{
		UserID: "alice", VideoID: 1,
		PositionSeconds: 580, DurationSeconds: 600, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	err = db.ApplyPosition(ctx, models.PositionRecord{
		UserID: "alice", VideoID: 1,
		PositionSeconds: 30, DurationSeconds: 600, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	h, _ = db.GetHistory(ctx, "alice", 1)
	if h.Completed || h.WatchCount != 2 {
		t.Fatalf("restart not counted as rewatch: %+v", h)
	}
}

func TestMarkCompletedCreatesMissingRecord(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.MarkCompleted(ctx, "alice", 9, 600); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	h, err := db.GetHistory(ctx, "alice", 9)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !h.Completed || h.ProgressPercent != 100 || h.PositionSeconds != 600 {
		t.Fatalf("wrong completed record: %+v", h)
	}
}

func TestListUserHistoryMostRecentFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := int64(1); i <= 3; i++ {
		err := db.ApplyPosition(ctx, models.PositionRecord{
			UserID: "alice", VideoID: i,
			PositionSeconds: 10, DurationSeconds: 600,
			UpdatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	history, err := db.ListUserHistory(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("limit ignored: %d", len(history))
	}
	if history[0].VideoID != 3 || history[1].VideoID != 2 {
		t.Fatalf("wrong order: %+v", history)
	}
}

func TestDeleteHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.DeleteHistory(ctx, "alice", 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err := db.ApplyPosition(ctx, models.PositionRecord{
		UserID: "alice", VideoID: 1,
		PositionSeconds: 10, DurationSeconds: 600, UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := db.DeleteHistory(ctx, "alice", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetHistory(ctx, "alice", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record survived delete: %v", err)
	}
}

func TestCatalogUpsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	v := models.Video{ID: 1, Title: "First", MediaType: "video", DurationSeconds: 600, UploadedAt: now}
	if err := db.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertVideo(ctx, models.Video{ID: 2, Title: "Second", MediaType: "video", UploadedAt: now}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Redelivered upload overwrites.
	v.Title = "First (remastered)"
	if err := db.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := db.GetVideo(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "First (remastered)" {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}

	ids, err := db.ListVideoIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("wrong ids: %v", ids)
	}

	if _, err := db.GetVideo(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
