// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/vantage/internal/models"
)

func newTestStore(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return b
}

func TestCounterIncrAndGet(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()

	if _, err := b.GetCounter(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing counter, got %v", err)
	}

	v, err := b.Incr(ctx, "views", 1)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected 1 after first incr, got %d", v)
	}

	v, err = b.Incr(ctx, "views", 5)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if v != 6 {
		t.Fatalf("expected 6, got %d", v)
	}

	got, err := b.GetCounter(ctx, "views")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}

	if err := b.SetCounter(ctx, "views", 42); err != nil {
		t.Fatalf("set counter: %v", err)
	}
	got, err = b.GetCounter(ctx, "views")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42 after set, got %d", got)
	}
}

func TestMemberSetCountRange(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		member := string(rune('a' + i))
		if err := b.AddMember(ctx, "set", member, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("add member %s: %v", member, err)
		}
	}

	count, err := b.CountRange(ctx, "set", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("count range: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 members in range, got %d", count)
	}

	count, err = b.CountRange(ctx, "set", base.Add(10*time.Hour), base.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("count range: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty range, got %d", count)
	}
}

func TestMemberReAddReplacesScore(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if err := b.AddMember(ctx, "set", "m1", base); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddMember(ctx, "set", "m1", base.Add(time.Hour)); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	// Old slot must be gone; the member exists exactly once.
	count, err := b.CountRange(ctx, "set", base.Add(-time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("count range: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 member after re-add, got %d", count)
	}

	members, err := b.OldestMembers(ctx, "set", 10)
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if len(members) != 1 || !members[0].Score.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected single member at new score, got %+v", members)
	}
}

func TestRemoveOlderThan(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		member := string(rune('a' + i))
		if err := b.AddMember(ctx, "set", member, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	removed, err := b.RemoveOlderThan(ctx, "set", base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("remove older than: %v", err)
	}
	if removed != 5 {
		t.Fatalf("expected 5 removed, got %d", removed)
	}

	count, err := b.CountRange(ctx, "set", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 remaining, got %d", count)
	}

	// Removed members are fully gone, including their index entries.
	if err := b.AddMember(ctx, "set", "a", base); err != nil {
		t.Fatalf("re-add removed member: %v", err)
	}
}

func TestOldestMembersOrderAndLimit(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order; iteration must come back score-ascending.
	scores := []int{3, 0, 4, 1, 2}
	for _, s := range scores {
		member := string(rune('a' + s))
		if err := b.AddMember(ctx, "set", member, base.Add(time.Duration(s)*time.Minute)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	members, err := b.OldestMembers(ctx, "set", 3)
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	for i, m := range members {
		want := base.Add(time.Duration(i) * time.Minute)
		if !m.Score.Equal(want) {
			t.Errorf("member %d: expected score %v, got %v", i, want, m.Score)
		}
	}
}

func TestClearSet(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := b.AddMember(ctx, "a", "m1", now); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddMember(ctx, "b", "m1", now); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := b.ClearSet(ctx, "a"); err != nil {
		t.Fatalf("clear set: %v", err)
	}

	count, err := b.CountRange(ctx, "a", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cleared set, got %d members", count)
	}

	// Other sets untouched.
	count, err = b.CountRange(ctx, "b", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected set b intact, got %d members", count)
	}
}

func TestSnapshotStagedPublish(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()

	entries := []models.LeaderboardEntry{
		{Rank: 1, VideoID: 7, Views: 100},
		{Rank: 2, VideoID: 3, Views: 50},
	}

	// Staging alone must not be visible to readers.
	if err := b.WriteStaging(ctx, "top:day", entries); err != nil {
		t.Fatalf("write staging: %v", err)
	}
	got, err := b.ReadTop(ctx, "top:day", 10)
	if err != nil {
		t.Fatalf("read top: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("staging leaked to readers: %+v", got)
	}

	if err := b.Publish(ctx, "top:day"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err = b.ReadTop(ctx, "top:day", 10)
	if err != nil {
		t.Fatalf("read top: %v", err)
	}
	if len(got) != 2 || got[0].VideoID != 7 {
		t.Fatalf("unexpected published snapshot: %+v", got)
	}

	// Publishing again without fresh staging fails; the published
	// snapshot survives.
	if err := b.Publish(ctx, "top:day"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double publish, got %v", err)
	}
	got, err = b.ReadTop(ctx, "top:day", 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("published snapshot lost: %v %+v", err, got)
	}
}

func TestReadTopTruncatesToK(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()

	entries := make([]models.LeaderboardEntry, 20)
	for i := range entries {
		entries[i] = models.LeaderboardEntry{Rank: i + 1, VideoID: int64(i), Views: int64(100 - i)}
	}
	if err := b.PublishDirect(ctx, "top:week", entries); err != nil {
		t.Fatalf("publish direct: %v", err)
	}

	got, err := b.ReadTop(ctx, "top:week", 5)
	if err != nil {
		t.Fatalf("read top: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
}

func TestReadTopMissingSnapshotIsEmpty(t *testing.T) {
	b := newTestStore(t)

	got, err := b.ReadTop(context.Background(), "top:never", 10)
	if err != nil {
		t.Fatalf("expected empty answer for missing snapshot, got error %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %+v", got)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := b.Set(ctx, "k1", []byte("value"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, err := b.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "value" {
		t.Fatalf("expected value, got %q", data)
	}

	exists, err := b.Exists(ctx, "k1")
	if err != nil || !exists {
		t.Fatalf("expected exists, got %v %v", exists, err)
	}

	if err := b.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	exists, err = b.Exists(ctx, "k1")
	if err != nil || exists {
		t.Fatalf("expected deleted, got %v %v", exists, err)
	}
}

func TestCacheTTLExpires(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()

	if err := b.Set(ctx, "short", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if _, err := b.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired key, got %v", err)
	}
}

func TestClearAll(t *testing.T) {
	b := newTestStore(t)
	ctx := context.Background()

	if _, err := b.Incr(ctx, "c1", 10); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := b.Set(ctx, "k1", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := b.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	if _, err := b.GetCounter(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected counter gone, got %v", err)
	}
	if _, err := b.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cache key gone, got %v", err)
	}
}

func TestCanceledContextIsUnavailable(t *testing.T) {
	b := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Incr(ctx, "c", 1); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := b.GetCounter(ctx, "c"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
