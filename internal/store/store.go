// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package store defines the fast-store capability interfaces and their
// BadgerDB implementation.
//
// Components depend on the narrow capability they need (CounterStore,
// MemberStore, SnapshotStore, CacheStore) rather than on a concrete
// client, so tests can inject fakes and failure modes per capability.
package store

import (
	"context"
	"time"

	"github.com/tomtom215/vantage/internal/models"
)

// Member is one element of a time-scored member set.
type Member struct {
	// ID is the member identity within its set.
	ID string

	// Score is the member's timestamp. Sets are ordered by Score.
	Score time.Time
}

// CounterStore provides monotonic named counters.
type CounterStore interface {
	// Incr atomically adds delta to the counter and returns the new value.
	// A missing counter starts at zero.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// GetCounter returns the counter value. Missing counters return
	// ErrNotFound.
	GetCounter(ctx context.Context, key string) (int64, error)

	// SetCounter replaces the counter value.
	SetCounter(ctx context.Context, key string, value int64) error
}

// MemberStore provides timestamp-scored member sets: sliding view windows
// and the position flush queue.
type MemberStore interface {
	// AddMember inserts or re-scores a member. Re-adding an existing
	// member moves it to the new score.
	AddMember(ctx context.Context, set, member string, score time.Time) error

	// CountRange counts members with from <= Score <= to.
	CountRange(ctx context.Context, set string, from, to time.Time) (int64, error)

	// RemoveOlderThan deletes members with Score < cutoff and returns
	// the number removed.
	RemoveOlderThan(ctx context.Context, set string, cutoff time.Time) (int64, error)

	// RemoveMember deletes a single member. Removing a missing member
	// is not an error.
	RemoveMember(ctx context.Context, set, member string) error

	// OldestMembers returns up to limit members ordered by ascending Score.
	OldestMembers(ctx context.Context, set string, limit int) ([]Member, error)

	// ClearSet removes every member of the set.
	ClearSet(ctx context.Context, set string) error
}

// SnapshotStore provides staged, atomically published leaderboard snapshots.
type SnapshotStore interface {
	// WriteStaging writes the full candidate snapshot to the staging slot.
	WriteStaging(ctx context.Context, name string, entries []models.LeaderboardEntry) error

	// Publish atomically moves the staging snapshot into the published
	// slot. Readers observe either the old or the new snapshot, never a
	// partial one. A missing staging slot returns ErrNotFound.
	Publish(ctx context.Context, name string) error

	// PublishDirect overwrites the published slot with entries, bypassing
	// staging. Fallback path when the staged swap fails.
	PublishDirect(ctx context.Context, name string, entries []models.LeaderboardEntry) error

	// ReadTop returns up to k entries of the published snapshot. A name
	// that has never been published returns an empty slice, not an error.
	ReadTop(ctx context.Context, name string, k int) ([]models.LeaderboardEntry, error)
}

// CacheStore provides TTL'd opaque values: dedup guards and the position
// cache.
type CacheStore interface {
	// Set writes the value. A zero ttl stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// Wiper can destroy all fast-store data. Used only by disaster-recovery
// rebuilds behind explicit confirmation.
type Wiper interface {
	ClearAll(ctx context.Context) error
}
