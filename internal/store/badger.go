// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vantage/internal/models"
)

// Key prefixes. Member sets use a data key ordered by score plus an index
// key per member so re-adding a member replaces its previous score.
//
//	c:<key>                     counter, 8-byte big-endian value
//	m:<set>:<score 8B BE>:<id>  member data, ordered by score
//	mi:<set>:<id>               member index -> score bytes
//	lb:<name>                   published snapshot, JSON
//	lbs:<name>                  staging snapshot, JSON
//	k:<key>                     cache value, optional TTL
const (
	prefixCounter  = "c:"
	prefixMember   = "m:"
	prefixMemberIx = "mi:"
	prefixSnapshot = "lb:"
	prefixStaging  = "lbs:"
	prefixCache    = "k:"
)

// maxTxnRetries bounds optimistic transaction retries on conflict.
const maxTxnRetries = 3

// Badger implements every fast-store capability on a single BadgerDB.
type Badger struct {
	db *badger.DB
}

// Compile-time capability checks.
var (
	_ CounterStore  = (*Badger)(nil)
	_ MemberStore   = (*Badger)(nil)
	_ SnapshotStore = (*Badger)(nil)
	_ CacheStore    = (*Badger)(nil)
	_ Wiper         = (*Badger)(nil)
)

// Open opens (or creates) a BadgerDB at path.
func Open(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Badger{db: db}, nil
}

// OpenInMemory opens an in-memory BadgerDB. Used in tests.
func OpenInMemory() (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// mapErr normalizes badger errors onto the store error taxonomy.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// update runs fn in a read-write transaction, retrying on optimistic
// conflicts.
func (b *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return err
}

func scoreBytes(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return buf[:]
}

func scoreFromBytes(b []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(b))).UTC()
}

func counterKey(key string) []byte   { return []byte(prefixCounter + key) }
func cacheKey(key string) []byte     { return []byte(prefixCache + key) }
func snapshotKey(name string) []byte { return []byte(prefixSnapshot + name) }
func stagingKey(name string) []byte  { return []byte(prefixStaging + name) }

func memberSetPrefix(set string) []byte {
	return []byte(prefixMember + set + ":")
}

func memberKey(set string, score time.Time, member string) []byte {
	p := memberSetPrefix(set)
	key := make([]byte, 0, len(p)+8+1+len(member))
	key = append(key, p...)
	key = append(key, scoreBytes(score)...)
	key = append(key, ':')
	key = append(key, member...)
	return key
}

func memberIndexKey(set, member string) []byte {
	return []byte(prefixMemberIx + set + ":" + member)
}

// parseMemberKey extracts score and member ID from a data key.
func parseMemberKey(set string, key []byte) (time.Time, string, bool) {
	p := memberSetPrefix(set)
	if len(key) < len(p)+9 || !bytes.HasPrefix(key, p) {
		return time.Time{}, "", false
	}
	score := scoreFromBytes(key[len(p) : len(p)+8])
	return score, string(key[len(p)+9:]), true
}

// Incr implements CounterStore.
func (b *Badger) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	var value int64
	err := b.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(counterKey(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			value = 0
		case err != nil:
			return err
		default:
			if err := item.Value(func(v []byte) error {
				value = int64(binary.BigEndian.Uint64(v))
				return nil
			}); err != nil {
				return err
			}
		}
		value += delta
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(value))
		return txn.Set(counterKey(key), buf[:])
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return value, nil
}

// GetCounter implements CounterStore.
func (b *Badger) GetCounter(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var value int64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(counterKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = int64(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return value, nil
}

// SetCounter implements CounterStore.
func (b *Badger) SetCounter(ctx context.Context, key string, value int64) error {
	err := b.update(ctx, func(txn *badger.Txn) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(value))
		return txn.Set(counterKey(key), buf[:])
	})
	return mapErr(err)
}

// AddMember implements MemberStore. Re-adding an existing member moves it
// to the new score within a single transaction.
func (b *Badger) AddMember(ctx context.Context, set, member string, score time.Time) error {
	err := b.update(ctx, func(txn *badger.Txn) error {
		ixKey := memberIndexKey(set, member)
		item, err := txn.Get(ixKey)
		if err == nil {
			var old []byte
			if err := item.Value(func(v []byte) error {
				old = append([]byte(nil), v...)
				return nil
			}); err != nil {
				return err
			}
			if err := txn.Delete(memberKey(set, scoreFromBytes(old), member)); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(memberKey(set, score, member), nil); err != nil {
			return err
		}
		return txn.Set(ixKey, scoreBytes(score))
	})
	return mapErr(err)
}

// CountRange implements MemberStore.
func (b *Badger) CountRange(ctx context.Context, set string, from, to time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	prefix := memberSetPrefix(set)
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), scoreBytes(from)...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			score, _, ok := parseMemberKey(set, it.Item().Key())
			if !ok {
				continue
			}
			if score.After(to) {
				break
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// RemoveOlderThan implements MemberStore.
func (b *Badger) RemoveOlderThan(ctx context.Context, set string, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	prefix := memberSetPrefix(set)
	var stale [][]byte
	var members []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			score, member, ok := parseMemberKey(set, it.Item().Key())
			if !ok {
				continue
			}
			if !score.Before(cutoff) {
				break
			}
			stale = append(stale, it.Item().KeyCopy(nil))
			members = append(members, member)
		}
		return nil
	})
	if err != nil {
		return 0, mapErr(err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for i, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, mapErr(err)
		}
		if err := wb.Delete(memberIndexKey(set, members[i])); err != nil {
			return 0, mapErr(err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, mapErr(err)
	}
	return int64(len(stale)), nil
}

// RemoveMember implements MemberStore.
func (b *Badger) RemoveMember(ctx context.Context, set, member string) error {
	err := b.update(ctx, func(txn *badger.Txn) error {
		ixKey := memberIndexKey(set, member)
		item, err := txn.Get(ixKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var score []byte
		if err := item.Value(func(v []byte) error {
			score = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}
		if err := txn.Delete(memberKey(set, scoreFromBytes(score), member)); err != nil {
			return err
		}
		return txn.Delete(ixKey)
	})
	return mapErr(err)
}

// OldestMembers implements MemberStore.
func (b *Badger) OldestMembers(ctx context.Context, set string, limit int) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	prefix := memberSetPrefix(set)
	var out []Member
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			score, member, ok := parseMemberKey(set, it.Item().Key())
			if !ok {
				continue
			}
			out = append(out, Member{ID: member, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// ClearSet implements MemberStore.
func (b *Badger) ClearSet(ctx context.Context, set string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	err := b.db.DropPrefix(memberSetPrefix(set), []byte(prefixMemberIx+set+":"))
	return mapErr(err)
}

// WriteStaging implements SnapshotStore.
func (b *Badger) WriteStaging(ctx context.Context, name string, entries []models.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}
	return mapErr(b.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(stagingKey(name), data)
	}))
}

// Publish implements SnapshotStore. Staging is moved to the published slot
// in one transaction, so readers never observe a partial snapshot.
func (b *Badger) Publish(ctx context.Context, name string) error {
	err := b.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(stagingKey(name))
		if err != nil {
			return err
		}
		var data []byte
		if err := item.Value(func(v []byte) error {
			data = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}
		if err := txn.Set(snapshotKey(name), data); err != nil {
			return err
		}
		return txn.Delete(stagingKey(name))
	})
	return mapErr(err)
}

// PublishDirect implements SnapshotStore.
func (b *Badger) PublishDirect(ctx context.Context, name string, entries []models.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}
	return mapErr(b.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), data)
	}))
}

// ReadTop implements SnapshotStore. A never-published name yields an empty
// snapshot, which is a valid (final) answer, not an error.
func (b *Badger) ReadTop(ctx context.Context, name string, k int) ([]models.LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			data = append([]byte(nil), v...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []models.LeaderboardEntry{}, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", name, err)
	}
	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}
	return entries, nil
}

// Set implements CacheStore.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.update(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	return mapErr(err)
}

// Get implements CacheStore.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			data = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// Delete implements CacheStore.
func (b *Badger) Delete(ctx context.Context, key string) error {
	err := b.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(key))
	})
	return mapErr(err)
}

// Exists implements CacheStore.
func (b *Badger) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(cacheKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, mapErr(err)
	}
	return found, nil
}

// ClearAll implements Wiper. Destroys every key in the store.
func (b *Badger) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return mapErr(b.db.DropAll())
}
