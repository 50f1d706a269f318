// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package rebuild reconstructs the fast store from the durable raw view
// log after data loss, and verifies consistency between the two.
//
// Rebuilds stream raw rows in primary-key order with keyset pagination
// and a rate limiter between batches, so a recovery never saturates
// either store. Member re-inserts are idempotent and totals are a full
// replace, so partial rebuilds can simply be re-run.
package rebuild

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/vantage/internal/counter"
	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
	"github.com/tomtom215/vantage/internal/models"
	"github.com/tomtom215/vantage/internal/store"
)

// Defaults for operator-invoked rebuilds.
const (
	DefaultBatchSize  = 1000
	DefaultWindowDays = 30
)

// RawSource is the durable-store surface rebuilds read from. Satisfied
// by *database.DB.
type RawSource interface {
	ListViewsPage(ctx context.Context, lastID int64, limit int, since time.Time) ([]models.ViewRow, error)
	ListVideoViewsPage(ctx context.Context, videoID, lastID int64, limit int, since time.Time) ([]models.ViewRow, error)
	AllTimeTotals(ctx context.Context) ([]models.VideoCount, error)
	CountViews(ctx context.Context, videoID int64) (int64, error)
	CountViewsSince(ctx context.Context, videoID int64, since time.Time) (int64, error)
	SampleVideoIDs(ctx context.Context, n int) ([]int64, error)
}

// Report summarizes a completed rebuild.
type Report struct {
	Videos   int           `json:"videos"`
	Members  int64         `json:"members"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Mismatch is one video whose fast and durable counts disagree.
type Mismatch struct {
	VideoID int64 `json:"video_id"`
	Fast    int64 `json:"fast_count"`
	Durable int64 `json:"durable_count"`
}

// VerifyReport summarizes a consistency check. Verification only
// reports; it never corrects.
type VerifyReport struct {
	Sampled    int        `json:"sampled"`
	Mismatches []Mismatch `json:"mismatches"`
	MatchRate  float64    `json:"match_rate"`
}

// Service rebuilds and verifies the fast store.
type Service struct {
	counters store.CounterStore
	members  store.MemberStore
	wiper    store.Wiper
	raw      RawSource
	limiter  *rate.Limiter
	now      func() time.Time
}

// New creates a rebuild Service. ratePerSecond paces batches; zero or
// negative disables pacing.
func New(counters store.CounterStore, members store.MemberStore, wiper store.Wiper, raw RawSource, ratePerSecond int) *Service {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Service{
		counters: counters,
		members:  members,
		wiper:    wiper,
		raw:      raw,
		limiter:  limiter,
		now:      time.Now,
	}
}

// RebuildAll repopulates window members for every video from the raw log
// (restricted to windowDays) and then recomputes every monotonic total
// from unwindowed counts as a full replace. Leaderboards are not
// refreshed here; the next builder cycle picks up the restored counts.
func (s *Service) RebuildAll(ctx context.Context, windowDays, batchSize int) (*Report, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	started := s.now()
	since := started.UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)

	report := &Report{}
	var lastID int64
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("rate limit wait: %w", err)
		}
		rows, err := s.raw.ListViewsPage(ctx, lastID, batchSize, since)
		if err != nil {
			return report, fmt.Errorf("list views page after id %d: %w", lastID, err)
		}
		if len(rows) == 0 {
			break
		}
		if err := s.insertBatch(ctx, rows); err != nil {
			return report, err
		}
		lastID = rows[len(rows)-1].ID
		report.Members += int64(len(rows))
		report.Batches++
		metrics.RebuildBatches.Inc()
		logging.Info().
			Int("batch", report.Batches).
			Int64("members", report.Members).
			Int64("last_id", lastID).
			Msg("rebuild batch complete")
	}

	videos, err := s.replaceTotals(ctx)
	if err != nil {
		return report, err
	}
	report.Videos = videos
	report.Duration = s.now().Sub(started)

	logging.Info().
		Int("videos", report.Videos).
		Int64("members", report.Members).
		Dur("duration", report.Duration).
		Msg("fast store rebuild complete")
	return report, nil
}

// RebuildSingle rebuilds one video. The member set is cleared first so a
// corrupted set cannot survive the rebuild.
func (s *Service) RebuildSingle(ctx context.Context, videoID int64, windowDays, batchSize int) (*Report, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	started := s.now()
	since := started.UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)

	if err := s.members.ClearSet(ctx, counter.ViewSetKey(videoID)); err != nil {
		return nil, fmt.Errorf("clear member set for video %d: %w", videoID, err)
	}

	report := &Report{Videos: 1}
	var lastID int64
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("rate limit wait: %w", err)
		}
		rows, err := s.raw.ListVideoViewsPage(ctx, videoID, lastID, batchSize, since)
		if err != nil {
			return report, fmt.Errorf("list views for video %d: %w", videoID, err)
		}
		if len(rows) == 0 {
			break
		}
		if err := s.insertBatch(ctx, rows); err != nil {
			return report, err
		}
		lastID = rows[len(rows)-1].ID
		report.Members += int64(len(rows))
		report.Batches++
		metrics.RebuildBatches.Inc()
	}

	total, err := s.raw.CountViews(ctx, videoID)
	if err != nil {
		return report, fmt.Errorf("count views for video %d: %w", videoID, err)
	}
	if err := s.counters.SetCounter(ctx, counter.TotalKey(videoID), total); err != nil {
		return report, fmt.Errorf("set total for video %d: %w", videoID, err)
	}
	report.Duration = s.now().Sub(started)

	logging.Info().
		Int64("video_id", videoID).
		Int64("members", report.Members).
		Int64("total", total).
		Msg("single video rebuild complete")
	return report, nil
}

// insertBatch re-inserts raw rows as window members. Identities match
// live recording, so replays are idempotent.
func (s *Service) insertBatch(ctx context.Context, rows []models.ViewRow) error {
	for _, row := range rows {
		member := counter.MemberID(row.UserID, row.ViewedAt)
		if err := s.members.AddMember(ctx, counter.ViewSetKey(row.VideoID), member, row.ViewedAt); err != nil {
			return fmt.Errorf("re-insert member for video %d: %w", row.VideoID, err)
		}
	}
	return nil
}

// replaceTotals recomputes every monotonic total from unwindowed raw
// counts. Full replace: stale totals do not survive.
func (s *Service) replaceTotals(ctx context.Context) (int, error) {
	totals, err := s.raw.AllTimeTotals(ctx)
	if err != nil {
		return 0, fmt.Errorf("load all-time totals: %w", err)
	}
	for _, vc := range totals {
		if err := s.counters.SetCounter(ctx, counter.TotalKey(vc.VideoID), vc.Views); err != nil {
			return 0, fmt.Errorf("set total for video %d: %w", vc.VideoID, err)
		}
	}
	return len(totals), nil
}

// verifyWindow is the window compared by Verify. It matches the member
// retention window, inside which both stores should agree.
const verifyWindow = 30 * 24 * time.Hour

// Verify samples videos and compares fast-store windowed counts against
// the raw log. It reports mismatches and the match rate without
// correcting anything.
func (s *Service) Verify(ctx context.Context, sampleSize int) (*VerifyReport, error) {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	ids, err := s.raw.SampleVideoIDs(ctx, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample videos: %w", err)
	}

	now := s.now().UTC()
	since := now.Add(-verifyWindow)
	report := &VerifyReport{Sampled: len(ids)}

	for _, id := range ids {
		fast, err := s.members.CountRange(ctx, counter.ViewSetKey(id), since, now)
		if err != nil {
			return nil, fmt.Errorf("fast count for video %d: %w", id, err)
		}
		durable, err := s.raw.CountViewsSince(ctx, id, since)
		if err != nil {
			return nil, fmt.Errorf("durable count for video %d: %w", id, err)
		}
		if fast != durable {
			report.Mismatches = append(report.Mismatches, Mismatch{
				VideoID: id, Fast: fast, Durable: durable,
			})
		}
	}

	report.MatchRate = 1.0
	if report.Sampled > 0 {
		report.MatchRate = float64(report.Sampled-len(report.Mismatches)) / float64(report.Sampled)
	}
	logging.Info().
		Int("sampled", report.Sampled).
		Int("mismatches", len(report.Mismatches)).
		Float64("match_rate", report.MatchRate).
		Msg("consistency verification complete")
	return report, nil
}

// ClearAll wipes the entire fast store. confirm must be true; this is the
// destructive half of a disaster-recovery cycle.
func (s *Service) ClearAll(ctx context.Context, confirm bool) error {
	if !confirm {
		return fmt.Errorf("refusing to clear fast store: %w", store.ErrConfirmationRequired)
	}
	if err := s.wiper.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear fast store: %w", err)
	}
	logging.Warn().Msg("fast store cleared")
	return nil
}
