// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package models defines the domain types shared across Vantage components.
package models

import "time"

// Timeframe identifies a leaderboard window.
type Timeframe string

// Supported leaderboard timeframes.
const (
	TimeframeHour    Timeframe = "hour"
	TimeframeDay     Timeframe = "day"
	TimeframeWeek    Timeframe = "week"
	TimeframeMonth   Timeframe = "month"
	TimeframeYear    Timeframe = "year"
	TimeframeAllTime Timeframe = "all_time"
)

// Timeframes returns all supported timeframes in refresh order.
func Timeframes() []Timeframe {
	return []Timeframe{
		TimeframeHour,
		TimeframeDay,
		TimeframeWeek,
		TimeframeMonth,
		TimeframeYear,
		TimeframeAllTime,
	}
}

// Valid reports whether t is a supported timeframe.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeHour, TimeframeDay, TimeframeWeek,
		TimeframeMonth, TimeframeYear, TimeframeAllTime:
		return true
	}
	return false
}

// Window returns the sliding-window duration for the timeframe.
// TimeframeAllTime returns 0, meaning "no window" (use monotonic totals).
func (t Timeframe) Window() time.Duration {
	switch t {
	case TimeframeHour:
		return time.Hour
	case TimeframeDay:
		return 24 * time.Hour
	case TimeframeWeek:
		return 7 * 24 * time.Hour
	case TimeframeMonth:
		return 30 * 24 * time.Hour
	case TimeframeYear:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// LeaderboardEntry is one ranked row of a published leaderboard snapshot.
type LeaderboardEntry struct {
	Rank    int   `json:"rank"`
	VideoID int64 `json:"video_id"`
	Views   int64 `json:"views"`
}

// Video is a catalog entry. Rows are created from upload events.
type Video struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	MediaType       string    `json:"media_type"`
	DurationSeconds float64   `json:"duration_seconds"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// ViewRow is a raw view event persisted in the durable store.
// ID is a monotonically increasing primary key used for keyset pagination.
type ViewRow struct {
	ID       int64     `json:"id"`
	VideoID  int64     `json:"video_id"`
	UserID   string    `json:"user_id,omitempty"`
	ViewedAt time.Time `json:"viewed_at"`
}

// Granularity of a pre-aggregated rollup bucket.
const (
	GranularityHour = "hour"
	GranularityDay  = "day"
)

// Rollup is one pre-aggregated view-count bucket.
type Rollup struct {
	VideoID     int64     `json:"video_id"`
	BucketStart time.Time `json:"bucket_start"`
	Granularity string    `json:"granularity"`
	Views       int64     `json:"views"`
}

// VideoCount pairs a video with an aggregate view count.
type VideoCount struct {
	VideoID int64 `json:"video_id"`
	Views   int64 `json:"views"`
}

// PositionRecord is the cached playback position for a (user, video) pair.
// Dirty marks positions not yet flushed to the durable watch history.
type PositionRecord struct {
	UserID          string    `json:"user_id"`
	VideoID         int64     `json:"video_id"`
	PositionSeconds float64   `json:"position_seconds"`
	DurationSeconds float64   `json:"duration_seconds"`
	UpdatedAt       time.Time `json:"updated_at"`
	Dirty           bool      `json:"dirty"`
}

// WatchHistory is the durable per-user watch record.
type WatchHistory struct {
	UserID          string    `json:"user_id"`
	VideoID         int64     `json:"video_id"`
	PositionSeconds float64   `json:"position_seconds"`
	DurationSeconds float64   `json:"duration_seconds"`
	ProgressPercent float64   `json:"progress_percent"`
	Completed       bool      `json:"completed"`
	WatchCount      int       `json:"watch_count"`
	LastWatchedAt   time.Time `json:"last_watched_at"`
}
