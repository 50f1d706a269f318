// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package metrics exposes Prometheus metrics for Vantage components.
// All collectors are registered on the default registry via promauto and
// served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ViewsRecorded counts views accepted by the view counter.
	ViewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_views_recorded_total",
		Help: "Views recorded in the fast store",
	})

	// DuplicateEvents counts view events skipped by the dedup guard.
	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_duplicate_events_total",
		Help: "View events skipped because their event ID was already processed",
	})

	// CascadeReads counts read-cascade answers by serving level.
	CascadeReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_cascade_reads_total",
		Help: "Read cascade answers by serving level",
	}, []string{"level"})

	// CascadeExhausted counts reads where every cascade level failed.
	CascadeExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_cascade_exhausted_total",
		Help: "Reads that exhausted all cascade levels",
	})

	// LeaderboardRefreshes counts per-timeframe refresh outcomes.
	LeaderboardRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_leaderboard_refreshes_total",
		Help: "Leaderboard timeframe refreshes by outcome",
	}, []string{"timeframe", "outcome"})

	// LeaderboardRefreshDuration observes full refresh cycle durations.
	LeaderboardRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vantage_leaderboard_refresh_seconds",
		Help:    "Duration of full leaderboard refresh cycles",
		Buckets: prometheus.DefBuckets,
	})

	// RollupRuns counts rollup job executions by job and outcome.
	RollupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_rollup_runs_total",
		Help: "Rollup job executions by job and outcome",
	}, []string{"job", "outcome"})

	// PositionsFlushed counts dirty positions flushed to watch history.
	PositionsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_positions_flushed_total",
		Help: "Dirty playback positions flushed to watch history",
	})

	// FlushBatchDuration observes flush batch durations.
	FlushBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vantage_flush_batch_seconds",
		Help:    "Duration of position flush batches",
		Buckets: prometheus.DefBuckets,
	})

	// RebuildBatches counts processed rebuild batches.
	RebuildBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_rebuild_batches_total",
		Help: "Raw-event batches processed by rebuilds",
	})

	// EventsConsumed counts consumed bus events by topic and outcome.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_events_consumed_total",
		Help: "Bus events consumed by topic and outcome",
	}, []string{"topic", "outcome"})

	// HTTPRequests counts HTTP requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_http_requests_total",
		Help: "HTTP requests by route and status class",
	}, []string{"route", "status"})
)

// RecordCascadeRead records a cascade answer served from the given level.
func RecordCascadeRead(level string) {
	CascadeReads.WithLabelValues(level).Inc()
}

// RecordLeaderboardRefresh records one timeframe refresh outcome.
func RecordLeaderboardRefresh(timeframe string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	LeaderboardRefreshes.WithLabelValues(timeframe, outcome).Inc()
}

// RecordRollupRun records one rollup job outcome.
func RecordRollupRun(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RollupRuns.WithLabelValues(job, outcome).Inc()
}

// ObserveFlushBatch records a completed flush batch.
func ObserveFlushBatch(started time.Time, flushed int) {
	FlushBatchDuration.Observe(time.Since(started).Seconds())
	PositionsFlushed.Add(float64(flushed))
}

// ObserveHTTPRequest records one request against its route, bucketing
// the status into its class (2xx, 4xx, 5xx).
func ObserveHTTPRequest(route string, status int) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	HTTPRequests.WithLabelValues(route, class).Inc()
}
