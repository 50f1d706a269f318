// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/vantage/internal/events"
	"github.com/tomtom215/vantage/internal/fallback"
	"github.com/tomtom215/vantage/internal/models"
	"github.com/tomtom215/vantage/internal/rebuild"
)

// AnalyticsReader answers reads through the cascade. Satisfied by
// *fallback.Reader.
type AnalyticsReader interface {
	GetTopK(ctx context.Context, tf models.Timeframe, k int) (*fallback.TopKResult, error)
	GetCount(ctx context.Context, videoID int64, window time.Duration) (*fallback.CountResult, error)
}

// PositionStore tracks playback positions. Satisfied by *position.Cache.
type PositionStore interface {
	RecordPosition(ctx context.Context, userID string, videoID int64, positionSeconds, durationSeconds float64) error
	ReadPosition(ctx context.Context, userID string, videoID int64) (models.PositionRecord, error)
	MarkCompleted(ctx context.Context, userID string, videoID int64, durationSeconds float64) error
	Delete(ctx context.Context, userID string, videoID int64) error
}

// HistoryReader reads durable watch history. Satisfied by *database.DB.
type HistoryReader interface {
	ListUserHistory(ctx context.Context, userID string, limit int) ([]models.WatchHistory, error)
}

// CatalogReader reads the video catalog. Satisfied by *database.DB.
type CatalogReader interface {
	GetVideo(ctx context.Context, id int64) (models.Video, error)
}

// EventPublisher publishes media events. Satisfied by *events.Publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *events.Event) error
}

// Rebuilder reconstructs the fast store. Satisfied by *rebuild.Service.
type Rebuilder interface {
	RebuildAll(ctx context.Context, windowDays, batchSize int) (*rebuild.Report, error)
	RebuildSingle(ctx context.Context, videoID int64, windowDays, batchSize int) (*rebuild.Report, error)
	Verify(ctx context.Context, sampleSize int) (*rebuild.VerifyReport, error)
	ClearAll(ctx context.Context, confirm bool) error
}

// Backfiller re-aggregates historical rollup buckets. Satisfied by
// *rollup.Scheduler.
type Backfiller interface {
	Backfill(ctx context.Context, days int) (int64, error)
}

// Pinger checks a dependency's liveness. Satisfied by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies the HTTP handlers call into.
type Handler struct {
	analytics AnalyticsReader
	positions PositionStore
	history   HistoryReader
	catalog   CatalogReader
	publisher EventPublisher
	rebuilder Rebuilder
	backfill  Backfiller
	db        Pinger

	rebuildWindowDays int
	rebuildBatchSize  int
	maxTopK           int
}

// HandlerConfig bundles Handler dependencies.
type HandlerConfig struct {
	Analytics AnalyticsReader
	Positions PositionStore
	History   HistoryReader
	Catalog   CatalogReader
	Publisher EventPublisher
	Rebuilder Rebuilder
	Backfill  Backfiller
	DB        Pinger

	RebuildWindowDays int
	RebuildBatchSize  int

	// MaxTopK caps the k accepted by the top-videos endpoint.
	MaxTopK int
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.RebuildWindowDays <= 0 {
		cfg.RebuildWindowDays = rebuild.DefaultWindowDays
	}
	if cfg.RebuildBatchSize <= 0 {
		cfg.RebuildBatchSize = rebuild.DefaultBatchSize
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = defaultMaxTopK
	}
	return &Handler{
		analytics:         cfg.Analytics,
		positions:         cfg.Positions,
		history:           cfg.History,
		catalog:           cfg.Catalog,
		publisher:         cfg.Publisher,
		rebuilder:         cfg.Rebuilder,
		backfill:          cfg.Backfill,
		db:                cfg.DB,
		rebuildWindowDays: cfg.RebuildWindowDays,
		rebuildBatchSize:  cfg.RebuildBatchSize,
		maxTopK:           cfg.MaxTopK,
	}
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// pathVideoID parses the {videoID} URL parameter.
func pathVideoID(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "videoID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
