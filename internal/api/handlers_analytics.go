// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/vantage/internal/database"
	"github.com/tomtom215/vantage/internal/models"
)

const (
	defaultTopK    = 10
	defaultMaxTopK = 100
)

// parseTimeframe reads the timeframe query parameter, defaulting to day.
func parseTimeframe(r *http.Request) (models.Timeframe, bool) {
	raw := r.URL.Query().Get("timeframe")
	if raw == "" {
		return models.TimeframeDay, true
	}
	tf := models.Timeframe(raw)
	return tf, tf.Valid()
}

// TopVideos serves GET /api/v1/analytics/top.
//
// The answer carries a source tag telling the client which serving level
// produced it, so degraded answers are distinguishable from fresh ones.
func (h *Handler) TopVideos(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	tf, ok := parseTimeframe(r)
	if !ok {
		rw.BadRequest("invalid timeframe, expected one of: hour, day, week, month, year, all_time")
		return
	}

	k := getIntParam(r, "k", defaultTopK)
	if k <= 0 {
		rw.BadRequest("k must be positive")
		return
	}
	if k > h.maxTopK {
		k = h.maxTopK
	}

	result, err := h.analytics.GetTopK(r.Context(), tf, k)
	if err != nil {
		respondDomainError(rw, err)
		return
	}

	rw.SuccessWithMeta(map[string]interface{}{
		"timeframe": tf,
		"entries":   result.Entries,
	}, &APIMeta{Source: result.Source})
}

// VideoStats serves GET /api/v1/videos/{videoID}/stats.
func (h *Handler) VideoStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	videoID, ok := pathVideoID(r)
	if !ok {
		rw.BadRequest("invalid video ID")
		return
	}

	tf, ok := parseTimeframe(r)
	if !ok {
		rw.BadRequest("invalid timeframe, expected one of: hour, day, week, month, year, all_time")
		return
	}

	result, err := h.analytics.GetCount(r.Context(), videoID, tf.Window())
	if err != nil {
		respondDomainError(rw, err)
		return
	}

	data := map[string]interface{}{
		"video_id":  videoID,
		"timeframe": tf,
		"views":     result.Views,
	}

	// Catalog entry is best-effort; stats still serve for videos that
	// only exist in the view log.
	video, err := h.catalog.GetVideo(r.Context(), videoID)
	if err == nil {
		data["video"] = video
	} else if !errors.Is(err, database.ErrNotFound) {
		respondDomainError(rw, err)
		return
	}

	rw.SuccessWithMeta(data, &APIMeta{Source: result.Source})
}
