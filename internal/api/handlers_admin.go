// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"net/http"
	"strconv"
)

// Rebuild serves POST /api/v1/admin/rebuild.
//
// With a video_id query parameter only that video is rebuilt; otherwise
// the whole fast store is reconstructed from the raw log. Runs
// synchronously and returns the rebuild report.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	windowDays := getIntParam(r, "window_days", h.rebuildWindowDays)
	if windowDays <= 0 {
		rw.BadRequest("window_days must be positive")
		return
	}

	if raw := r.URL.Query().Get("video_id"); raw != "" {
		videoID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || videoID <= 0 {
			rw.BadRequest("invalid video_id")
			return
		}
		report, err := h.rebuilder.RebuildSingle(r.Context(), videoID, windowDays, h.rebuildBatchSize)
		if err != nil {
			respondDomainError(rw, err)
			return
		}
		rw.Success(report)
		return
	}

	report, err := h.rebuilder.RebuildAll(r.Context(), windowDays, h.rebuildBatchSize)
	if err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Success(report)
}

// Verify serves GET /api/v1/admin/verify. Samples videos and compares
// fast-store counts against the raw log.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sample := getIntParam(r, "sample", 100)
	if sample <= 0 || sample > 10000 {
		rw.BadRequest("sample must be between 1 and 10000")
		return
	}

	report, err := h.rebuilder.Verify(r.Context(), sample)
	if err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Success(report)
}

// ClearFastStore serves POST /api/v1/admin/clear. Requires confirm=true;
// without it the request is rejected before anything is touched.
func (h *Handler) ClearFastStore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	confirm := r.URL.Query().Get("confirm") == "true"
	if err := h.rebuilder.ClearAll(r.Context(), confirm); err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{"cleared": true})
}

// BackfillRollups serves POST /api/v1/admin/backfill. Re-aggregates
// hourly buckets for the requested number of days, skipping buckets that
// already exist.
func (h *Handler) BackfillRollups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	days := getIntParam(r, "days", 7)
	if days <= 0 || days > 365 {
		rw.BadRequest("days must be between 1 and 365")
		return
	}

	inserted, err := h.backfill.Backfill(r.Context(), days)
	if err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{
		"days":          days,
		"rows_inserted": inserted,
	})
}
