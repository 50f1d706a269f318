// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vantage/internal/events"
)

// positionRequest is the body for position updates.
type positionRequest struct {
	UserID          string  `json:"user_id"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// completeRequest is the body for explicit completion.
type completeRequest struct {
	UserID          string  `json:"user_id"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// viewRequest is the body for recording a view.
type viewRequest struct {
	UserID string `json:"user_id"`
}

// GetPosition serves GET /api/v1/videos/{videoID}/position.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	videoID, ok := pathVideoID(r)
	if !ok {
		rw.BadRequest("invalid video ID")
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		rw.BadRequest("user_id query parameter required")
		return
	}

	rec, err := h.positions.ReadPosition(r.Context(), userID, videoID)
	if err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Success(rec)
}

// PutPosition serves PUT /api/v1/videos/{videoID}/position.
func (h *Handler) PutPosition(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	videoID, ok := pathVideoID(r)
	if !ok {
		rw.BadRequest("invalid video ID")
		return
	}

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if req.UserID == "" {
		rw.BadRequest("user_id required")
		return
	}
	if req.PositionSeconds < 0 || req.DurationSeconds <= 0 {
		rw.BadRequest("position_seconds must be >= 0 and duration_seconds > 0")
		return
	}

	if err := h.positions.RecordPosition(r.Context(), req.UserID, videoID, req.PositionSeconds, req.DurationSeconds); err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.NoContent()
}

// MarkComplete serves POST /api/v1/videos/{videoID}/complete.
func (h *Handler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	videoID, ok := pathVideoID(r)
	if !ok {
		rw.BadRequest("invalid video ID")
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if req.UserID == "" {
		rw.BadRequest("user_id required")
		return
	}

	if err := h.positions.MarkCompleted(r.Context(), req.UserID, videoID, req.DurationSeconds); err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.NoContent()
}

// RecordView serves POST /api/v1/videos/{videoID}/view.
//
// The view is published to the bus rather than written directly; the
// consumer owns the raw log append and the counter update, so a view
// recorded here survives a crashed API instance.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	videoID, ok := pathVideoID(r)
	if !ok {
		rw.BadRequest("invalid video ID")
		return
	}

	if h.publisher == nil {
		rw.ServiceUnavailable("event log disabled")
		return
	}

	var req viewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("invalid JSON body")
			return
		}
	}

	event := events.NewViewEvent(videoID, req.UserID)
	if err := h.publisher.PublishEvent(r.Context(), event); err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Accepted(map[string]interface{}{
		"event_id": event.EventID,
		"video_id": videoID,
	})
}

// UserHistory serves GET /api/v1/users/{userID}/history.
func (h *Handler) UserHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID required")
		return
	}

	limit := getIntParam(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	history, err := h.history.ListUserHistory(r.Context(), userID, limit)
	if err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{
		"user_id": userID,
		"history": history,
	})
}

// DeleteHistory serves DELETE /api/v1/users/{userID}/history/{videoID}.
// Removes both the durable row and the cached position.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID required")
		return
	}
	videoID, ok := pathVideoID(r)
	if !ok {
		rw.BadRequest("invalid video ID")
		return
	}

	if err := h.positions.Delete(r.Context(), userID, videoID); err != nil {
		respondDomainError(rw, err)
		return
	}
	rw.NoContent()
}
