// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"net/http"
	"time"
)

// HealthLive serves GET /api/v1/health/live. Process-up check only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "alive",
	})
}

// HealthReady serves GET /api/v1/health/ready. Ready means the durable
// store answers; the fast store degrading is survivable thanks to the
// cascade, so it does not gate readiness.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.db.Ping(r.Context()); err != nil {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"database not ready", map[string]string{"database": err.Error()})
		return
	}
	rw.Success(map[string]interface{}{
		"status": "ready",
	})
}

// Health serves GET /api/v1/health with per-component detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	rw.writeJSON(code, APIResponse{
		Success: healthy,
		Data: map[string]interface{}{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
		},
	})
}
