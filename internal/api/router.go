// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into the Chi mux.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: mw}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging())
	r.Use(router.middleware.CORS()) // global so OPTIONS preflight works

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Use(SecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// ========================
	// Analytics Endpoints
	// ========================
	// Read-heavy and served from caches, so limits are permissive.
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(router.middleware.RateLimitRead())
		r.Use(SecurityHeaders())

		r.Get("/top", router.handler.TopVideos)
	})

	// ========================
	// Video Endpoints
	// ========================
	r.Route("/api/v1/videos/{videoID}", func(r chi.Router) {
		r.Use(SecurityHeaders())

		r.With(router.middleware.RateLimitRead()).Get("/stats", router.handler.VideoStats)
		r.With(router.middleware.RateLimitRead()).Get("/position", router.handler.GetPosition)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimitWrite())
			r.Put("/position", router.handler.PutPosition)
			r.Post("/complete", router.handler.MarkComplete)
			r.Post("/view", router.handler.RecordView)
		})
	})

	// ========================
	// User History Endpoints
	// ========================
	r.Route("/api/v1/users/{userID}/history", func(r chi.Router) {
		r.Use(SecurityHeaders())

		r.With(router.middleware.RateLimitRead()).Get("/", router.handler.UserHistory)
		r.With(router.middleware.RateLimitWrite()).Delete("/{videoID}", router.handler.DeleteHistory)
	})

	// ========================
	// Admin Endpoints
	// ========================
	// Rebuild and backfill rescan the raw log; strict limits keep a
	// misbehaving client from hammering DuckDB.
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(router.middleware.RateLimitAdmin())
		r.Use(SecurityHeaders())

		r.Post("/rebuild", router.handler.Rebuild)
		r.Get("/verify", router.handler.Verify)
		r.Post("/clear", router.handler.ClearFastStore)
		r.Post("/backfill", router.handler.BackfillRollups)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
