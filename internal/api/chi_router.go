// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/docqueue/internal/middleware"
)

// RouterConfig holds the settings the router needs beyond the handler.
type RouterConfig struct {
	Middleware *ChiMiddlewareConfig
	// APIToken guards enqueue and cancel when non-empty.
	APIToken string
}

// NewRouter mounts every route on a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mw := NewChiMiddleware(cfg.Middleware)
	auth := middleware.BearerAuth(cfg.APIToken)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		r.Route("/health", func(r chi.Router) {
			r.Get("/", h.Health)
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		r.Get("/metrics", h.GetMetrics)

		r.Route("/jobs", func(r chi.Router) {
			r.With(auth, mw.RateLimitEnqueue()).Post("/", h.EnqueueJob)
			r.Get("/{id}", h.GetJob)
			r.With(auth).Post("/{id}/cancel", h.CancelJob)
			r.Get("/{id}/watch", h.WatchJob)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
