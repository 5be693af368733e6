// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Package middleware provides the HTTP middleware the API router installs.

All middleware use the chi signature func(http.Handler) http.Handler:

  - RequestID: X-Request-ID propagation plus request and correlation IDs in
    the logging context
  - PrometheusMetrics: request counts, latency and in-flight gauge, labelled
    by chi route pattern so job IDs never become label values
  - BearerAuth: static API token check for mutating routes

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.With(middleware.BearerAuth(token)).Post("/api/v1/jobs", h.Enqueue)
*/
package middleware
