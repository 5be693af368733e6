// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/docqueue/internal/health"
)

// Health handles GET /api/v1/health. Healthy and degraded answer 200 so
// load balancers keep routing; an unreachable store answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Current(r.Context())
	code := http.StatusOK
	if report.Verdict == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, r, code, &APIResponse{Status: report.Status, Data: report})
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /api/v1/health/ready. Ready means the store
// answers; queue ceilings do not affect readiness.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	report := h.health.Current(r.Context())
	ready := report.Verdict != health.Unhealthy

	code := http.StatusOK
	st := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		st = "not_ready"
	}
	respondJSON(w, r, code, &APIResponse{
		Status: st,
		Data: map[string]interface{}{
			"store_connected": ready,
			"uptime":          time.Since(h.startTime).Seconds(),
		},
	})
}
