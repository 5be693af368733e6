// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/docqueue/internal/logging"
	ws "github.com/tomtom215/docqueue/internal/websocket"
)

// WatchJob handles GET /api/v1/jobs/{id}/watch. The job must exist; the
// stream ends once it reaches a terminal status.
func (h *Handler) WatchJob(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "Event streaming is disabled", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.status.GetJobStatus(r.Context(), id); err != nil {
		respondJobError(w, r, err)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).
			Str("origin", sanitizeLogValue(r.Header.Get("Origin"))).
			Msg("WebSocket upgrade failed")
		return
	}
	ws.NewClient(h.hub, conn, id).Start()
}
