// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/docqueue/internal/client"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/validation"
)

// maxEnqueueBody bounds the enqueue request, payload included.
const maxEnqueueBody = 1 << 20

// EnqueueRequest is the body of POST /api/v1/jobs.
type EnqueueRequest struct {
	Type jobs.Type `json:"type" validate:"required,jobtype"`
	// ID makes the request idempotent.
	ID           string          `json:"id,omitempty" validate:"omitempty,jobid"`
	Payload      json.RawMessage `json:"payload"`
	DelaySeconds int64           `json:"delaySeconds,omitempty" validate:"gte=0,lte=2592000"`
	MaxAttempts  int             `json:"maxAttempts,omitempty" validate:"gte=0,lte=25"`
}

// EnqueueResponse is returned with 202 Accepted.
type EnqueueResponse struct {
	ID     string      `json:"id"`
	Status jobs.Status `json:"status"`
}

// EnqueueJob handles POST /api/v1/jobs.
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnqueueBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "Request body must be a JSON object", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}
	if h.payloads != nil {
		if check := h.payloads(req.Type); check != nil {
			if err := check(req.Payload); err != nil {
				respondError(w, r, http.StatusBadRequest, CodeValidation, "Invalid payload: "+err.Error(), nil)
				return
			}
		}
	}

	opts := client.Options{
		JobID:       req.ID,
		Delay:       time.Duration(req.DelaySeconds) * time.Second,
		MaxAttempts: req.MaxAttempts,
	}
	id, err := h.jobs.Enqueue(r.Context(), req.Type, req.Payload, opts)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	// The status at enqueue time is what the caller asked for; an
	// idempotent repeat reports where the existing job is now.
	st := jobs.StatusWaiting
	if opts.Delay > 0 {
		st = jobs.StatusDelayed
	}
	if req.ID != "" {
		if current, err := h.status.GetJobStatus(r.Context(), id); err == nil {
			st = current.Status
		}
	}
	w.Header().Set("Location", "/api/v1/jobs/"+id)
	respondData(w, r, http.StatusAccepted, EnqueueResponse{ID: id, Status: st})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.status.GetJobStatus(r.Context(), id)
	if err != nil {
		respondJobError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, st)
}

// CancelJob handles POST /api/v1/jobs/{id}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.jobs.Cancel(r.Context(), id); err != nil {
		respondJobError(w, r, err)
		return
	}
	st, err := h.status.GetJobStatus(r.Context(), id)
	if err != nil {
		respondJobError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("job_id", id).Msg("Job cancelled via API")
	respondData(w, r, http.StatusOK, st)
}

// GetMetrics handles GET /api/v1/metrics. Without ?type= the counts cover
// every job type.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	t := jobs.Type(r.URL.Query().Get("type"))
	if t != "" {
		if verr := validation.GetValidator().Var(string(t), "jobtype"); verr != nil {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "Unknown job type: "+sanitizeLogValue(string(t)), nil)
			return
		}
	}
	m, err := h.status.GetMetrics(r.Context(), t)
	if err != nil {
		respondJobError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, m)
}
