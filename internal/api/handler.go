// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/docqueue/internal/client"
	"github.com/tomtom215/docqueue/internal/health"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/status"
	ws "github.com/tomtom215/docqueue/internal/websocket"
)

// Enqueuer accepts and cancels jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, t jobs.Type, payload json.RawMessage, opts client.Options) (string, error)
	Cancel(ctx context.Context, id string) (*jobs.Job, error)
}

// StatusReader serves the polling and metrics contracts.
type StatusReader interface {
	GetJobStatus(ctx context.Context, id string) (*status.JobStatus, error)
	GetMetrics(ctx context.Context, t jobs.Type) (*status.Metrics, error)
}

// HealthReporter returns the latest health report.
type HealthReporter interface {
	Current(ctx context.Context) *health.Report
}

// PayloadValidator checks a payload for a job type before it is stored.
// It returns nil for types it does not know.
type PayloadValidator func(t jobs.Type) func(json.RawMessage) error

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	jobs      Enqueuer
	status    StatusReader
	health    HealthReporter
	hub       *ws.Hub
	payloads  PayloadValidator
	origins   []string
	startTime time.Time
}

// HandlerConfig collects Handler dependencies. Hub and Payloads may be nil.
type HandlerConfig struct {
	Jobs     Enqueuer
	Status   StatusReader
	Health   HealthReporter
	Hub      *ws.Hub
	Payloads PayloadValidator
	// Origins allowed to open websockets; "*" allows any.
	Origins []string
}

// NewHandler returns a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		jobs:      cfg.Jobs,
		status:    cfg.Status,
		health:    cfg.Health,
		hub:       cfg.Hub,
		payloads:  cfg.Payloads,
		origins:   cfg.Origins,
		startTime: time.Now(),
	}
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin requires an Origin header that is on the allow list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
