// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	jobIDKey         contextKey = "job_id"
	jobTypeKey       contextKey = "job_type"
)

// GenerateCorrelationID returns a short random ID for correlating log lines.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// GenerateRequestID returns a full UUID for HTTP request tracing.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithCorrelationID returns ctx carrying the correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns ctx carrying a fresh correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns ctx carrying the HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithJob tags ctx with the job being executed so every log line a
// handler emits through Ctx carries job_id and job_type.
func ContextWithJob(ctx context.Context, jobID, jobType string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	return context.WithValue(ctx, jobTypeKey, jobType)
}

// JobIDFromContext returns the job ID set by ContextWithJob or "".
func JobIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the IDs stored in ctx.
//
//	logging.Ctx(ctx).Info().Msg("Forwarding payload")
//	// {"level":"info","job_id":"...","job_type":"document-ingest","message":"Forwarding payload"}
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if v := CorrelationIDFromContext(ctx); v != "" {
		lc = lc.Str("correlation_id", v)
	}
	if v := RequestIDFromContext(ctx); v != "" {
		lc = lc.Str("request_id", v)
	}
	if v := JobIDFromContext(ctx); v != "" {
		lc = lc.Str("job_id", v)
	}
	if v, ok := ctx.Value(jobTypeKey).(string); ok && v != "" {
		lc = lc.Str("job_type", v)
	}
	l := lc.Logger()
	return &l
}
