// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package events publishes job lifecycle notifications over Watermill.
//
// Events are advisory: the job store stays authoritative and clients that
// miss an event can always poll the status endpoint. Publishing therefore
// never fails the operation that triggered it.
//
// Two transports are supported:
//   - memory: Watermill's in-process Go channel pub/sub (default)
//   - nats: core NATS through watermill-nats, for multi-instance fan-out
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// Topic carries every job event.
const Topic = "jobs.events"

// Kind names a lifecycle step.
type Kind string

const (
	KindEnqueued  Kind = "enqueued"
	KindActive    Kind = "active"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindRetrying  Kind = "retrying"
	KindFailed    Kind = "failed"
	KindCancelled Kind = "cancelled"
	// KindReleased means a worker shut down mid-attempt and returned the job
	// to waiting without using up the attempt.
	KindReleased Kind = "released"
)

// Event is one job lifecycle notification.
type Event struct {
	ID       string      `json:"id"`
	Kind     Kind        `json:"kind"`
	JobID    string      `json:"job_id"`
	JobType  jobs.Type   `json:"job_type"`
	Status   jobs.Status `json:"status"`
	Progress int         `json:"progress"`
	Attempt  int         `json:"attempt"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}

// NewEvent snapshots j for kind.
func NewEvent(kind Kind, j *jobs.Job) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		JobID:    j.ID,
		JobType:  j.Type,
		Status:   j.Status,
		Progress: j.Progress,
		Attempt:  j.Attempts,
		Error:    j.Error,
		At:       time.Now().UTC(),
	}
}

// Publisher emits events. Implementations log and count failures rather
// than return them.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}
