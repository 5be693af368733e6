// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package jobs defines the job record, its state machine, the handler
// contract and the error taxonomy shared by the store, queue, dispatcher and
// status packages.
//
// State machine:
//
//	waiting  --claim-->    active
//	delayed  --promote-->  waiting
//	active   --success-->  completed                       (terminal)
//	active   --failure, attempts < max-->  delayed (backoff)
//	active   --failure, attempts >= max--> failed          (terminal)
//	waiting|delayed --cancel--> failed                     (terminal)
//
// Every transition goes through the store's compare-and-swap UpdateStatus.
package jobs

import (
	"time"

	"github.com/goccy/go-json"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// AllStatuses lists every status in reporting order.
var AllStatuses = []Status{StatusWaiting, StatusActive, StatusCompleted, StatusFailed, StatusDelayed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusFailed, StatusDelayed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. Terminal jobs are immutable.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Type identifies which handler processes a job.
type Type string

const (
	// TypeDocumentIngest parses and indexes an uploaded classroom document.
	TypeDocumentIngest Type = "document-ingest"
	// TypePodcastGenerate renders a podcast episode from room material.
	TypePodcastGenerate Type = "podcast-generate"
)

// DefaultMaxAttempts is used when an enqueue does not specify a ceiling.
const DefaultMaxAttempts = 3

// MaxProgress is the upper bound of Job.Progress.
const MaxProgress = 100

// Job is the durable record of one unit of asynchronous work.
type Job struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is the first claim; it is set once and never moves.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// ClaimedAt is the start of the current (or last) attempt. The reaper
	// measures stuck jobs from here, not from StartedAt.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	// FinishedAt is set once, on the transition into a terminal state.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// RunAt is the earliest eligible claim time of a delayed job.
	RunAt *time.Time `json:"run_at,omitempty"`
}

// CanRetry reports whether another attempt is allowed after a failure.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = cloneRaw(j.Payload)
	c.Result = cloneRaw(j.Result)
	c.StartedAt = cloneTime(j.StartedAt)
	c.ClaimedAt = cloneTime(j.ClaimedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	c.RunAt = cloneTime(j.RunAt)
	return &c
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t, truncated to microseconds so values
// round-trip through every store backend unchanged.
func TimePtr(t time.Time) *time.Time {
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}

// Counts is the per-status aggregate returned by CountByStatus.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Add increments the counter for s by n.
func (c *Counts) Add(s Status, n int64) {
	switch s {
	case StatusWaiting:
		c.Waiting += n
	case StatusActive:
		c.Active += n
	case StatusCompleted:
		c.Completed += n
	case StatusFailed:
		c.Failed += n
	case StatusDelayed:
		c.Delayed += n
	}
}

// Get returns the counter for s.
func (c Counts) Get(s Status) int64 {
	switch s {
	case StatusWaiting:
		return c.Waiting
	case StatusActive:
		return c.Active
	case StatusCompleted:
		return c.Completed
	case StatusFailed:
		return c.Failed
	case StatusDelayed:
		return c.Delayed
	}
	return 0
}

// Total is the number of jobs across all statuses.
func (c Counts) Total() int64 {
	return c.Waiting + c.Active + c.Completed + c.Failed + c.Delayed
}
