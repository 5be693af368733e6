// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package store is the single source of truth for job records.
//
// Three backends implement Store:
//   - RedisStore: shared, durable; the production default
//   - BadgerStore: embedded and durable, for single-node deployments
//   - MemoryStore: tests and local development
//
// Every backend makes UpdateStatus an atomic compare-and-swap. It is the only
// way a job changes after Put, and the only concurrency control in docqueue:
// two workers racing for the same job cannot both win the waiting->active
// transition. Backend failures surface as jobs.ErrStoreUnavailable so they can
// be told apart from jobs.ErrNotFound and jobs.ErrConflict.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// Store persists job records.
type Store interface {
	// Put inserts or overwrites a job record. Visible to readers immediately.
	Put(ctx context.Context, job *jobs.Job) error

	// Create inserts job only if no record with its ID exists, and fails
	// with jobs.ErrExists otherwise. The existence check and the write are
	// one atomic step.
	Create(ctx context.Context, job *jobs.Job) error

	// Get returns a copy of the job or jobs.ErrNotFound.
	Get(ctx context.Context, id string) (*jobs.Job, error)

	// UpdateStatus atomically moves a job from one status to another and
	// applies patch. It fails with jobs.ErrConflict when the stored status is
	// not from, when the job is terminal, or when patch.ExpectAttempts does
	// not match. Returns the updated record.
	UpdateStatus(ctx context.Context, id string, from, to jobs.Status, patch jobs.Patch) (*jobs.Job, error)

	// SetProgress raises the progress of an active job. It is a no-op when
	// percent is not above the stored value, and jobs.ErrConflict when the
	// job is no longer active or has moved on to another attempt.
	SetProgress(ctx context.Context, id string, attempt, percent int) error

	// CountByStatus aggregates jobs per status. An empty jobType counts all types.
	CountByStatus(ctx context.Context, jobType jobs.Type) (jobs.Counts, error)

	// ListByStatus returns up to limit jobs in status, oldest first.
	// An empty jobType lists all types; limit <= 0 means no limit.
	ListByStatus(ctx context.Context, status jobs.Status, jobType jobs.Type, limit int) ([]*jobs.Job, error)

	// SweepExpired deletes terminal jobs that finished before now-retention
	// and returns how many were removed.
	SweepExpired(ctx context.Context, retention time.Duration) (int, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

var errClosed = errors.New("store closed")

// validateNew checks the fields Put relies on.
func validateNew(job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("put: nil job")
	}
	if job.ID == "" {
		return fmt.Errorf("put: empty job id")
	}
	if job.Type == "" {
		return fmt.Errorf("put %s: empty job type", job.ID)
	}
	if !job.Status.Valid() {
		return fmt.Errorf("put %s: invalid status %q", job.ID, job.Status)
	}
	return nil
}

// checkTransition applies the compare-and-swap rules shared by the Go-side
// backends. The Redis backend encodes the same rules in Lua.
func checkTransition(j *jobs.Job, from jobs.Status, patch jobs.Patch) error {
	if j.Status != from {
		return fmt.Errorf("%w: job %s is %s, expected %s", jobs.ErrConflict, j.ID, j.Status, from)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is terminal (%s)", jobs.ErrConflict, j.ID, j.Status)
	}
	if patch.ExpectAttempts > 0 && j.Attempts != patch.ExpectAttempts {
		return fmt.Errorf("%w: job %s is on attempt %d, expected %d", jobs.ErrConflict, j.ID, j.Attempts, patch.ExpectAttempts)
	}
	if patch.IncrementAttempts && j.Attempts >= j.MaxAttempts {
		return fmt.Errorf("%w: job %s has used all %d attempts", jobs.ErrConflict, j.ID, j.MaxAttempts)
	}
	return nil
}

// checkProgress applies the SetProgress guard shared by the Go-side backends.
func checkProgress(j *jobs.Job, attempt int) error {
	if j.Status != jobs.StatusActive {
		return fmt.Errorf("%w: job %s is %s, not active", jobs.ErrConflict, j.ID, j.Status)
	}
	if j.Attempts != attempt {
		return fmt.Errorf("%w: job %s is on attempt %d, report was for %d", jobs.ErrConflict, j.ID, j.Attempts, attempt)
	}
	return nil
}

// sweepable reports whether a job is terminal and finished before cutoff.
func sweepable(j *jobs.Job, cutoff time.Time) bool {
	return j.Status.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(cutoff)
}

// sortOldestFirst orders jobs by creation time, then ID for stability.
func sortOldestFirst(list []*jobs.Job) {
	sort.Slice(list, func(a, b int) bool {
		if !list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].CreatedAt.Before(list[b].CreatedAt)
		}
		return list[a].ID < list[b].ID
	})
}
