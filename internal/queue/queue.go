// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package queue orders job IDs for the dispatcher.
//
// Each job type has a FIFO of IDs ready to run and a set of delayed IDs
// keyed by their earliest run time. The queue is an index over the store,
// not a second source of truth: an ID popped here is only a candidate, and
// the dispatcher still has to win the store's waiting->active transition.
// Stale or duplicate entries are therefore harmless, and Rebuild restores
// entries that were lost.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// ErrEmpty is returned by ClaimNext when no ID is ready for the type.
var ErrEmpty = errors.New("queue empty")

// Queue holds per-type pending lists and delayed sets.
type Queue interface {
	// Enqueue appends id to the pending list, or to the delayed set when
	// runAt is in the future.
	Enqueue(ctx context.Context, t jobs.Type, id string, runAt time.Time) error

	// ClaimNext pops the oldest pending ID or returns ErrEmpty.
	ClaimNext(ctx context.Context, t jobs.Type) (string, error)

	// PushFront returns a popped id to the head of the pending list, so an
	// unsuccessful claim does not cost the job its place.
	PushFront(ctx context.Context, t jobs.Type, id string) error

	// Requeue places id in the delayed set, due after delay.
	Requeue(ctx context.Context, t jobs.Type, id string, delay time.Duration) error

	// DueDelayed lists up to limit delayed IDs due at or before now, earliest first.
	DueDelayed(ctx context.Context, t jobs.Type, now time.Time, limit int) ([]string, error)

	// Promote atomically moves id from the delayed set to the pending tail.
	// It reports false when id was not in the delayed set.
	Promote(ctx context.Context, t jobs.Type, id string) (bool, error)

	// Contains reports whether id is pending or delayed.
	Contains(ctx context.Context, t jobs.Type, id string) (bool, error)

	// Remove drops id from both the pending list and the delayed set.
	Remove(ctx context.Context, t jobs.Type, id string) error

	// Depth returns the pending and delayed sizes for a type.
	Depth(ctx context.Context, t jobs.Type) (pending, delayed int64, err error)
}
