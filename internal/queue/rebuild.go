// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/store"
)

// Rebuild re-derives queue entries from store state: every waiting job gets
// a pending entry and every delayed job a delayed entry, unless one is
// already present. It returns how many entries were restored.
//
// Run it before the dispatcher starts. With the memory queue this is how
// pending work survives a restart; with Redis it repairs entries lost to a
// crash between the store write and the queue write.
func Rebuild(ctx context.Context, s store.Store, q Queue, types []jobs.Type) (int, error) {
	restored := 0
	now := time.Now()
	for _, t := range types {
		for _, st := range []jobs.Status{jobs.StatusWaiting, jobs.StatusDelayed} {
			list, err := s.ListByStatus(ctx, st, t, 0)
			if err != nil {
				return restored, fmt.Errorf("rebuild %s/%s: %w", t, st, err)
			}
			for _, j := range list {
				ok, err := q.Contains(ctx, t, j.ID)
				if err != nil {
					return restored, fmt.Errorf("rebuild %s: %w", j.ID, err)
				}
				if ok {
					continue
				}
				if err := restore(ctx, q, j, now); err != nil {
					return restored, fmt.Errorf("rebuild %s: %w", j.ID, err)
				}
				restored++
			}
		}
	}
	if restored > 0 {
		logging.Info().Int("restored", restored).Msg("Queue rebuilt from job store")
	}
	return restored, nil
}

// restore adds one missing entry. Delayed jobs always go to the delayed set,
// even when due, so the promoter performs their store transition.
func restore(ctx context.Context, q Queue, j *jobs.Job, now time.Time) error {
	if j.Status == jobs.StatusWaiting {
		return q.Enqueue(ctx, j.Type, j.ID, now)
	}
	var delay time.Duration
	if j.RunAt != nil && j.RunAt.After(now) {
		delay = j.RunAt.Sub(now)
	}
	return q.Requeue(ctx, j.Type, j.ID, delay)
}
