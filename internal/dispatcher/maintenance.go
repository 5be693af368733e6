// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
	"github.com/tomtom215/docqueue/internal/queue"
)

// reapBatch caps how many active jobs one reaper pass inspects.
const reapBatch = 500

// Periodic is a maintenance task run as its own supervised service.
type Periodic struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
}

func (t *Periodic) Serve(ctx context.Context) error {
	logging.Debug().Str("service", t.name).Dur("interval", t.interval).Msg("Maintenance service started")
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		if err := t.tick(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Str("service", t.name).Msg("Maintenance pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}
	}
}

func (t *Periodic) String() string { return t.name }

// Promoter returns the service that moves due delayed jobs to waiting.
func (d *Dispatcher) Promoter() *Periodic {
	return &Periodic{name: "promoter", interval: d.cfg.PromoteInterval, tick: d.PromoteDue}
}

// Reconciler returns the service that restores lost queue entries.
func (d *Dispatcher) Reconciler() *Periodic {
	return &Periodic{name: "reconciler", interval: d.cfg.ReconcileInterval, tick: d.Reconcile}
}

// Reaper returns the service that recovers orphaned active jobs.
func (d *Dispatcher) Reaper() *Periodic {
	return &Periodic{name: "reaper", interval: d.cfg.ReapInterval, tick: d.ReapOrphaned}
}

// Sweeper returns the service that deletes expired terminal jobs.
func (d *Dispatcher) Sweeper() *Periodic {
	return &Periodic{name: "sweeper", interval: d.cfg.SweepInterval, tick: d.Sweep}
}

// PromoteDue makes every due delayed job claimable again. The store record
// moves first; the queue entry follows, so a crash in between leaves a
// waiting job that a queue rebuild restores.
func (d *Dispatcher) PromoteDue(ctx context.Context) error {
	var firstErr error
	for _, t := range d.types {
		n, err := d.promoteType(ctx, t)
		if n > 0 {
			metrics.JobsPromoted.WithLabelValues(string(t)).Add(float64(n))
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) promoteType(ctx context.Context, t jobs.Type) (int, error) {
	ids, err := d.queue.DueDelayed(ctx, t, d.now(), d.cfg.PromoteBatch)
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		_, err := d.store.UpdateStatus(ctx, id, jobs.StatusDelayed, jobs.StatusWaiting, jobs.Patch{ClearRunAt: true})
		switch {
		case err == nil:
		case errors.Is(err, jobs.ErrNotFound):
			if err := d.queue.Remove(ctx, t, id); err != nil {
				return promoted, err
			}
			continue
		case errors.Is(err, jobs.ErrConflict):
			j, gerr := d.store.Get(ctx, id)
			if gerr != nil && !errors.Is(gerr, jobs.ErrNotFound) {
				return promoted, gerr
			}
			if gerr != nil || j.Status != jobs.StatusWaiting {
				// Cancelled or already running: the delayed entry is stale.
				if err := d.queue.Remove(ctx, t, id); err != nil {
					return promoted, err
				}
				continue
			}
		default:
			return promoted, err
		}

		ok, err := d.queue.Promote(ctx, t, id)
		if err != nil {
			return promoted, err
		}
		if !ok {
			// The delayed entry is gone; make sure the job is still reachable.
			in, err := d.queue.Contains(ctx, t, id)
			if err != nil {
				return promoted, err
			}
			if !in {
				if err := d.queue.Enqueue(ctx, t, id, time.Time{}); err != nil {
					return promoted, err
				}
			}
		}
		promoted++
	}
	return promoted, nil
}

// Reconcile gives every waiting or delayed job without a queue entry a new
// one. Queue writes that fail after their store transition leave such jobs
// behind; without this they would wait for the next restart.
func (d *Dispatcher) Reconcile(ctx context.Context) error {
	n, err := queue.Rebuild(ctx, d.store, d.queue, d.types)
	if n > 0 {
		metrics.QueueEntriesRestored.Add(float64(n))
	}
	return err
}

// ReapOrphaned settles active jobs whose attempt outlived the job timeout
// plus the grace period. The attempt counts as a timed-out failure and is
// retried or failed like any other.
func (d *Dispatcher) ReapOrphaned(ctx context.Context) error {
	active, err := d.store.ListByStatus(ctx, jobs.StatusActive, "", reapBatch)
	if err != nil {
		return err
	}
	deadline := d.now().Add(-(d.cfg.JobTimeout + d.cfg.ReapGrace))
	for _, j := range active {
		if j.ClaimedAt == nil || !j.ClaimedAt.Before(deadline) {
			continue
		}
		logging.Ctx(logging.ContextWithJob(ctx, j.ID, string(j.Type))).Warn().
			Int("attempt", j.Attempts).
			Time("claimed_at", *j.ClaimedAt).
			Msg("Reaping orphaned job")
		metrics.JobsReaped.WithLabelValues(string(j.Type)).Inc()
		d.settle(ctx, j, nil, &jobs.TimeoutError{Timeout: d.cfg.JobTimeout, Reaped: true})
	}
	return nil
}

// Sweep deletes terminal jobs that finished before the retention window.
func (d *Dispatcher) Sweep(ctx context.Context) error {
	n, err := d.store.SweepExpired(ctx, d.cfg.Retention)
	if n > 0 {
		metrics.JobsSwept.Add(float64(n))
		logging.Info().Int("removed", n).Dur("retention", d.cfg.Retention).Msg("Swept expired jobs")
	}
	return err
}
