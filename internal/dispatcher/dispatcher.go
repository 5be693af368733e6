// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package dispatcher runs registered job handlers on a fixed pool of slots.
//
// A slot claims work by popping an ID from the queue and winning the store's
// waiting->active compare-and-swap. It then runs the handler under the job
// timeout and settles the attempt: completed, delayed for a retry with
// exponential backoff, or failed once attempts are exhausted. Every settle
// is conditional on the attempt number, so a slow worker can never overwrite
// the outcome of an attempt that was reaped and claimed again.
//
// Four maintenance services run beside the slots:
//   - Promoter moves due delayed jobs back to waiting
//   - Reconciler restores queue entries lost to failed queue writes
//   - Reaper recovers active jobs whose worker died
//   - Sweeper deletes terminal jobs past the retention period
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
	"github.com/tomtom215/docqueue/internal/queue"
	"github.com/tomtom215/docqueue/internal/store"
)

// Config tunes the worker pool and its maintenance loops.
type Config struct {
	// Concurrency is the number of slots, and so the maximum number of
	// handlers the dispatcher waits on at once.
	Concurrency int
	// PollInterval is the idle sleep when no type has work.
	PollInterval time.Duration
	// JobTimeout bounds one handler attempt.
	JobTimeout time.Duration

	// ReapInterval and ReapGrace drive the reaper: an active job whose
	// attempt started more than JobTimeout+ReapGrace ago is presumed orphaned.
	ReapInterval time.Duration
	ReapGrace    time.Duration

	PromoteInterval time.Duration
	PromoteBatch    int

	// ReconcileInterval drives the reconciler, which re-adds queue entries
	// for waiting and delayed jobs whose entry was lost.
	ReconcileInterval time.Duration

	SweepInterval time.Duration
	Retention     time.Duration

	// SettleTimeout bounds how long a settle write is retried while the
	// store is unavailable. Past it the job stays active for the reaper.
	SettleTimeout time.Duration

	Backoff BackoffConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		PollInterval:      time.Second,
		JobTimeout:        10 * time.Minute,
		ReapInterval:      30 * time.Second,
		ReapGrace:         30 * time.Second,
		PromoteInterval:   time.Second,
		PromoteBatch:      100,
		ReconcileInterval: time.Minute,
		SweepInterval:     time.Hour,
		Retention:         7 * 24 * time.Hour,
		SettleTimeout:     5 * time.Minute,
		Backoff:           DefaultBackoffConfig(),
	}
}

// Dispatcher owns the worker slots.
type Dispatcher struct {
	store    store.Store
	queue    queue.Queue
	registry *jobs.Registry
	events   events.Publisher
	cfg      Config
	types    []jobs.Type
	now      func() time.Time

	busy atomic.Int64
}

// New builds a dispatcher for every type in registry. A nil publisher
// discards events.
func New(s store.Store, q queue.Queue, registry *jobs.Registry, pub events.Publisher, cfg Config) *Dispatcher {
	if pub == nil {
		pub = events.Discard
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PromoteBatch < 1 {
		cfg.PromoteBatch = 100
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	return &Dispatcher{
		store:    s,
		queue:    q,
		registry: registry,
		events:   pub,
		cfg:      cfg,
		types:    registry.Types(),
		now:      time.Now,
	}
}

// Busy returns how many slots are running a handler.
func (d *Dispatcher) Busy() int64 {
	return d.busy.Load()
}

// Serve runs the slots until ctx is cancelled. Implements suture.Service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if len(d.types) == 0 {
		return fmt.Errorf("dispatcher: no job handlers registered")
	}
	logging.Info().
		Int("concurrency", d.cfg.Concurrency).
		Int("types", len(d.types)).
		Dur("job_timeout", d.cfg.JobTimeout).
		Msg("Dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			d.runSlot(ctx, slot)
		}(i)
	}
	wg.Wait()
	logging.Info().Msg("Dispatcher stopped")
	return ctx.Err()
}

func (d *Dispatcher) String() string { return "dispatcher" }

// runSlot claims and executes jobs until ctx ends. Each walk over the types
// starts after the type served last, so one busy type cannot starve the rest.
func (d *Dispatcher) runSlot(ctx context.Context, slot int) {
	next := slot % len(d.types)
	for ctx.Err() == nil {
		j, served, err := d.claim(ctx, next)
		if err != nil {
			if ctx.Err() == nil {
				logging.Warn().Err(err).Int("slot", slot).Msg("Claim failed; backing off")
			}
			sleep(ctx, jittered(d.cfg.PollInterval))
			continue
		}
		if j == nil {
			sleep(ctx, jittered(d.cfg.PollInterval))
			continue
		}
		d.execute(ctx, j)
		next = (served + 1) % len(d.types)
	}
}

// claim walks the types from start and returns the first job it wins,
// along with the index of its type. A nil job with nil error means idle.
func (d *Dispatcher) claim(ctx context.Context, start int) (*jobs.Job, int, error) {
	n := len(d.types)
	for k := 0; k < n; k++ {
		idx := (start + k) % n
		t := d.types[idx]
		for {
			id, err := d.queue.ClaimNext(ctx, t)
			if errors.Is(err, queue.ErrEmpty) {
				break
			}
			if err != nil {
				return nil, 0, err
			}

			j, err := d.store.UpdateStatus(ctx, id, jobs.StatusWaiting, jobs.StatusActive, jobs.Patch{
				IncrementAttempts: true,
				ClaimedAt:         jobs.TimePtr(d.now()),
				Progress:          jobs.IntPtr(0),
				ClearError:        true,
				ClearRunAt:        true,
			})
			switch {
			case err == nil:
				metrics.JobsClaimed.WithLabelValues(string(t)).Inc()
				return j, idx, nil
			case errors.Is(err, jobs.ErrConflict), errors.Is(err, jobs.ErrNotFound):
				// Stale entry: cancelled, swept, or claimed elsewhere.
				metrics.ClaimConflicts.Inc()
				continue
			default:
				// Put the candidate back at the head so the outage costs it
				// neither its entry nor its place.
				if qerr := d.queue.PushFront(ctx, t, id); qerr != nil {
					logging.Warn().Err(qerr).Str("job_id", id).Msg("Failed to return job to queue; reconciler will restore it")
				}
				return nil, 0, err
			}
		}
	}
	return nil, 0, nil
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
