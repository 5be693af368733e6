// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
)

// errInterrupted is the attempt error when the worker shuts down mid-run.
var errInterrupted = errors.New("worker shut down during attempt")

type attemptResult struct {
	out json.RawMessage
	err error
}

// execute runs one claimed attempt and settles it. The slot is released at
// the timeout even when the handler ignores its context; the orphaned
// goroutine's late result is discarded.
func (d *Dispatcher) execute(ctx context.Context, j *jobs.Job) {
	d.busy.Add(1)
	metrics.DispatcherBusySlots.Inc()
	defer func() {
		d.busy.Add(-1)
		metrics.DispatcherBusySlots.Dec()
	}()

	jobCtx := logging.ContextWithJob(ctx, j.ID, string(j.Type))
	log := logging.Ctx(jobCtx)
	log.Info().Int("attempt", j.Attempts).Int("max_attempts", j.MaxAttempts).Msg("Job started")
	d.events.Publish(jobCtx, events.NewEvent(events.KindActive, j))

	res := d.run(jobCtx, j)
	// A handler that returns its own ctx error at shutdown was interrupted too.
	if errors.Is(res.err, errInterrupted) || (res.err != nil && ctx.Err() != nil) {
		d.release(ctx, j)
		return
	}
	d.settle(ctx, j, res.out, res.err)
}

// release gives an attempt cut short by shutdown back to the queue. The job
// returns to waiting at the head of its type and the attempt is refunded,
// so a restart never turns the last attempt into a failure.
func (d *Dispatcher) release(ctx context.Context, j *jobs.Job) {
	log := logging.Ctx(logging.ContextWithJob(ctx, j.ID, string(j.Type)))
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SettleTimeout)
	defer cancel()

	updated, err := d.transition(relCtx, j.ID, jobs.StatusActive, jobs.StatusWaiting, jobs.Patch{
		ExpectAttempts: j.Attempts,
		RefundAttempt:  true,
		Progress:       jobs.IntPtr(0),
	})
	if errors.Is(err, jobs.ErrConflict) || errors.Is(err, jobs.ErrNotFound) {
		log.Info().Int("attempt", j.Attempts).Msg("Attempt superseded; nothing to release")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to release job at shutdown; reaper will recover it")
		return
	}
	if err := d.queue.PushFront(relCtx, j.Type, j.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to requeue released job; reconciler will restore it")
	}
	metrics.JobsReleased.WithLabelValues(string(j.Type)).Inc()
	log.Info().Int("attempt", j.Attempts).Msg("Job released at shutdown")
	d.events.Publish(relCtx, events.NewEvent(events.KindReleased, updated))
}

func (d *Dispatcher) run(ctx context.Context, j *jobs.Job) attemptResult {
	h, ok := d.registry.Lookup(j.Type)
	if !ok {
		return attemptResult{err: jobs.Permanent(fmt.Errorf("%w: %s", jobs.ErrUnknownType, j.Type))}
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
	defer cancel()

	reporter := &progressReporter{d: d, job: j}
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		out, err := h.Handle(runCtx, j.Payload, reporter)
		if err != nil {
			err = &jobs.HandlerError{Type: j.Type, Err: err}
		}
		done <- attemptResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return attemptResult{err: errInterrupted}
		}
		return attemptResult{err: &jobs.TimeoutError{Timeout: d.cfg.JobTimeout}}
	}
}

// settle records the outcome of attempt j.Attempts. It survives shutdown of
// ctx so that a finished attempt is not left active.
func (d *Dispatcher) settle(ctx context.Context, j *jobs.Job, out json.RawMessage, herr error) {
	log := logging.Ctx(logging.ContextWithJob(ctx, j.ID, string(j.Type)))
	now := d.now()
	var elapsed time.Duration
	if j.ClaimedAt != nil {
		elapsed = now.Sub(*j.ClaimedAt)
	}

	var (
		to      jobs.Status
		patch   = jobs.Patch{ExpectAttempts: j.Attempts}
		outcome string
		delay   time.Duration
	)
	switch {
	case herr == nil:
		to = jobs.StatusCompleted
		outcome = metrics.OutcomeCompleted
		patch.Progress = jobs.IntPtr(jobs.MaxProgress)
		patch.Result = out
		patch.ClearError = true
		patch.FinishedAt = jobs.TimePtr(now)
	case jobs.IsPermanent(herr) || !j.CanRetry():
		to = jobs.StatusFailed
		outcome = metrics.OutcomeFailed
		var te *jobs.TimeoutError
		if errors.As(herr, &te) {
			outcome = metrics.OutcomeTimeout
		}
		patch.Error = jobs.StringPtr(herr.Error())
		patch.FinishedAt = jobs.TimePtr(now)
	default:
		to = jobs.StatusDelayed
		outcome = metrics.OutcomeRetried
		delay = d.cfg.Backoff.Delay(j.Attempts)
		patch.Error = jobs.StringPtr(herr.Error())
		patch.RunAt = jobs.TimePtr(now.Add(delay))
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SettleTimeout)
	defer cancel()

	updated, err := d.transition(settleCtx, j.ID, jobs.StatusActive, to, patch)
	if errors.Is(err, jobs.ErrConflict) || errors.Is(err, jobs.ErrNotFound) {
		// The attempt was reaped or the job removed; its outcome no longer counts.
		log.Info().Int("attempt", j.Attempts).Msg("Attempt superseded; result discarded")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("to", string(to)).Msg("Failed to settle job; reaper will recover it")
		return
	}
	metrics.RecordAttempt(string(j.Type), outcome, elapsed)

	switch to {
	case jobs.StatusCompleted:
		log.Info().Dur("elapsed", elapsed).Msg("Job completed")
		d.events.Publish(ctx, events.NewEvent(events.KindCompleted, updated))
	case jobs.StatusFailed:
		log.Warn().Err(herr).Int("attempt", j.Attempts).Msg("Job failed")
		d.events.Publish(ctx, events.NewEvent(events.KindFailed, updated))
	case jobs.StatusDelayed:
		log.Warn().Err(herr).Int("attempt", j.Attempts).Dur("retry_in", delay).Msg("Job attempt failed; retrying")
		if err := d.retryStore(settleCtx, func() error {
			return d.queue.Requeue(settleCtx, j.Type, j.ID, delay)
		}); err != nil {
			log.Error().Err(err).Msg("Failed to schedule retry; reconciler will restore it")
		}
		d.events.Publish(ctx, events.NewEvent(events.KindRetrying, updated))
	}
}

// transition wraps UpdateStatus in retries while the store is unavailable.
func (d *Dispatcher) transition(ctx context.Context, id string, from, to jobs.Status, patch jobs.Patch) (*jobs.Job, error) {
	return backoff.Retry(ctx, func() (*jobs.Job, error) {
		j, err := d.store.UpdateStatus(ctx, id, from, to, patch)
		if err != nil && !errors.Is(err, jobs.ErrStoreUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return j, err
	}, d.retryOptions()...)
}

// retryStore retries op while it reports the store unavailable.
func (d *Dispatcher) retryStore(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !errors.Is(err, jobs.ErrStoreUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, d.retryOptions()...)
	return err
}

func (d *Dispatcher) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(d.cfg.SettleTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.SettleRetries.Inc()
			logging.Warn().Err(err).Dur("next", next).Msg("Job store unavailable; retrying")
		}),
	}
}

// progressReporter is bound to one attempt. Reports from a superseded
// attempt fail with jobs.ErrConflict.
type progressReporter struct {
	d   *Dispatcher
	job *jobs.Job
}

func (p *progressReporter) Report(ctx context.Context, percent int) error {
	percent = jobs.ClampProgress(percent)
	if err := p.d.store.SetProgress(ctx, p.job.ID, p.job.Attempts, percent); err != nil {
		return err
	}
	ev := events.NewEvent(events.KindProgress, p.job)
	ev.Progress = percent
	p.d.events.Publish(ctx, ev)
	return nil
}
