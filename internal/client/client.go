// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package client is the producer side of the queue: it accepts new jobs and
// cancels jobs that have not started.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
	"github.com/tomtom215/docqueue/internal/queue"
	"github.com/tomtom215/docqueue/internal/store"
)

const (
	// MaxAttemptsLimit is the largest per-job attempt ceiling accepted.
	MaxAttemptsLimit = 25
	// MaxDelay is the furthest in the future a job may be scheduled.
	MaxDelay = 30 * 24 * time.Hour

	cancelRetries = 3
)

// Options tune a single enqueue. The zero value runs the job as soon as a
// slot is free with the default attempt ceiling.
type Options struct {
	// JobID makes the enqueue idempotent: if a job with this ID exists, its
	// ID is returned and nothing is written. Empty means a new UUID.
	JobID string
	// Delay postpones the first attempt.
	Delay time.Duration
	// MaxAttempts overrides the default ceiling when positive.
	MaxAttempts int
}

// Client enqueues and cancels jobs.
type Client struct {
	store       store.Store
	queue       queue.Queue
	registry    *jobs.Registry
	events      events.Publisher
	maxAttempts int
	now         func() time.Time
}

// New returns a client. defaultMaxAttempts applies when Options.MaxAttempts
// is zero; values below 1 fall back to jobs.DefaultMaxAttempts.
func New(s store.Store, q queue.Queue, registry *jobs.Registry, pub events.Publisher, defaultMaxAttempts int) *Client {
	if pub == nil {
		pub = events.Discard
	}
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = jobs.DefaultMaxAttempts
	}
	return &Client{
		store:       s,
		queue:       q,
		registry:    registry,
		events:      pub,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

func (c *Client) validate(t jobs.Type, payload json.RawMessage, opts Options) error {
	if err := c.registry.Validate(t); err != nil {
		return err
	}
	switch {
	case opts.Delay < 0:
		return fmt.Errorf("%w: delay %s is negative", jobs.ErrInvalidOptions, opts.Delay)
	case opts.Delay > MaxDelay:
		return fmt.Errorf("%w: delay %s exceeds %s", jobs.ErrInvalidOptions, opts.Delay, MaxDelay)
	case opts.MaxAttempts < 0 || opts.MaxAttempts > MaxAttemptsLimit:
		return fmt.Errorf("%w: max attempts %d outside 1..%d", jobs.ErrInvalidOptions, opts.MaxAttempts, MaxAttemptsLimit)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return fmt.Errorf("%w: payload is not valid JSON", jobs.ErrInvalidOptions)
	}
	return nil
}

// Enqueue records a new job and makes it claimable, immediately or after
// opts.Delay. The record is written before the queue entry so a claimed ID
// always resolves to a job.
func (c *Client) Enqueue(ctx context.Context, t jobs.Type, payload json.RawMessage, opts Options) (string, error) {
	if err := c.validate(t, payload, opts); err != nil {
		return "", err
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = c.maxAttempts
	}

	now := c.now().UTC()
	j := &jobs.Job{
		ID:          id,
		Type:        t,
		Payload:     payload,
		Status:      jobs.StatusWaiting,
		MaxAttempts: maxAttempts,
		CreatedAt:   *jobs.TimePtr(now),
		UpdatedAt:   *jobs.TimePtr(now),
	}
	var runAt time.Time
	if opts.Delay > 0 {
		runAt = now.Add(opts.Delay)
		j.Status = jobs.StatusDelayed
		j.RunAt = jobs.TimePtr(runAt)
	}

	// Create, not Put: a concurrent enqueue with the same ID must not reset
	// a job that another caller already started or finished.
	if err := c.store.Create(ctx, j); err != nil {
		if errors.Is(err, jobs.ErrExists) {
			logging.Ctx(ctx).Debug().Str("job_id", id).Msg("Duplicate enqueue ignored")
			return id, nil
		}
		return "", fmt.Errorf("enqueue %s: %w", t, err)
	}
	if err := c.queue.Enqueue(ctx, t, id, runAt); err != nil {
		c.abandon(ctx, j, err)
		return "", fmt.Errorf("enqueue %s: %w", t, err)
	}

	metrics.JobsEnqueued.WithLabelValues(string(t)).Inc()
	logging.Ctx(ctx).Info().
		Str("job_id", id).
		Str("job_type", string(t)).
		Str("status", string(j.Status)).
		Int("max_attempts", maxAttempts).
		Msg("Job enqueued")
	c.events.Publish(ctx, events.NewEvent(events.KindEnqueued, j))
	return id, nil
}

// abandon fails a job whose queue entry could not be written, so the caller's
// error is the final word on it.
func (c *Client) abandon(ctx context.Context, j *jobs.Job, cause error) {
	_, err := c.store.UpdateStatus(context.WithoutCancel(ctx), j.ID, j.Status, jobs.StatusFailed, jobs.Patch{
		Error:      jobs.StringPtr("enqueue failed: " + cause.Error()),
		FinishedAt: jobs.TimePtr(c.now()),
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("job_id", j.ID).Msg("Failed to mark unqueued job failed; rebuild will queue it")
	}
}

// Cancel fails a job that has not started. Active and finished jobs are
// left alone and the call returns jobs.ErrConflict.
func (c *Client) Cancel(ctx context.Context, id string) (*jobs.Job, error) {
	for i := 0; ; i++ {
		j, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if j.Status != jobs.StatusWaiting && j.Status != jobs.StatusDelayed {
			return nil, fmt.Errorf("%w: job %s is %s", jobs.ErrConflict, id, j.Status)
		}

		updated, err := c.store.UpdateStatus(ctx, id, j.Status, jobs.StatusFailed, jobs.Patch{
			Error:      jobs.StringPtr(jobs.CancelledReason),
			FinishedAt: jobs.TimePtr(c.now()),
		})
		if errors.Is(err, jobs.ErrConflict) && i < cancelRetries {
			// Promoted or claimed between the read and the swap; look again.
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := c.queue.Remove(ctx, j.Type, id); err != nil {
			// A stale entry is skipped at claim time.
			logging.Ctx(ctx).Warn().Err(err).Str("job_id", id).Msg("Failed to drop cancelled job from queue")
		}
		metrics.JobsCancelled.WithLabelValues(string(j.Type)).Inc()
		logging.Ctx(ctx).Info().Str("job_id", id).Str("job_type", string(j.Type)).Msg("Job cancelled")
		c.events.Publish(ctx, events.NewEvent(events.KindCancelled, updated))
		return updated, nil
	}
}
