// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
)

// BreakerConfig tunes the circuit breaker in front of a Store.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MinRequests and FailureRatio decide when to trip.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig returns settings suited to a local Redis.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "job-store",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      15 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerStore fails fast with jobs.ErrStoreUnavailable while the backend is
// unhealthy. NotFound, Conflict and caller cancellation count as successes:
// they are answers from a working store.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// WithBreaker wraps next in a circuit breaker.
func WithBreaker(next Store, cfg BreakerConfig) *BreakerStore {
	name := cfg.Name
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Opening job store circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Job store circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, jobs.ErrNotFound) ||
				errors.Is(err, jobs.ErrConflict) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &BreakerStore{next: next, cb: cb, name: name}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State exposes the breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if err == nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
		return res, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, jobs.Unavailable(op, err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.cb.Counts().ConsecutiveFailures))
	return res, err
}

func (b *BreakerStore) Put(ctx context.Context, job *jobs.Job) error {
	_, err := b.execute("put", func() (interface{}, error) {
		return nil, b.next.Put(ctx, job)
	})
	return err
}

func (b *BreakerStore) Create(ctx context.Context, job *jobs.Job) error {
	_, err := b.execute("create", func() (interface{}, error) {
		return nil, b.next.Create(ctx, job)
	})
	return err
}

func (b *BreakerStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	return castJob(b.execute("get", func() (interface{}, error) {
		return b.next.Get(ctx, id)
	}))
}

func (b *BreakerStore) UpdateStatus(ctx context.Context, id string, from, to jobs.Status, patch jobs.Patch) (*jobs.Job, error) {
	return castJob(b.execute("update status", func() (interface{}, error) {
		return b.next.UpdateStatus(ctx, id, from, to, patch)
	}))
}

func (b *BreakerStore) SetProgress(ctx context.Context, id string, attempt, percent int) error {
	_, err := b.execute("set progress", func() (interface{}, error) {
		return nil, b.next.SetProgress(ctx, id, attempt, percent)
	})
	return err
}

func (b *BreakerStore) CountByStatus(ctx context.Context, jobType jobs.Type) (jobs.Counts, error) {
	res, err := b.execute("count", func() (interface{}, error) {
		return b.next.CountByStatus(ctx, jobType)
	})
	if err != nil {
		return jobs.Counts{}, err
	}
	c, ok := res.(jobs.Counts)
	if !ok {
		return jobs.Counts{}, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return c, nil
}

func (b *BreakerStore) ListByStatus(ctx context.Context, status jobs.Status, jobType jobs.Type, limit int) ([]*jobs.Job, error) {
	res, err := b.execute("list", func() (interface{}, error) {
		return b.next.ListByStatus(ctx, status, jobType, limit)
	})
	if err != nil {
		return nil, err
	}
	list, ok := res.([]*jobs.Job)
	if !ok && res != nil {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return list, nil
}

func (b *BreakerStore) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	res, err := b.execute("sweep", func() (interface{}, error) {
		return b.next.SweepExpired(ctx, retention)
	})
	n, _ := res.(int)
	return n, err
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	_, err := b.execute("ping", func() (interface{}, error) {
		return nil, b.next.Ping(ctx)
	})
	return err
}

func (b *BreakerStore) Close() error {
	return b.next.Close()
}

func castJob(res interface{}, err error) (*jobs.Job, error) {
	if err != nil {
		return nil, err
	}
	j, ok := res.(*jobs.Job)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return j, nil
}
