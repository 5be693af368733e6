// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package status answers read-only questions about jobs: where one job is,
// and how a job type is doing overall.
package status

import (
	"context"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/docqueue/internal/cache"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/store"
)

// JobStatus is the polling view of one job.
type JobStatus struct {
	ID          string          `json:"id"`
	Type        jobs.Type       `json:"type"`
	Status      jobs.Status     `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	RunAt       *time.Time      `json:"runAt,omitempty"`
}

// Metrics summarizes one job type, or all types when Type is empty.
type Metrics struct {
	Type      jobs.Type `json:"type,omitempty"`
	Waiting   int64     `json:"waiting"`
	Active    int64     `json:"active"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
	Delayed   int64     `json:"delayed"`
	// ProcessingRate is completed/(completed+failed) as a percentage,
	// rounded to two decimals; 0 when nothing has finished.
	ProcessingRate float64 `json:"processingRate"`
}

// Service reads job state. It never writes.
type Service struct {
	store   store.Store
	metrics *cache.Cache[jobs.Type, Metrics]
}

// Option configures a Service.
type Option func(*Service)

// WithMetricsCache serves GetMetrics from a cache for ttl. Job status reads
// are never cached.
func WithMetricsCache(ttl time.Duration) Option {
	return func(s *Service) {
		s.metrics = cache.New[jobs.Type, Metrics](ttl)
	}
}

// NewService returns a status service over s.
func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{store: s}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetJobStatus returns the current view of job id, or jobs.ErrNotFound.
func (s *Service) GetJobStatus(ctx context.Context, id string) (*JobStatus, error) {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromJob(j), nil
}

// FromJob projects a job record onto the polling view. Result and error
// only appear on the terminal status they belong to.
func FromJob(j *jobs.Job) *JobStatus {
	st := &JobStatus{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		RunAt:       j.RunAt,
	}
	switch j.Status {
	case jobs.StatusCompleted:
		st.Result = j.Result
	case jobs.StatusFailed, jobs.StatusDelayed:
		// A delayed job carries the error of the attempt that will be retried.
		st.Error = j.Error
	}
	return st
}

// GetMetrics counts jobs of type t by status. An empty t covers every type.
func (s *Service) GetMetrics(ctx context.Context, t jobs.Type) (*Metrics, error) {
	if s.metrics != nil {
		if m, ok := s.metrics.Get(t); ok {
			return &m, nil
		}
	}
	c, err := s.store.CountByStatus(ctx, t)
	if err != nil {
		return nil, err
	}
	m := Metrics{
		Type:           t,
		Waiting:        c.Waiting,
		Active:         c.Active,
		Completed:      c.Completed,
		Failed:         c.Failed,
		Delayed:        c.Delayed,
		ProcessingRate: ProcessingRate(c.Completed, c.Failed),
	}
	if s.metrics != nil {
		s.metrics.Set(t, m)
	}
	return &m, nil
}

// ProcessingRate returns completed/(completed+failed)*100 rounded to two
// decimals, or 0 when both are zero.
func ProcessingRate(completed, failed int64) float64 {
	total := completed + failed
	if total <= 0 {
		return 0
	}
	rate := float64(completed) / float64(total) * 100
	return math.Round(rate*100) / 100
}
