// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// MemoryStore keeps jobs in a map guarded by a mutex. Records do not survive
// a restart; use it for tests and local runs only.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*jobs.Job
	now    func() time.Time
	closed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*jobs.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, job *jobs.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobs.Unavailable("put", errClosed)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, job *jobs.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobs.Unavailable("create", errClosed)
	}
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("create %s: %w", job.ID, jobs.ErrExists)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, jobs.Unavailable("get", errClosed)
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to jobs.Status, patch jobs.Patch) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, jobs.Unavailable("update status", errClosed)
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	if err := checkTransition(j, from, patch); err != nil {
		return nil, err
	}
	patch.Apply(j, to, s.now().UTC())
	return j.Clone(), nil
}

func (s *MemoryStore) SetProgress(ctx context.Context, id string, attempt, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobs.Unavailable("set progress", errClosed)
	}
	j, ok := s.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if err := checkProgress(j, attempt); err != nil {
		return err
	}
	if p := jobs.ClampProgress(percent); p > j.Progress {
		j.Progress = p
		j.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, jobType jobs.Type) (jobs.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c jobs.Counts
	if s.closed {
		return c, jobs.Unavailable("count", errClosed)
	}
	for _, j := range s.jobs {
		if jobType == "" || j.Type == jobType {
			c.Add(j.Status, 1)
		}
	}
	return c, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status jobs.Status, jobType jobs.Type, limit int) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, jobs.Unavailable("list", errClosed)
	}
	var out []*jobs.Job
	for _, j := range s.jobs {
		if j.Status == status && (jobType == "" || j.Type == jobType) {
			out = append(out, j.Clone())
		}
	}
	sortOldestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, jobs.Unavailable("sweep", errClosed)
	}
	cutoff := s.now().Add(-retention)
	removed := 0
	for id, j := range s.jobs {
		if sweepable(j, cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return jobs.Unavailable("ping", errClosed)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
