// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/store"
)

func TestMemoryQueue(t *testing.T) {
	runQueueContract(t, func(t *testing.T) Queue {
		return NewMemoryQueue()
	})
}

func TestMemoryQueueRescheduleKeepsOneEntry(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	if err := q.Requeue(ctx, docs, "x", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := q.Requeue(ctx, docs, "x", 0); err != nil {
		t.Fatal(err)
	}
	_, delayed, _ := q.Depth(ctx, docs)
	if delayed != 1 {
		t.Errorf("delayed depth = %d, want 1", delayed)
	}
	due, _ := q.DueDelayed(ctx, docs, time.Now().Add(time.Millisecond), 0)
	if len(due) != 1 {
		t.Errorf("rescheduled entry should be due, got %v", due)
	}
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	now := time.Now()

	put := func(id string, st jobs.Status, runAt *time.Time) {
		t.Helper()
		j := &jobs.Job{
			ID: id, Type: docs, Status: st, MaxAttempts: 3,
			CreatedAt: now, UpdatedAt: now, RunAt: runAt,
		}
		if err := s.Put(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	put("w1", jobs.StatusWaiting, nil)
	put("w2", jobs.StatusWaiting, nil)
	put("d1", jobs.StatusDelayed, jobs.TimePtr(now.Add(time.Hour)))
	put("d2", jobs.StatusDelayed, jobs.TimePtr(now.Add(-time.Minute)))
	put("done", jobs.StatusCompleted, nil)

	q := NewMemoryQueue()
	if err := q.Enqueue(ctx, docs, "w1", now); err != nil {
		t.Fatal(err)
	}

	restored, err := Rebuild(ctx, s, q, []jobs.Type{docs, pods})
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if restored != 3 {
		t.Errorf("Rebuild() restored %d, want 3", restored)
	}
	pending, delayed, _ := q.Depth(ctx, docs)
	if pending != 2 || delayed != 2 {
		t.Errorf("Depth() = %d/%d, want 2/2", pending, delayed)
	}
	due, _ := q.DueDelayed(ctx, docs, time.Now(), 0)
	if len(due) != 1 || due[0] != "d2" {
		t.Errorf("DueDelayed() = %v, want [d2]", due)
	}

	again, err := Rebuild(ctx, s, q, []jobs.Type{docs})
	if err != nil || again != 0 {
		t.Errorf("second Rebuild() = %d, %v; want 0", again, err)
	}
}
