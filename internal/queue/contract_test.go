// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

const (
	docs = jobs.TypeDocumentIngest
	pods = jobs.TypePodcastGenerate
)

func runQueueContract(t *testing.T, open func(t *testing.T) Queue) {
	ctx := context.Background()

	t.Run("pending is fifo per type", func(t *testing.T) {
		q := open(t)
		now := time.Now()
		for _, id := range []string{"a", "b", "c"} {
			if err := q.Enqueue(ctx, docs, id, now); err != nil {
				t.Fatal(err)
			}
		}
		if err := q.Enqueue(ctx, pods, "p", now); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"a", "b", "c"} {
			got, err := q.ClaimNext(ctx, docs)
			if err != nil || got != want {
				t.Fatalf("ClaimNext() = %q, %v; want %q", got, err, want)
			}
		}
		if _, err := q.ClaimNext(ctx, docs); !errors.Is(err, ErrEmpty) {
			t.Errorf("ClaimNext() on drained type error = %v, want ErrEmpty", err)
		}
		if got, _ := q.ClaimNext(ctx, pods); got != "p" {
			t.Errorf("ClaimNext(podcast) = %q, want p", got)
		}
	})

	t.Run("push front keeps a popped id first", func(t *testing.T) {
		q := open(t)
		now := time.Now()
		for _, id := range []string{"a", "b"} {
			if err := q.Enqueue(ctx, docs, id, now); err != nil {
				t.Fatal(err)
			}
		}
		got, err := q.ClaimNext(ctx, docs)
		if err != nil || got != "a" {
			t.Fatalf("ClaimNext() = %q, %v; want a", got, err)
		}
		if err := q.PushFront(ctx, docs, "a"); err != nil {
			t.Fatalf("PushFront() error = %v", err)
		}
		for _, want := range []string{"a", "b"} {
			if got, _ := q.ClaimNext(ctx, docs); got != want {
				t.Fatalf("ClaimNext() = %q, want %q", got, want)
			}
		}
	})

	t.Run("delayed entries wait for promotion", func(t *testing.T) {
		q := open(t)
		now := time.Now()
		if err := q.Enqueue(ctx, docs, "later", now.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := q.Requeue(ctx, docs, "soon", 0); err != nil {
			t.Fatal(err)
		}
		if _, err := q.ClaimNext(ctx, docs); !errors.Is(err, ErrEmpty) {
			t.Errorf("delayed entries must not be claimable, got %v", err)
		}

		due, err := q.DueDelayed(ctx, docs, time.Now().Add(time.Second), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(due) != 1 || due[0] != "soon" {
			t.Fatalf("DueDelayed() = %v, want [soon]", due)
		}

		ok, err := q.Promote(ctx, docs, "soon")
		if err != nil || !ok {
			t.Fatalf("Promote() = %v, %v; want true", ok, err)
		}
		ok, err = q.Promote(ctx, docs, "soon")
		if err != nil || ok {
			t.Errorf("second Promote() = %v, %v; want false", ok, err)
		}
		if got, _ := q.ClaimNext(ctx, docs); got != "soon" {
			t.Errorf("ClaimNext() after promote = %q, want soon", got)
		}

		pending, delayed, err := q.Depth(ctx, docs)
		if err != nil {
			t.Fatal(err)
		}
		if pending != 0 || delayed != 1 {
			t.Errorf("Depth() = %d/%d, want 0/1", pending, delayed)
		}
	})

	t.Run("due delayed is ordered and limited", func(t *testing.T) {
		q := open(t)
		if err := q.Requeue(ctx, docs, "second", 20*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		if err := q.Requeue(ctx, docs, "first", 10*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		if err := q.Requeue(ctx, docs, "third", 30*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		due, err := q.DueDelayed(ctx, docs, time.Now().Add(time.Second), 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(due) != 2 || due[0] != "first" || due[1] != "second" {
			t.Errorf("DueDelayed(limit 2) = %v, want [first second]", due)
		}
	})

	t.Run("contains and remove", func(t *testing.T) {
		q := open(t)
		now := time.Now()
		if err := q.Enqueue(ctx, docs, "p1", now); err != nil {
			t.Fatal(err)
		}
		if err := q.Requeue(ctx, docs, "d1", time.Minute); err != nil {
			t.Fatal(err)
		}
		for _, id := range []string{"p1", "d1"} {
			if ok, err := q.Contains(ctx, docs, id); err != nil || !ok {
				t.Errorf("Contains(%s) = %v, %v; want true", id, ok, err)
			}
		}
		if ok, _ := q.Contains(ctx, pods, "p1"); ok {
			t.Error("Contains() must be scoped to the job type")
		}
		for _, id := range []string{"p1", "d1"} {
			if err := q.Remove(ctx, docs, id); err != nil {
				t.Fatal(err)
			}
			if ok, _ := q.Contains(ctx, docs, id); ok {
				t.Errorf("Contains(%s) after Remove = true", id)
			}
		}
		pending, delayed, _ := q.Depth(ctx, docs)
		if pending != 0 || delayed != 0 {
			t.Errorf("Depth() after removes = %d/%d, want 0/0", pending, delayed)
		}
	})
}
