// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// newJob builds a waiting job with microsecond timestamps.
func newJob(id string, typ jobs.Type, created time.Time) *jobs.Job {
	c := *jobs.TimePtr(created)
	return &jobs.Job{
		ID:          id,
		Type:        typ,
		Payload:     []byte(`{"classroomId":"c1"}`),
		Status:      jobs.StatusWaiting,
		MaxAttempts: 3,
		CreatedAt:   c,
		UpdatedAt:   c,
	}
}

func claimPatch(at time.Time) jobs.Patch {
	return jobs.Patch{
		IncrementAttempts: true,
		ClaimedAt:         jobs.TimePtr(at),
		Progress:          jobs.IntPtr(0),
		ClearError:        true,
	}
}

func mustPut(t *testing.T, s Store, j *jobs.Job) {
	t.Helper()
	if err := s.Put(context.Background(), j); err != nil {
		t.Fatalf("Put(%s) error = %v", j.ID, err)
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	t.Run("put and get", func(t *testing.T) {
		s := open(t)
		j := newJob("put-1", jobs.TypeDocumentIngest, base)
		mustPut(t, s, j)

		got, err := s.Get(ctx, "put-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != j.ID || got.Type != j.Type || got.Status != jobs.StatusWaiting {
			t.Errorf("Get() = %+v, want %+v", got, j)
		}
		if string(got.Payload) != string(j.Payload) {
			t.Errorf("Payload = %s, want %s", got.Payload, j.Payload)
		}
		if !got.CreatedAt.Equal(j.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, j.CreatedAt)
		}
		if got.MaxAttempts != 3 || got.Attempts != 0 {
			t.Errorf("attempts = %d/%d, want 0/3", got.Attempts, got.MaxAttempts)
		}

		got.Status = jobs.StatusFailed
		again, _ := s.Get(ctx, "put-1")
		if again.Status != jobs.StatusWaiting {
			t.Error("mutating a returned job changed the stored record")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, jobs.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put rejects invalid records", func(t *testing.T) {
		s := open(t)
		bad := newJob("", jobs.TypeDocumentIngest, base)
		if err := s.Put(ctx, bad); err == nil {
			t.Error("Put() with empty id should fail")
		}
		bad = newJob("x", jobs.TypeDocumentIngest, base)
		bad.Status = "paused"
		if err := s.Put(ctx, bad); err == nil {
			t.Error("Put() with invalid status should fail")
		}
	})

	t.Run("create never overwrites", func(t *testing.T) {
		s := open(t)
		if err := s.Create(ctx, newJob("create-1", jobs.TypeDocumentIngest, base)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := s.UpdateStatus(ctx, "create-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now())); err != nil {
			t.Fatal(err)
		}
		done := jobs.Patch{Result: []byte(`{"pages":3}`), FinishedAt: jobs.TimePtr(time.Now()), ExpectAttempts: 1}
		if _, err := s.UpdateStatus(ctx, "create-1", jobs.StatusActive, jobs.StatusCompleted, done); err != nil {
			t.Fatal(err)
		}

		err := s.Create(ctx, newJob("create-1", jobs.TypeDocumentIngest, base))
		if !errors.Is(err, jobs.ErrExists) || !errors.Is(err, jobs.ErrConflict) {
			t.Fatalf("second Create() error = %v, want ErrExists", err)
		}
		got, err := s.Get(ctx, "create-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != jobs.StatusCompleted || got.Attempts != 1 || string(got.Result) != `{"pages":3}` {
			t.Errorf("completed job changed: status=%s attempts=%d result=%s", got.Status, got.Attempts, got.Result)
		}
		c, err := s.CountByStatus(ctx, jobs.TypeDocumentIngest)
		if err != nil {
			t.Fatal(err)
		}
		if c.Waiting != 0 || c.Completed != 1 {
			t.Errorf("counts = %+v, want one completed", c)
		}
	})

	t.Run("concurrent creates have one winner", func(t *testing.T) {
		s := open(t)
		var created, exists int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(ctx, newJob("create-race", jobs.TypePodcastGenerate, base))
				switch {
				case err == nil:
					atomic.AddInt32(&created, 1)
				case errors.Is(err, jobs.ErrExists):
					atomic.AddInt32(&exists, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if created != 1 || exists != 15 {
			t.Errorf("created=%d exists=%d, want 1/15", created, exists)
		}
	})

	t.Run("claim is a compare and swap", func(t *testing.T) {
		s := open(t)
		mustPut(t, s, newJob("cas-1", jobs.TypeDocumentIngest, base))
		claimedAt := time.Now()

		got, err := s.UpdateStatus(ctx, "cas-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(claimedAt))
		if err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
		if got.Status != jobs.StatusActive || got.Attempts != 1 {
			t.Errorf("after claim status=%s attempts=%d, want active/1", got.Status, got.Attempts)
		}
		if got.StartedAt == nil || !got.StartedAt.Equal(*jobs.TimePtr(claimedAt)) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, claimedAt)
		}

		_, err = s.UpdateStatus(ctx, "cas-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(claimedAt))
		if !errors.Is(err, jobs.ErrConflict) {
			t.Errorf("second claim error = %v, want ErrConflict", err)
		}
		_, err = s.UpdateStatus(ctx, "missing", jobs.StatusWaiting, jobs.StatusActive, claimPatch(claimedAt))
		if !errors.Is(err, jobs.ErrNotFound) {
			t.Errorf("claim of missing job error = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := open(t)
		mustPut(t, s, newJob("race-1", jobs.TypePodcastGenerate, base))

		var wins, conflicts int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdateStatus(ctx, "race-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now()))
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case errors.Is(err, jobs.ErrConflict):
					atomic.AddInt32(&conflicts, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 || conflicts != 15 {
			t.Errorf("wins=%d conflicts=%d, want 1/15", wins, conflicts)
		}
		got, _ := s.Get(ctx, "race-1")
		if got.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", got.Attempts)
		}
	})

	t.Run("terminal jobs are immutable", func(t *testing.T) {
		s := open(t)
		mustPut(t, s, newJob("term-1", jobs.TypeDocumentIngest, base))
		if _, err := s.UpdateStatus(ctx, "term-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now())); err != nil {
			t.Fatal(err)
		}
		done := jobs.Patch{Progress: jobs.IntPtr(100), Result: []byte(`{"ok":true}`), FinishedAt: jobs.TimePtr(time.Now()), ExpectAttempts: 1}
		got, err := s.UpdateStatus(ctx, "term-1", jobs.StatusActive, jobs.StatusCompleted, done)
		if err != nil {
			t.Fatalf("complete error = %v", err)
		}
		if got.FinishedAt == nil || got.Progress != 100 || string(got.Result) != `{"ok":true}` {
			t.Errorf("completed job = %+v", got)
		}

		for _, to := range []jobs.Status{jobs.StatusFailed, jobs.StatusWaiting, jobs.StatusActive} {
			if _, err := s.UpdateStatus(ctx, "term-1", jobs.StatusCompleted, to, jobs.Patch{}); !errors.Is(err, jobs.ErrConflict) {
				t.Errorf("completed -> %s error = %v, want ErrConflict", to, err)
			}
		}
	})

	t.Run("expect attempts guards stale settles", func(t *testing.T) {
		s := open(t)
		mustPut(t, s, newJob("att-1", jobs.TypeDocumentIngest, base))
		if _, err := s.UpdateStatus(ctx, "att-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now())); err != nil {
			t.Fatal(err)
		}
		_, err := s.UpdateStatus(ctx, "att-1", jobs.StatusActive, jobs.StatusCompleted, jobs.Patch{ExpectAttempts: 2})
		if !errors.Is(err, jobs.ErrConflict) {
			t.Errorf("settle with wrong attempt error = %v, want ErrConflict", err)
		}
		got, _ := s.Get(ctx, "att-1")
		if got.Status != jobs.StatusActive {
			t.Errorf("status = %s, want active", got.Status)
		}
	})

	t.Run("attempts never exceed max", func(t *testing.T) {
		s := open(t)
		j := newJob("max-1", jobs.TypeDocumentIngest, base)
		j.MaxAttempts = 1
		mustPut(t, s, j)
		if _, err := s.UpdateStatus(ctx, "max-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now())); err != nil {
			t.Fatal(err)
		}
		if _, err := s.UpdateStatus(ctx, "max-1", jobs.StatusActive, jobs.StatusWaiting, jobs.Patch{}); err != nil {
			t.Fatal(err)
		}
		_, err := s.UpdateStatus(ctx, "max-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now()))
		if !errors.Is(err, jobs.ErrConflict) {
			t.Errorf("claim past max attempts error = %v, want ErrConflict", err)
		}
	})

	t.Run("started at is set once", func(t *testing.T) {
		s := open(t)
		mustPut(t, s, newJob("start-1", jobs.TypeDocumentIngest, base))
		first := time.Now().Add(-time.Minute)
		second := time.Now()

		if _, err := s.UpdateStatus(ctx, "start-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(first)); err != nil {
			t.Fatal(err)
		}
		runAt := jobs.TimePtr(time.Now().Add(time.Second))
		if _, err := s.UpdateStatus(ctx, "start-1", jobs.StatusActive, jobs.StatusDelayed, jobs.Patch{
			Error: jobs.StringPtr("boom"), RunAt: runAt, ExpectAttempts: 1,
		}); err != nil {
			t.Fatal(err)
		}
		delayed, _ := s.Get(ctx, "start-1")
		if delayed.RunAt == nil || !delayed.RunAt.Equal(*runAt) || delayed.Error != "boom" {
			t.Errorf("delayed job = %+v", delayed)
		}
		if _, err := s.UpdateStatus(ctx, "start-1", jobs.StatusDelayed, jobs.StatusWaiting, jobs.Patch{ClearRunAt: true}); err != nil {
			t.Fatal(err)
		}
		got, err := s.UpdateStatus(ctx, "start-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(second))
		if err != nil {
			t.Fatal(err)
		}
		if !got.StartedAt.Equal(*jobs.TimePtr(first)) {
			t.Errorf("StartedAt = %v, want first claim %v", got.StartedAt, first)
		}
		if !got.ClaimedAt.Equal(*jobs.TimePtr(second)) {
			t.Errorf("ClaimedAt = %v, want second claim %v", got.ClaimedAt, second)
		}
		if got.RunAt != nil || got.Error != "" || got.Attempts != 2 {
			t.Errorf("reclaimed job = %+v, want no run_at, no error, 2 attempts", got)
		}
	})

	t.Run("progress only rises within the current attempt", func(t *testing.T) {
		s := open(t)
		mustPut(t, s, newJob("prog-1", jobs.TypePodcastGenerate, base))
		if err := s.SetProgress(ctx, "prog-1", 0, 10); !errors.Is(err, jobs.ErrConflict) {
			t.Errorf("progress on waiting job error = %v, want ErrConflict", err)
		}
		if _, err := s.UpdateStatus(ctx, "prog-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now())); err != nil {
			t.Fatal(err)
		}

		steps := []struct {
			percent int
			want    int
		}{
			{10, 10},
			{50, 50},
			{30, 50},
			{150, 100},
		}
		for _, st := range steps {
			if err := s.SetProgress(ctx, "prog-1", 1, st.percent); err != nil {
				t.Fatalf("SetProgress(%d) error = %v", st.percent, err)
			}
			got, _ := s.Get(ctx, "prog-1")
			if got.Progress != st.want {
				t.Errorf("after SetProgress(%d) progress = %d, want %d", st.percent, got.Progress, st.want)
			}
		}
		if err := s.SetProgress(ctx, "prog-1", 2, 100); !errors.Is(err, jobs.ErrConflict) {
			t.Errorf("progress for another attempt error = %v, want ErrConflict", err)
		}
		if err := s.SetProgress(ctx, "missing", 1, 10); !errors.Is(err, jobs.ErrNotFound) {
			t.Errorf("progress for missing job error = %v, want ErrNotFound", err)
		}
	})

	t.Run("count and list by status", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 3; i++ {
			mustPut(t, s, newJob(fmt.Sprintf("doc-%d", i), jobs.TypeDocumentIngest, base.Add(time.Duration(i)*time.Second)))
		}
		mustPut(t, s, newJob("pod-0", jobs.TypePodcastGenerate, base))
		if _, err := s.UpdateStatus(ctx, "doc-1", jobs.StatusWaiting, jobs.StatusActive, claimPatch(time.Now())); err != nil {
			t.Fatal(err)
		}

		all, err := s.CountByStatus(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if all.Waiting != 3 || all.Active != 1 || all.Total() != 4 {
			t.Errorf("CountByStatus(all) = %+v", all)
		}
		docs, err := s.CountByStatus(ctx, jobs.TypeDocumentIngest)
		if err != nil {
			t.Fatal(err)
		}
		if docs.Waiting != 2 || docs.Active != 1 {
			t.Errorf("CountByStatus(document-ingest) = %+v", docs)
		}

		waiting, err := s.ListByStatus(ctx, jobs.StatusWaiting, jobs.TypeDocumentIngest, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(waiting) != 2 || waiting[0].ID != "doc-0" || waiting[1].ID != "doc-2" {
			t.Errorf("ListByStatus(waiting, document-ingest) = %v", ids(waiting))
		}
		limited, err := s.ListByStatus(ctx, jobs.StatusWaiting, "", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 {
			t.Errorf("ListByStatus with limit 1 returned %d jobs", len(limited))
		}
		none, err := s.ListByStatus(ctx, jobs.StatusFailed, "", 0)
		if err != nil || len(none) != 0 {
			t.Errorf("ListByStatus(failed) = %v, %v", ids(none), err)
		}
	})

	t.Run("put overwrites and reindexes", func(t *testing.T) {
		s := open(t)
		j := newJob("over-1", jobs.TypeDocumentIngest, base)
		mustPut(t, s, j)
		j.Status = jobs.StatusDelayed
		j.RunAt = jobs.TimePtr(time.Now().Add(time.Minute))
		mustPut(t, s, j)

		c, err := s.CountByStatus(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if c.Waiting != 0 || c.Delayed != 1 {
			t.Errorf("counts after overwrite = %+v, want only one delayed", c)
		}
	})

	t.Run("sweep removes expired terminal jobs", func(t *testing.T) {
		s := open(t)
		old := newJob("old-1", jobs.TypeDocumentIngest, base)
		old.Status = jobs.StatusCompleted
		old.FinishedAt = jobs.TimePtr(time.Now().Add(-2 * time.Hour))
		mustPut(t, s, old)

		recent := newJob("recent-1", jobs.TypeDocumentIngest, base)
		recent.Status = jobs.StatusFailed
		recent.FinishedAt = jobs.TimePtr(time.Now())
		mustPut(t, s, recent)

		mustPut(t, s, newJob("live-1", jobs.TypeDocumentIngest, base))

		n, err := s.SweepExpired(ctx, time.Hour)
		if err != nil {
			t.Fatalf("SweepExpired() error = %v", err)
		}
		if n != 1 {
			t.Errorf("SweepExpired() removed %d, want 1", n)
		}
		if _, err := s.Get(ctx, "old-1"); !errors.Is(err, jobs.ErrNotFound) {
			t.Errorf("swept job Get() error = %v, want ErrNotFound", err)
		}
		for _, id := range []string{"recent-1", "live-1"} {
			if _, err := s.Get(ctx, id); err != nil {
				t.Errorf("Get(%s) after sweep error = %v", id, err)
			}
		}
		c, _ := s.CountByStatus(ctx, "")
		if c.Total() != 2 {
			t.Errorf("total after sweep = %d, want 2", c.Total())
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := open(t)
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func ids(list []*jobs.Job) []string {
	out := make([]string, len(list))
	for i, j := range list {
		out[i] = j.ID
	}
	return out
}
