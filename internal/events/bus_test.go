// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package events

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

func TestNewEvent(t *testing.T) {
	j := &jobs.Job{ID: "j1", Type: jobs.TypePodcastGenerate, Status: jobs.StatusActive, Progress: 50, Attempts: 2}
	ev := NewEvent(KindProgress, j)
	if ev.ID == "" {
		t.Error("event ID should be generated")
	}
	if ev.JobID != "j1" || ev.Progress != 50 || ev.Attempt != 2 || ev.Status != jobs.StatusActive {
		t.Errorf("NewEvent() = %+v", ev)
	}
}

func TestMemoryBusRoundTrip(t *testing.T) {
	bus, err := NewBus(Config{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	j := &jobs.Job{ID: "j2", Type: jobs.TypeDocumentIngest, Status: jobs.StatusCompleted, Progress: 100}
	bus.Publish(ctx, NewEvent(KindCompleted, j))

	select {
	case ev := <-ch:
		if ev.Kind != KindCompleted || ev.JobID != "j2" || ev.Progress != 100 {
			t.Errorf("received %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected subscription channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed after cancel")
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := NewBus(Config{Backend: "kafka"}); err == nil {
		t.Error("NewBus() with unknown backend should fail")
	}
}

func TestDiscard(t *testing.T) {
	Discard.Publish(context.Background(), Event{Kind: KindEnqueued})
}
