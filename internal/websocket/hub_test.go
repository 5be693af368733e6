// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/docqueue/internal/events"
)

type chanSource struct {
	ch chan events.Event
}

func (s *chanSource) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	return s.ch, nil
}

type failingSource struct{}

func (failingSource) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	return nil, errors.New("bus down")
}

func startHub(t *testing.T) (*Hub, *chanSource, context.CancelFunc, chan error) {
	t.Helper()
	src := &chanSource{ch: make(chan events.Event, 8)}
	hub := NewHub(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	return hub, src, cancel, done
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		return Message{}, false
	}
}

func TestHubRoutesByJob(t *testing.T) {
	hub, src, cancel, _ := startHub(t)
	defer cancel()

	watcher := NewClient(hub, nil, "job-1")
	other := NewClient(hub, nil, "job-2")
	all := NewClient(hub, nil, "")
	for _, c := range []*Client{watcher, other, all} {
		hub.Register <- c
	}

	src.ch <- events.Event{Kind: events.KindProgress, JobID: "job-1", Progress: 50}

	for _, c := range []*Client{watcher, all} {
		m, ok := receive(t, c)
		if !ok {
			t.Fatalf("client %d got no message", c.ID())
		}
		ev, isEvent := m.Data.(events.Event)
		if m.Type != MessageTypeJobEvent || !isEvent || ev.Progress != 50 {
			t.Errorf("client %d got %+v", c.ID(), m)
		}
	}
	select {
	case m := <-other.send:
		t.Errorf("client watching job-2 received %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregister(t *testing.T) {
	hub, _, cancel, _ := startHub(t)
	defer cancel()

	c := NewClient(hub, nil, "job-1")
	hub.Register <- c
	hub.Unregister <- c

	if _, ok := receive(t, c); ok {
		t.Error("send channel should be closed after unregister")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, _, cancel, done := startHub(t)
	c := NewClient(hub, nil, "")
	hub.Register <- c

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if _, ok := receive(t, c); ok {
		t.Error("client send channel should be closed on shutdown")
	}
}

func TestHubReturnsWhenStreamCloses(t *testing.T) {
	hub, src, cancel, done := startHub(t)
	defer cancel()
	close(src.ch)

	select {
	case err := <-done:
		if !errors.Is(err, errSubscriptionClosed) {
			t.Errorf("Serve() = %v, want errSubscriptionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not return after stream closed")
	}
	_ = hub
}

func TestHubSubscribeError(t *testing.T) {
	hub := NewHub(failingSource{})
	if err := hub.Serve(context.Background()); err == nil {
		t.Error("Serve() should surface the subscribe error")
	}
	if hub.String() != "websocket-hub" {
		t.Errorf("String() = %q", hub.String())
	}
}
