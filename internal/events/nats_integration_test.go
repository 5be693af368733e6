// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

//go:build integration

package events

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/testinfra"
)

func TestNATSBusIntegration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	nc, err := testinfra.NewNATSContainer(ctx)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, nc.Container)

	bus, err := NewBus(Config{Backend: BackendNATS, NATSURL: nc.URL, MaxReconnects: 3, ReconnectWait: time.Second})
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	defer bus.Close()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := bus.Subscribe(subCtx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	// Core NATS drops messages published before the subscription is live.
	time.Sleep(200 * time.Millisecond)

	bus.Publish(ctx, NewEvent(KindFailed, &jobs.Job{ID: "n1", Type: jobs.TypeDocumentIngest, Status: jobs.StatusFailed, Error: "boom"}))
	select {
	case ev := <-ch:
		if ev.JobID != "n1" || ev.Error != "boom" {
			t.Errorf("received %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for NATS event")
	}
}
