// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

//go:build integration

package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/tomtom215/docqueue/internal/store"
	"github.com/tomtom215/docqueue/internal/testinfra"
)

func TestRedisQueueIntegration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, rc.Container)

	rdb := store.NewRedisClient(store.RedisConfig{Addr: rc.Addr})
	defer rdb.Close()

	n := 0
	runQueueContract(t, func(t *testing.T) Queue {
		n++
		return NewRedisQueue(rdb, fmt.Sprintf("qtest%d:", n))
	})
}
