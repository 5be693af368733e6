// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/testinfra"
)

func TestRedisStoreIntegration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, rc.Container)

	rdb := NewRedisClient(RedisConfig{Addr: rc.Addr})
	defer rdb.Close()

	n := 0
	runStoreContract(t, func(t *testing.T) Store {
		n++
		// A fresh prefix per subtest keeps the index sets isolated.
		return NewRedisStore(rdb, fmt.Sprintf("test%d:", n))
	})
}

func TestRedisStoreUnavailable(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	rdb := NewRedisClient(RedisConfig{Addr: rc.Addr})
	defer rdb.Close()
	s := NewRedisStore(rdb, "gone:")
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	testinfra.CleanupContainer(t, ctx, rc.Container)
	if _, err := s.Get(ctx, "x"); !errors.Is(err, jobs.ErrStoreUnavailable) {
		t.Errorf("Get() after redis stopped error = %v, want ErrStoreUnavailable", err)
	}
}
