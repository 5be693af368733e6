// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package testinfra starts throwaway Redis and NATS containers for
// integration tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// Example:
//
//	func TestRedisStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    rc, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, rc.Container)
//
//	    rdb := store.NewRedisClient(store.RedisConfig{Addr: rc.Addr})
//	    s := store.NewRedisStore(rdb, "test:")
//	}
package testinfra
