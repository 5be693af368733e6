// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/docqueue/internal/logging"
)

// Backend names accepted by Open.
const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Redis   RedisConfig
	Badger  BadgerConfig
	Breaker BreakerConfig
	// DisableBreaker skips the circuit breaker decorator.
	DisableBreaker bool
}

// Opened bundles the store with the Redis client it was built on, if any,
// so the queue can share the connection pool.
type Opened struct {
	Store Store
	Redis *redis.Client
}

// Open builds the configured backend and wraps it in a circuit breaker.
// A Redis backend is pinged once so misconfiguration fails at startup.
func Open(ctx context.Context, cfg Config) (*Opened, error) {
	var (
		base Store
		rdb  *redis.Client
	)
	switch cfg.Backend {
	case BackendRedis, "":
		rdb = NewRedisClient(cfg.Redis)
		rs := NewRedisStore(rdb, cfg.Redis.KeyPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		base = rs
	case BackendBadger:
		bs, err := OpenBadgerStore(cfg.Badger)
		if err != nil {
			return nil, err
		}
		base = bs
	case BackendMemory:
		base = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	logging.Info().Str("backend", backendName(cfg.Backend)).Msg("Job store ready")
	if cfg.DisableBreaker {
		return &Opened{Store: base, Redis: rdb}, nil
	}
	return &Opened{Store: WithBreaker(base, cfg.Breaker), Redis: rdb}, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendRedis
	}
	return b
}
