// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/store"
)

// maxAttemptsLimit matches the ceiling the enqueue client accepts.
const maxAttemptsLimit = 25

// Validate checks the loaded configuration. It returns every problem found,
// joined.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateStore(),
		c.validateWorker(),
		c.validateHealth(),
		c.validateServer(),
		c.validateEvents(),
		c.validateHandlers(),
		c.validateLogging(),
	)
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case store.BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
		if c.Store.Redis.DB < 0 {
			return fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Store.Redis.DB)
		}
	case store.BackendBadger:
		if c.Store.Badger.Path == "" && !c.Store.Badger.InMemory {
			return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY=true")
		}
	case store.BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be redis, badger or memory, got %q", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateWorker() error {
	w := c.Worker
	if w.Concurrency < 1 || w.Concurrency > 1000 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 1000, got %d", w.Concurrency)
	}
	if w.MaxAttempts < 1 || w.MaxAttempts > maxAttemptsLimit {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be between 1 and %d, got %d", maxAttemptsLimit, w.MaxAttempts)
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"WORKER_POLL_INTERVAL", w.PollInterval},
		{"WORKER_JOB_TIMEOUT", w.JobTimeout},
		{"WORKER_REAP_INTERVAL", w.ReapInterval},
		{"WORKER_PROMOTE_INTERVAL", w.PromoteInterval},
		{"WORKER_RECONCILE_INTERVAL", w.ReconcileInterval},
		{"WORKER_SETTLE_TIMEOUT", w.SettleTimeout},
		{"RETENTION_PERIOD", w.Retention},
		{"SWEEP_INTERVAL", w.SweepInterval},
		{"RETRY_BASE_DELAY", w.RetryBaseDelay},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.d)
		}
	}
	if w.ReapGrace < 0 {
		return fmt.Errorf("WORKER_REAP_GRACE must not be negative, got %s", w.ReapGrace)
	}
	if w.RetryMaxDelay < w.RetryBaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY (%s) must be >= RETRY_BASE_DELAY (%s)", w.RetryMaxDelay, w.RetryBaseDelay)
	}
	if w.RetryJitter < 0 || w.RetryJitter >= 1 {
		return fmt.Errorf("RETRY_JITTER must be in [0, 1), got %v", w.RetryJitter)
	}
	return nil
}

func (c *Config) validateHealth() error {
	h := c.Health
	if h.CheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be positive, got %s", h.CheckInterval)
	}
	if h.MaxWaiting < 0 || h.MaxActive < 0 || h.MaxDelayed < 0 {
		return fmt.Errorf("HEALTH_MAX_* ceilings must not be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", s.Port)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", s.Timeout)
	}
	if s.MetricsCacheTTL < 0 {
		return fmt.Errorf("METRICS_CACHE_TTL must not be negative, got %s", s.MetricsCacheTTL)
	}
	if s.EnqueueRateLimit < 0 {
		return fmt.Errorf("ENQUEUE_RATE_LIMIT must not be negative, got %d", s.EnqueueRateLimit)
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case events.BackendMemory:
		return nil
	case events.BackendNATS:
		if err := validateNATSURL(c.Events.NATSURL); err != nil {
			return fmt.Errorf("NATS_URL: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("EVENTS_BACKEND must be memory or nats, got %q", c.Events.Backend)
	}
}

func (c *Config) validateHandlers() error {
	h := c.Handlers
	if h.DocumentIngestURL == "" && h.PodcastGenerateURL == "" {
		return fmt.Errorf("at least one of DOCUMENT_INGEST_URL or PODCAST_GENERATE_URL is required")
	}
	if h.DocumentIngestURL != "" {
		if err := validateEndpointURL(h.DocumentIngestURL, "DOCUMENT_INGEST_URL"); err != nil {
			return err
		}
	}
	if h.PodcastGenerateURL != "" {
		if err := validateEndpointURL(h.PodcastGenerateURL, "PODCAST_GENERATE_URL"); err != nil {
			return err
		}
	}
	if h.RatePerSecond < 0 {
		return fmt.Errorf("HANDLER_RATE_PER_SECOND must not be negative, got %v", h.RatePerSecond)
	}
	if h.Timeout <= 0 {
		return fmt.Errorf("HANDLER_TIMEOUT must be positive, got %s", h.Timeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
