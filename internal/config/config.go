// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package config

import (
	"time"

	"github.com/tomtom215/docqueue/internal/dispatcher"
	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/handlers"
	"github.com/tomtom215/docqueue/internal/health"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/store"
)

// Config is the complete runtime configuration.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Worker   WorkerConfig   `koanf:"worker"`
	Health   HealthConfig   `koanf:"health"`
	Server   ServerConfig   `koanf:"server"`
	Events   EventsConfig   `koanf:"events"`
	Handlers HandlersConfig `koanf:"handlers"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StoreConfig selects and tunes the job store and queue backend.
type StoreConfig struct {
	// Backend is redis, badger or memory. Redis is the only backend that
	// lets several docqueue processes share work.
	Backend        string       `koanf:"backend"`
	DisableBreaker bool         `koanf:"breaker_disabled"`
	Redis          RedisConfig  `koanf:"redis"`
	Badger         BadgerConfig `koanf:"badger"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
	PoolSize  int    `koanf:"pool_size"`
}

// BadgerConfig holds embedded store settings.
type BadgerConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// WorkerConfig tunes the dispatcher and its maintenance loops.
type WorkerConfig struct {
	Concurrency     int           `koanf:"concurrency"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	JobTimeout      time.Duration `koanf:"job_timeout"`
	ReapInterval    time.Duration `koanf:"reap_interval"`
	ReapGrace       time.Duration `koanf:"reap_grace"`
	PromoteInterval time.Duration `koanf:"promote_interval"`
	// ReconcileInterval is how often lost queue entries are restored from the store.
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
	SettleTimeout     time.Duration `koanf:"settle_timeout"`
	MaxAttempts       int           `koanf:"max_attempts"`
	Retention         time.Duration `koanf:"retention"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`

	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`
	RetryJitter    float64       `koanf:"retry_jitter"`
}

// HealthConfig sets the health check cadence and queue ceilings.
type HealthConfig struct {
	CheckInterval time.Duration `koanf:"check_interval"`
	MaxWaiting    int64         `koanf:"max_waiting"`
	MaxActive     int64         `koanf:"max_active"`
	MaxDelayed    int64         `koanf:"max_delayed"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
	// EnqueueRateLimit is enqueue requests per minute per client IP.
	EnqueueRateLimit int      `koanf:"enqueue_rate_limit"`
	CORSOrigins      []string `koanf:"cors_origins"`
	// APIToken protects enqueue and cancel when set.
	APIToken string `koanf:"api_token"`
	// MetricsCacheTTL caches GET /api/v1/metrics counts; 0 disables.
	MetricsCacheTTL time.Duration `koanf:"metrics_cache_ttl"`
}

// EventsConfig selects the lifecycle event transport.
type EventsConfig struct {
	Backend string `koanf:"backend"`
	NATSURL string `koanf:"nats_url"`
}

// HandlersConfig points the built-in job types at their endpoints.
type HandlersConfig struct {
	DocumentIngestURL  string        `koanf:"document_ingest_url"`
	PodcastGenerateURL string        `koanf:"podcast_generate_url"`
	AuthToken          string        `koanf:"auth_token"`
	RatePerSecond      float64       `koanf:"rate_per_second"`
	Burst              int           `koanf:"burst"`
	Timeout            time.Duration `koanf:"timeout"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `koanf:"level"`
	// Format is json or console.
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns every default. Loading starts from here.
func defaultConfig() *Config {
	wd := dispatcher.DefaultConfig()
	hd := health.DefaultConfig()
	return &Config{
		Store: StoreConfig{
			Backend: store.BackendRedis,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "docqueue:",
				PoolSize:  20,
			},
			Badger: BadgerConfig{
				Path: "/data/docqueue",
			},
		},
		Worker: WorkerConfig{
			Concurrency:       wd.Concurrency,
			PollInterval:      wd.PollInterval,
			JobTimeout:        wd.JobTimeout,
			ReapInterval:      wd.ReapInterval,
			ReapGrace:         wd.ReapGrace,
			PromoteInterval:   wd.PromoteInterval,
			ReconcileInterval: wd.ReconcileInterval,
			SettleTimeout:     wd.SettleTimeout,
			MaxAttempts:       3,
			Retention:         wd.Retention,
			SweepInterval:     wd.SweepInterval,
			RetryBaseDelay:    wd.Backoff.Base,
			RetryMaxDelay:     wd.Backoff.Max,
			RetryJitter:       wd.Backoff.Jitter,
		},
		Health: HealthConfig{
			CheckInterval: hd.Interval,
			MaxWaiting:    hd.Thresholds.MaxWaiting,
			MaxActive:     hd.Thresholds.MaxActive,
			MaxDelayed:    hd.Thresholds.MaxDelayed,
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			Timeout:          30 * time.Second,
			EnqueueRateLimit: 120,
			MetricsCacheTTL:  time.Second,
			CORSOrigins:      []string{"*"},
		},
		Events: EventsConfig{
			Backend: events.BackendMemory,
			NATSURL: "nats://127.0.0.1:4222",
		},
		Handlers: HandlersConfig{
			RatePerSecond: 5,
			Burst:         5,
			Timeout:       2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Backend: c.Store.Backend,
		Redis: store.RedisConfig{
			Addr:      c.Store.Redis.Addr,
			Password:  c.Store.Redis.Password,
			DB:        c.Store.Redis.DB,
			KeyPrefix: c.Store.Redis.KeyPrefix,
			PoolSize:  c.Store.Redis.PoolSize,
		},
		Badger: store.BadgerConfig{
			Path:       c.Store.Badger.Path,
			InMemory:   c.Store.Badger.InMemory,
			SyncWrites: c.Store.Badger.SyncWrites,
		},
		Breaker:        store.DefaultBreakerConfig(),
		DisableBreaker: c.Store.DisableBreaker,
	}
}

// DispatcherOptions converts the worker section for dispatcher.New.
func (c *Config) DispatcherOptions() dispatcher.Config {
	d := dispatcher.DefaultConfig()
	d.Concurrency = c.Worker.Concurrency
	d.PollInterval = c.Worker.PollInterval
	d.JobTimeout = c.Worker.JobTimeout
	d.ReapInterval = c.Worker.ReapInterval
	d.ReapGrace = c.Worker.ReapGrace
	d.PromoteInterval = c.Worker.PromoteInterval
	d.ReconcileInterval = c.Worker.ReconcileInterval
	d.SettleTimeout = c.Worker.SettleTimeout
	d.Retention = c.Worker.Retention
	d.SweepInterval = c.Worker.SweepInterval
	d.Backoff = dispatcher.BackoffConfig{
		Base:   c.Worker.RetryBaseDelay,
		Max:    c.Worker.RetryMaxDelay,
		Jitter: c.Worker.RetryJitter,
	}
	return d
}

// HealthOptions converts the health section for health.NewMonitor.
func (c *Config) HealthOptions() health.Config {
	return health.Config{
		Interval: c.Health.CheckInterval,
		Timeout:  health.DefaultConfig().Timeout,
		Thresholds: health.Thresholds{
			MaxWaiting: c.Health.MaxWaiting,
			MaxActive:  c.Health.MaxActive,
			MaxDelayed: c.Health.MaxDelayed,
		},
	}
}

// EventsOptions converts the events section for events.NewBus.
func (c *Config) EventsOptions() events.Config {
	return events.Config{
		Backend:       c.Events.Backend,
		NATSURL:       c.Events.NATSURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Buffer:        256,
	}
}

// HandlerOptions converts the handlers section for handlers.Register.
func (c *Config) HandlerOptions() handlers.Config {
	return handlers.Config{
		DocumentIngestURL:  c.Handlers.DocumentIngestURL,
		PodcastGenerateURL: c.Handlers.PodcastGenerateURL,
		AuthToken:          c.Handlers.AuthToken,
		RatePerSecond:      c.Handlers.RatePerSecond,
		Burst:              c.Handlers.Burst,
		Timeout:            c.Handlers.Timeout,
	}
}

// LoggingOptions converts the logging section for logging.Init.
func (c *Config) LoggingOptions() logging.Config {
	l := logging.DefaultConfig()
	l.Level = c.Logging.Level
	l.Format = c.Logging.Format
	l.Caller = c.Logging.Caller
	return l
}
