// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/docqueue/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated strings for slice fields. YAML
// lists are left as they are.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Store
	"store_backend":          "store.backend",
	"store_breaker_disabled": "store.breaker_disabled",
	"redis_addr":             "store.redis.addr",
	"redis_password":         "store.redis.password",
	"redis_db":               "store.redis.db",
	"redis_key_prefix":       "store.redis.key_prefix",
	"redis_pool_size":        "store.redis.pool_size",
	"badger_path":            "store.badger.path",
	"badger_in_memory":       "store.badger.in_memory",
	"badger_sync_writes":     "store.badger.sync_writes",

	// Worker
	"worker_concurrency":        "worker.concurrency",
	"worker_poll_interval":      "worker.poll_interval",
	"worker_job_timeout":        "worker.job_timeout",
	"worker_reap_interval":      "worker.reap_interval",
	"worker_reap_grace":         "worker.reap_grace",
	"worker_promote_interval":   "worker.promote_interval",
	"worker_reconcile_interval": "worker.reconcile_interval",
	"worker_settle_timeout":     "worker.settle_timeout",
	"job_max_attempts":          "worker.max_attempts",
	"retention_period":          "worker.retention",
	"sweep_interval":            "worker.sweep_interval",
	"retry_base_delay":          "worker.retry_base_delay",
	"retry_max_delay":           "worker.retry_max_delay",
	"retry_jitter":              "worker.retry_jitter",

	// Health
	"health_check_interval": "health.check_interval",
	"health_max_waiting":    "health.max_waiting",
	"health_max_active":     "health.max_active",
	"health_max_delayed":    "health.max_delayed",

	// HTTP
	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_timeout":       "server.timeout",
	"enqueue_rate_limit": "server.enqueue_rate_limit",
	"metrics_cache_ttl":  "server.metrics_cache_ttl",
	"cors_origins":       "server.cors_origins",
	"api_token":          "server.api_token",

	// Events
	"events_backend": "events.backend",
	"nats_url":       "events.nats_url",

	// Handlers
	"document_ingest_url":     "handlers.document_ingest_url",
	"podcast_generate_url":    "handlers.podcast_generate_url",
	"handler_auth_token":      "handlers.auth_token",
	"handler_rate_per_second": "handlers.rate_per_second",
	"handler_burst":           "handlers.burst",
	"handler_timeout":         "handlers.timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path. Unmapped
// variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
