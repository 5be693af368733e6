// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Package config loads docqueue's configuration.

# Configuration Sources

Sources are layered with koanf, later layers winning:

 1. Defaults from defaultConfig()
 2. An optional YAML file: $CONFIG_PATH, else config.yaml / config.yml in the
    working directory, else /etc/docqueue/config.yaml
 3. Environment variables, mapped explicitly by envTransformFunc. Unknown
    variables are ignored.

The merged result is unmarshalled into Config and checked by Validate.

# Environment Variables

Store:
  - STORE_BACKEND: redis, badger or memory (default: redis)
  - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_KEY_PREFIX, REDIS_POOL_SIZE
  - BADGER_PATH, BADGER_IN_MEMORY, BADGER_SYNC_WRITES
  - STORE_BREAKER_DISABLED: skip the circuit breaker (default: false)

Worker:
  - WORKER_CONCURRENCY (default: 10)
  - WORKER_POLL_INTERVAL, WORKER_JOB_TIMEOUT, WORKER_REAP_INTERVAL,
    WORKER_REAP_GRACE, WORKER_PROMOTE_INTERVAL, WORKER_SETTLE_TIMEOUT
  - WORKER_RECONCILE_INTERVAL: how often lost queue entries are restored
    from the store (default: 1m)
  - RETRY_BASE_DELAY, RETRY_MAX_DELAY, RETRY_JITTER
  - JOB_MAX_ATTEMPTS (default: 3)
  - RETENTION_PERIOD (default: 168h), SWEEP_INTERVAL (default: 1h)

Health:
  - HEALTH_CHECK_INTERVAL, HEALTH_MAX_WAITING, HEALTH_MAX_ACTIVE,
    HEALTH_MAX_DELAYED

HTTP:
  - HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT
  - ENQUEUE_RATE_LIMIT: enqueue requests per minute per client (0 disables)
  - CORS_ORIGINS: comma-separated list
  - API_TOKEN: bearer token required on mutating routes (empty disables)
  - METRICS_CACHE_TTL: how long /api/v1/metrics counts are reused (0 disables)

Events:
  - EVENTS_BACKEND: memory or nats (default: memory)
  - NATS_URL

Handlers:
  - DOCUMENT_INGEST_URL, PODCAST_GENERATE_URL
  - HANDLER_AUTH_TOKEN, HANDLER_RATE_PER_SECOND, HANDLER_BURST,
    HANDLER_TIMEOUT

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER
*/
package config
