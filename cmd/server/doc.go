// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Command server runs the docqueue job queue: the HTTP API, the dispatcher
that executes document-ingest and podcast-generate jobs, and the
maintenance loops that promote delayed jobs, reap orphaned attempts and
sweep expired records.

Startup order:

 1. Configuration (koanf: defaults, config.yaml, environment)
 2. Logging (zerolog)
 3. Job store (redis, badger or memory) behind a circuit breaker
 4. Queue index: Redis sorted sets when the store is Redis, otherwise
    in-process, rebuilt from the store on every start
 5. Handlers for each job type with a configured endpoint
 6. Event bus (in-process or NATS) and websocket hub
 7. Dispatcher, promoter, reaper, sweeper and health monitor
 8. HTTP server

Everything long-lived runs under a suture supervisor tree. SIGINT and
SIGTERM cancel the tree; in-flight attempts are interrupted and left active
for the reaper of the next process to recover.

Common environment variables:

	STORE_BACKEND=redis          redis | badger | memory
	REDIS_ADDR=localhost:6379
	WORKER_CONCURRENCY=4
	DOCUMENT_INGEST_URL=http://platform:3000/internal/jobs/document-ingest
	PODCAST_GENERATE_URL=http://platform:3000/internal/jobs/podcast-generate
	HTTP_PORT=8080
	EVENTS_BACKEND=memory        memory | nats
	LOG_LEVEL=info
*/
package main
