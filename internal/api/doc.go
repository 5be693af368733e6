// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Package api serves the job queue over HTTP.

Routes:

	POST /api/v1/jobs               enqueue, 202 {id, status}
	GET  /api/v1/jobs/{id}          status polling
	POST /api/v1/jobs/{id}/cancel   cancel a waiting or delayed job
	GET  /api/v1/jobs/{id}/watch    websocket stream of lifecycle events
	GET  /api/v1/metrics?type=      per-type or aggregate counts
	GET  /api/v1/health             queue health, 503 when the store is down
	GET  /api/v1/health/live        liveness
	GET  /api/v1/health/ready       readiness
	GET  /metrics                   Prometheus

Every JSON response uses the same envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "...", "request_id": "..."}}
	{"status": "error", "error": {"code": "NOT_FOUND", "message": "..."}, "metadata": {...}}

Job errors map to status codes in one place (respondJobError): unknown job
or invalid options 400, missing job 404, status conflict 409, store
unavailable 503.
*/
package api
