// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

/*
Package metrics defines the Prometheus instruments exported at /metrics.

# Available Metrics

Job lifecycle (labels: type):
  - docqueue_jobs_enqueued_total
  - docqueue_jobs_claimed_total
  - docqueue_jobs_completed_total
  - docqueue_jobs_failed_total
  - docqueue_jobs_retried_total
  - docqueue_jobs_reaped_total
  - docqueue_jobs_cancelled_total
  - docqueue_jobs_promoted_total
  - docqueue_job_duration_seconds (labels: type, outcome)

Queue state:
  - docqueue_jobs (labels: type, status) gauge refreshed by the health monitor
  - docqueue_health_status gauge (0=healthy, 1=degraded, 2=unhealthy)
  - docqueue_jobs_swept_total

Dispatcher:
  - docqueue_dispatcher_busy_slots
  - docqueue_dispatcher_claim_conflicts_total
  - docqueue_settle_retries_total

Store circuit breaker (labels: name):
  - circuit_breaker_state (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total (labels: name, result)
  - circuit_breaker_consecutive_failures
  - circuit_breaker_state_transitions_total (labels: name, from_state, to_state)

HTTP API:
  - api_requests_total (labels: method, endpoint, status_code)
  - api_request_duration_seconds (labels: method, endpoint)
  - api_active_requests
  - api_rate_limit_hits_total (labels: endpoint)

Downstream handlers (labels: type):
  - docqueue_handler_requests_total (labels: type, status_code)
  - docqueue_handler_request_duration_seconds

Events:
  - docqueue_events_published_total (labels: kind)
  - docqueue_events_publish_errors_total
  - websocket_connections

# Example Alerts

	groups:
	  - name: docqueue
	    rules:
	      - alert: DocqueueUnhealthy
	        expr: docqueue_health_status == 2
	        for: 2m
	      - alert: DocqueueStoreCircuitOpen
	        expr: circuit_breaker_state{name="job-store"} == 2
	        for: 1m
*/
package metrics
