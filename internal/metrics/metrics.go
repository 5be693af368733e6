// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job lifecycle
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_enqueued_total",
			Help: "Total number of jobs accepted by Enqueue",
		},
		[]string{"type"},
	)

	JobsClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_claimed_total",
			Help: "Total number of attempts started by the dispatcher",
		},
		[]string{"type"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_completed_total",
			Help: "Total number of jobs that completed",
		},
		[]string{"type"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_failed_total",
			Help: "Total number of jobs that failed permanently",
		},
		[]string{"type"},
	)

	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_retried_total",
			Help: "Total number of failed attempts scheduled for retry",
		},
		[]string{"type"},
	)

	JobsReaped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_reaped_total",
			Help: "Total number of stuck active jobs recovered by the reaper",
		},
		[]string{"type"},
	)

	JobsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_released_total",
			Help: "Total number of active jobs returned to waiting at worker shutdown",
		},
		[]string{"type"},
	)

	JobsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_cancelled_total",
			Help: "Total number of jobs cancelled before running",
		},
		[]string{"type"},
	)

	JobsPromoted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_promoted_total",
			Help: "Total number of delayed jobs moved back to waiting",
		},
		[]string{"type"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqueue_job_duration_seconds",
			Help:    "Duration of a single job attempt in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type", "outcome"}, // outcome: completed, retried, failed, timeout
	)

	JobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqueue_jobs_swept_total",
			Help: "Total number of terminal jobs removed after the retention period",
		},
	)

	QueueEntriesRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqueue_queue_entries_restored_total",
			Help: "Total number of queue entries re-added for waiting or delayed jobs that had lost theirs",
		},
	)

	// Queue state
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docqueue_jobs",
			Help: "Current number of jobs per type and status",
		},
		[]string{"type", "status"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docqueue_queue_depth",
			Help: "Queue entries per type, pending or delayed",
		},
		[]string{"type", "state"},
	)

	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docqueue_health_status",
			Help: "Queue health (0=healthy, 1=degraded, 2=unhealthy)",
		},
	)

	// Dispatcher
	DispatcherBusySlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docqueue_dispatcher_busy_slots",
			Help: "Number of dispatcher slots running a handler",
		},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqueue_dispatcher_claim_conflicts_total",
			Help: "Total number of claims lost to another worker",
		},
	)

	SettleRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqueue_settle_retries_total",
			Help: "Total number of settle writes retried after a store outage",
		},
	)

	// Store circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Downstream handlers
	HandlerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_handler_requests_total",
			Help: "Total number of downstream service calls made by job handlers",
		},
		[]string{"type", "status_code"},
	)

	HandlerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqueue_handler_request_duration_seconds",
			Help:    "Duration of downstream service calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"type"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqueue_events_published_total",
			Help: "Total number of job lifecycle events published",
		},
		[]string{"kind"},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqueue_events_publish_errors_total",
			Help: "Total number of job events that could not be published",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)
)

// Attempt outcomes for JobDuration.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// RecordAttempt records the end of one handler attempt.
func RecordAttempt(jobType, outcome string, duration time.Duration) {
	JobDuration.WithLabelValues(jobType, outcome).Observe(duration.Seconds())
	switch outcome {
	case OutcomeCompleted:
		JobsCompleted.WithLabelValues(jobType).Inc()
	case OutcomeRetried:
		JobsRetried.WithLabelValues(jobType).Inc()
	case OutcomeFailed, OutcomeTimeout:
		JobsFailed.WithLabelValues(jobType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordHandlerRequest records a downstream call made by a job handler.
// A zero status code means the request never got a response.
func RecordHandlerRequest(jobType string, statusCode int, duration time.Duration) {
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	HandlerRequests.WithLabelValues(jobType, code).Inc()
	HandlerRequestDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// SetJobGauges publishes per-status counts for one job type.
func SetJobGauges(jobType string, counts map[string]int64) {
	for status, n := range counts {
		JobsByStatus.WithLabelValues(jobType, status).Set(float64(n))
	}
}
