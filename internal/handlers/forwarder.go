// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package handlers implements the built-in job types. Each forwards its
// validated payload to the platform's internal processing endpoint, which
// does the actual document or podcast work.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
)

// Progress checkpoints reported by every forwarder.
const (
	ProgressValidated  = 10
	ProgressDispatched = 50
	ProgressDone       = 100
)

// maxResultBytes caps how much of the endpoint's response becomes the result.
const maxResultBytes = 1 << 20

// Config points the forwarders at the processing endpoints.
type Config struct {
	DocumentIngestURL  string
	PodcastGenerateURL string
	// AuthToken, when set, is sent as a bearer token.
	AuthToken string
	// RatePerSecond and Burst limit calls per job type. Zero disables.
	RatePerSecond float64
	Burst         int
	// Timeout bounds a single HTTP call. The job timeout still applies.
	Timeout time.Duration
}

// Forwarder is a jobs.Handler that POSTs the payload to an endpoint.
type Forwarder struct {
	jobType  jobs.Type
	url      string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[json.RawMessage]
	validate func(json.RawMessage) error
}

// NewForwarder returns a forwarder for t that posts to url.
func NewForwarder(t jobs.Type, url string, cfg Config) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	name := "handler-" + string(t)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Processing endpoint circuit state transition")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			switch to {
			case gobreaker.StateOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(2)
			case gobreaker.StateHalfOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(1)
			default:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
			}
		},
		// A rejected payload is an answer from a healthy endpoint.
		IsSuccessful: func(err error) bool {
			return err == nil || jobs.IsPermanent(err) || errors.Is(err, context.Canceled)
		},
	})

	return &Forwarder{
		jobType:  t,
		url:      url,
		token:    cfg.AuthToken,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		cb:       cb,
		validate: ValidatorFor(t),
	}
}

type forwardRequest struct {
	JobID   string          `json:"jobId"`
	Type    jobs.Type       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handle validates, waits for the rate limiter, and forwards the payload.
func (f *Forwarder) Handle(ctx context.Context, payload json.RawMessage, progress jobs.ProgressReporter) (json.RawMessage, error) {
	if f.validate != nil {
		if err := f.validate(payload); err != nil {
			return nil, err
		}
	}
	if err := progress.Report(ctx, ProgressValidated); err != nil {
		return nil, err
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(forwardRequest{
		JobID:   logging.JobIDFromContext(ctx),
		Type:    f.jobType,
		Payload: payload,
	})
	if err != nil {
		return nil, jobs.Permanent(fmt.Errorf("encode request: %w", err))
	}
	if err := progress.Report(ctx, ProgressDispatched); err != nil {
		return nil, err
	}

	result, err := f.cb.Execute(func() (json.RawMessage, error) {
		return f.post(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s endpoint unavailable: %w", f.jobType, err)
		}
		return nil, err
	}

	if err := progress.Report(ctx, ProgressDone); err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Forwarder) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, jobs.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if id := logging.JobIDFromContext(ctx); id != "" {
		req.Header.Set("X-Job-ID", id)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordHandlerRequest(string(f.jobType), 0, time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordHandlerRequest(string(f.jobType), resp.StatusCode, time.Since(start))

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, truncate(data, 512))
		if retryableStatus(resp.StatusCode) {
			return nil, err
		}
		return nil, jobs.Permanent(err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read response: %w", readErr)
	}

	if len(bytes.TrimSpace(data)) == 0 || !json.Valid(data) {
		out, err := json.Marshal(map[string]int{"statusCode": resp.StatusCode})
		return json.RawMessage(out), err
	}
	return json.RawMessage(data), nil
}

// retryableStatus reports whether a non-2xx status may succeed later.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Register binds the built-in forwarders for every configured URL. Types
// without a URL are left unregistered so the API rejects them.
func Register(reg *jobs.Registry, cfg Config) error {
	targets := []struct {
		t   jobs.Type
		url string
	}{
		{jobs.TypeDocumentIngest, cfg.DocumentIngestURL},
		{jobs.TypePodcastGenerate, cfg.PodcastGenerateURL},
	}
	for _, target := range targets {
		if target.url == "" {
			logging.Warn().Str("job_type", string(target.t)).Msg("No processing endpoint configured; job type disabled")
			continue
		}
		if err := reg.Register(target.t, NewForwarder(target.t, target.url, cfg)); err != nil {
			return err
		}
	}
	return nil
}
