// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

// Package health combines store connectivity and queue depth into a single
// healthy, degraded or unhealthy verdict.
//
// A check only reads: it pings the store and counts jobs. The Monitor runs
// checks on an interval as a supervised service, caches the latest report
// for the HTTP probes, and exports it as Prometheus gauges.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
	"github.com/tomtom215/docqueue/internal/queue"
	"github.com/tomtom215/docqueue/internal/store"
)

// Verdict is the outcome of a health check.
type Verdict int

const (
	Healthy Verdict = iota
	Degraded
	Unhealthy
)

// String returns the wire name. Unhealthy is reported as "error".
func (v Verdict) String() string {
	switch v {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "error"
	}
}

// Thresholds are the queue ceilings. A zero ceiling is not enforced.
type Thresholds struct {
	MaxWaiting int64 `json:"maxWaiting"`
	MaxActive  int64 `json:"maxActive"`
	MaxDelayed int64 `json:"maxDelayed"`
}

// QueueCounts is the job count per status across all types.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Report is one health check result.
type Report struct {
	Verdict    Verdict     `json:"-"`
	Status     string      `json:"status"`
	Queue      QueueCounts `json:"queue"`
	Thresholds Thresholds  `json:"thresholds"`
	// Reasons lists the ceilings that were hit, or the store error.
	Reasons   []string  `json:"reasons,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Config tunes the monitor.
type Config struct {
	Interval   time.Duration
	Timeout    time.Duration
	Thresholds Thresholds
}

// DefaultConfig checks every 30s with 1000/100/1000 ceilings.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Thresholds: Thresholds{
			MaxWaiting: 1000,
			MaxActive:  100,
			MaxDelayed: 1000,
		},
	}
}

// Monitor runs and caches health checks.
type Monitor struct {
	store store.Store
	queue queue.Queue
	types []jobs.Type
	cfg   Config
	now   func() time.Time

	mu   sync.RWMutex
	last *Report
}

// NewMonitor returns a monitor. q may be nil; when set, per-type queue
// depths are exported as gauges.
func NewMonitor(s store.Store, q queue.Queue, types []jobs.Type, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Monitor{store: s, queue: q, types: types, cfg: cfg, now: time.Now}
}

// Check runs one health check. It never mutates jobs or queue entries.
func (m *Monitor) Check(ctx context.Context) *Report {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	r := &Report{Thresholds: m.cfg.Thresholds, CheckedAt: m.now().UTC()}

	counts, err := m.probe(ctx)
	if err != nil {
		r.Verdict = Unhealthy
		r.Status = r.Verdict.String()
		r.Reasons = []string{"store unreachable: " + err.Error()}
		return r
	}
	r.Queue = QueueCounts{
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Delayed:   counts.Delayed,
	}

	t := m.cfg.Thresholds
	r.Reasons = appendExceeded(r.Reasons, "waiting", counts.Waiting, t.MaxWaiting)
	r.Reasons = appendExceeded(r.Reasons, "active", counts.Active, t.MaxActive)
	r.Reasons = appendExceeded(r.Reasons, "delayed", counts.Delayed, t.MaxDelayed)
	if len(r.Reasons) > 0 {
		r.Verdict = Degraded
	}
	r.Status = r.Verdict.String()
	return r
}

func (m *Monitor) probe(ctx context.Context) (jobs.Counts, error) {
	if err := m.store.Ping(ctx); err != nil {
		return jobs.Counts{}, err
	}
	return m.store.CountByStatus(ctx, "")
}

func appendExceeded(reasons []string, name string, n, ceiling int64) []string {
	if ceiling > 0 && n >= ceiling {
		return append(reasons, fmt.Sprintf("%s %d >= %d", name, n, ceiling))
	}
	return reasons
}

// Current returns the cached report when it is younger than two intervals,
// otherwise it runs a fresh check.
func (m *Monitor) Current(ctx context.Context) *Report {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()
	if last != nil && m.now().Sub(last.CheckedAt) < 2*m.cfg.Interval {
		return last
	}
	return m.refresh(ctx)
}

func (m *Monitor) refresh(ctx context.Context) *Report {
	r := m.Check(ctx)

	m.mu.Lock()
	prev := m.last
	m.last = r
	m.mu.Unlock()

	metrics.HealthStatus.Set(float64(r.Verdict))
	if prev == nil || prev.Verdict != r.Verdict {
		ev := logging.Info()
		if r.Verdict != Healthy {
			ev = logging.Warn()
		}
		ev.Str("status", r.Status).Strs("reasons", r.Reasons).Msg("Health status changed")
	}
	return r
}

// exportGauges publishes per-type counts and queue depths.
func (m *Monitor) exportGauges(ctx context.Context) {
	for _, t := range m.types {
		c, err := m.store.CountByStatus(ctx, t)
		if err != nil {
			return
		}
		gauges := make(map[string]int64, len(jobs.AllStatuses))
		for _, s := range jobs.AllStatuses {
			gauges[string(s)] = c.Get(s)
		}
		metrics.SetJobGauges(string(t), gauges)

		if m.queue == nil {
			continue
		}
		pending, delayed, err := m.queue.Depth(ctx, t)
		if err != nil {
			logging.Debug().Err(err).Str("job_type", string(t)).Msg("Queue depth unavailable")
			continue
		}
		metrics.QueueDepth.WithLabelValues(string(t), "pending").Set(float64(pending))
		metrics.QueueDepth.WithLabelValues(string(t), "delayed").Set(float64(delayed))
	}
}

// Serve checks on every interval until ctx ends. Implements suture.Service.
func (m *Monitor) Serve(ctx context.Context) error {
	tk := time.NewTicker(m.cfg.Interval)
	defer tk.Stop()
	for {
		if r := m.refresh(ctx); r.Verdict != Unhealthy {
			gctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
			m.exportGauges(gctx)
			cancel()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}
	}
}

func (m *Monitor) String() string { return "health-monitor" }
