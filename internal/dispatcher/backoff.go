// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package dispatcher

import (
	"math/rand/v2"
	"time"
)

// BackoffConfig shapes the delay before a failed job is retried.
type BackoffConfig struct {
	Base time.Duration
	Max  time.Duration
	// Jitter is the +/- fraction applied after capping, in [0, 1).
	Jitter float64
}

// DefaultBackoffConfig returns base 5s, max 5m, 20% jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: 5 * time.Second, Max: 5 * time.Minute, Jitter: 0.2}
}

// Delay returns the wait before the retry that follows attempt (1-based):
// Base * 2^(attempt-1), capped at Max, then spread by +/- Jitter.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	return c.delay(attempt, rand.Float64)
}

func (c BackoffConfig) delay(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.Base
	for i := 1; i < attempt && d < c.Max; i++ {
		d *= 2
	}
	if c.Max > 0 && d > c.Max {
		d = c.Max
	}
	if c.Jitter > 0 {
		factor := 1 + c.Jitter*(2*rnd()-1)
		d = time.Duration(float64(d) * factor)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// jittered spreads a polling interval by +/-20% so idle slots do not poll
// in lockstep.
func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}
