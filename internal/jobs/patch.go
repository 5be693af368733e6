// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package jobs

import (
	"time"

	"github.com/goccy/go-json"
)

// Patch is the set of field changes applied together with a status
// transition. Stores apply it atomically with the status check; nil fields
// are left untouched.
type Patch struct {
	// IncrementAttempts adds one to Attempts. Set on every claim.
	IncrementAttempts bool

	// RefundAttempt takes one from Attempts, never below zero. Used when an
	// attempt is given back unfinished at shutdown.
	RefundAttempt bool

	// ExpectAttempts, when positive, makes the transition conditional on the
	// stored Attempts as well as the status. Settling an attempt uses it so a
	// slow worker cannot settle a job that was reaped and claimed again.
	ExpectAttempts int

	Progress   *int
	Result     json.RawMessage
	Error      *string
	ClaimedAt  *time.Time
	FinishedAt *time.Time
	RunAt      *time.Time
	ClearRunAt bool
	ClearError bool
}

// Apply mutates j in place the way every store backend must: status, then
// fields, with StartedAt recorded only on the first claim.
func (p Patch) Apply(j *Job, to Status, now time.Time) {
	j.Status = to
	j.UpdatedAt = now
	if p.IncrementAttempts {
		j.Attempts++
	}
	if p.RefundAttempt && j.Attempts > 0 {
		j.Attempts--
	}
	if p.Progress != nil {
		j.Progress = clampProgress(*p.Progress)
	}
	if p.Result != nil {
		j.Result = cloneRaw(p.Result)
	}
	if p.ClearError {
		j.Error = ""
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.ClaimedAt != nil {
		j.ClaimedAt = cloneTime(p.ClaimedAt)
		if j.StartedAt == nil {
			j.StartedAt = cloneTime(p.ClaimedAt)
		}
	}
	if p.FinishedAt != nil && j.FinishedAt == nil {
		j.FinishedAt = cloneTime(p.FinishedAt)
	}
	if p.ClearRunAt {
		j.RunAt = nil
	}
	if p.RunAt != nil {
		j.RunAt = cloneTime(p.RunAt)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxProgress {
		return MaxProgress
	}
	return p
}

// ClampProgress bounds p to [0, MaxProgress].
func ClampProgress(p int) int {
	return clampProgress(p)
}

// IntPtr and StringPtr build Patch fields inline.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
