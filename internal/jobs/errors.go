// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package jobs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the job ID is unknown (never existed or swept).
	ErrNotFound = errors.New("job not found")

	// ErrConflict means a compare-and-swap transition lost: the stored status
	// (or attempt number) did not match the expected one. Internal only.
	ErrConflict = errors.New("job status conflict")

	// ErrExists means Create found a job with the same ID. It wraps
	// ErrConflict.
	ErrExists = fmt.Errorf("%w: job id already exists", ErrConflict)

	// ErrStoreUnavailable means the backing store could not be reached.
	// It is distinct from ErrNotFound and ErrConflict so health checks can
	// downgrade without masking logic errors.
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrUnknownType means no handler is registered for the job type.
	ErrUnknownType = errors.New("unknown job type")

	// ErrInvalidOptions means enqueue options are out of range.
	ErrInvalidOptions = errors.New("invalid enqueue options")
)

// CancelledReason is recorded as the error of a cancelled job.
const CancelledReason = "cancelled"

// HandlerError is a failure returned by a job handler. It counts against
// the job's attempts.
type HandlerError struct {
	Type Type
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TimeoutError is produced when a handler runs past the execution timeout.
// It is accounted exactly like a HandlerError.
type TimeoutError struct {
	Timeout time.Duration
	// Reaped is true when the timeout was detected after the fact by the
	// reaper rather than by the executing worker.
	Reaped bool
}

func (e *TimeoutError) Error() string {
	if e.Reaped {
		return fmt.Sprintf("job abandoned: no result within %s", e.Timeout)
	}
	return fmt.Sprintf("handler timed out after %s", e.Timeout)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job fails immediately
// regardless of remaining attempts. Handlers use it for invalid payloads.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Unavailable wraps a backend error as ErrStoreUnavailable while keeping the
// cause in the message.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
