// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// ProgressReporter lets a running handler publish its progress (0-100).
// Reports that would lower progress are ignored.
type ProgressReporter interface {
	Report(ctx context.Context, percent int) error
}

// Handler executes the payload of one job type. The context carries the
// execution deadline and is cancelled when the dispatcher gives up on the
// attempt; handlers should return promptly once it is done.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage, progress ProgressReporter) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload json.RawMessage, progress ProgressReporter) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage, progress ProgressReporter) (json.RawMessage, error) {
	return f(ctx, payload, progress)
}

// Registry binds each job type to exactly one handler. It is filled at
// startup and read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
	order    []Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Type]Handler)}
}

// Register binds h to t. Registering a type twice is an error.
func (r *Registry) Register(t Type, h Handler) error {
	if t == "" {
		return fmt.Errorf("register: empty job type")
	}
	if h == nil {
		return fmt.Errorf("register %s: nil handler", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("register %s: handler already registered", t)
	}
	r.handlers[t] = h
	r.order = append(r.order, t)
	return nil
}

// MustRegister is Register that panics, for static wiring in main.
func (r *Registry) MustRegister(t Type, h Handler) {
	if err := r.Register(t, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler bound to t.
func (r *Registry) Lookup(t Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Validate returns ErrUnknownType when t has no handler.
func (r *Registry) Validate(t Type) error {
	if _, ok := r.Lookup(t); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return nil
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}
