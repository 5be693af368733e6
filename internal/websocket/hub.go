// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
)

// Message types for WebSocket communication
const (
	MessageTypeJobEvent = "job_event"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is the part of events.Bus the hub needs.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

// errSubscriptionClosed makes the supervisor restart the hub when the bus
// closes its channel underneath it.
var errSubscriptionClosed = errors.New("event subscription closed")

// Hub maintains the set of active clients and routes job events to them.
type Hub struct {
	source     Subscriber
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub fed by source.
func NewHub(source Subscriber) *Hub {
	return &Hub{
		source:     source,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve subscribes to the event bus and routes events until ctx ends.
// Client lifecycle events are handled before broadcasts so a client never
// misses an event published after it registered.
func (h *Hub) Serve(ctx context.Context) error {
	stream, err := h.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.Register:
			h.add(c)
			continue
		case c := <-h.Unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.Register:
			h.add(c)
		case c := <-h.Unregister:
			h.remove(c)
		case ev, ok := <-stream:
			if !ok {
				h.shutdown()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errSubscriptionClosed
			}
			h.route(ev)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Inc()
	logging.Debug().Int("total_clients", n).Str("job_id", c.jobID).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WSConnections.Dec()
	}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Int("total_clients", n).Msg("websocket client disconnected")
}

// route delivers ev to every client watching its job, in client ID order.
func (h *Hub) route(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.jobID == "" || c.jobID == ev.JobID {
			targets = append(targets, c)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	msg := Message{Type: MessageTypeJobEvent, Data: ev}
	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			// Slow consumer: drop it rather than stall every watcher.
			close(c.send)
			delete(h.clients, c)
			metrics.WSConnections.Dec()
			logging.Warn().Uint64("client_id", c.id).Msg("websocket client dropped: send buffer full")
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
	logging.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("websocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
