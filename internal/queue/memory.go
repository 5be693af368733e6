// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/tomtom215/docqueue/internal/jobs"
)

type delayedEntry struct {
	id    string
	runAt time.Time
	seq   uint64
}

// delayedHeap is a min-heap on run time, ties broken by insertion order.
type delayedHeap []delayedEntry

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(a, b int) bool {
	if !h[a].runAt.Equal(h[b].runAt) {
		return h[a].runAt.Before(h[b].runAt)
	}
	return h[a].seq < h[b].seq
}
func (h delayedHeap) Swap(a, b int) { h[a], h[b] = h[b], h[a] }
func (h *delayedHeap) Push(x any)   { *h = append(*h, x.(delayedEntry)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h delayedHeap) index(id string) int {
	for i, e := range h {
		if e.id == id {
			return i
		}
	}
	return -1
}

type typeQueue struct {
	pending []string
	delayed delayedHeap
}

// MemoryQueue is a process-local Queue. Paired with a durable store it is
// restored by Rebuild after a restart.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[jobs.Type]*typeQueue
	seq    uint64
	now    func() time.Time
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queues: make(map[jobs.Type]*typeQueue), now: time.Now}
}

func (q *MemoryQueue) get(t jobs.Type) *typeQueue {
	tq, ok := q.queues[t]
	if !ok {
		tq = &typeQueue{}
		q.queues[t] = tq
	}
	return tq
}

func (q *MemoryQueue) schedule(tq *typeQueue, id string, runAt time.Time) {
	if i := tq.delayed.index(id); i >= 0 {
		tq.delayed[i].runAt = runAt
		heap.Fix(&tq.delayed, i)
		return
	}
	q.seq++
	heap.Push(&tq.delayed, delayedEntry{id: id, runAt: runAt, seq: q.seq})
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t jobs.Type, id string, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	if runAt.After(q.now()) {
		q.schedule(tq, id, runAt)
		return nil
	}
	tq.pending = append(tq.pending, id)
	return nil
}

func (q *MemoryQueue) ClaimNext(ctx context.Context, t jobs.Type) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	if len(tq.pending) == 0 {
		return "", ErrEmpty
	}
	id := tq.pending[0]
	tq.pending[0] = ""
	tq.pending = tq.pending[1:]
	return id, nil
}

func (q *MemoryQueue) PushFront(ctx context.Context, t jobs.Type, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	tq.pending = append([]string{id}, tq.pending...)
	return nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, t jobs.Type, id string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.schedule(q.get(t), id, q.now().Add(delay))
	return nil
}

func (q *MemoryQueue) DueDelayed(ctx context.Context, t jobs.Type, now time.Time, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)

	// Copy so the heap is not disturbed by the ordered walk.
	h := make(delayedHeap, len(tq.delayed))
	copy(h, tq.delayed)
	var out []string
	for h.Len() > 0 && (limit <= 0 || len(out) < limit) {
		e := heap.Pop(&h).(delayedEntry)
		if e.runAt.After(now) {
			break
		}
		out = append(out, e.id)
	}
	return out, nil
}

func (q *MemoryQueue) Promote(ctx context.Context, t jobs.Type, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	i := tq.delayed.index(id)
	if i < 0 {
		return false, nil
	}
	heap.Remove(&tq.delayed, i)
	tq.pending = append(tq.pending, id)
	return true, nil
}

func (q *MemoryQueue) Contains(ctx context.Context, t jobs.Type, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	if tq.delayed.index(id) >= 0 {
		return true, nil
	}
	for _, p := range tq.pending {
		if p == id {
			return true, nil
		}
	}
	return false, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, t jobs.Type, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	if i := tq.delayed.index(id); i >= 0 {
		heap.Remove(&tq.delayed, i)
	}
	kept := tq.pending[:0]
	for _, p := range tq.pending {
		if p != id {
			kept = append(kept, p)
		}
	}
	tq.pending = kept
	return nil
}

func (q *MemoryQueue) Depth(ctx context.Context, t jobs.Type) (int64, int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq := q.get(t)
	return int64(len(tq.pending)), int64(len(tq.delayed)), nil
}
