// Package queue defines the contract for scheduling projection refreshes.
//
// Appends push the affected subject here; workers drain it and recompute
// the cached projections in the background. Losing an entry to
// backpressure is safe because stale projections are also recomputed
// lazily on read.
package queue

import (
	"context"
	"sync"

	"github.com/cvmap/cvmap/internal/adapters/eventlog"
	"github.com/cvmap/cvmap/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 10_000
)

// Subject is the payload type flowing through the queue.
type Subject = eventlog.Subject

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a subject to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, s Subject) bool

	// Dequeue returns a channel that receives subjects as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Subject

	// Len returns the current number of queued subjects.
	Len(ctx context.Context) int

	// Close shuts the queue down; no further enqueues are accepted.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	subjects chan Subject
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates an in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.subjects = make(chan Subject, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a subject to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Subject) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDrop()
		return false
	}

	select {
	case q.subjects <- s:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.subjects))
		return true
	case <-ctx.Done():
		metrics.RecordQueueDrop()
		return false
	default:
		metrics.RecordQueueDrop()
		return false // queue is full
	}
}

// Dequeue returns a channel that receives subjects as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Subject {
	out := make(chan Subject)
	go func() {
		defer close(out)
		for s := range q.subjects {
			select {
			case out <- s:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.subjects))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued subjects.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.subjects)
}

// Close shuts the queue down.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.subjects)
	q.closed = true
	return nil
}
