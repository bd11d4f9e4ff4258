// Package queue buffers transition events between the ledger and the
// publishing workers. Enqueue never blocks; a full queue drops.
package queue

import (
	"context"
	"sync"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

const defaultCapacity = 1024

// Event is the payload flowing through the queue.
type Event = model.TransitionEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue returns false if the event was not accepted.
	Enqueue(ctx context.Context, e Event) bool
	// Dequeue returns a channel that is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Event
	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	metrics.UpdateNotifyQueueSize(0)
	return q
}

// Enqueue offers e without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	select {
	case q.events <- e:
		metrics.UpdateNotifyQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Notify enqueues ev and drops it when the queue cannot take it, so a slow
// consumer never stalls the caller.
func (q *InMemoryQueue) Notify(ctx context.Context, ev model.TransitionEvent) {
	if q.Enqueue(ctx, ev) {
		return
	}
	metrics.RecordNotifyDropped()
	q.log.Warn(ctx, "transition event dropped",
		logger.String("submission_id", ev.SubmissionID),
		logger.String("from", ev.From.String()),
		logger.String("to", ev.To.String()),
		logger.Int("pending", len(q.events)),
	)
}

// Dequeue returns a channel that receives events as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for ev := range q.events {
			select {
			case out <- ev:
				metrics.UpdateNotifyQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of pending events.
func (q *InMemoryQueue) Len(context.Context) int {
	return len(q.events)
}

// Close stops accepting events. Pending events stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
