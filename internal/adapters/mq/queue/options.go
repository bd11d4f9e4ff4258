package queue

import "github.com/M3-org/clanktank-sub000/pkg/logger"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of pending events.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(log logger.Logger) Option {
	return func(q *InMemoryQueue) {
		if log != nil {
			q.log = log
		}
	}
}
