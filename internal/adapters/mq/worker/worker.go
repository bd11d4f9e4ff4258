package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

const (
	defaultWorkers      = 2
	poolShutdownTimeout = 30 * time.Second
)

// Publisher delivers a transition event downstream.
type Publisher interface {
	Publish(ctx context.Context, ev model.TransitionEvent) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.TransitionEvent
}

// Worker publishes events until its queue is closed and drained.
type Worker struct {
	queue     Queue
	publisher Publisher
	log       logger.Logger
	done      chan struct{}
}

// New creates a worker.
func New(q Queue, p Publisher, opts ...Option) *Worker {
	cfg := settings{name: "worker", log: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		queue:     q,
		publisher: p,
		log:       cfg.log.Named(cfg.name),
		done:      make(chan struct{}),
	}
}

// Run processes events until the queue is drained or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for ev := range w.queue.Dequeue(ctx) {
		if err := w.process(ctx, ev); err != nil {
			w.log.Error(ctx, "publish failed", logger.Error(err))
		}
	}
}

// Done is closed once Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, ev model.TransitionEvent) error {
	if err := w.publisher.Publish(ctx, ev); err != nil {
		metrics.RecordNotifyFailed()
		metrics.RecordErrorByComponent("worker", "publish_error")
		return fmt.Errorf("publish %s %s->%s: %w", ev.SubmissionID, ev.From, ev.To, err)
	}
	metrics.RecordNotifyPublished(metrics.Since(ev.At))
	w.log.Debug(ctx, "transition published",
		logger.String("submission_id", ev.SubmissionID),
		logger.String("to", ev.To.String()),
	)
	return nil
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	log     logger.Logger
}

// NewPool creates count workers. A non-positive count uses the default.
func NewPool(count int, q Queue, p Publisher, opts ...Option) *Pool {
	if count < 1 {
		count = defaultWorkers
	}
	cfg := settings{log: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	pool := &Pool{
		workers: make([]*Worker, count),
		queue:   q,
		log:     cfg.log.Named("worker-pool"),
	}
	for i := range pool.workers {
		pool.workers[i] = New(q, p, WithLogger(cfg.log), WithName("worker-"+strconv.Itoa(i)))
	}
	return pool
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateNotifyWorkers(len(p.workers))
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.log.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.log.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}
	metrics.UpdateNotifyWorkers(0)
	return nil
}
