package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/M3-org/clanktank-sub000/internal/adapters/mq/queue"
	"github.com/M3-org/clanktank-sub000/internal/adapters/mq/worker"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
)

type mockPublisher struct {
	mu        sync.Mutex
	published []model.TransitionEvent
	fail      map[string]error
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{fail: make(map[string]error)}
}

func (m *mockPublisher) Publish(_ context.Context, ev model.TransitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[ev.SubmissionID]; ok {
		return err
	}
	m.published = append(m.published, ev)
	return nil
}

func (m *mockPublisher) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.published))
	for _, ev := range m.published {
		out = append(out, ev.SubmissionID)
	}
	return out
}

func transition(id string) model.TransitionEvent {
	return model.TransitionEvent{SubmissionID: id, From: model.StatusScored, To: model.StatusPublished, At: time.Now()}
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		pub := newMockPublisher()
		w := worker.New(q, pub, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When events are queued and the queue is closed", func() {
			q.Enqueue(ctx, transition("s1"))
			q.Enqueue(ctx, transition("s2"))
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then every event is published before the worker stops", func() {
				stopped := false
				select {
				case <-w.Done():
					stopped = true
				case <-time.After(time.Second):
				}
				convey.So(stopped, convey.ShouldBeTrue)
				convey.So(pub.ids(), convey.ShouldResemble, []string{"s1", "s2"})
			})
		})

		convey.Convey("When publishing one event fails", func() {
			pub.fail["bad"] = errors.New("broker down")
			q.Enqueue(ctx, transition("bad"))
			q.Enqueue(ctx, transition("good"))
			convey.So(q.Close(), convey.ShouldBeNil)
			<-w.Done()

			convey.Convey("Then the worker keeps going", func() {
				convey.So(pub.ids(), convey.ShouldResemble, []string{"good"})
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		pub := newMockPublisher()
		pool := worker.NewPool(3, q, pub)
		pool.Start(context.Background())

		convey.Convey("When the pool shuts down with pending events", func() {
			for _, id := range []string{"a", "b", "c", "d", "e"} {
				q.Notify(context.Background(), transition(id))
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then the queue is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(pub.ids()), convey.ShouldEqual, 5)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
