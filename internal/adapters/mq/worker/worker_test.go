package worker_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/credence/internal/adapters/mq/queue"
	"github.com/okian/credence/internal/adapters/mq/worker"
	"github.com/okian/credence/internal/domain/errkind"
	logging "github.com/okian/credence/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// mockRetrier fails each endorsement a configured number of times.
type mockRetrier struct {
	mu       sync.Mutex
	failures map[string]int
	fatal    map[string]error
	calls    map[string]int
}

func newMockRetrier() *mockRetrier {
	return &mockRetrier{
		failures: make(map[string]int),
		fatal:    make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (m *mockRetrier) RetryEndorsement(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[id]++
	if err, ok := m.fatal[id]; ok {
		return err
	}
	if m.failures[id] > 0 {
		m.failures[id]--
		return errkind.New("test.retry", errkind.ErrTransient, "store busy")
	}
	return nil
}

func (m *mockRetrier) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		r := newMockRetrier()
		w := worker.NewInMemoryWorker(q, r,
			worker.WithName("test-worker"),
			worker.WithMaxAttempts(3),
			worker.WithBackoff(time.Millisecond, 5*time.Millisecond),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When the retry succeeds", func() {
			q.Enqueue(ctx, queue.Task{EndorsementID: "e1"})

			convey.Convey("Then the endorsement is retried once", func() {
				convey.So(eventually(func() bool { return r.callCount("e1") == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the ledger stays busy for a while", func() {
			r.mu.Lock()
			r.failures["e2"] = 2
			r.mu.Unlock()
			q.Enqueue(ctx, queue.Task{EndorsementID: "e2"})

			convey.Convey("Then the task is requeued until it lands", func() {
				convey.So(eventually(func() bool { return r.callCount("e2") == 3 }), convey.ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				convey.So(r.callCount("e2"), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the ledger never recovers", func() {
			r.mu.Lock()
			r.failures["e3"] = 100
			r.mu.Unlock()
			q.Enqueue(ctx, queue.Task{EndorsementID: "e3"})

			convey.Convey("Then the worker gives up at the attempt limit", func() {
				convey.So(eventually(func() bool { return r.callCount("e3") == 3 }), convey.ShouldBeTrue)
				time.Sleep(30 * time.Millisecond)
				convey.So(r.callCount("e3"), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the failure is not transient", func() {
			r.mu.Lock()
			r.fatal["e4"] = errkind.New("test.retry", errkind.ErrNotFound, "gone")
			r.mu.Unlock()
			q.Enqueue(ctx, queue.Task{EndorsementID: "e4"})

			convey.Convey("Then the task is dropped after one try", func() {
				convey.So(eventually(func() bool { return r.callCount("e4") == 1 }), convey.ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				convey.So(r.callCount("e4"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a task scheduled in the future", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue()
		r := newMockRetrier()
		w := worker.NewInMemoryWorker(q, r)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		q.Enqueue(ctx, queue.Task{EndorsementID: "later", NotBefore: time.Now().Add(time.Hour)})
		time.Sleep(20 * time.Millisecond)

		convey.Convey("Then shutdown interrupts the wait without running it", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(r.callCount("later"), convey.ShouldEqual, 0)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue()
		r := newMockRetrier()

		convey.Convey("When created with the default count", func() {
			pool := worker.NewPool(0, q, r)
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When started with several tasks", func() {
			pool := worker.NewPool(3, q, r, worker.WithBackoff(time.Millisecond, time.Millisecond))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			ids := []string{"a", "b", "c", "d", "e"}
			for _, id := range ids {
				convey.So(q.Enqueue(ctx, queue.Task{EndorsementID: id}), convey.ShouldBeTrue)
			}

			convey.Convey("Then every task is processed and shutdown closes the queue", func() {
				convey.So(eventually(func() bool { return pool.Processed() == int64(len(ids)) }), convey.ShouldBeTrue)
				for _, id := range ids {
					convey.So(r.callCount(id), convey.ShouldEqual, 1)
				}

				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
