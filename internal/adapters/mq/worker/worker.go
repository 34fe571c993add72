// Package worker drains the retry queue and re-applies pending ledger updates.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/credence/internal/adapters/mq/queue"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultMaxAttempts    = 8
	defaultBackoff        = 500 * time.Millisecond
	defaultMaxBackoff     = time.Minute
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Worker results reported to metrics.
const (
	ResultApplied  = "applied"
	ResultRequeued = "requeued"
	ResultDropped  = "dropped"
)

// Retrier re-attempts the ledger update of a stored endorsement. It returns
// nil when the endorsement is settled, including when it already was.
type Retrier interface {
	RetryEndorsement(ctx context.Context, endorsementID string) error
}

// Queue defines how workers receive and return tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
	Enqueue(ctx context.Context, t queue.Task) bool
}

// Worker processes retry tasks.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for retry tasks.
type InMemoryWorker struct {
	queue       Queue
	retrier     Retrier
	name        string
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	processed   *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, r Retrier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		retrier:     r,
		name:        "worker",
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		maxBackoff:  defaultMaxBackoff,
		processed:   new(atomic.Int64),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.processTask(ctx, task); err != nil && !errors.Is(err, queue.ErrStopped) {
				w.logger.Error(ctx, "error processing retry task",
					logger.String("endorsement_id", task.EndorsementID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// delay returns the wait before retry number attempt.
func (w *InMemoryWorker) delay(attempt int) time.Duration {
	d := w.backoff
	for i := 0; i < attempt && d < w.maxBackoff; i++ {
		d *= 2
	}
	return min(d, w.maxBackoff)
}

// processTask runs one retry and requeues it on a transient failure.
func (w *InMemoryWorker) processTask(ctx context.Context, task queue.Task) error {
	if wait := time.Until(task.NotBefore); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-w.shutdown:
			timer.Stop()
			return queue.ErrStopped
		}
	}

	start := time.Now()
	err := w.retrier.RetryEndorsement(ctx, task.EndorsementID)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	w.processed.Add(1)

	if err == nil {
		metrics.RecordWorkerResult(ResultApplied)
		w.logger.Info(ctx, "pending endorsement applied",
			logger.String("endorsement_id", task.EndorsementID),
			logger.Int("attempt", task.Attempt),
		)
		return nil
	}

	if !errkind.IsRetryable(err) {
		metrics.RecordWorkerResult(ResultDropped)
		metrics.RecordErrorByComponent("worker", errkind.Name(err))
		return fmt.Errorf("endorsement %s not retryable: %w", task.EndorsementID, err)
	}
	if task.Attempt+1 >= w.maxAttempts {
		metrics.RecordWorkerResult(ResultDropped)
		metrics.RecordErrorByComponent("worker", "attempts_exhausted")
		return fmt.Errorf("endorsement %s gave up after %d attempts: %w", task.EndorsementID, task.Attempt+1, err)
	}

	next := queue.Task{
		EndorsementID: task.EndorsementID,
		Attempt:       task.Attempt + 1,
		NotBefore:     time.Now().Add(w.delay(task.Attempt)),
	}
	if !w.queue.Enqueue(ctx, next) {
		metrics.RecordWorkerResult(ResultDropped)
		return fmt.Errorf("endorsement %s could not be requeued: %w", task.EndorsementID, err)
	}
	metrics.RecordWorkerResult(ResultRequeued)
	w.logger.Warn(ctx, "ledger still unavailable, retry scheduled",
		logger.String("endorsement_id", task.EndorsementID),
		logger.Int("attempt", next.Attempt),
		logger.Error(err),
	)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed atomic.Int64
	shutdown  chan struct{}
	logger    logger.Logger
}

// NewPool creates a pool of workerCount workers; opts apply to each worker.
func NewPool(workerCount int, q Queue, r Retrier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, r, wopts...)
		w.processed = &pool.processed
		pool.workers[i] = w
	}
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many tasks the pool has run.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Shutdown closes the queue and waits for the workers to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		wctx, wcancel := context.WithTimeout(shutdownCtx, workerShutdownTimeout)
		if err := w.Shutdown(wctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		wcancel()
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
