package worker

import (
	"time"

	"github.com/okian/credence/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMaxAttempts bounds how many times one endorsement is retried from the queue.
func WithMaxAttempts(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first requeued retry and its cap.
func WithBackoff(initial, ceiling time.Duration) Option {
	return func(w *InMemoryWorker) {
		if initial > 0 {
			w.backoff = initial
		}
		if ceiling >= w.backoff {
			w.maxBackoff = ceiling
		}
	}
}
