// Package dedupe guards reputation deltas against concurrent replays.
//
// The durable idempotency key is the (user, source) unique constraint in the
// event store. The guard sits in front of it so that a replay racing the
// original is rejected before it reaches storage, and so that recently applied
// sources are answered without a store round trip.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records source keys to keep at most one delta per key in flight.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the delta can be attempted again. Used when the
	// ledger rejected or failed to apply it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key builds the guard key for one delta.
func Key(userID, sourceRef string) string {
	return userID + "|" + sourceRef
}

// sourceGuard implements Deduper with a map and an insertion-ordered list.
// For bounded mode (maxSize > 0) the oldest key is evicted first.
// For unbounded mode (maxSize <= 0) keys are kept until unrecorded.
type sourceGuard struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewSourceGuard creates an in-memory guard with configuration options.
func NewSourceGuard(opts ...Option) Deduper {
	g := &sourceGuard{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.seen = make(map[string]*list.Element)
	g.order = list.New()
	return g
}

// SeenAndRecord implements Deduper.
func (g *sourceGuard) SeenAndRecord(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.seen[key]; exists {
		return true
	}
	if g.maxSize > 0 && len(g.seen) >= g.maxSize {
		g.evictOldest()
	}
	g.seen[key] = g.order.PushBack(key)
	g.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (g *sourceGuard) Unrecord(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if el, exists := g.seen[key]; exists {
		g.order.Remove(el)
		delete(g.seen, key)
		g.size.Add(-1)
	}
}

// evictOldest drops the key recorded first. Caller holds g.mu.
func (g *sourceGuard) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}
	g.order.Remove(front)
	delete(g.seen, front.Value.(string))
	g.size.Add(-1)
}

// Size returns the number of recorded keys.
func (g *sourceGuard) Size() int64 {
	return g.size.Load()
}
