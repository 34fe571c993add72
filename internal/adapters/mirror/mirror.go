// Package mirror copies applied scores to an external read model.
//
// The reputation store stays authoritative. A mirror failure is logged and
// counted but never fails the ledger operation that caused it.
package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	supabase "github.com/nedpals/supabase-go"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

const defaultTable = "users"

// Mirror receives a user's state after each score change.
type Mirror interface {
	PushScore(ctx context.Context, u model.User) error
}

// Nop discards every push.
type Nop struct{}

// PushScore implements Mirror.
func (Nop) PushScore(context.Context, model.User) error { return nil }

// scoreRow is the subset of the profile row the mirror owns.
type scoreRow struct {
	ReputationScore int64     `json:"reputation_score"`
	JobsCompleted   int64     `json:"jobs_completed"`
	TotalEarnings   string    `json:"total_earnings"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SupabaseMirror updates the profile table the web client reads, keyed by wallet.
type SupabaseMirror struct {
	client *supabase.Client
	table  string
}

// NewSupabase creates a mirror for the project at url.
func NewSupabase(url, key, table string) (*SupabaseMirror, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	if table == "" {
		table = defaultTable
	}
	return &SupabaseMirror{client: supabase.CreateClient(url, key), table: table}, nil
}

// PushScore implements Mirror.
func (m *SupabaseMirror) PushScore(_ context.Context, u model.User) error {
	row := scoreRow{
		ReputationScore: u.ReputationScore,
		JobsCompleted:   u.JobsCompleted,
		TotalEarnings:   u.TotalEarnings.String(),
		UpdatedAt:       u.UpdatedAt,
	}
	var res []map[string]any
	if err := m.client.DB.From(m.table).Update(row).Eq("wallet_address", u.WalletAddress).Execute(&res); err != nil {
		return fmt.Errorf("mirror score for %s: %w", u.ID, err)
	}
	return nil
}

// Async pushes through a bounded buffer drained by one goroutine, keeping the
// caller off the network path. When the buffer is full the push is dropped;
// the next score change for that user carries the full state again.
type Async struct {
	next   Mirror
	ch     chan model.User
	logger logger.Logger
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewAsync wraps next with a buffer of the given size.
func NewAsync(next Mirror, buffer int, l logger.Logger) *Async {
	if buffer < 1 {
		buffer = 256
	}
	if l == nil {
		l = logger.Get().Named("mirror")
	}
	return &Async{next: next, ch: make(chan model.User, buffer), logger: l}
}

// Start runs the drain loop until Close.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for u := range a.ch {
			if err := a.next.PushScore(ctx, u); err != nil {
				metrics.RecordMirrorPush("error")
				a.logger.Warn(ctx, "score mirror push failed", logger.String("user_id", u.ID), logger.Error(err))
				continue
			}
			metrics.RecordMirrorPush("ok")
		}
	}()
}

// PushScore implements Mirror without blocking.
func (a *Async) PushScore(_ context.Context, u model.User) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.RecordMirrorPush("closed")
		return nil
	}
	select {
	case a.ch <- u:
	default:
		metrics.RecordMirrorPush("dropped")
	}
	return nil
}

// Close stops accepting pushes and waits for the buffer to drain.
func (a *Async) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	a.wg.Wait()
	return nil
}
