// Package ledger owns every reputation score change.
//
// A score only moves through ApplyDelta, which appends an immutable event and
// updates the cached score in one store operation. Transient store failures
// are retried here with bounded exponential backoff; every other kind is
// returned to the caller unchanged.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// Defaults.
const (
	DefaultInitialScore = 100
	DefaultFloor        = 0
	DefaultMaxAttempts  = 5
	DefaultBackoff      = 10 * time.Millisecond
	DefaultMaxBackoff   = 500 * time.Millisecond
	defaultHistoryLimit = 100
)

// Store is the persistence the ledger needs.
type Store interface {
	// ApplyScoreChange appends the event and updates the score atomically.
	// It returns ErrNotFound for unknown users, ErrDuplicateSource when the
	// (user, source) pair already has an event and ErrTransient on contention.
	ApplyScoreChange(ctx context.Context, change model.ScoreChange) (model.ReputationEvent, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	// Events returns the user's events, newest first. limit <= 0 means all.
	Events(ctx context.Context, userID string, limit int) ([]model.ReputationEvent, error)
}

// AuditReport is the result of checking a user's score against their events.
type AuditReport struct {
	UserID       string `json:"user_id"`
	Score        int64  `json:"score"`
	InitialScore int64  `json:"initial_score"`
	SumApplied   int64  `json:"sum_applied"`
	Events       int    `json:"events"`
	Consistent   bool   `json:"consistent"`
}

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithFloor sets the minimum score.
func WithFloor(floor int64) Option {
	return func(l *Ledger) {
		l.floor = floor
	}
}

// WithInitialScore sets the score new users start at, used by Audit.
func WithInitialScore(score int64) Option {
	return func(l *Ledger) {
		l.initialScore = score
	}
}

// WithMaxAttempts bounds attempts per ApplyDelta. Values below 2 are raised to 2
// so a transient failure is always retried at least once.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = max(n, 2)
		}
	}
}

// WithBackoff sets the first retry delay and the cap for later ones.
func WithBackoff(initial, ceiling time.Duration) Option {
	return func(l *Ledger) {
		if initial > 0 {
			l.backoff = initial
		}
		if ceiling >= l.backoff {
			l.maxBackoff = ceiling
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// Ledger applies deltas and answers score queries.
type Ledger struct {
	store        Store
	floor        int64
	initialScore int64
	maxAttempts  int
	backoff      time.Duration
	maxBackoff   time.Duration
	logger       logger.Logger
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		floor:        DefaultFloor,
		initialScore: DefaultInitialScore,
		maxAttempts:  DefaultMaxAttempts,
		backoff:      DefaultBackoff,
		maxBackoff:   DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("ledger")
	}
	return l
}

// ApplyDelta appends one event for userID and returns it. The event's
// ScoreAfter is the new score and AppliedDelta may differ from delta when the
// floor clamps it.
func (l *Ledger) ApplyDelta(ctx context.Context, userID string, delta int64, reason model.ReasonCode, sourceRef string) (model.ReputationEvent, error) {
	const op = "ledger.apply_delta"
	switch {
	case strings.TrimSpace(userID) == "":
		return model.ReputationEvent{}, errkind.New(op, errkind.ErrValidation, "missing user id")
	case strings.TrimSpace(string(reason)) == "":
		return model.ReputationEvent{}, errkind.New(op, errkind.ErrValidation, "missing reason code")
	case strings.TrimSpace(sourceRef) == "":
		return model.ReputationEvent{}, errkind.New(op, errkind.ErrValidation, "missing source reference")
	case delta == 0:
		return model.ReputationEvent{}, errkind.New(op, errkind.ErrValidation, "zero delta")
	}

	change := model.ScoreChange{UserID: userID, Delta: delta, Reason: reason, SourceRef: sourceRef, Floor: l.floor}

	start := time.Now()
	defer func() {
		metrics.RecordApplyLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	wait := l.backoff
	var err error
	for attempt := 1; ; attempt++ {
		var ev model.ReputationEvent
		ev, err = l.store.ApplyScoreChange(ctx, change)
		if err == nil {
			metrics.RecordDeltaApplied(string(reason), ev.AppliedDelta)
			if ev.AppliedDelta != ev.RequestedDelta {
				metrics.RecordDeltaClamped()
			}
			return ev, nil
		}
		if !errkind.IsRetryable(err) || attempt >= l.maxAttempts {
			break
		}

		metrics.RecordLedgerRetry()
		l.logger.Warn(ctx, "transient ledger failure, retrying",
			logger.String("user_id", userID),
			logger.String("source_ref", sourceRef),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			return model.ReputationEvent{}, errkind.Wrap(op, errkind.ErrTransient, ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, l.maxBackoff)
	}

	metrics.RecordErrorByComponent("ledger", errkind.Name(err))
	if errkind.KindOf(err) == nil {
		return model.ReputationEvent{}, errkind.Wrap(op, errkind.ErrTransient, err)
	}
	return model.ReputationEvent{}, err
}

// Score returns the cached score for userID.
func (l *Ledger) Score(ctx context.Context, userID string) (int64, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.ReputationScore, nil
}

// History returns up to limit events, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]model.ReputationEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if _, err := l.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return l.store.Events(ctx, userID, limit)
}

// Audit recomputes the score from the event log. A mismatch returns the report
// together with an ErrValidation error.
func (l *Ledger) Audit(ctx context.Context, userID string) (AuditReport, error) {
	const op = "ledger.audit"
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return AuditReport{}, err
	}
	events, err := l.store.Events(ctx, userID, 0)
	if err != nil {
		return AuditReport{}, err
	}

	rep := AuditReport{UserID: userID, Score: u.ReputationScore, InitialScore: l.initialScore, Events: len(events)}
	for _, ev := range events {
		rep.SumApplied += ev.AppliedDelta
	}
	rep.Consistent = rep.InitialScore+rep.SumApplied == rep.Score
	if !rep.Consistent {
		l.logger.Error(ctx, "ledger drift detected",
			logger.String("user_id", userID),
			logger.Int64("score", rep.Score),
			logger.Int64("expected", rep.InitialScore+rep.SumApplied),
		)
		return rep, errkind.Newf(op, errkind.ErrValidation,
			"score %d does not match initial %d plus applied %d", rep.Score, rep.InitialScore, rep.SumApplied)
	}
	return rep, nil
}

// Floor returns the configured minimum score.
func (l *Ledger) Floor() int64 { return l.floor }

// InitialScore returns the configured starting score.
func (l *Ledger) InitialScore() int64 { return l.initialScore }
