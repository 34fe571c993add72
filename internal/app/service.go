// Package service wires the reputation engine together and implements the
// operations the HTTP API depends on.
//
// Every score change, whatever its producer, goes through the aggregator in
// aggregator.go. Producers (endorsements, verifications, jobs) compute a delta
// with their domain component and hand it over; the aggregator owns
// deduplication, the ledger write and the rank index update.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/credence/internal/adapters/chain"
	"github.com/okian/credence/internal/adapters/mirror"
	"github.com/okian/credence/internal/adapters/mq/queue"
	"github.com/okian/credence/internal/adapters/mq/worker"
	"github.com/okian/credence/internal/adapters/repository"
	"github.com/okian/credence/internal/domain/adjudication"
	"github.com/okian/credence/internal/domain/dedupe"
	"github.com/okian/credence/internal/domain/ledger"
	"github.com/okian/credence/internal/domain/verification"
	"github.com/okian/credence/internal/domain/weighting"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// ChainReader reads reputation state from the on-chain module.
type ChainReader interface {
	Reputation(ctx context.Context, wallet string) (int64, error)
	BadgeCount(ctx context.Context, wallet string) (int64, error)
}

// lifecycle is implemented by mirrors that run a background loop.
type lifecycle interface {
	Start(ctx context.Context)
	Close() error
}

// Service implements the API dependencies of the reputation engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	ledger      *ledger.Ledger
	weights     *weighting.Engine
	translator  *verification.Translator
	panel       *verification.Panel
	adjudicator *adjudication.Adjudicator
	deduper     dedupe.Deduper
	ranks       *repository.RankIndex
	retryQueue  *queue.InMemoryQueue
	workerPool  *worker.Pool
	mirror      mirror.Mirror
	chain       ChainReader
	submitter   chain.Submitter
	rankLocks   [rankLockShards]sync.Mutex

	// Configuration
	initialScore          int64
	scoreFloor            int64
	applyMaxAttempts      int
	applyBackoff          time.Duration
	applyMaxBackoff       time.Duration
	baseRate              float64
	testDelta             int64
	peerDelta             int64
	projectDelta          int64
	minPeerApprovals      int
	minReviewerReputation int64
	completionDelta       int64
	disputePenalty        int64
	consistencyBonus      int64
	retryQueueSize        int
	retryWorkers          int
	retryMaxAttempts      int
	retryBackoff          time.Duration
	dedupeSize            int
	maxLeaderboardLimit   int

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service. Components are ready for use immediately;
// Start launches the background workers and rebuilds the rank index.
func New(opts ...Option) *Service {
	s := &Service{
		initialScore:          ledger.DefaultInitialScore,
		scoreFloor:            ledger.DefaultFloor,
		applyMaxAttempts:      ledger.DefaultMaxAttempts,
		applyBackoff:          ledger.DefaultBackoff,
		applyMaxBackoff:       ledger.DefaultMaxBackoff,
		baseRate:              weighting.DefaultBaseRate,
		testDelta:             verification.DefaultTestDelta,
		peerDelta:             verification.DefaultPeerDelta,
		projectDelta:          verification.DefaultProjectDelta,
		minPeerApprovals:      verification.DefaultMinPeerApprovals,
		minReviewerReputation: ledger.DefaultInitialScore,
		completionDelta:       adjudication.DefaultCompletionDelta,
		disputePenalty:        adjudication.DefaultDisputePenalty,
		consistencyBonus:      10,
		retryQueueSize:        10_000,
		retryWorkers:          runtime.NumCPU(),
		retryMaxAttempts:      8,
		retryBackoff:          500 * time.Millisecond,
		dedupeSize:            50_000,
		maxLeaderboardLimit:   100,
		mirror:                mirror.Nop{},
		submitter:             chain.NopSubmitter{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}

	s.ledger = ledger.New(s.store,
		ledger.WithInitialScore(s.initialScore),
		ledger.WithFloor(s.scoreFloor),
		ledger.WithMaxAttempts(s.applyMaxAttempts),
		ledger.WithBackoff(s.applyBackoff, s.applyMaxBackoff),
		ledger.WithLogger(s.logger.Named("ledger")),
	)
	s.weights = weighting.New(weighting.WithBaseRate(s.baseRate))
	s.translator = verification.NewTranslator(
		verification.WithDeltas(s.testDelta, s.peerDelta, s.projectDelta),
		verification.WithMinPeerApprovals(s.minPeerApprovals),
	)
	s.panel = verification.NewPanel(s.minReviewerReputation)
	s.adjudicator = adjudication.New(
		adjudication.WithCompletionDelta(s.completionDelta),
		adjudication.WithDisputePenalty(s.disputePenalty),
	)
	s.deduper = dedupe.NewSourceGuard(dedupe.WithMaxSize(s.dedupeSize))
	s.ranks = repository.NewRankIndex()
	s.retryQueue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.retryQueueSize),
		queue.WithBufferSize(s.retryQueueSize),
	)

	return s
}

// Start rebuilds the rank index, starts the retry workers and requeues
// endorsements left pending by a previous run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting reputation service...", logger.String("store", s.store.Name()))

	if err := s.rebuildRanks(ctx); err != nil {
		return err
	}

	if m, ok := s.mirror.(lifecycle); ok {
		m.Start(ctx)
	}

	s.workerPool = worker.NewPool(s.retryWorkers, s.retryQueue, s,
		worker.WithMaxAttempts(s.retryMaxAttempts),
		worker.WithBackoff(s.retryBackoff, 0),
		worker.WithLogger(s.logger.Named("retry")),
	)
	s.workerPool.Start(ctx)

	pending, err := s.ReconcilePending(ctx)
	if err != nil {
		s.logger.Warn(ctx, "could not requeue pending endorsements", logger.Error(err))
	}

	s.started = true
	s.logger.Info(ctx, "reputation service started",
		logger.Int("retry_workers", s.retryWorkers),
		logger.Int("retry_queue_size", s.retryQueueSize),
		logger.Int("ranked_users", s.ranks.Count()),
		logger.Int("pending_endorsements", pending),
	)
	return nil
}

// Stop shuts the workers down, drains the mirror and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping reputation service...")

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "retry workers did not stop cleanly", logger.Error(err))
		}
	}
	if m, ok := s.mirror.(lifecycle); ok {
		_ = m.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "reputation service stopped")
}

func (s *Service) rebuildRanks(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.IsActive {
			s.ranks.Set(u.ID, u.ReputationScore)
		}
	}
	metrics.UpdateUsersTotal(len(users))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"store":        s.store.Name(),
		"retryWorkers": s.retryWorkers,
		"queueSize":    s.retryQueueSize,
		"dedupeSize":   s.dedupeSize,
		"rankedUsers":  s.ranks.Count(),
		"inFlight":     s.deduper.Size(),
		"queueLength":  s.retryQueue.Len(ctx),
	}

	if users, err := s.store.CountUsers(ctx); err == nil {
		stats["totalUsers"] = users
		metrics.UpdateUsersTotal(users)
	}
	if s.workerPool != nil {
		stats["retriesProcessed"] = s.workerPool.Processed()
	}
	metrics.UpdateQueueSize(s.retryQueue.Len(ctx))

	return stats
}
