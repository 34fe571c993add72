package service

import (
	"time"

	"github.com/okian/credence/internal/adapters/chain"
	"github.com/okian/credence/internal/adapters/mirror"
	"github.com/okian/credence/internal/adapters/repository"
	"github.com/okian/credence/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInitialScore sets the score new users start with.
func WithInitialScore(score int64) Option {
	return func(s *Service) {
		s.initialScore = score
	}
}

// WithScoreFloor sets the minimum score.
func WithScoreFloor(floor int64) Option {
	return func(s *Service) {
		s.scoreFloor = floor
	}
}

// WithLedgerRetry bounds the ledger's retries of transient store failures.
func WithLedgerRetry(maxAttempts int, backoff, maxBackoff time.Duration) Option {
	return func(s *Service) {
		s.applyMaxAttempts = maxAttempts
		s.applyBackoff = backoff
		s.applyMaxBackoff = maxBackoff
	}
}

// WithEndorsementBaseRate sets the share of the endorser's score an endorsement carries.
func WithEndorsementBaseRate(rate float64) Option {
	return func(s *Service) {
		if rate > 0 {
			s.baseRate = rate
		}
	}
}

// WithVerificationDeltas sets the approval delta per verification type.
func WithVerificationDeltas(test, peer, project int64) Option {
	return func(s *Service) {
		s.testDelta, s.peerDelta, s.projectDelta = test, peer, project
	}
}

// WithMinPeerApprovals sets how many peer approvals a peer verification needs.
func WithMinPeerApprovals(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minPeerApprovals = n
		}
	}
}

// WithMinReviewerReputation sets the score a peer needs to review.
func WithMinReviewerReputation(score int64) Option {
	return func(s *Service) {
		s.minReviewerReputation = score
	}
}

// WithJobDeltas sets the completion reward and the dispute penalty.
func WithJobDeltas(completion, disputePenalty int64) Option {
	return func(s *Service) {
		s.completionDelta, s.disputePenalty = completion, disputePenalty
	}
}

// WithConsistencyBonus sets the per-period consistency reward.
func WithConsistencyBonus(bonus int64) Option {
	return func(s *Service) {
		if bonus >= 0 {
			s.consistencyBonus = bonus
		}
	}
}

// WithRetryQueueSize bounds the pending-endorsement retry queue.
func WithRetryQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.retryQueueSize = size
		}
	}
}

// WithRetryWorkers sets the number of retry workers.
func WithRetryWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.retryWorkers = count
		}
	}
}

// WithRetryPolicy bounds queue retries of one endorsement and their first delay.
func WithRetryPolicy(maxAttempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.retryMaxAttempts = maxAttempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithDedupeSize sets the size of the in-flight source cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithChain enables on-chain reputation reads.
func WithChain(c ChainReader) Option {
	return func(s *Service) {
		s.chain = c
	}
}

// WithSubmitter sets where issued badges and endorsements are recorded on chain.
func WithSubmitter(sub chain.Submitter) Option {
	return func(s *Service) {
		if sub != nil {
			s.submitter = sub
		}
	}
}

// WithMirror sets where applied scores are mirrored.
func WithMirror(m mirror.Mirror) Option {
	return func(s *Service) {
		if m != nil {
			s.mirror = m
		}
	}
}
