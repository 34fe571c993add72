package service

import (
	"context"
	"strings"

	"github.com/okian/credence/internal/adapters/repository"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
)

// ChainStatus compares a user's on-chain reputation with the ledger.
type ChainStatus struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	OnChainScore  int64  `json:"on_chain_score"`
	BadgeCount    int64  `json:"badge_count"`
	LedgerScore   int64  `json:"ledger_score"`
	InSync        bool   `json:"in_sync"`
}

// Leaderboard returns the top n active users. n is capped at the configured
// maximum.
func (s *Service) Leaderboard(_ context.Context, n int) ([]repository.Entry, error) {
	if n > s.maxLeaderboardLimit {
		n = s.maxLeaderboardLimit
	}
	return s.ranks.TopN(n)
}

// Rank returns the user's position on the leaderboard.
func (s *Service) Rank(_ context.Context, userID string) (repository.Entry, error) {
	return s.ranks.Rank(userID)
}

// AwardConsistencyBonus credits the consistency bonus for one period, such as
// "2026-10". Each period pays once per user.
func (s *Service) AwardConsistencyBonus(ctx context.Context, userID, period string) (model.ReputationEvent, error) {
	const op = "service.consistency_bonus"
	period = strings.TrimSpace(period)
	switch {
	case period == "":
		return model.ReputationEvent{}, errkind.New(op, errkind.ErrValidation, "missing period")
	case s.consistencyBonus == 0:
		return model.ReputationEvent{}, errkind.New(op, errkind.ErrValidation, "consistency bonus disabled")
	}
	if _, err := s.activeUser(ctx, userID); err != nil {
		return model.ReputationEvent{}, err
	}
	return s.apply(ctx, Delta{
		UserID:    userID,
		Amount:    s.consistencyBonus,
		Reason:    model.ReasonConsistencyBonus,
		SourceRef: "consistency:" + period,
	})
}

// ChainReputation reads the user's reputation from the chain module.
func (s *Service) ChainReputation(ctx context.Context, userID string) (ChainStatus, error) {
	if s.chain == nil {
		return ChainStatus{}, ErrChainDisabled
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return ChainStatus{}, err
	}
	onChain, err := s.chain.Reputation(ctx, u.WalletAddress)
	if err != nil {
		s.logger.Warn(ctx, "chain reputation read failed", logger.String("user_id", u.ID), logger.Error(err))
		return ChainStatus{}, err
	}
	badges, err := s.chain.BadgeCount(ctx, u.WalletAddress)
	if err != nil {
		return ChainStatus{}, err
	}
	return ChainStatus{
		UserID:        u.ID,
		WalletAddress: u.WalletAddress,
		OnChainScore:  onChain,
		BadgeCount:    badges,
		LedgerScore:   u.ReputationScore,
		InSync:        onChain == u.ReputationScore,
	}, nil
}
