package service

import (
	"context"
	"strings"

	"github.com/okian/credence/internal/adapters/repository"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/ledger"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// scoreReader is implemented by stores that can read a score without locking.
type scoreReader interface {
	Score(id string) (int64, bool)
}

// RegisterUser creates a user at the initial score. A registered wallet
// returns a DuplicateSource error.
func (s *Service) RegisterUser(ctx context.Context, wallet, username string) (model.User, error) {
	const op = "service.register_user"
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return model.User{}, errkind.New(op, errkind.ErrValidation, "missing wallet address")
	}

	u := model.User{
		WalletAddress:   wallet,
		Username:        strings.TrimSpace(username),
		ReputationScore: s.initialScore,
		IsActive:        true,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return model.User{}, err
	}
	s.ranks.Set(u.ID, u.ReputationScore)
	if n, err := s.store.CountUsers(ctx); err == nil {
		metrics.UpdateUsersTotal(n)
	}

	s.logger.Info(ctx, "user registered",
		logger.String("user_id", u.ID),
		logger.String("wallet", u.WalletAddress),
	)
	return u, nil
}

// GetUser returns the stored user.
func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// DeactivateUser soft-deletes a user and removes them from the leaderboard.
// Their events and score are kept.
func (s *Service) DeactivateUser(ctx context.Context, userID string) error {
	if err := s.store.SetUserActive(ctx, userID, false); err != nil {
		return err
	}
	s.ranks.Remove(userID)
	s.logger.Info(ctx, "user deactivated", logger.String("user_id", userID))
	return nil
}

// UserStats summarizes a user's badges and received endorsements.
func (s *Service) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	badges, err := s.store.ListBadges(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	endorsements, err := s.store.ListEndorsementsFor(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}

	stats := model.UserStats{
		UserID:               u.ID,
		ReputationScore:      u.ReputationScore,
		JobsCompleted:        u.JobsCompleted,
		TotalEarnings:        u.TotalEarnings.String(),
		SkillBadges:          len(badges),
		EndorsementsReceived: len(endorsements),
	}
	var total float64
	for _, e := range endorsements {
		total += e.Weight
		if e.LedgerStatus == model.LedgerPending {
			stats.PendingLedgerUpdates++
		}
	}
	if len(endorsements) > 0 {
		stats.AvgEndorsementWeight = total / float64(len(endorsements))
	}
	return stats, nil
}

// Score returns the user's cached score.
func (s *Service) Score(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Score(ctx, userID)
}

// History returns up to limit of the user's events, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.ReputationEvent, error) {
	return s.ledger.History(ctx, userID, limit)
}

// Audit checks the user's score against the event log.
func (s *Service) Audit(ctx context.Context, userID string) (ledger.AuditReport, error) {
	return s.ledger.Audit(ctx, userID)
}

// currentScore is the eligibility read. It may trail an in-flight write.
func (s *Service) currentScore(ctx context.Context, userID string) (int64, error) {
	if r, ok := s.store.(scoreReader); ok {
		score, found := r.Score(userID)
		if !found {
			return 0, repository.ErrUserNotFound
		}
		return score, nil
	}
	return s.ledger.Score(ctx, userID)
}

// activeUser loads a user and rejects deactivated accounts.
func (s *Service) activeUser(ctx context.Context, userID string) (model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if !u.IsActive {
		return model.User{}, ErrInactiveUser
	}
	return u, nil
}
