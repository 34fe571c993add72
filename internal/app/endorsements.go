package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/credence/internal/adapters/mq/queue"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// EndorseRequest asks for one endorsement of a skill badge.
type EndorseRequest struct {
	EndorserID   string `json:"endorser_id"`
	SkillBadgeID string `json:"skill_badge_id"`
	Message      string `json:"message,omitempty"`
}

// EndorsementResult is the stored endorsement and, when the delta reached
// the ledger, the event it produced.
type EndorsementResult struct {
	Endorsement model.Endorsement      `json:"endorsement"`
	Event       *model.ReputationEvent `json:"event,omitempty"`
	Warning     string                 `json:"warning,omitempty"`
}

// Endorse snapshots the endorser's score, stores the endorsement with its
// weight and applies the delta to the badge owner. The endorsement is stored
// even when the ledger update fails; in that case the result carries a
// warning. A retryable failure wraps ErrLedgerPending and is queued for retry;
// any other marks the endorsement failed and wraps ErrLedgerFailed.
func (s *Service) Endorse(ctx context.Context, req EndorseRequest) (EndorsementResult, error) {
	const op = "service.endorse"
	if strings.TrimSpace(req.EndorserID) == "" || strings.TrimSpace(req.SkillBadgeID) == "" {
		return EndorsementResult{}, errkind.New(op, errkind.ErrValidation, "endorser_id and skill_badge_id are required")
	}

	endorser, err := s.activeUser(ctx, req.EndorserID)
	if err != nil {
		return EndorsementResult{}, err
	}
	badge, err := s.store.GetBadge(ctx, req.SkillBadgeID)
	if err != nil {
		return EndorsementResult{}, err
	}
	if badge.UserID == endorser.ID {
		return EndorsementResult{}, ErrSelfEndorse
	}
	if _, err := s.activeUser(ctx, badge.UserID); err != nil {
		return EndorsementResult{}, err
	}

	weight := s.weights.ComputeWeight(endorser.ReputationScore)
	if err := s.weights.Validate(weight); err != nil {
		return EndorsementResult{}, err
	}
	e := model.Endorsement{
		EndorserID:         endorser.ID,
		EndorsedID:         badge.UserID,
		SkillBadgeID:       badge.ID,
		Message:            strings.TrimSpace(req.Message),
		EndorserReputation: endorser.ReputationScore,
		Weight:             weight,
		Delta:              s.weights.Delta(weight),
		LedgerStatus:       model.LedgerPending,
	}
	if e.Delta == 0 {
		e.LedgerStatus = model.LedgerNoDelta
	}
	if err := s.store.CreateEndorsement(ctx, &e); err != nil {
		return EndorsementResult{}, err
	}

	s.recordOnChain(ctx, endorser.WalletAddress, e)

	if e.LedgerStatus == model.LedgerNoDelta {
		metrics.RecordEndorsement(string(e.LedgerStatus))
		s.logger.Info(ctx, "endorsement recorded without delta",
			logger.String("endorsement_id", e.ID),
			logger.Int64("endorser_reputation", e.EndorserReputation),
		)
		return EndorsementResult{Endorsement: e}, nil
	}

	ev, err := s.settleEndorsement(ctx, &e)
	if err != nil {
		metrics.RecordEndorsement(string(e.LedgerStatus))
		res := EndorsementResult{Endorsement: e, Warning: e.LedgerError}
		if e.LedgerStatus == model.LedgerFailed {
			s.logger.Warn(ctx, "endorsement ledger update failed permanently",
				logger.String("endorsement_id", e.ID),
				logger.String("endorsed_id", e.EndorsedID),
				logger.Error(err),
			)
			return res, fmt.Errorf("%w: %w", ErrLedgerFailed, err)
		}
		s.queueRetry(ctx, e, err)
		return res, fmt.Errorf("%w: %w", ErrLedgerPending, err)
	}
	metrics.RecordEndorsement(string(model.LedgerApplied))
	return EndorsementResult{Endorsement: e, Event: ev}, nil
}

// settleEndorsement applies e's delta and records the outcome on e. A source
// the ledger already holds counts as applied; the returned event is then nil.
func (s *Service) settleEndorsement(ctx context.Context, e *model.Endorsement) (*model.ReputationEvent, error) {
	const op = "service.settle_endorsement"
	ev, err := s.apply(ctx, Delta{
		UserID:    e.EndorsedID,
		Amount:    e.Delta,
		Reason:    model.ReasonEndorsement,
		SourceRef: e.SourceRef(),
	})

	var out *model.ReputationEvent
	switch {
	case err == nil:
		e.LedgerStatus, e.LedgerError = model.LedgerApplied, ""
		out = &ev
	case errors.Is(err, ErrSourceInFlight):
		// Another caller is applying this endorsement; check back later.
		return nil, errkind.Newf(op, errkind.ErrTransient, "endorsement %s is being applied", e.ID)
	case errors.Is(err, errkind.ErrDuplicateSource):
		e.LedgerStatus, e.LedgerError = model.LedgerApplied, ""
		err = nil
	case errkind.IsRetryable(err):
		e.LedgerStatus, e.LedgerError = model.LedgerPending, err.Error()
	default:
		e.LedgerStatus, e.LedgerError = model.LedgerFailed, err.Error()
	}

	if serr := s.store.SetEndorsementLedger(ctx, e.ID, e.LedgerStatus, e.LedgerError); serr != nil {
		s.logger.Error(ctx, "could not record endorsement ledger status",
			logger.String("endorsement_id", e.ID),
			logger.Error(serr),
		)
	}
	return out, err
}

func (s *Service) queueRetry(ctx context.Context, e model.Endorsement, cause error) {
	fields := []logger.Field{
		logger.String("endorsement_id", e.ID),
		logger.String("endorsed_id", e.EndorsedID),
		logger.Error(cause),
	}
	if !s.retryQueue.Enqueue(ctx, queue.Task{EndorsementID: e.ID}) {
		s.logger.Warn(ctx, "retry queue unavailable, endorsement stays pending", fields...)
		return
	}
	s.logger.Warn(ctx, "endorsement ledger update queued for retry", fields...)
}

func (s *Service) recordOnChain(ctx context.Context, wallet string, e model.Endorsement) {
	tx, err := s.submitter.SubmitEndorsement(ctx, wallet, e)
	if err != nil {
		s.logger.Warn(ctx, "on-chain endorsement submit failed",
			logger.String("endorsement_id", e.ID),
			logger.Error(err),
		)
		return
	}
	if tx != "" {
		s.logger.Info(ctx, "endorsement submitted on chain",
			logger.String("endorsement_id", e.ID),
			logger.String("tx_hash", tx),
		)
	}
}

// RetryEndorsement re-applies the delta of a pending endorsement. Applied and
// failed endorsements return nil; a refusal marks the endorsement failed.
func (s *Service) RetryEndorsement(ctx context.Context, endorsementID string) error {
	e, err := s.store.GetEndorsement(ctx, endorsementID)
	if err != nil {
		return err
	}
	if e.LedgerStatus != model.LedgerPending {
		return nil
	}
	if _, err := s.settleEndorsement(ctx, &e); err != nil {
		if e.LedgerStatus == model.LedgerFailed {
			metrics.RecordEndorsement(string(model.LedgerFailed))
		}
		return err
	}
	if e.LedgerStatus == model.LedgerApplied {
		metrics.RecordEndorsement(string(model.LedgerApplied))
	}
	return nil
}

// ReconcilePending queues every pending endorsement for retry and returns
// how many were queued.
func (s *Service) ReconcilePending(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingEndorsements(ctx, 0)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, e := range pending {
		if s.retryQueue.Enqueue(ctx, queue.Task{EndorsementID: e.ID}) {
			queued++
		}
	}
	if queued < len(pending) {
		s.logger.Warn(ctx, "retry queue full, some endorsements stay pending",
			logger.Int("pending", len(pending)),
			logger.Int("queued", queued),
		)
	}
	return queued, nil
}

// ListEndorsements returns the endorsements a user has received.
func (s *Service) ListEndorsements(ctx context.Context, userID string) ([]model.Endorsement, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListEndorsementsFor(ctx, userID)
}
