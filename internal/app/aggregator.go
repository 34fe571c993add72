package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"

	"github.com/okian/credence/internal/domain/adjudication"
	"github.com/okian/credence/internal/domain/dedupe"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

const rankLockShards = 64

// Delta is what producers hand to the aggregator.
type Delta = adjudication.Delta

// apply walks one delta through Received -> Validated -> Applied | Rejected.
// The returned event is only meaningful when err is nil.
func (s *Service) apply(ctx context.Context, d Delta) (model.ReputationEvent, error) {
	const op = "service.apply"
	fields := []logger.Field{
		logger.String("user_id", d.UserID),
		logger.String("reason", string(d.Reason)),
		logger.String("source_ref", d.SourceRef),
		logger.Int64("delta", d.Amount),
	}
	s.logger.Debug(ctx, "delta "+string(model.StateReceived), fields...)

	if err := validateDelta(d); err != nil {
		return s.reject(ctx, errkind.Wrap(op, errkind.ErrValidation, err), fields)
	}

	key := dedupe.Key(d.UserID, d.SourceRef)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordEventDuplicate()
		return s.reject(ctx, ErrSourceInFlight, fields)
	}
	s.logger.Debug(ctx, "delta "+string(model.StateValidated), fields...)

	// The guard covers the write only; the ledger's unique source index is
	// what rejects a replay once it has landed.
	ev, err := s.ledger.ApplyDelta(ctx, d.UserID, d.Amount, d.Reason, d.SourceRef)
	s.deduper.Unrecord(ctx, key)
	if err != nil {
		return s.reject(ctx, err, fields)
	}

	s.publish(ctx, d.UserID)
	s.logger.Info(ctx, "delta "+string(model.StateApplied), append(fields,
		logger.Int64("applied", ev.AppliedDelta),
		logger.Int64("score", ev.ScoreAfter),
	)...)
	return ev, nil
}

func (s *Service) reject(ctx context.Context, err error, fields []logger.Field) (model.ReputationEvent, error) {
	kind := errkind.Name(err)
	metrics.RecordEventRejected(kind)
	fields = append(fields, logger.String("kind", kind), logger.Error(err))
	if errors.Is(err, errkind.ErrDuplicateSource) {
		s.logger.Debug(ctx, "delta "+string(model.StateRejected), fields...)
	} else {
		s.logger.Warn(ctx, "delta "+string(model.StateRejected), fields...)
	}
	return model.ReputationEvent{}, err
}

func validateDelta(d Delta) error {
	switch {
	case strings.TrimSpace(d.UserID) == "":
		return errors.New("missing user id")
	case strings.TrimSpace(d.SourceRef) == "":
		return errors.New("missing source reference")
	case strings.TrimSpace(string(d.Reason)) == "":
		return errors.New("missing reason code")
	case d.Amount == 0:
		return errors.New("zero delta")
	}
	return nil
}

// publish refreshes the rank index and the mirror from the stored user. The
// read happens under a per-user lock so a slower publisher cannot overwrite a
// newer score with the one it observed earlier.
func (s *Service) publish(ctx context.Context, userID string) {
	mu := &s.rankLocks[shard(userID)]
	mu.Lock()
	defer mu.Unlock()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "could not refresh rank", logger.String("user_id", userID), logger.Error(err))
		return
	}
	if u.IsActive {
		s.ranks.Set(u.ID, u.ReputationScore)
	}
	if err := s.mirror.PushScore(ctx, u); err != nil {
		metrics.RecordMirrorPush("error")
		s.logger.Warn(ctx, "score mirror push failed", logger.String("user_id", userID), logger.Error(err))
	}
}

func shard(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % rankLockShards)
}
