package service

import (
	"context"
	"errors"
	"strings"

	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/internal/domain/verification"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// VerificationResult is a completed skill verification reported by a test
// platform, a project reviewer or a concluded peer panel.
type VerificationResult struct {
	UserID   string
	SkillID  string
	Level    model.Level
	Evidence verification.Evidence
	Outcome  model.Outcome
}

// VerificationOutcome reports what a verification produced. Badge and Event
// are nil for rejected verifications.
type VerificationOutcome struct {
	Badge *model.SkillBadge      `json:"badge,omitempty"`
	Delta int64                  `json:"delta"`
	Event *model.ReputationEvent `json:"event,omitempty"`
}

// CompleteVerification translates the outcome into a delta and, on approval,
// issues a verified badge and credits the user. A peer result must carry at
// least the configured number of approvals.
func (s *Service) CompleteVerification(ctx context.Context, res VerificationResult) (VerificationOutcome, error) {
	return s.completeVerification(ctx, res, "")
}

// completeVerification credits the delta under sourceRef, or under the new
// badge's own source when sourceRef is empty. A fixed source the ledger
// already holds counts as credited and keeps the badge verified.
func (s *Service) completeVerification(ctx context.Context, res VerificationResult, sourceRef string) (VerificationOutcome, error) {
	const op = "service.complete_verification"
	switch {
	case strings.TrimSpace(res.SkillID) == "":
		return VerificationOutcome{}, errkind.New(op, errkind.ErrValidation, "missing skill id")
	case !res.Level.Valid():
		return VerificationOutcome{}, errkind.Newf(op, errkind.ErrValidation, "unknown level %q", res.Level)
	}
	u, err := s.activeUser(ctx, res.UserID)
	if err != nil {
		return VerificationOutcome{}, err
	}

	delta, err := s.translator.TranslateEvidence(res.Evidence, res.Outcome)
	if err != nil {
		return VerificationOutcome{}, err
	}
	vt := res.Evidence.Type()
	metrics.RecordVerification(string(vt), string(res.Outcome))

	if res.Outcome != model.OutcomeApproved {
		s.logger.Info(ctx, "verification rejected",
			logger.String("user_id", u.ID),
			logger.String("skill_id", res.SkillID),
			logger.String("type", string(vt)),
		)
		return VerificationOutcome{}, nil
	}

	raw, err := verification.Encode(res.Evidence)
	if err != nil {
		return VerificationOutcome{}, errkind.Wrap(op, errkind.ErrValidation, err)
	}
	badge := model.SkillBadge{
		UserID:           u.ID,
		SkillID:          strings.TrimSpace(res.SkillID),
		Level:            res.Level,
		VerificationType: vt,
		Evidence:         raw,
		IsVerified:       true,
	}
	if err := s.store.CreateBadge(ctx, &badge); err != nil {
		return VerificationOutcome{}, err
	}

	out := VerificationOutcome{Badge: &badge, Delta: delta}
	if delta != 0 {
		source := sourceRef
		if source == "" {
			source = "badge:" + badge.ID
		}
		ev, err := s.apply(ctx, Delta{
			UserID:    u.ID,
			Amount:    delta,
			Reason:    model.VerificationReason(vt),
			SourceRef: source,
		})
		switch {
		case err == nil:
			out.Event = &ev
		case sourceRef != "" && errors.Is(err, errkind.ErrDuplicateSource) && !errors.Is(err, ErrSourceInFlight):
			s.logger.Info(ctx, "verification delta already credited",
				logger.String("badge_id", badge.ID),
				logger.String("source_ref", source),
			)
		default:
			// No verified badge without its delta.
			badge.IsVerified = false
			if serr := s.store.SetBadgeVerified(ctx, badge.ID, false); serr != nil {
				s.logger.Error(ctx, "could not unverify badge", logger.String("badge_id", badge.ID), logger.Error(serr))
			}
			return out, err
		}
	}

	s.issueOnChain(ctx, u.WalletAddress, &badge)
	s.logger.Info(ctx, "skill badge issued",
		logger.String("user_id", u.ID),
		logger.String("badge_id", badge.ID),
		logger.String("type", string(vt)),
		logger.Int64("delta", delta),
	)
	return out, nil
}

func (s *Service) issueOnChain(ctx context.Context, wallet string, badge *model.SkillBadge) {
	tx, err := s.submitter.SubmitBadge(ctx, wallet, *badge)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "on-chain badge submit failed", logger.String("badge_id", badge.ID), logger.Error(err))
	case tx != "":
		updated, err := s.store.SetBadgeIssuance(ctx, badge.ID, tx, "")
		if err != nil {
			s.logger.Warn(ctx, "could not record badge transaction", logger.String("badge_id", badge.ID), logger.Error(err))
			return
		}
		*badge = updated
	}
}

// ConfirmBadgeIssuance records the transaction and token of a minted badge.
func (s *Service) ConfirmBadgeIssuance(ctx context.Context, badgeID, txHash, tokenID string) (model.SkillBadge, error) {
	const op = "service.confirm_badge_issuance"
	if strings.TrimSpace(txHash) == "" {
		return model.SkillBadge{}, errkind.New(op, errkind.ErrValidation, "missing transaction hash")
	}
	return s.store.SetBadgeIssuance(ctx, badgeID, strings.TrimSpace(txHash), strings.TrimSpace(tokenID))
}

// RevokeBadge marks a badge unverified. The reputation it earned stays in the
// ledger.
func (s *Service) RevokeBadge(ctx context.Context, badgeID string) error {
	if err := s.store.SetBadgeVerified(ctx, badgeID, false); err != nil {
		return err
	}
	s.logger.Info(ctx, "skill badge revoked", logger.String("badge_id", badgeID))
	return nil
}

// ListBadges returns a user's badges.
func (s *Service) ListBadges(ctx context.Context, userID string) ([]model.SkillBadge, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListBadges(ctx, userID)
}

// OpenPeerRequest asks peers to verify a skill.
type OpenPeerRequest struct {
	RequesterID  string   `json:"requester_id"`
	SkillID      string   `json:"skill_id"`
	Level        string   `json:"level"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// PeerResponse is one reviewer's answer to a peer request.
type PeerResponse struct {
	PeerID   string `json:"peer_id"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// PeerResult is the request after a vote and, when that vote concluded the
// panel, the verification it produced.
type PeerResult struct {
	Request      model.PeerVerificationRequest `json:"request"`
	Verification *VerificationOutcome          `json:"verification,omitempty"`
}

// OpenPeerVerification starts a peer panel for the requester.
func (s *Service) OpenPeerVerification(ctx context.Context, req OpenPeerRequest) (model.PeerVerificationRequest, error) {
	const op = "service.open_peer_verification"
	level, ok := model.ParseLevel(req.Level)
	switch {
	case !ok:
		return model.PeerVerificationRequest{}, errkind.Newf(op, errkind.ErrValidation, "unknown level %q", req.Level)
	case strings.TrimSpace(req.SkillID) == "":
		return model.PeerVerificationRequest{}, errkind.New(op, errkind.ErrValidation, "missing skill id")
	}
	if _, err := s.activeUser(ctx, req.RequesterID); err != nil {
		return model.PeerVerificationRequest{}, err
	}

	r := model.PeerVerificationRequest{
		RequesterID:       req.RequesterID,
		SkillID:           strings.TrimSpace(req.SkillID),
		Level:             level,
		EvidenceRefs:      req.EvidenceRefs,
		RequiredApprovals: s.translator.MinPeerApprovals(),
		Status:            model.PeerPending,
	}
	if err := s.store.CreatePeerRequest(ctx, &r); err != nil {
		return model.PeerVerificationRequest{}, err
	}
	s.logger.Info(ctx, "peer verification opened",
		logger.String("request_id", r.ID),
		logger.String("requester_id", r.RequesterID),
		logger.Int("required_approvals", r.RequiredApprovals),
	)
	return r, nil
}

// RespondPeerVerification records one peer's vote. The vote that concludes
// the panel also completes the verification. A vote on an approved panel whose
// completion failed retries that completion instead of answering a conflict.
func (s *Service) RespondPeerVerification(ctx context.Context, requestID string, resp PeerResponse) (PeerResult, error) {
	peer, err := s.activeUser(ctx, resp.PeerID)
	if err != nil {
		return PeerResult{}, err
	}
	// Reviewer eligibility is a cheap read; it may trail an in-flight change.
	peerScore, err := s.currentScore(ctx, peer.ID)
	if err != nil {
		return PeerResult{}, err
	}

	vote := &model.PeerVerificationResponse{
		RequestID: requestID,
		PeerID:    peer.ID,
		Approved:  resp.Approved,
		Feedback:  strings.TrimSpace(resp.Feedback),
	}
	updated, err := s.store.RecordPeerVote(ctx, vote, func(req model.PeerVerificationRequest, already bool) (model.PeerVerificationRequest, error) {
		return s.panel.Cast(req, verification.Vote{
			PeerID:           peer.ID,
			PeerReputation:   peerScore,
			Approved:         resp.Approved,
			AlreadyResponded: already,
		})
	})
	if err != nil {
		if errors.Is(err, errkind.ErrDuplicateSource) {
			if req, gerr := s.store.GetPeerRequest(ctx, requestID); gerr == nil && awaitingBadge(req) {
				s.logger.Info(ctx, "retrying peer verification completion",
					logger.String("request_id", req.ID),
					logger.String("peer_id", peer.ID),
				)
				return s.completePeer(ctx, req)
			}
		}
		return PeerResult{}, err
	}
	metrics.RecordPeerVote(resp.Approved)

	if _, concluded := verification.Outcome(updated); !concluded {
		return PeerResult{Request: updated}, nil
	}
	s.logger.Info(ctx, "peer verification concluded",
		logger.String("request_id", updated.ID),
		logger.String("status", string(updated.Status)),
		logger.Int("approvals", updated.Approvals),
		logger.Int("rejections", updated.Rejections),
	)
	return s.completePeer(ctx, updated)
}

// CompletePeerVerification re-runs the completion of an approved panel that
// has no badge yet. Completed and rejected panels are returned unchanged.
func (s *Service) CompletePeerVerification(ctx context.Context, requestID string) (PeerResult, error) {
	const op = "service.complete_peer_verification"
	req, err := s.store.GetPeerRequest(ctx, requestID)
	if err != nil {
		return PeerResult{}, err
	}
	if _, concluded := verification.Outcome(req); !concluded {
		return PeerResult{Request: req}, errkind.Newf(op, errkind.ErrValidation, "request %s is still pending", req.ID)
	}
	if !awaitingBadge(req) {
		return PeerResult{Request: req}, nil
	}
	return s.completePeer(ctx, req)
}

// completePeer turns a concluded panel into a verification and links the
// badge. The delta is credited under the request's own source, so repeated
// attempts credit the requester once.
func (s *Service) completePeer(ctx context.Context, req model.PeerVerificationRequest) (PeerResult, error) {
	out := PeerResult{Request: req}
	outcome, _ := verification.Outcome(req)
	vo, err := s.completeVerification(ctx, VerificationResult{
		UserID:  req.RequesterID,
		SkillID: req.SkillID,
		Level:   req.Level,
		Evidence: verification.PeerEvidence{
			RequestID:    req.ID,
			Approvals:    req.Approvals,
			Rejections:   req.Rejections,
			EvidenceRefs: req.EvidenceRefs,
		},
		Outcome: outcome,
	}, peerSource(req.ID))
	if err != nil {
		return out, err
	}
	out.Verification = &vo
	if vo.Badge != nil {
		if err := s.store.SetPeerRequestBadge(ctx, req.ID, vo.Badge.ID); err != nil {
			s.logger.Warn(ctx, "could not link badge to peer request", logger.String("request_id", req.ID), logger.Error(err))
		}
		out.Request.BadgeID = vo.Badge.ID
	}
	return out, nil
}

// GetPeerRequest returns one peer verification request.
func (s *Service) GetPeerRequest(ctx context.Context, requestID string) (model.PeerVerificationRequest, error) {
	return s.store.GetPeerRequest(ctx, requestID)
}

// ListPeerRequests returns the peer requests a user opened, newest first.
func (s *Service) ListPeerRequests(ctx context.Context, userID string) ([]model.PeerVerificationRequest, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListPeerRequests(ctx, userID)
}

func awaitingBadge(req model.PeerVerificationRequest) bool {
	return req.Status == model.PeerApproved && req.BadgeID == ""
}

func peerSource(requestID string) string { return "peer:" + requestID }
