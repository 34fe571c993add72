package verification

import (
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
)

// Vote is one peer's response to a panel.
type Vote struct {
	PeerID           string
	PeerReputation   int64
	Approved         bool
	AlreadyResponded bool
}

// Panel decides peer verification requests. A request is approved once its
// approvals reach RequiredApprovals and rejected once its rejections do.
type Panel struct {
	minReviewerReputation int64
}

// NewPanel creates a Panel. Reviewers below minReviewerReputation may not vote.
func NewPanel(minReviewerReputation int64) *Panel {
	return &Panel{minReviewerReputation: minReviewerReputation}
}

// Cast validates v against req and returns the request with the vote tallied.
// The returned request's Status reflects whether the panel has concluded.
func (p *Panel) Cast(req model.PeerVerificationRequest, v Vote) (model.PeerVerificationRequest, error) {
	const op = "verification.panel_cast"
	switch {
	case req.Status != model.PeerPending:
		return req, errkind.Newf(op, errkind.ErrDuplicateSource, "request %s already %s", req.ID, req.Status)
	case v.PeerID == "":
		return req, errkind.New(op, errkind.ErrValidation, "missing peer id")
	case v.PeerID == req.RequesterID:
		return req, errkind.New(op, errkind.ErrValidation, "requester cannot review own request")
	case v.AlreadyResponded:
		return req, errkind.Newf(op, errkind.ErrDuplicateSource, "peer %s already responded", v.PeerID)
	case v.PeerReputation < p.minReviewerReputation:
		return req, errkind.Newf(op, errkind.ErrValidation,
			"peer reputation %d below reviewer minimum %d", v.PeerReputation, p.minReviewerReputation)
	}

	if v.Approved {
		req.Approvals++
	} else {
		req.Rejections++
	}

	required := req.RequiredApprovals
	if required < 1 {
		required = DefaultMinPeerApprovals
	}
	switch {
	case req.Approvals >= required:
		req.Status = model.PeerApproved
	case req.Rejections >= required:
		req.Status = model.PeerRejected
	}
	return req, nil
}

// Outcome maps a concluded request to a verification outcome.
func Outcome(req model.PeerVerificationRequest) (model.Outcome, bool) {
	switch req.Status {
	case model.PeerApproved:
		return model.OutcomeApproved, true
	case model.PeerRejected:
		return model.OutcomeRejected, true
	default:
		return "", false
	}
}
