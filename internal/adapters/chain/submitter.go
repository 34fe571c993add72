package chain

import (
	"context"

	"github.com/okian/credence/internal/domain/model"
)

// Submitter records credentials on chain and returns the transaction hash.
// An empty hash means nothing was submitted.
type Submitter interface {
	SubmitBadge(ctx context.Context, wallet string, badge model.SkillBadge) (string, error)
	SubmitEndorsement(ctx context.Context, endorserWallet string, e model.Endorsement) (string, error)
}

// NopSubmitter submits nothing. Issuance references arrive later through
// badge confirmation instead.
type NopSubmitter struct{}

// SubmitBadge implements Submitter.
func (NopSubmitter) SubmitBadge(context.Context, string, model.SkillBadge) (string, error) {
	return "", nil
}

// SubmitEndorsement implements Submitter.
func (NopSubmitter) SubmitEndorsement(context.Context, string, model.Endorsement) (string, error) {
	return "", nil
}
