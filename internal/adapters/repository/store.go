// Package repository holds the persistence interfaces of the reputation engine
// and their interchangeable implementations (in-memory and gorm).
package repository

import (
	"context"

	"github.com/okian/credence/internal/domain/model"
	"github.com/shopspring/decimal"
)

// UserStore persists users. Score fields change only through LedgerStore.
type UserStore interface {
	// CreateUser inserts u. A taken wallet address returns ErrDuplicateSource.
	CreateUser(ctx context.Context, u *model.User) error
	// GetUser returns ErrNotFound if the user is unknown.
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByWallet(ctx context.Context, wallet string) (model.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
	// ListUsers returns every user; used to rebuild the rank index.
	ListUsers(ctx context.Context) ([]model.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// LedgerStore persists reputation events together with the cached score.
type LedgerStore interface {
	// ApplyScoreChange appends one event and moves the user's score in a single
	// atomic step. The (user, source) pair is unique.
	ApplyScoreChange(ctx context.Context, change model.ScoreChange) (model.ReputationEvent, error)
	// Events returns a user's events, newest first. limit <= 0 returns all.
	Events(ctx context.Context, userID string, limit int) ([]model.ReputationEvent, error)
}

// BadgeStore persists skill badges.
type BadgeStore interface {
	CreateBadge(ctx context.Context, b *model.SkillBadge) error
	GetBadge(ctx context.Context, id string) (model.SkillBadge, error)
	ListBadges(ctx context.Context, userID string) ([]model.SkillBadge, error)
	// SetBadgeIssuance records the on-chain references of a minted badge.
	SetBadgeIssuance(ctx context.Context, id, txHash, tokenID string) (model.SkillBadge, error)
	SetBadgeVerified(ctx context.Context, id string, verified bool) error
}

// EndorsementStore persists endorsements.
type EndorsementStore interface {
	// CreateEndorsement inserts e and bumps the badge's endorsement count. A
	// second endorsement of the same badge by the same endorser returns
	// ErrDuplicateSource.
	CreateEndorsement(ctx context.Context, e *model.Endorsement) error
	GetEndorsement(ctx context.Context, id string) (model.Endorsement, error)
	SetEndorsementLedger(ctx context.Context, id string, status model.LedgerStatus, ledgerErr string) error
	// ListEndorsementsFor returns the endorsements received by a user.
	ListEndorsementsFor(ctx context.Context, endorsedID string) ([]model.Endorsement, error)
	// ListPendingEndorsements returns endorsements whose delta has not reached the ledger.
	ListPendingEndorsements(ctx context.Context, limit int) ([]model.Endorsement, error)
}

// JobStore persists job listings. Status changes are compare-and-set.
type JobStore interface {
	CreateJob(ctx context.Context, j *model.JobListing) error
	GetJob(ctx context.Context, id string) (model.JobListing, error)
	ListJobs(ctx context.Context, f model.JobFilter) ([]model.JobListing, error)
	// TransitionJob moves a job from one status to another. freelancerID, when
	// non-empty, is assigned in the same step. A job no longer in from returns
	// ErrDuplicateSource.
	TransitionJob(ctx context.Context, id string, from, to model.JobStatus, freelancerID string) (model.JobListing, error)
	// SetJobRuling records the ruling of an unresolved dispute.
	SetJobRuling(ctx context.Context, id string, ruling model.Ruling) (model.JobListing, error)
	// SettleJob flips ReputationApplied once. With credit it also bumps the
	// freelancer's completed job count and earnings by the payment amount.
	SettleJob(ctx context.Context, id string, credit bool) (model.JobListing, error)
}

// PeerDecision tallies one vote against a request. alreadyResponded reports
// whether the peer has voted on this request before.
type PeerDecision func(req model.PeerVerificationRequest, alreadyResponded bool) (model.PeerVerificationRequest, error)

// PeerStore persists peer verification panels.
type PeerStore interface {
	CreatePeerRequest(ctx context.Context, r *model.PeerVerificationRequest) error
	GetPeerRequest(ctx context.Context, id string) (model.PeerVerificationRequest, error)
	// ListPeerRequests returns the requests a user opened, newest first.
	ListPeerRequests(ctx context.Context, requesterID string) ([]model.PeerVerificationRequest, error)
	// RecordPeerVote runs decide while holding the request and, when it
	// succeeds, stores both the response and the updated request.
	RecordPeerVote(ctx context.Context, resp *model.PeerVerificationResponse, decide PeerDecision) (model.PeerVerificationRequest, error)
	SetPeerRequestBadge(ctx context.Context, id, badgeID string) error
}

// Store is the full persistence surface, selected at startup.
type Store interface {
	UserStore
	LedgerStore
	BadgeStore
	EndorsementStore
	JobStore
	PeerStore

	// Name identifies the implementation in logs and metrics.
	Name() string
	Close() error
}

// creditAmount returns what a settled job adds to the freelancer's earnings.
func creditAmount(j model.JobListing) decimal.Decimal {
	if j.PaymentAmount.IsNegative() {
		return decimal.Zero
	}
	return j.PaymentAmount
}
