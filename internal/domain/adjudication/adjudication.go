// Package adjudication turns job completions and dispute rulings into reputation deltas
// and guards the job lifecycle.
package adjudication

import (
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
)

// Default deltas.
const (
	DefaultCompletionDelta = 25
	DefaultDisputePenalty  = -100
)

// Delta is a signed adjustment a producer asks the aggregator to apply.
type Delta struct {
	UserID    string
	Amount    int64
	Reason    model.ReasonCode
	SourceRef string
}

// CompletionSource is the idempotency key for a job's completion delta.
func CompletionSource(jobID string) string { return "job:" + jobID + ":completed" }

// DisputeSource is the idempotency key for a job's dispute penalty.
func DisputeSource(jobID string) string { return "job:" + jobID + ":dispute" }

// Option applies a configuration option to the Adjudicator.
type Option func(*Adjudicator)

// WithCompletionDelta sets the reward for a completed job. Must be positive.
func WithCompletionDelta(d int64) Option {
	return func(a *Adjudicator) {
		if d > 0 {
			a.completionDelta = d
		}
	}
}

// WithDisputePenalty sets the penalty for the party at fault. Positive values
// are negated so the penalty always lowers the score.
func WithDisputePenalty(p int64) Option {
	return func(a *Adjudicator) {
		switch {
		case p > 0:
			a.disputePenalty = -p
		case p < 0:
			a.disputePenalty = p
		}
	}
}

// Adjudicator computes job-related deltas. It holds no per-job state; the
// job's Status and ReputationApplied flag carry idempotence.
type Adjudicator struct {
	completionDelta int64
	disputePenalty  int64
}

// New creates an Adjudicator with the default deltas.
func New(opts ...Option) *Adjudicator {
	a := &Adjudicator{
		completionDelta: DefaultCompletionDelta,
		disputePenalty:  DefaultDisputePenalty,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnJobCompleted returns the freelancer's completion delta. The job must have
// reached Completed and not yet had its reputation applied.
func (a *Adjudicator) OnJobCompleted(job model.JobListing) (Delta, error) {
	const op = "adjudication.job_completed"
	switch {
	case job.Status != model.JobCompleted:
		return Delta{}, errkind.Newf(op, errkind.ErrValidation, "job %s is %s, not completed", job.ID, job.Status)
	case job.ReputationApplied:
		return Delta{}, errkind.Newf(op, errkind.ErrDuplicateSource, "job %s completion already applied", job.ID)
	case job.FreelancerID == "":
		return Delta{}, errkind.Newf(op, errkind.ErrValidation, "job %s has no freelancer", job.ID)
	}
	return Delta{
		UserID:    job.FreelancerID,
		Amount:    a.completionDelta,
		Reason:    model.ReasonJobCompleted,
		SourceRef: CompletionSource(job.ID),
	}, nil
}

// OnDisputeResolved returns the penalty for the party at fault. A no-fault
// ruling yields no deltas. Disputes resolve once.
func (a *Adjudicator) OnDisputeResolved(job model.JobListing, ruling model.Ruling) ([]Delta, error) {
	const op = "adjudication.dispute_resolved"
	switch {
	case job.Status != model.JobDisputed:
		return nil, errkind.Newf(op, errkind.ErrValidation, "job %s is %s, not disputed", job.ID, job.Status)
	case job.Ruling != model.RulingNone || job.ReputationApplied:
		return nil, errkind.Newf(op, errkind.ErrDuplicateSource, "job %s dispute already resolved", job.ID)
	case !ruling.Valid():
		return nil, errkind.Newf(op, errkind.ErrValidation, "unknown ruling %q", ruling)
	}

	var atFault string
	switch ruling {
	case model.RulingFreelancerAtFault:
		atFault = job.FreelancerID
	case model.RulingEmployerAtFault:
		atFault = job.EmployerID
	case model.RulingNoFault:
		return nil, nil
	}
	if atFault == "" {
		return nil, errkind.Newf(op, errkind.ErrValidation, "job %s has no party for ruling %s", job.ID, ruling)
	}
	return []Delta{{
		UserID:    atFault,
		Amount:    a.disputePenalty,
		Reason:    model.ReasonDisputePenalty,
		SourceRef: DisputeSource(job.ID),
	}}, nil
}

// CompletionDelta returns the configured completion reward.
func (a *Adjudicator) CompletionDelta() int64 { return a.completionDelta }

// DisputePenalty returns the configured (negative) penalty.
func (a *Adjudicator) DisputePenalty() int64 { return a.disputePenalty }
