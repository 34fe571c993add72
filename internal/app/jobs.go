package service

import (
	"context"
	"errors"
	"strings"

	"github.com/okian/credence/internal/domain/adjudication"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
	"github.com/shopspring/decimal"
)

// CreateJobRequest describes a new job listing.
type CreateJobRequest struct {
	EmployerID      string          `json:"employer_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	JobType         string          `json:"job_type"`
	MinReputation   int64           `json:"min_reputation"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
	PaymentCurrency string          `json:"payment_currency"`
	// EscrowAmount defaults to PaymentAmount when zero.
	EscrowAmount decimal.Decimal `json:"escrow_amount"`
}

// JobResult is a job after a lifecycle step and the events that step applied.
type JobResult struct {
	Job    model.JobListing        `json:"job"`
	Events []model.ReputationEvent `json:"events,omitempty"`
}

// CreateJob opens a job listing.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (model.JobListing, error) {
	const op = "service.create_job"
	switch {
	case strings.TrimSpace(req.Title) == "":
		return model.JobListing{}, errkind.New(op, errkind.ErrValidation, "missing title")
	case req.MinReputation < 0:
		return model.JobListing{}, errkind.New(op, errkind.ErrValidation, "min_reputation must not be negative")
	case req.PaymentAmount.IsNegative() || req.EscrowAmount.IsNegative():
		return model.JobListing{}, errkind.New(op, errkind.ErrValidation, "amounts must not be negative")
	}
	if _, err := s.activeUser(ctx, req.EmployerID); err != nil {
		return model.JobListing{}, err
	}

	j := model.JobListing{
		EmployerID:      req.EmployerID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		JobType:         req.JobType,
		MinReputation:   req.MinReputation,
		PaymentAmount:   req.PaymentAmount,
		PaymentCurrency: strings.ToUpper(strings.TrimSpace(req.PaymentCurrency)),
		EscrowAmount:    req.EscrowAmount,
		Status:          model.JobOpen,
	}
	if j.PaymentCurrency == "" {
		j.PaymentCurrency = "APT"
	}
	if j.EscrowAmount.IsZero() {
		j.EscrowAmount = j.PaymentAmount
	}
	if err := s.store.CreateJob(ctx, &j); err != nil {
		return model.JobListing{}, err
	}
	metrics.RecordJobTransition(string(model.JobOpen))
	s.logger.Info(ctx, "job created",
		logger.String("job_id", j.ID),
		logger.String("employer_id", j.EmployerID),
		logger.Int64("min_reputation", j.MinReputation),
	)
	return j, nil
}

// GetJob returns one job listing.
func (s *Service) GetJob(ctx context.Context, jobID string) (model.JobListing, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns the listings matching f.
func (s *Service) ListJobs(ctx context.Context, f model.JobFilter) ([]model.JobListing, error) {
	return s.store.ListJobs(ctx, f)
}

// EligibleJobs lists open jobs whose minimum reputation the user meets.
func (s *Service) EligibleJobs(ctx context.Context, userID string, limit, offset int) ([]model.JobListing, error) {
	score, err := s.currentScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListJobs(ctx, model.JobFilter{
		Status:           model.JobOpen,
		MaxMinReputation: &score,
		Limit:            limit,
		Offset:           offset,
	})
}

// AssignJob gives an open job to a freelancer whose score meets the job's
// minimum. The gate reads the cached score; a change racing the assignment
// is accepted.
func (s *Service) AssignJob(ctx context.Context, jobID, freelancerID string) (model.JobListing, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.JobListing{}, err
	}
	if job.EmployerID == freelancerID {
		return model.JobListing{}, errkind.New("service.assign_job", errkind.ErrValidation, "employer cannot take their own job")
	}
	if _, err := s.activeUser(ctx, freelancerID); err != nil {
		return model.JobListing{}, err
	}
	score, err := s.currentScore(ctx, freelancerID)
	if err != nil {
		return model.JobListing{}, err
	}
	if score < job.MinReputation {
		return model.JobListing{}, ErrIneligible
	}
	return s.transition(ctx, job, model.JobInProgress, freelancerID)
}

// CompleteJob marks an in-progress job completed and credits the freelancer
// exactly once. Calling it again on a completed but unsettled job finishes
// the settlement.
func (s *Service) CompleteJob(ctx context.Context, jobID string) (JobResult, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return JobResult{}, err
	}
	if job.Status != model.JobCompleted {
		if job, err = s.transition(ctx, job, model.JobCompleted, ""); err != nil {
			return JobResult{}, err
		}
	}

	d, err := s.adjudicator.OnJobCompleted(job)
	if err != nil {
		return JobResult{Job: job}, err
	}
	out := JobResult{}
	ev, err := s.apply(ctx, d)
	switch {
	case err == nil:
		out.Events = append(out.Events, ev)
	case errors.Is(err, ErrSourceInFlight), !errors.Is(err, errkind.ErrDuplicateSource):
		return JobResult{Job: job}, err
	}

	if out.Job, err = s.settle(ctx, job.ID, true); err != nil {
		return JobResult{Job: job}, err
	}
	return out, nil
}

// RaiseDispute moves an in-progress job to disputed. Only its employer or
// freelancer may raise one.
func (s *Service) RaiseDispute(ctx context.Context, jobID, raisedBy string) (model.JobListing, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.JobListing{}, err
	}
	if raisedBy != job.EmployerID && raisedBy != job.FreelancerID {
		return model.JobListing{}, ErrNotJobParty
	}
	return s.transition(ctx, job, model.JobDisputed, "")
}

// ResolveDispute records the ruling and penalizes the party at fault. A
// no-fault ruling applies nothing. A dispute resolves once; calling it again
// with the same ruling finishes an interrupted settlement.
func (s *Service) ResolveDispute(ctx context.Context, jobID string, ruling model.Ruling) (JobResult, error) {
	const op = "service.resolve_dispute"
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return JobResult{}, err
	}

	var deltas []Delta
	if job.Status == model.JobDisputed && job.Ruling != model.RulingNone && !job.ReputationApplied {
		if ruling != job.Ruling {
			return JobResult{Job: job}, errkind.Newf(op, errkind.ErrDuplicateSource, "job %s already ruled %s", job.ID, job.Ruling)
		}
		unresolved := job
		unresolved.Ruling = model.RulingNone
		if deltas, err = s.adjudicator.OnDisputeResolved(unresolved, ruling); err != nil {
			return JobResult{Job: job}, err
		}
	} else {
		if deltas, err = s.adjudicator.OnDisputeResolved(job, ruling); err != nil {
			return JobResult{Job: job}, err
		}
		if job, err = s.store.SetJobRuling(ctx, job.ID, ruling); err != nil {
			return JobResult{}, err
		}
	}

	out := JobResult{}
	for _, d := range deltas {
		ev, err := s.apply(ctx, d)
		switch {
		case err == nil:
			out.Events = append(out.Events, ev)
		case errors.Is(err, ErrSourceInFlight), !errors.Is(err, errkind.ErrDuplicateSource):
			return JobResult{Job: job}, err
		}
	}

	if out.Job, err = s.settle(ctx, job.ID, false); err != nil {
		return JobResult{Job: job}, err
	}
	s.logger.Info(ctx, "dispute resolved",
		logger.String("job_id", job.ID),
		logger.String("ruling", string(ruling)),
		logger.Int("penalties", len(out.Events)),
	)
	return out, nil
}

// CancelJob cancels an open or in-progress job.
func (s *Service) CancelJob(ctx context.Context, jobID string) (model.JobListing, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.JobListing{}, err
	}
	return s.transition(ctx, job, model.JobCancelled, "")
}

func (s *Service) transition(ctx context.Context, job model.JobListing, to model.JobStatus, freelancerID string) (model.JobListing, error) {
	if err := adjudication.Transition(job.Status, to); err != nil {
		return model.JobListing{}, err
	}
	updated, err := s.store.TransitionJob(ctx, job.ID, job.Status, to, freelancerID)
	if err != nil {
		return model.JobListing{}, err
	}
	metrics.RecordJobTransition(string(to))
	s.logger.Info(ctx, "job transitioned",
		logger.String("job_id", job.ID),
		logger.String("from", string(job.Status)),
		logger.String("to", string(to)),
	)
	return updated, nil
}

// settle flips the job's reputation flag; with credit the freelancer's
// job count and earnings move too.
func (s *Service) settle(ctx context.Context, jobID string, credit bool) (model.JobListing, error) {
	j, err := s.store.SettleJob(ctx, jobID, credit)
	if err != nil {
		return model.JobListing{}, err
	}
	if credit {
		s.publish(ctx, j.FreelancerID)
	}
	return j, nil
}
