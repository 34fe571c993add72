package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/domain/model"
)

// JobDependencies defines the job lifecycle operations.
type JobDependencies interface {
	CreateJob(ctx context.Context, req service.CreateJobRequest) (model.JobListing, error)
	GetJob(ctx context.Context, jobID string) (model.JobListing, error)
	ListJobs(ctx context.Context, f model.JobFilter) ([]model.JobListing, error)
	EligibleJobs(ctx context.Context, userID string, limit, offset int) ([]model.JobListing, error)
	AssignJob(ctx context.Context, jobID, freelancerID string) (model.JobListing, error)
	CompleteJob(ctx context.Context, jobID string) (service.JobResult, error)
	RaiseDispute(ctx context.Context, jobID, raisedBy string) (model.JobListing, error)
	ResolveDispute(ctx context.Context, jobID string, ruling model.Ruling) (service.JobResult, error)
	CancelJob(ctx context.Context, jobID string) (model.JobListing, error)
}

// JobHandler handles /jobs requests.
type JobHandler struct {
	deps JobDependencies
}

// NewJobHandler creates a new job handler.
func NewJobHandler(deps JobDependencies) *JobHandler {
	return &JobHandler{deps: deps}
}

type assignRequest struct {
	FreelancerID string `json:"freelancer_id"`
}

type disputeRequest struct {
	RaisedBy string `json:"raised_by"`
}

type resolveRequest struct {
	Ruling string `json:"ruling"`
}

// HandleCreate handles POST /jobs.
func (h *JobHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateJobRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.create_job", err))
		return
	}
	j, err := h.deps.CreateJob(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// HandleGet handles GET /jobs/{id}.
func (h *JobHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	j, err := h.deps.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// HandleList handles GET /jobs?status=&min_reputation=&max_reputation=&employer_id=&limit=&offset=.
func (h *JobHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	f, err := jobFilter(r)
	if err != nil {
		writeFailure(w, badRequest("api.list_jobs", err))
		return
	}
	jobs, err := h.deps.ListJobs(r.Context(), f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func jobFilter(r *http.Request) (model.JobFilter, error) {
	q := r.URL.Query()
	f := model.JobFilter{
		Status:     model.JobStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		EmployerID: strings.TrimSpace(q.Get("employer_id")),
	}
	var err error
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, err
	}
	if f.MinReputation, err = queryInt64(r, "min_reputation"); err != nil {
		return f, err
	}
	if f.MaxMinReputation, err = queryInt64(r, "max_reputation"); err != nil {
		return f, err
	}
	return f, nil
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// HandleEligible handles GET /users/{id}/jobs/eligible.
func (h *JobHandler) HandleEligible(w http.ResponseWriter, r *http.Request) {
	const op = "api.eligible_jobs"
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeFailure(w, badRequest(op, err))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeFailure(w, badRequest(op, err))
		return
	}
	jobs, err := h.deps.EligibleJobs(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleAssign handles POST /jobs/{id}/assign.
func (h *JobHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.assign_job", err))
		return
	}
	j, err := h.deps.AssignJob(r.Context(), r.PathValue("id"), req.FreelancerID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// HandleComplete handles POST /jobs/{id}/complete.
func (h *JobHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.CompleteJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDispute handles POST /jobs/{id}/dispute.
func (h *JobHandler) HandleDispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.raise_dispute", err))
		return
	}
	j, err := h.deps.RaiseDispute(r.Context(), r.PathValue("id"), req.RaisedBy)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// HandleResolve handles POST /jobs/{id}/dispute/resolve.
func (h *JobHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.resolve_dispute", err))
		return
	}
	ruling := model.Ruling(strings.ToLower(strings.TrimSpace(req.Ruling)))
	res, err := h.deps.ResolveDispute(r.Context(), r.PathValue("id"), ruling)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCancel handles POST /jobs/{id}/cancel.
func (h *JobHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	j, err := h.deps.CancelJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
