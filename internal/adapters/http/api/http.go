// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/credence/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	UserDependencies
	EndorsementDependencies
	VerificationDependencies
	JobDependencies
	LeaderboardDependencies
	RankDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	userHandler         *UserHandler
	endorsementHandler  *EndorsementHandler
	verificationHandler *VerificationHandler
	jobHandler          *JobHandler
	leaderboardHandler  *LeaderboardHandler
	rankHandler         *RankHandler
	logger              logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		userHandler:         NewUserHandler(deps),
		endorsementHandler:  NewEndorsementHandler(deps),
		verificationHandler: NewVerificationHandler(deps),
		jobHandler:          NewJobHandler(deps),
		leaderboardHandler:  NewLeaderboardHandler(deps, maxLimit),
		rankHandler:         NewRankHandler(deps),
		logger:              logger.Get().Named("http"),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(LoggingMiddleware(h, s.logger), endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /users", "users", s.userHandler.HandleRegister)
	route("GET /users/{id}", "user", s.userHandler.HandleGet)
	route("DELETE /users/{id}", "user", s.userHandler.HandleDeactivate)
	route("GET /users/{id}/score", "user_score", s.userHandler.HandleScore)
	route("GET /users/{id}/events", "user_events", s.userHandler.HandleHistory)
	route("GET /users/{id}/audit", "user_audit", s.userHandler.HandleAudit)
	route("GET /users/{id}/stats", "user_stats", s.userHandler.HandleStats)
	route("GET /users/{id}/chain-reputation", "user_chain", s.userHandler.HandleChainReputation)
	route("GET /users/{id}/jobs/eligible", "user_eligible_jobs", s.jobHandler.HandleEligible)
	route("POST /users/{id}/consistency-bonus", "user_bonus", s.userHandler.HandleConsistencyBonus)

	route("POST /endorsements", "endorsements", s.endorsementHandler.HandleEndorse)
	route("GET /endorsements", "endorsements", s.endorsementHandler.HandleList)
	route("POST /endorsements/{id}/retry", "endorsement_retry", s.endorsementHandler.HandleRetry)

	route("POST /verifications", "verifications", s.verificationHandler.HandleComplete)
	route("GET /badges", "badges", s.verificationHandler.HandleListBadges)
	route("POST /badges/{id}/issuance", "badge_issuance", s.verificationHandler.HandleIssuance)
	route("DELETE /badges/{id}", "badge", s.verificationHandler.HandleRevoke)
	route("POST /peer-verifications", "peer_verifications", s.verificationHandler.HandleOpenPeer)
	route("GET /peer-verifications", "peer_verifications", s.verificationHandler.HandleListPeer)
	route("GET /peer-verifications/{id}", "peer_verification", s.verificationHandler.HandleGetPeer)
	route("POST /peer-verifications/{id}/responses", "peer_responses", s.verificationHandler.HandleRespondPeer)
	route("POST /peer-verifications/{id}/complete", "peer_complete", s.verificationHandler.HandleCompletePeer)

	route("POST /jobs", "jobs", s.jobHandler.HandleCreate)
	route("GET /jobs", "jobs", s.jobHandler.HandleList)
	route("GET /jobs/{id}", "job", s.jobHandler.HandleGet)
	route("POST /jobs/{id}/assign", "job_assign", s.jobHandler.HandleAssign)
	route("POST /jobs/{id}/complete", "job_complete", s.jobHandler.HandleComplete)
	route("POST /jobs/{id}/dispute", "job_dispute", s.jobHandler.HandleDispute)
	route("POST /jobs/{id}/dispute/resolve", "job_resolve", s.jobHandler.HandleResolve)
	route("POST /jobs/{id}/cancel", "job_cancel", s.jobHandler.HandleCancel)

	route("GET /leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	route("GET /rank/{id}", "rank", s.rankHandler.HandleGetRank)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure answers with the status the error's kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
