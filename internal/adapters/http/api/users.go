package api

import (
	"context"
	"net/http"

	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/domain/ledger"
	"github.com/okian/credence/internal/domain/model"
)

// UserDependencies defines the user and ledger operations.
type UserDependencies interface {
	RegisterUser(ctx context.Context, wallet, username string) (model.User, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	DeactivateUser(ctx context.Context, userID string) error
	Score(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]model.ReputationEvent, error)
	Audit(ctx context.Context, userID string) (ledger.AuditReport, error)
	UserStats(ctx context.Context, userID string) (model.UserStats, error)
	ChainReputation(ctx context.Context, userID string) (service.ChainStatus, error)
	AwardConsistencyBonus(ctx context.Context, userID, period string) (model.ReputationEvent, error)
}

// UserHandler handles /users requests.
type UserHandler struct {
	deps UserDependencies
}

// NewUserHandler creates a new user handler.
func NewUserHandler(deps UserDependencies) *UserHandler {
	return &UserHandler{deps: deps}
}

type registerRequest struct {
	WalletAddress string `json:"wallet_address"`
	Username      string `json:"username"`
}

type scoreResponse struct {
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

type bonusRequest struct {
	Period string `json:"period"`
}

// HandleRegister handles POST /users.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.register_user", err))
		return
	}
	u, err := h.deps.RegisterUser(r.Context(), req.WalletAddress, req.Username)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleGet handles GET /users/{id}.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.deps.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleDeactivate handles DELETE /users/{id}.
func (h *UserHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeactivateUser(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleScore handles GET /users/{id}/score.
func (h *UserHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	score, err := h.deps.Score(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{UserID: id, Score: score})
}

// HandleHistory handles GET /users/{id}/events?limit=N.
func (h *UserHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeFailure(w, badRequest("api.user_history", err))
		return
	}
	events, err := h.deps.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleAudit handles GET /users/{id}/audit.
func (h *UserHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Audit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleStats handles GET /users/{id}/stats.
func (h *UserHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.UserStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleChainReputation handles GET /users/{id}/chain-reputation.
func (h *UserHandler) HandleChainReputation(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.ChainReputation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleConsistencyBonus handles POST /users/{id}/consistency-bonus.
func (h *UserHandler) HandleConsistencyBonus(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.consistency_bonus", err))
		return
	}
	ev, err := h.deps.AwardConsistencyBonus(r.Context(), r.PathValue("id"), req.Period)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}
