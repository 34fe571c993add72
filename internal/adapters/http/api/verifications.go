package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/internal/domain/verification"
)

// VerificationDependencies defines the verification and badge operations.
type VerificationDependencies interface {
	CompleteVerification(ctx context.Context, res service.VerificationResult) (service.VerificationOutcome, error)
	ConfirmBadgeIssuance(ctx context.Context, badgeID, txHash, tokenID string) (model.SkillBadge, error)
	RevokeBadge(ctx context.Context, badgeID string) error
	ListBadges(ctx context.Context, userID string) ([]model.SkillBadge, error)
	OpenPeerVerification(ctx context.Context, req service.OpenPeerRequest) (model.PeerVerificationRequest, error)
	RespondPeerVerification(ctx context.Context, requestID string, resp service.PeerResponse) (service.PeerResult, error)
	CompletePeerVerification(ctx context.Context, requestID string) (service.PeerResult, error)
	GetPeerRequest(ctx context.Context, requestID string) (model.PeerVerificationRequest, error)
	ListPeerRequests(ctx context.Context, userID string) ([]model.PeerVerificationRequest, error)
}

// VerificationHandler handles verification, badge and peer panel requests.
type VerificationHandler struct {
	deps VerificationDependencies
}

// NewVerificationHandler creates a new verification handler.
func NewVerificationHandler(deps VerificationDependencies) *VerificationHandler {
	return &VerificationHandler{deps: deps}
}

// verificationRequest carries the evidence as {"type": ..., "data": {...}}.
type verificationRequest struct {
	UserID   string          `json:"user_id"`
	SkillID  string          `json:"skill_id"`
	Level    string          `json:"level"`
	Outcome  string          `json:"outcome"`
	Evidence json.RawMessage `json:"evidence"`
}

func (v verificationRequest) result() (service.VerificationResult, error) {
	level, ok := model.ParseLevel(v.Level)
	if !ok {
		return service.VerificationResult{}, fmt.Errorf("unknown level %q", v.Level)
	}
	if len(v.Evidence) == 0 {
		return service.VerificationResult{}, errors.New("missing evidence")
	}
	ev, err := verification.Decode(v.Evidence)
	if err != nil {
		return service.VerificationResult{}, err
	}
	return service.VerificationResult{
		UserID:   strings.TrimSpace(v.UserID),
		SkillID:  v.SkillID,
		Level:    level,
		Evidence: ev,
		Outcome:  model.Outcome(strings.ToLower(strings.TrimSpace(v.Outcome))),
	}, nil
}

type issuanceRequest struct {
	TransactionHash string `json:"transaction_hash"`
	TokenID         string `json:"token_id"`
}

// HandleComplete handles POST /verifications. An approval answers 201 with
// the issued badge; a rejection answers 200.
func (h *VerificationHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete_verification"
	var req verificationRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest(op, err))
		return
	}
	res, err := req.result()
	if err != nil {
		writeFailure(w, badRequest(op, err))
		return
	}
	out, err := h.deps.CompleteVerification(r.Context(), res)
	if err != nil {
		writeFailure(w, err)
		return
	}
	status := http.StatusOK
	if out.Badge != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// HandleIssuance handles POST /badges/{id}/issuance.
func (h *VerificationHandler) HandleIssuance(w http.ResponseWriter, r *http.Request) {
	var req issuanceRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.badge_issuance", err))
		return
	}
	b, err := h.deps.ConfirmBadgeIssuance(r.Context(), r.PathValue("id"), req.TransactionHash, req.TokenID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleRevoke handles DELETE /badges/{id}.
func (h *VerificationHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RevokeBadge(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListBadges handles GET /badges?user_id=.
func (h *VerificationHandler) HandleListBadges(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeFailure(w, badRequest("api.list_badges", errors.New("missing user_id")))
		return
	}
	badges, err := h.deps.ListBadges(r.Context(), userID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// HandleOpenPeer handles POST /peer-verifications.
func (h *VerificationHandler) HandleOpenPeer(w http.ResponseWriter, r *http.Request) {
	var req service.OpenPeerRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.open_peer_verification", err))
		return
	}
	pr, err := h.deps.OpenPeerVerification(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// HandleRespondPeer handles POST /peer-verifications/{id}/responses.
func (h *VerificationHandler) HandleRespondPeer(w http.ResponseWriter, r *http.Request) {
	var resp service.PeerResponse
	if err := decode(r, &resp); err != nil {
		writeFailure(w, badRequest("api.respond_peer_verification", err))
		return
	}
	res, err := h.deps.RespondPeerVerification(r.Context(), r.PathValue("id"), resp)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCompletePeer handles POST /peer-verifications/{id}/complete.
func (h *VerificationHandler) HandleCompletePeer(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.CompletePeerVerification(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetPeer handles GET /peer-verifications/{id}.
func (h *VerificationHandler) HandleGetPeer(w http.ResponseWriter, r *http.Request) {
	pr, err := h.deps.GetPeerRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// HandleListPeer handles GET /peer-verifications?user_id=.
func (h *VerificationHandler) HandleListPeer(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeFailure(w, badRequest("api.list_peer_verifications", errors.New("missing user_id")))
		return
	}
	list, err := h.deps.ListPeerRequests(r.Context(), userID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if list == nil {
		list = []model.PeerVerificationRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}
