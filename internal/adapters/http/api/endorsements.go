package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/domain/model"
)

// EndorsementDependencies defines the endorsement operations.
type EndorsementDependencies interface {
	Endorse(ctx context.Context, req service.EndorseRequest) (service.EndorsementResult, error)
	ListEndorsements(ctx context.Context, userID string) ([]model.Endorsement, error)
	RetryEndorsement(ctx context.Context, endorsementID string) error
}

// EndorsementHandler handles /endorsements requests.
type EndorsementHandler struct {
	deps EndorsementDependencies
}

// NewEndorsementHandler creates a new endorsement handler.
func NewEndorsementHandler(deps EndorsementDependencies) *EndorsementHandler {
	return &EndorsementHandler{deps: deps}
}

// HandleEndorse handles POST /endorsements. A stored endorsement whose ledger
// write is still pending answers 202 with the warning in the body.
func (h *EndorsementHandler) HandleEndorse(w http.ResponseWriter, r *http.Request) {
	var req service.EndorseRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, badRequest("api.endorse", err))
		return
	}
	res, err := h.deps.Endorse(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrLedgerPending):
		writeJSON(w, http.StatusAccepted, res)
	case err != nil:
		writeFailure(w, err)
	default:
		writeJSON(w, http.StatusCreated, res)
	}
}

// HandleList handles GET /endorsements?user_id=.
func (h *EndorsementHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeFailure(w, badRequest("api.list_endorsements", errors.New("missing user_id")))
		return
	}
	list, err := h.deps.ListEndorsements(r.Context(), userID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRetry handles POST /endorsements/{id}/retry.
func (h *EndorsementHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RetryEndorsement(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
