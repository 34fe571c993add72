package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/credence/internal/adapters/repository"
)

const defaultLeaderboardLimit = 10

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := queryInt(r, "limit", defaultLeaderboardLimit)
	if err == nil && n < 1 {
		err = errors.New("limit must be at least 1")
	}
	if err != nil {
		writeFailure(w, badRequest(op, err))
		return
	}
	if h.maxLimit > 0 && n > h.maxLimit {
		n = h.maxLimit
	}
	entries, err := h.deps.Leaderboard(r.Context(), n)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
