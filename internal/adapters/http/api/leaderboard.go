package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/M3-org/clanktank-sub000/internal/domain/ranking"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
	log  logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, log: log}
}

// HandleGetLeaderboard handles GET /leaderboard?page=P&size=N&category=C.
// Missing page or size fall back to the engine defaults.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: page", op, ErrBadRequest))
		return
	}
	size, err := optionalInt(q.Get("size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: size", op, ErrBadRequest))
		return
	}
	res, err := h.deps.Leaderboard(r.Context(), ranking.Query{
		Page:     page,
		Size:     size,
		Category: strings.TrimSpace(q.Get("category")),
	})
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
