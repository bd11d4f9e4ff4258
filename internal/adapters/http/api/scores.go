package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// ScoreHandler handles judge score requests for both rounds.
type ScoreHandler struct {
	deps ScoreDependencies
	log  logger.Logger
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies, log logger.Logger) *ScoreHandler {
	return &ScoreHandler{deps: deps, log: log}
}

type roundOneRequest struct {
	Judge   string             `json:"judge"`
	Ratings *model.Ratings     `json:"ratings"`
	Notes   *model.Round1Notes `json:"notes,omitempty"`
}

type revisionRequest struct {
	Judge string `json:"judge"`
	synthesis.Revision
}

// HandleRoundOne handles POST /submissions/{id}/scores.
func (h *ScoreHandler) HandleRoundOne(w http.ResponseWriter, r *http.Request) {
	const op = "api.round1_score"
	var req roundOneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %v", op, ErrBadRequest, err))
		return
	}
	if req.Ratings == nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: missing ratings", op, ErrBadRequest))
		return
	}
	score, err := h.deps.SubmitRoundOne(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Judge), *req.Ratings, req.Notes)
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// HandleRevision handles POST /submissions/{id}/revisions. A clamped
// adjustment still answers 200 and carries the warning in the body.
func (h *ScoreHandler) HandleRevision(w http.ResponseWriter, r *http.Request) {
	const op = "api.round2_revision"
	var req revisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %v", op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.SubmitRevision(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Judge), req.Revision)
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleBreakdown handles GET /submissions/{id}/scores.
func (h *ScoreHandler) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_breakdown"
	b, err := h.deps.SubmissionScores(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
