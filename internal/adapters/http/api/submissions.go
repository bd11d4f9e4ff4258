package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// SubmissionHandler handles intake and lifecycle requests.
type SubmissionHandler struct {
	deps SubmissionDependencies
	log  logger.Logger
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(deps SubmissionDependencies, log logger.Logger) *SubmissionHandler {
	return &SubmissionHandler{deps: deps, log: log}
}

type createSubmissionRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type transitionRequest struct {
	To    model.Status `json:"to"`
	Actor string       `json:"actor"`
}

type submissionResponse struct {
	Submission model.Submission      `json:"submission"`
	History    []model.HistoryRecord `json:"history"`
}

type transitionResponse struct {
	Submission model.Submission `json:"submission"`
	Applied    bool             `json:"applied"`
}

// HandleCreate handles POST /submissions.
func (h *SubmissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_submission"
	var req createSubmissionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %v", op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", fmt.Errorf("%s: missing name", op))
		return
	}
	sub, err := h.deps.CreateSubmission(r.Context(), model.Submission{
		ID:       req.ID,
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
	})
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// HandleGet handles GET /submissions/{id}.
func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_submission"
	sub, history, err := h.deps.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	if history == nil {
		history = []model.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, submissionResponse{Submission: sub, History: history})
}

// HandleTransition handles POST /submissions/{id}/transitions.
// A replayed transition to the current state answers 200 with applied=false.
func (h *SubmissionHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	const op = "api.transition"
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %v", op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Transition(r.Context(), chi.URLParam(r, "id"), req.To, strings.TrimSpace(req.Actor))
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{Submission: res.Submission, Applied: res.Applied})
}

// writeDomainError classifies err and logs only server-side failures.
func writeDomainError(w http.ResponseWriter, r *http.Request, log logger.Logger, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}
