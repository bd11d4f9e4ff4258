package api

import (
	"errors"
	"net/http"

	"github.com/M3-org/clanktank-sub000/internal/domain/feedback"
	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/scores"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
)

// classify maps a domain error to a status code and a stable error code.
// Order matters: precondition errors wrap ErrInvalidTransition.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, scores.ErrNotScorable):
		return http.StatusConflict, "not_scorable"
	case errors.Is(err, synthesis.ErrNotRevisable):
		return http.StatusConflict, "not_revisable"
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, feedback.ErrSubmissionClosed):
		return http.StatusConflict, "submission_closed"
	case errors.Is(err, ledger.ErrInvalidSubmission),
		errors.Is(err, scores.ErrInvalidRating),
		errors.Is(err, scores.ErrUnknownJudge),
		errors.Is(err, synthesis.ErrInvalidRevision),
		errors.Is(err, synthesis.ErrNoRoundOneScore),
		errors.Is(err, feedback.ErrInvalidVote):
		return http.StatusUnprocessableEntity, "validation_failed"
	}
	return http.StatusInternalServerError, "internal_error"
}
