package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// VoteHandler handles community vote requests.
type VoteHandler struct {
	deps VoteDependencies
	log  logger.Logger
}

// NewVoteHandler creates a new vote handler.
func NewVoteHandler(deps VoteDependencies, log logger.Logger) *VoteHandler {
	return &VoteHandler{deps: deps, log: log}
}

type voteRequest struct {
	VoterID string         `json:"voter_id"`
	Kind    model.VoteKind `json:"kind"`
	Weight  float64        `json:"weight"`
	CastAt  string         `json:"cast_at,omitempty"`
	EventID string         `json:"event_id,omitempty"`
}

func (v voteRequest) toVote(submissionID string) (model.Vote, error) {
	out := model.Vote{
		SubmissionID: submissionID,
		VoterID:      strings.TrimSpace(v.VoterID),
		Kind:         v.Kind,
		Weight:       v.Weight,
		EventID:      strings.TrimSpace(v.EventID),
	}
	if v.CastAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, v.CastAt)
		if err != nil {
			return model.Vote{}, fmt.Errorf("%w: invalid cast_at; must be RFC3339", ErrBadRequest)
		}
		out.CastAt = ts
	}
	return out, nil
}

type voteResponse struct {
	Outcome model.VoteOutcome `json:"outcome"`
}

// HandlePostVote handles POST /submissions/{id}/votes. Every accepted
// ingestion answers 200 and reports whether the vote now counts.
func (h *VoteHandler) HandlePostVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.vote"
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %v", op, ErrBadRequest, err))
		return
	}
	v, err := req.toVote(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	}
	outcome, err := h.deps.RecordVote(r.Context(), v)
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{Outcome: outcome})
}

// HandleListVotes handles GET /submissions/{id}/votes.
func (h *VoteHandler) HandleListVotes(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_votes"
	votes, err := h.deps.Votes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.log, op, err)
		return
	}
	if votes == nil {
		votes = []model.Vote{}
	}
	writeJSON(w, http.StatusOK, votes)
}
