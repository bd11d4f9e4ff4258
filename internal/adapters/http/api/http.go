// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/ranking"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// SubmissionDependencies covers intake and lifecycle operations.
type SubmissionDependencies interface {
	CreateSubmission(ctx context.Context, s model.Submission) (model.Submission, error)
	GetSubmission(ctx context.Context, id string) (model.Submission, []model.HistoryRecord, error)
	Transition(ctx context.Context, id string, to model.Status, actor string) (ledger.Result, error)
}

// ScoreDependencies covers both judging rounds and the score breakdown.
type ScoreDependencies interface {
	SubmitRoundOne(ctx context.Context, id, judge string, ratings model.Ratings, notes *model.Round1Notes) (model.JudgeScore, error)
	SubmitRevision(ctx context.Context, id, judge string, rev synthesis.Revision) (synthesis.Result, error)
	SubmissionScores(ctx context.Context, id string) (model.ScoreBreakdown, error)
}

// VoteDependencies covers community vote ingestion.
type VoteDependencies interface {
	RecordVote(ctx context.Context, v model.Vote) (model.VoteOutcome, error)
	Votes(ctx context.Context, id string) ([]model.Vote, error)
}

// LeaderboardDependencies covers ranked reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, q ranking.Query) (ranking.Page, error)
}

// StatsProvider reports service statistics.
type StatsProvider interface {
	Stats(ctx context.Context) map[string]any
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmissionDependencies
	ScoreDependencies
	VoteDependencies
	LeaderboardDependencies
	StatsProvider
}

// Server wires HTTP routes for the scoring API.
type Server struct {
	submissions *SubmissionHandler
	scores      *ScoreHandler
	votes       *VoteHandler
	leaderboard *LeaderboardHandler
	stats       *StatsHandler
	health      *HealthHandler

	writeLimit rate.Limit
	writeBurst int
	log        logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithWriteRateLimit limits write requests per client IP. A non-positive
// limit disables limiting.
func WithWriteRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.writeLimit = rate.Limit(perSecond)
		if burst > 0 {
			s.writeBurst = burst
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		writeBurst: 1,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.submissions = NewSubmissionHandler(deps, s.log)
	s.scores = NewScoreHandler(deps, s.log)
	s.votes = NewVoteHandler(deps, s.log)
	s.leaderboard = NewLeaderboardHandler(deps, s.log)
	s.stats = NewStatsHandler(deps)
	s.health = NewHealthHandler()
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.health.HandleMetrics, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.stats.HandleStats, "stats"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboard.HandleGetLeaderboard, "leaderboard"))

	r.Route("/submissions", func(r chi.Router) {
		r.Group(func(w chi.Router) {
			if s.writeLimit > 0 {
				w.Use(RateLimitMiddleware(NewIPRateLimiter(s.writeLimit, s.writeBurst)))
			}
			w.Post("/", MetricsMiddleware(s.submissions.HandleCreate, "create_submission"))
			w.Post("/{id}/transitions", MetricsMiddleware(s.submissions.HandleTransition, "transition"))
			w.Post("/{id}/scores", MetricsMiddleware(s.scores.HandleRoundOne, "round1_score"))
			w.Post("/{id}/revisions", MetricsMiddleware(s.scores.HandleRevision, "round2_revision"))
			w.Post("/{id}/votes", MetricsMiddleware(s.votes.HandlePostVote, "vote"))
		})
		r.Get("/{id}", MetricsMiddleware(s.submissions.HandleGet, "get_submission"))
		r.Get("/{id}/scores", MetricsMiddleware(s.scores.HandleBreakdown, "score_breakdown"))
		r.Get("/{id}/votes", MetricsMiddleware(s.votes.HandleListVotes, "list_votes"))
	})
}

// Router returns a chi router with every route registered.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
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

// decode reads a JSON body, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
