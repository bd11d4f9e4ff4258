package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/M3-org/clanktank-sub000/internal/adapters/http/api"
	"github.com/M3-org/clanktank-sub000/internal/domain/feedback"
	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/ranking"
	"github.com/M3-org/clanktank-sub000/internal/domain/scores"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
)

type mockDeps struct {
	createErr   error
	transition  ledger.Result
	transErr    error
	scoreErr    error
	revision    synthesis.Result
	revisionErr error
	outcome     model.VoteOutcome
	voteErr     error
	lastQuery   ranking.Query
	lastVote    model.Vote
	lastRatings model.Ratings
}

func (m *mockDeps) CreateSubmission(_ context.Context, s model.Submission) (model.Submission, error) {
	if m.createErr != nil {
		return model.Submission{}, m.createErr
	}
	if s.ID == "" {
		s.ID = "generated"
	}
	s.Status = model.StatusSubmitted
	return s, nil
}

func (m *mockDeps) GetSubmission(_ context.Context, id string) (model.Submission, []model.HistoryRecord, error) {
	if id != "alpha" {
		return model.Submission{}, nil, fmt.Errorf("submission %s: %w", id, model.ErrNotFound)
	}
	return model.Submission{ID: id, Status: model.StatusResearched}, []model.HistoryRecord{
		{SubmissionID: id, From: model.StatusSubmitted, To: model.StatusResearched, Actor: "research"},
	}, nil
}

func (m *mockDeps) Transition(_ context.Context, _ string, _ model.Status, _ string) (ledger.Result, error) {
	return m.transition, m.transErr
}

func (m *mockDeps) SubmitRoundOne(_ context.Context, id, judge string, ratings model.Ratings, _ *model.Round1Notes) (model.JudgeScore, error) {
	if m.scoreErr != nil {
		return model.JudgeScore{}, m.scoreErr
	}
	m.lastRatings = ratings
	return model.JudgeScore{SubmissionID: id, Judge: judge, Round: model.RoundOne, Ratings: ratings, WeightedTotal: 30}, nil
}

func (m *mockDeps) SubmitRevision(context.Context, string, string, synthesis.Revision) (synthesis.Result, error) {
	return m.revision, m.revisionErr
}

func (m *mockDeps) SubmissionScores(_ context.Context, id string) (model.ScoreBreakdown, error) {
	return model.ScoreBreakdown{Entry: model.LeaderboardEntry{SubmissionID: id, Rank: 1}, Ranked: true}, nil
}

func (m *mockDeps) RecordVote(_ context.Context, v model.Vote) (model.VoteOutcome, error) {
	m.lastVote = v
	return m.outcome, m.voteErr
}

func (m *mockDeps) Votes(context.Context, string) ([]model.Vote, error) {
	return nil, nil
}

func (m *mockDeps) Leaderboard(_ context.Context, q ranking.Query) (ranking.Page, error) {
	m.lastQuery = q
	return ranking.Page{Entries: []model.LeaderboardEntry{{Rank: 1, SubmissionID: "alpha"}}, Page: 1, Size: 20, Total: 1}, nil
}

func (m *mockDeps) Stats(context.Context) map[string]any {
	return map[string]any{"submissions": 3}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServerRoutes(t *testing.T) {
	Convey("Given an API server over mock dependencies", t, func() {
		deps := &mockDeps{outcome: model.VoteCounted}
		router := api.NewServer(deps).Router(context.Background())

		Convey("Health, metrics and stats respond", func() {
			So(do(router, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(do(router, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
			w := do(router, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"submissions":3`)
		})

		Convey("Creating a submission answers 201", func() {
			w := do(router, http.MethodPost, "/submissions", `{"name":"Alpha","category":"defi"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var sub model.Submission
			So(json.Unmarshal(w.Body.Bytes(), &sub), ShouldBeNil)
			So(sub.ID, ShouldEqual, "generated")
			So(sub.Status, ShouldEqual, model.StatusSubmitted)
		})

		Convey("A submission without a name is a validation failure", func() {
			w := do(router, http.MethodPost, "/submissions", `{"category":"defi"}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("Malformed JSON and unknown fields are bad requests", func() {
			So(do(router, http.MethodPost, "/submissions", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(router, http.MethodPost, "/submissions", `{"name":"a","color":"red"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A duplicate id conflicts", func() {
			deps.createErr = fmt.Errorf("submission alpha: %w", model.ErrAlreadyExists)
			w := do(router, http.MethodPost, "/submissions", `{"id":"alpha","name":"Alpha"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "already_exists")
		})

		Convey("Reading a submission returns it with history", func() {
			w := do(router, http.MethodGet, "/submissions/alpha", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"history":[{`)
			So(do(router, http.MethodGet, "/submissions/ghost", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Transitions map ledger outcomes", func() {
			deps.transition = ledger.Result{Submission: model.Submission{ID: "alpha", Status: model.StatusScored}, Applied: false}
			w := do(router, http.MethodPost, "/submissions/alpha/transitions", `{"to":"scored","actor":"judge"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"applied":false`)

			deps.transErr = fmt.Errorf("submitted -> published: %w", ledger.ErrInvalidTransition)
			w = do(router, http.MethodPost, "/submissions/alpha/transitions", `{"to":"published"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "invalid_transition")
		})

		Convey("Round-1 scores require ratings", func() {
			So(do(router, http.MethodPost, "/submissions/alpha/scores", `{"judge":"aimarc"}`).Code, ShouldEqual, http.StatusBadRequest)

			w := do(router, http.MethodPost, "/submissions/alpha/scores",
				`{"judge":"aimarc","ratings":{"innovation":8,"technical_execution":7,"market_potential":9,"user_experience":6}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastRatings.MarketPotential, ShouldEqual, 9)
		})

		Convey("Round-1 precondition and validation errors are distinguished", func() {
			deps.scoreErr = scores.ErrNotScorable
			w := do(router, http.MethodPost, "/submissions/alpha/scores", `{"judge":"aimarc","ratings":{}}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "not_scorable")

			deps.scoreErr = fmt.Errorf("innovation=11: %w", scores.ErrInvalidRating)
			So(do(router, http.MethodPost, "/submissions/alpha/scores", `{"judge":"aimarc","ratings":{}}`).Code, ShouldEqual, http.StatusUnprocessableEntity)

			deps.scoreErr = fmt.Errorf("zoe: %w", scores.ErrUnknownJudge)
			So(do(router, http.MethodPost, "/submissions/alpha/scores", `{"judge":"zoe","ratings":{}}`).Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("A clamped revision still answers 200 with its warning", func() {
			deps.revision = synthesis.Result{
				Score:               model.JudgeScore{Judge: "aishaw", Round: model.RoundTwo, WeightedTotal: 36},
				RequestedAdjustment: 8,
				Warnings:            []string{synthesis.WarningRevisionOutOfBounds},
			}
			w := do(router, http.MethodPost, "/submissions/alpha/revisions", `{"judge":"aishaw","type":"increase","adjustment":8}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, synthesis.WarningRevisionOutOfBounds)

			deps.revisionErr = synthesis.ErrNotRevisable
			So(do(router, http.MethodPost, "/submissions/alpha/revisions", `{"judge":"aishaw","type":"none"}`).Code, ShouldEqual, http.StatusConflict)
		})

		Convey("Votes carry the path id and parse cast_at", func() {
			w := do(router, http.MethodPost, "/submissions/alpha/votes",
				`{"voter_id":"v1","kind":"token","weight":2.5,"cast_at":"2024-06-01T10:00:00Z","event_id":"tx1"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"outcome":"counted"`)
			So(deps.lastVote.SubmissionID, ShouldEqual, "alpha")
			So(deps.lastVote.CastAt.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)

			So(do(router, http.MethodPost, "/submissions/alpha/votes", `{"voter_id":"v1","kind":"token","cast_at":"yesterday"}`).Code,
				ShouldEqual, http.StatusBadRequest)

			deps.voteErr = feedback.ErrSubmissionClosed
			So(do(router, http.MethodPost, "/submissions/alpha/votes", `{"voter_id":"v1","kind":"reaction"}`).Code, ShouldEqual, http.StatusConflict)
		})

		Convey("The leaderboard passes paging and category through", func() {
			w := do(router, http.MethodGet, "/leaderboard?page=2&size=5&category=defi", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastQuery, ShouldResemble, ranking.Query{Page: 2, Size: 5, Category: "defi"})

			So(do(router, http.MethodGet, "/leaderboard?size=ten", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Unexpected errors are internal", func() {
			deps.voteErr = errors.New("disk on fire")
			w := do(router, http.MethodPost, "/submissions/alpha/votes", `{"voter_id":"v1","kind":"reaction"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(errorCode(w), ShouldEqual, "internal_error")
		})
	})
}

func TestWriteRateLimit(t *testing.T) {
	Convey("Given a server allowing one write per client", t, func() {
		router := api.NewServer(&mockDeps{outcome: model.VoteCounted}, api.WithWriteRateLimit(0.001, 1)).Router(context.Background())

		Convey("The second write is rejected and reads are unaffected", func() {
			So(do(router, http.MethodPost, "/submissions", `{"name":"Alpha"}`).Code, ShouldEqual, http.StatusCreated)
			w := do(router, http.MethodPost, "/submissions", `{"name":"Beta"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(errorCode(w), ShouldEqual, "rate_limited")
			So(do(router, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}
