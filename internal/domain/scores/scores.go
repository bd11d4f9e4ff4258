// Package scores accepts round-1 judge scores and derives per-judge
// weighted totals.
package scores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

var roundOneLabel = strconv.Itoa(int(model.RoundOne))

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithRoster sets the active judges.
func WithRoster(r Roster) Option {
	return func(s *Store) {
		if len(r.Judges) > 0 {
			s.roster = r
		}
	}
}

// WithWeightProfiles sets per-judge category weights. Judges without a
// profile use uniform weights.
func WithWeightProfiles(profiles map[string]Weights) Option {
	return func(s *Store) {
		s.profiles = make(map[string]Weights, len(profiles))
		for judge, w := range profiles {
			s.profiles[strings.ToLower(judge)] = w
		}
	}
}

// Rebaser recomputes rows derived from a round-1 score after it changed.
type Rebaser interface {
	Rebase(ctx context.Context, roundOne model.JudgeScore) error
}

// WithRebaser sets the hook run after a round-1 score changes.
func WithRebaser(r Rebaser) Option {
	return func(s *Store) {
		if r != nil {
			s.rebaser = r
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store validates and upserts round-1 scores.
type Store struct {
	subs     repository.SubmissionStore
	scores   repository.ScoreStore
	roster   Roster
	profiles map[string]Weights
	rebaser  Rebaser
	log      logger.Logger
	now      func() time.Time
}

// New creates a round-1 score store.
func New(subs repository.SubmissionStore, scores repository.ScoreStore, opts ...Option) *Store {
	s := &Store{
		subs:     subs,
		scores:   scores,
		roster:   NewRoster("default", DefaultJudges),
		profiles: map[string]Weights{},
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roster returns the active roster.
func (s *Store) Roster() Roster { return s.roster }

// Weights returns the profile used for judge.
func (s *Store) Weights(judge string) Weights {
	if w, ok := s.profiles[judge]; ok {
		return w
	}
	return Uniform()
}

// ValidateRatings checks every category rating is in [0,10].
func ValidateRatings(r model.Ratings) error {
	for _, c := range model.Categories {
		if v := r.Get(c); v < model.MinRating || v > model.MaxRating {
			return fmt.Errorf("%s=%d outside [%d,%d]: %w", c, v, model.MinRating, model.MaxRating, ErrInvalidRating)
		}
	}
	return nil
}

// Scorable reports whether round-1 scores may be recorded in status st.
func Scorable(st model.Status) bool {
	return st == model.StatusResearched || st == model.StatusScored
}

// Submit validates and upserts the round-1 score of judge for submissionID.
// A resubmission replaces the earlier row; an identical resubmission leaves
// the stored row untouched. When the row changes the rebaser, if any, runs.
func (s *Store) Submit(ctx context.Context, submissionID, judge string, ratings model.Ratings, notes *model.Round1Notes) (model.JudgeScore, error) {
	judge = strings.ToLower(strings.TrimSpace(judge))
	if !s.roster.Has(judge) {
		s.reject(ctx, submissionID, judge, "unknown_judge")
		return model.JudgeScore{}, fmt.Errorf("judge %q (roster %s): %w", judge, s.roster.Version, ErrUnknownJudge)
	}
	if err := ValidateRatings(ratings); err != nil {
		s.reject(ctx, submissionID, judge, "invalid_rating")
		return model.JudgeScore{}, err
	}

	sub, err := s.subs.GetSubmission(ctx, submissionID)
	if err != nil {
		return model.JudgeScore{}, err
	}
	if !Scorable(sub.Status) {
		s.reject(ctx, submissionID, judge, "not_scorable")
		return model.JudgeScore{}, fmt.Errorf("submission %s is %s: %w", submissionID, sub.Status, ErrNotScorable)
	}

	if notes == nil {
		notes = &model.Round1Notes{}
	}
	score := model.JudgeScore{
		SubmissionID:  submissionID,
		Judge:         judge,
		Round:         model.RoundOne,
		Ratings:       ratings,
		WeightedTotal: WeightedTotal(ratings, s.Weights(judge)),
		Round1:        notes,
	}

	prev, err := s.scores.GetScore(ctx, submissionID, judge, model.RoundOne)
	switch {
	case err == nil && sameRoundOne(prev, score):
		metrics.RecordScore(roundOneLabel)
		return prev, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return model.JudgeScore{}, err
	}

	score.UpdatedAt = s.now().UTC()
	if err := s.scores.UpsertScore(ctx, score); err != nil {
		return model.JudgeScore{}, err
	}
	if s.rebaser != nil {
		if err := s.rebaser.Rebase(ctx, score); err != nil {
			metrics.RecordErrorByComponent("scores", "rebase")
			return model.JudgeScore{}, fmt.Errorf("rebase round 2 of %s/%s: %w", submissionID, judge, err)
		}
	}
	metrics.RecordScore(roundOneLabel)
	s.log.Debug(ctx, "round-1 score recorded",
		logger.String("submission_id", submissionID),
		logger.String("judge", judge),
		logger.Float64("weighted_total", score.WeightedTotal),
	)
	return score, nil
}

func sameRoundOne(a, b model.JudgeScore) bool {
	var an, bn model.Round1Notes
	if a.Round1 != nil {
		an = *a.Round1
	}
	if b.Round1 != nil {
		bn = *b.Round1
	}
	return a.Ratings == b.Ratings && a.WeightedTotal == b.WeightedTotal && an == bn
}

func (s *Store) reject(ctx context.Context, submissionID, judge, reason string) {
	metrics.RecordScoreRejected(roundOneLabel, reason)
	s.log.Warn(ctx, "round-1 score rejected",
		logger.String("submission_id", submissionID),
		logger.String("judge", judge),
		logger.String("reason", reason),
	)
}

// Completeness is the round-1 coverage of a submission against the roster.
type Completeness struct {
	Scored   []string
	Missing  []string
	Complete bool
}

// Completeness reports which roster judges have a round-1 row.
func (s *Store) Completeness(ctx context.Context, submissionID string) (Completeness, error) {
	rows, err := s.scores.ListScores(ctx, submissionID)
	if err != nil {
		return Completeness{}, err
	}
	var scored []string
	for _, r := range rows {
		if r.Round == model.RoundOne {
			scored = append(scored, r.Judge)
		}
	}
	missing := s.roster.Missing(scored)
	return Completeness{Scored: scored, Missing: missing, Complete: len(missing) == 0}, nil
}

// List returns every score row of submissionID.
func (s *Store) List(ctx context.Context, submissionID string) ([]model.JudgeScore, error) {
	return s.scores.ListScores(ctx, submissionID)
}
