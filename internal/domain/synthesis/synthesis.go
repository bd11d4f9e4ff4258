// Package synthesis applies round-2 judge revisions on top of round-1 totals.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/scores"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

// DefaultBound is the allowed adjustment as a fraction of the round-1 total.
const DefaultBound = 0.20

// WarningRevisionOutOfBounds is reported when an adjustment was clamped.
const WarningRevisionOutOfBounds = "RevisionOutOfBounds"

var roundTwoLabel = strconv.Itoa(int(model.RoundTwo))

// Revision is a judge's round-2 request.
type Revision struct {
	Type               model.RevisionType `json:"type"`
	Adjustment         float64            `json:"adjustment"`
	CommunityInfluence model.Influence    `json:"community_influence,omitempty"`
	Confidence         model.Confidence   `json:"confidence,omitempty"`
	Reasoning          string             `json:"reasoning,omitempty"`
}

// Result is the stored round-2 row plus any warnings raised while applying it.
type Result struct {
	Score               model.JudgeScore `json:"score"`
	RequestedAdjustment float64          `json:"requested_adjustment"`
	Warnings            []string         `json:"warnings,omitempty"`
}

// Clamped reports whether the adjustment was limited to the bound.
func (r Result) Clamped() bool {
	for _, w := range r.Warnings {
		if w == WarningRevisionOutOfBounds {
			return true
		}
	}
	return false
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBound sets the adjustment bound as a fraction of the round-1 total.
func WithBound(fraction float64) Option {
	return func(e *Engine) {
		if fraction >= 0 && !math.IsNaN(fraction) && !math.IsInf(fraction, 0) {
			e.bound = fraction
		}
	}
}

// WithRoster sets the active judges.
func WithRoster(r scores.Roster) Option {
	return func(e *Engine) {
		if len(r.Judges) > 0 {
			e.roster = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the only writer of round-2 rows.
type Engine struct {
	subs   repository.SubmissionStore
	scores repository.ScoreStore
	roster scores.Roster
	bound  float64
	log    logger.Logger
	now    func() time.Time
}

// New creates a synthesis engine.
func New(subs repository.SubmissionStore, store repository.ScoreStore, opts ...Option) *Engine {
	e := &Engine{
		subs:   subs,
		scores: store,
		roster: scores.NewRoster("default", scores.DefaultJudges),
		bound:  DefaultBound,
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func validate(r Revision) error {
	switch r.Type {
	case model.RevisionIncrease, model.RevisionDecrease, model.RevisionNone:
	default:
		return fmt.Errorf("type %q: %w", r.Type, ErrInvalidRevision)
	}
	if math.IsNaN(r.Adjustment) || math.IsInf(r.Adjustment, 0) {
		return fmt.Errorf("adjustment must be finite: %w", ErrInvalidRevision)
	}
	switch r.CommunityInfluence {
	case "", model.InfluenceNone, model.InfluenceMinor, model.InfluenceMajor:
	default:
		return fmt.Errorf("community_influence %q: %w", r.CommunityInfluence, ErrInvalidRevision)
	}
	switch r.Confidence {
	case "", model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
	default:
		return fmt.Errorf("confidence %q: %w", r.Confidence, ErrInvalidRevision)
	}
	return nil
}

// Signed returns the adjustment with the sign implied by the revision type.
func Signed(r Revision) float64 {
	switch r.Type {
	case model.RevisionIncrease:
		return math.Abs(r.Adjustment)
	case model.RevisionDecrease:
		return -math.Abs(r.Adjustment)
	}
	return 0
}

// Apply computes the round-2 total for a round-1 total. It returns the
// adjustment actually applied and whether it was clamped to the bound.
func Apply(round1Total, adjustment, bound float64) (newScore, applied float64, clamped bool) {
	limit := bound * round1Total
	applied = adjustment
	if math.Abs(applied) > limit {
		applied = math.Copysign(limit, applied)
		clamped = true
	}
	newScore = math.Max(0, math.Min(model.MaxTotal, round1Total+applied))
	return newScore, applied, clamped
}

// Submit records judge's round-2 revision for submissionID.
func (e *Engine) Submit(ctx context.Context, submissionID, judge string, rev Revision) (Result, error) {
	judge = strings.ToLower(strings.TrimSpace(judge))
	if !e.roster.Has(judge) {
		e.reject(ctx, submissionID, judge, "unknown_judge")
		return Result{}, fmt.Errorf("judge %q (roster %s): %w", judge, e.roster.Version, scores.ErrUnknownJudge)
	}
	if err := validate(rev); err != nil {
		e.reject(ctx, submissionID, judge, "invalid_revision")
		return Result{}, err
	}

	sub, err := e.subs.GetSubmission(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}
	if sub.Status != model.StatusScored {
		e.reject(ctx, submissionID, judge, "not_revisable")
		return Result{}, fmt.Errorf("submission %s is %s: %w", submissionID, sub.Status, ErrNotRevisable)
	}

	r1, err := e.scores.GetScore(ctx, submissionID, judge, model.RoundOne)
	if errors.Is(err, repository.ErrNotFound) {
		e.reject(ctx, submissionID, judge, "no_round_one")
		return Result{}, fmt.Errorf("%s/%s: %w", submissionID, judge, ErrNoRoundOneScore)
	}
	if err != nil {
		return Result{}, err
	}

	requested := Signed(rev)
	newScore, applied, clamped := Apply(r1.WeightedTotal, requested, e.bound)

	res := Result{RequestedAdjustment: requested}
	if clamped {
		res.Warnings = append(res.Warnings, WarningRevisionOutOfBounds)
		metrics.RecordRevisionClamped()
		e.log.Warn(ctx, "revision adjustment clamped",
			logger.String("submission_id", submissionID),
			logger.String("judge", judge),
			logger.Float64("requested", requested),
			logger.Float64("applied", applied),
			logger.Float64("round1_total", r1.WeightedTotal),
		)
	}

	res.Score = model.JudgeScore{
		SubmissionID:  submissionID,
		Judge:         judge,
		Round:         model.RoundTwo,
		Ratings:       r1.Ratings,
		WeightedTotal: newScore,
		Round2: &model.Round2Notes{
			Revision: model.Revision{
				Type:       rev.Type,
				Adjustment: applied,
				NewScore:   newScore,
				Requested:  requested,
			},
			CommunityInfluence: rev.CommunityInfluence,
			Confidence:         rev.Confidence,
			Reasoning:          rev.Reasoning,
		},
	}

	prev, err := e.scores.GetScore(ctx, submissionID, judge, model.RoundTwo)
	switch {
	case err == nil && sameRoundTwo(prev, res.Score):
		res.Score = prev
		metrics.RecordScore(roundTwoLabel)
		return res, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return Result{}, err
	}

	res.Score.UpdatedAt = e.now().UTC()
	if err := e.scores.UpsertScore(ctx, res.Score); err != nil {
		return Result{}, err
	}
	metrics.RecordScore(roundTwoLabel)
	e.log.Debug(ctx, "round-2 revision recorded",
		logger.String("submission_id", submissionID),
		logger.String("judge", judge),
		logger.String("type", string(rev.Type)),
		logger.Float64("new_score", newScore),
	)
	return res, nil
}

// Rebase re-applies the stored round-2 revision of roundOne's judge to the
// new round-1 total, so new_score stays clamp(round1 + adjustment, 0, 40).
// It is a no-op when the judge has no round-2 row or nothing changed.
func (e *Engine) Rebase(ctx context.Context, roundOne model.JudgeScore) error {
	r2, err := e.scores.GetScore(ctx, roundOne.SubmissionID, roundOne.Judge, model.RoundTwo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	notes := model.Round2Notes{}
	if r2.Round2 != nil {
		notes = *r2.Round2
	}
	requested := notes.Revision.Requested
	if requested == 0 {
		requested = notes.Revision.Adjustment
	}
	newScore, applied, clamped := Apply(roundOne.WeightedTotal, requested, e.bound)
	notes.Revision.Adjustment = applied
	notes.Revision.NewScore = newScore
	notes.Revision.Requested = requested

	next := r2
	next.Ratings = roundOne.Ratings
	next.WeightedTotal = newScore
	next.Round2 = &notes
	if sameRoundTwo(r2, next) {
		return nil
	}
	next.UpdatedAt = e.now().UTC()
	if err := e.scores.UpsertScore(ctx, next); err != nil {
		return err
	}
	if clamped {
		metrics.RecordRevisionClamped()
	}
	e.log.Info(ctx, "round-2 total rebased on new round-1 score",
		logger.String("submission_id", roundOne.SubmissionID),
		logger.String("judge", roundOne.Judge),
		logger.Float64("round1_total", roundOne.WeightedTotal),
		logger.Float64("previous", r2.WeightedTotal),
		logger.Float64("new_score", newScore),
	)
	return nil
}

func sameRoundTwo(a, b model.JudgeScore) bool {
	var an, bn model.Round2Notes
	if a.Round2 != nil {
		an = *a.Round2
	}
	if b.Round2 != nil {
		bn = *b.Round2
	}
	return a.Ratings == b.Ratings && a.WeightedTotal == b.WeightedTotal && an == bn
}

func (e *Engine) reject(ctx context.Context, submissionID, judge, reason string) {
	metrics.RecordScoreRejected(roundTwoLabel, reason)
	e.log.Warn(ctx, "round-2 revision rejected",
		logger.String("submission_id", submissionID),
		logger.String("judge", judge),
		logger.String("reason", reason),
	)
}
