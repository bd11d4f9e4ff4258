// Package feedback ingests community votes and turns them into a 0-10
// community score per submission.
package feedback

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/dedupe"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

// MaxScore is the community score of the most supported submission.
const MaxScore = 10.0

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithDeduper sets the event id deduper used to skip redelivered votes.
func WithDeduper(d dedupe.Deduper) Option {
	return func(a *Aggregator) {
		if d != nil {
			a.dedupe = d
		}
	}
}

// WithMaxTokenWeight caps the weight of a single token vote. Zero disables the cap.
func WithMaxTokenWeight(limit float64) Option {
	return func(a *Aggregator) {
		if limit >= 0 {
			a.maxTokenWeight = limit
		}
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// WithClock overrides the time source used when a vote has no cast time.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator records votes and computes community scores.
type Aggregator struct {
	subs           repository.SubmissionStore
	votes          repository.VoteStore
	dedupe         dedupe.Deduper
	maxTokenWeight float64
	log            logger.Logger
	now            func() time.Time

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New creates an Aggregator.
func New(subs repository.SubmissionStore, votes repository.VoteStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		subs:     subs,
		votes:    votes,
		dedupe:   dedupe.NewInMemoryDeduper(),
		log:      logger.Nop(),
		now:      time.Now,
		inflight: map[string]chan struct{}{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prepare validates v and applies the weight rules of its kind.
func (a *Aggregator) Prepare(v model.Vote) (model.Vote, error) {
	v.SubmissionID = strings.TrimSpace(v.SubmissionID)
	v.VoterID = strings.TrimSpace(v.VoterID)
	if v.SubmissionID == "" || v.VoterID == "" {
		return v, fmt.Errorf("submission and voter are required: %w", ErrInvalidVote)
	}
	switch v.Kind {
	case model.VoteReaction:
		v.Weight = 1
	case model.VoteToken:
		if math.IsNaN(v.Weight) || math.IsInf(v.Weight, 0) || v.Weight <= 0 {
			return v, fmt.Errorf("token weight %v must be positive: %w", v.Weight, ErrInvalidVote)
		}
		if a.maxTokenWeight > 0 && v.Weight > a.maxTokenWeight {
			v.Weight = a.maxTokenWeight
		}
	default:
		return v, fmt.Errorf("kind %q: %w", v.Kind, ErrInvalidVote)
	}
	if v.CastAt.IsZero() {
		v.CastAt = a.now()
	}
	v.CastAt = v.CastAt.UTC()
	return v, nil
}

// Record ingests one vote. The latest vote per (submission, voter) counts;
// older or redelivered votes are acknowledged without changing the count.
func (a *Aggregator) Record(ctx context.Context, v model.Vote) (model.VoteOutcome, error) {
	v, err := a.Prepare(v)
	if err != nil {
		return "", err
	}

	sub, err := a.subs.GetSubmission(ctx, v.SubmissionID)
	if err != nil {
		return "", err
	}
	if sub.Status == model.StatusRejected {
		return "", fmt.Errorf("submission %s: %w", v.SubmissionID, ErrSubmissionClosed)
	}

	release, seen, err := a.claim(ctx, v.EventID)
	if err != nil {
		return "", err
	}
	if seen {
		metrics.RecordVote(string(v.Kind), string(model.VoteRedelivered))
		a.log.Debug(ctx, "vote redelivered",
			logger.String("submission_id", v.SubmissionID),
			logger.String("event_id", v.EventID),
		)
		return model.VoteRedelivered, nil
	}
	defer release()

	outcome, err := a.votes.RecordVote(ctx, v)
	if err != nil {
		if v.EventID != "" {
			a.dedupe.Unrecord(ctx, v.EventID)
		}
		metrics.RecordErrorByComponent("feedback", "store")
		return "", err
	}

	metrics.RecordVote(string(v.Kind), string(outcome))
	fields := []logger.Field{
		logger.String("submission_id", v.SubmissionID),
		logger.String("voter_id", v.VoterID),
		logger.String("kind", string(v.Kind)),
		logger.Float64("weight", v.Weight),
		logger.String("outcome", string(outcome)),
	}
	switch outcome {
	case model.VoteReplaced:
		a.log.Info(ctx, "duplicate vote ignored, latest vote counts", fields...)
	case model.VoteStale:
		a.log.Info(ctx, "stale vote kept in history only", fields...)
	default:
		a.log.Debug(ctx, "vote counted", fields...)
	}
	return outcome, nil
}

// claim marks eventID as in flight. A concurrent delivery of the same event
// waits until the first one finishes, so it is only acknowledged as seen once
// the first write succeeded. release must be called after the write and
// after any Unrecord.
func (a *Aggregator) claim(ctx context.Context, eventID string) (release func(), seen bool, err error) {
	if eventID == "" {
		return func() {}, false, nil
	}
	for {
		a.mu.Lock()
		wait, busy := a.inflight[eventID]
		if !busy {
			break
		}
		a.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	defer a.mu.Unlock()
	if a.dedupe.SeenAndRecord(ctx, eventID) {
		return nil, true, nil
	}
	done := make(chan struct{})
	a.inflight[eventID] = done
	return func() {
		a.mu.Lock()
		delete(a.inflight, eventID)
		a.mu.Unlock()
		close(done)
	}, false, nil
}

// Scores returns the community score of every non-rejected submission.
// Submissions without votes score 0.
func (a *Aggregator) Scores(ctx context.Context) (map[string]float64, error) {
	subs, err := a.subs.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	votes, err := a.votes.CountedVotes(ctx)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]float64, len(subs))
	for _, s := range subs {
		if s.Status != model.StatusRejected {
			raw[s.ID] = 0
		}
	}
	for _, v := range votes {
		if _, ok := raw[v.SubmissionID]; ok {
			raw[v.SubmissionID] += v.Weight
		}
	}
	return Normalize(raw), nil
}

// History returns every ingested vote for a submission.
func (a *Aggregator) History(ctx context.Context, submissionID string) ([]model.Vote, error) {
	return a.votes.VoteHistory(ctx, submissionID)
}

// Normalize scales raw totals so the largest maps to exactly MaxScore.
func Normalize(raw map[string]float64) map[string]float64 {
	var top float64
	for _, v := range raw {
		if v > top {
			top = v
		}
	}
	out := make(map[string]float64, len(raw))
	for id, v := range raw {
		switch {
		case top <= 0 || v <= 0:
			out[id] = 0
		case v == top:
			out[id] = MaxScore
		default:
			out[id] = v / top * MaxScore
		}
	}
	return out
}
