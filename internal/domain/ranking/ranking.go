// Package ranking derives the leaderboard from submissions, judge scores and
// community scores. Every read recomputes from the stored rows.
package ranking

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/scores"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

const (
	defaultPageSize = 20
	defaultMaxSize  = 100
	displayScale    = model.MaxTotal / 10
)

// CommunityScorer supplies the 0-10 community score per submission.
type CommunityScorer interface {
	Scores(ctx context.Context) (map[string]float64, error)
}

// Query selects a leaderboard page. Page is 1-based.
type Query struct {
	Page     int
	Size     int
	Category string
}

// Page is one slice of the ranked leaderboard.
type Page struct {
	Entries       []model.LeaderboardEntry `json:"entries"`
	Page          int                      `json:"page"`
	Size          int                      `json:"size"`
	Total         int                      `json:"total"`
	RosterVersion string                   `json:"roster_version"`
	ComputedAt    time.Time                `json:"computed_at"`
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRoster sets the roster used for completeness.
func WithRoster(r scores.Roster) Option {
	return func(e *Engine) {
		if len(r.Judges) > 0 {
			e.roster = r
		}
	}
}

// WithMaxPageSize caps Query.Size.
func WithMaxPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPageSize = n
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

// Engine is the only producer of leaderboard entries.
type Engine struct {
	subs        repository.SubmissionStore
	scores      repository.ScoreStore
	community   CommunityScorer
	roster      scores.Roster
	maxPageSize int
	log         logger.Logger
	now         func() time.Time
}

// New creates a ranking engine.
func New(subs repository.SubmissionStore, store repository.ScoreStore, community CommunityScorer, opts ...Option) *Engine {
	e := &Engine{
		subs:        subs,
		scores:      store,
		community:   community,
		roster:      scores.NewRoster("default", scores.DefaultJudges),
		maxPageSize: defaultMaxSize,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// judgeRows groups the two rounds of one judge.
type judgeRows struct {
	r1 *model.JudgeScore
	r2 *model.JudgeScore
}

type snapshot struct {
	subs      []model.Submission
	rows      map[string]map[string]*judgeRows // submission -> judge -> rows
	community map[string]float64
}

func (e *Engine) load(ctx context.Context) (snapshot, error) {
	subs, err := e.subs.ListSubmissions(ctx)
	if err != nil {
		return snapshot{}, err
	}
	all, err := e.scores.ListAllScores(ctx)
	if err != nil {
		return snapshot{}, err
	}
	community, err := e.community.Scores(ctx)
	if err != nil {
		return snapshot{}, err
	}

	rows := make(map[string]map[string]*judgeRows)
	for i := range all {
		s := &all[i]
		bySub, ok := rows[s.SubmissionID]
		if !ok {
			bySub = make(map[string]*judgeRows)
			rows[s.SubmissionID] = bySub
		}
		jr, ok := bySub[s.Judge]
		if !ok {
			jr = &judgeRows{}
			bySub[s.Judge] = jr
		}
		switch s.Round {
		case model.RoundOne:
			jr.r1 = s
		case model.RoundTwo:
			jr.r2 = s
		}
	}
	return snapshot{subs: subs, rows: rows, community: community}, nil
}

// entry computes the unranked leaderboard row of s. Rows of judges outside
// the active roster are ignored. ok is false when s has no round-1 score
// from an active judge.
func (e *Engine) entry(s model.Submission, judges map[string]*judgeRows, community float64) (model.LeaderboardEntry, bool) {
	var (
		r1Sum, finalSum float64
		count           int
		hasR2           bool
		scored          []string
	)
	// Summation order is fixed so equal inputs give bit-identical scores.
	for _, judge := range sortedJudges(judges) {
		jr := judges[judge]
		if jr.r1 == nil || !e.roster.Has(judge) {
			continue
		}
		count++
		scored = append(scored, judge)
		r1Sum += jr.r1.WeightedTotal
		if jr.r2 != nil {
			hasR2 = true
			finalSum += jr.r2.WeightedTotal
		} else {
			finalSum += jr.r1.WeightedTotal
		}
	}

	out := model.LeaderboardEntry{
		SubmissionID:   s.ID,
		Name:           s.Name,
		Category:       s.Category,
		Status:         s.Status,
		CommunityScore: community,
		JudgeCount:     count,
		RosterSize:     e.roster.Size(),
		Complete:       len(e.roster.Missing(scored)) == 0,
		HasRoundTwo:    hasR2,
		CreatedAt:      s.CreatedAt,
	}
	if count == 0 {
		out.Complete = false
		return out, false
	}
	out.AIScore = r1Sum / float64(count) / displayScale
	out.FinalScore = out.AIScore
	if hasR2 {
		out.FinalScore = finalSum / float64(count) / displayScale
	}
	return out, true
}

// Less orders leaderboard entries: complete before incomplete, then final
// score, community score, creation time and id.
func Less(a, b model.LeaderboardEntry) bool {
	if a.Complete != b.Complete {
		return a.Complete
	}
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.CommunityScore != b.CommunityScore {
		return a.CommunityScore > b.CommunityScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.SubmissionID < b.SubmissionID
}

func (e *Engine) rank(snap snapshot) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, 0, len(snap.subs))
	for _, s := range snap.subs {
		if s.Status == model.StatusRejected {
			continue
		}
		if en, ok := e.entry(s, snap.rows[s.ID], snap.community[s.ID]); ok {
			entries = append(entries, en)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Rank returns the full leaderboard.
func (e *Engine) Rank(ctx context.Context) ([]model.LeaderboardEntry, error) {
	start := time.Now()
	snap, err := e.load(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("ranking", "load")
		return nil, err
	}
	entries := e.rank(snap)
	metrics.RecordLeaderboardRecompute(metrics.Since(start), len(entries))
	return entries, nil
}

// Leaderboard returns one page of the leaderboard. Ranks are global; a
// category filter only narrows which entries are listed.
func (e *Engine) Leaderboard(ctx context.Context, q Query) (Page, error) {
	entries, err := e.Rank(ctx)
	if err != nil {
		return Page{}, err
	}
	if cat := strings.TrimSpace(q.Category); cat != "" {
		entries = slices.DeleteFunc(entries, func(en model.LeaderboardEntry) bool {
			return !strings.EqualFold(en.Category, cat)
		})
	}

	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > e.maxPageSize {
		size = e.maxPageSize
	}

	out := Page{
		Entries:       []model.LeaderboardEntry{},
		Page:          page,
		Size:          size,
		Total:         len(entries),
		RosterVersion: e.roster.Version,
		ComputedAt:    e.now().UTC(),
	}
	// Compare before multiplying so huge page numbers cannot overflow.
	if len(entries) == 0 || page-1 > (len(entries)-1)/size {
		return out, nil
	}
	from := (page - 1) * size
	to := min(from+size, len(entries))
	out.Entries = entries[from:to]
	return out, nil
}

// SubmissionScores returns the per-judge breakdown of one submission along
// with its leaderboard entry. Unranked submissions carry Rank 0.
func (e *Engine) SubmissionScores(ctx context.Context, id string) (model.ScoreBreakdown, error) {
	sub, err := e.subs.GetSubmission(ctx, id)
	if err != nil {
		return model.ScoreBreakdown{}, err
	}
	snap, err := e.load(ctx)
	if err != nil {
		return model.ScoreBreakdown{}, err
	}

	out := model.ScoreBreakdown{RosterVersion: e.roster.Version, Judges: []model.JudgeBreakdown{}}
	for _, en := range e.rank(snap) {
		if en.SubmissionID == id {
			out.Entry = en
			out.Ranked = true
			break
		}
	}
	if !out.Ranked {
		out.Entry, _ = e.entry(sub, snap.rows[id], snap.community[id])
	}

	judges := snap.rows[id]
	names := make([]string, 0, len(judges))
	for _, j := range sortedJudges(judges) {
		if judges[j].r1 != nil && e.roster.Has(j) {
			names = append(names, j)
		}
	}

	for _, j := range names {
		jr := judges[j]
		b := model.JudgeBreakdown{
			Judge:       j,
			Ratings:     jr.r1.Ratings,
			Round1Total: jr.r1.WeightedTotal,
			Round1Notes: jr.r1.Round1,
			Round2Total: jr.r1.WeightedTotal,
		}
		if jr.r2 != nil {
			b.Round2Total = jr.r2.WeightedTotal
			b.Round2Notes = jr.r2.Round2
		}
		out.Judges = append(out.Judges, b)
	}
	out.MissingJudges = e.roster.Missing(names)
	return out, nil
}

func sortedJudges(judges map[string]*judgeRows) []string {
	names := make([]string, 0, len(judges))
	for j := range judges {
		names = append(names, j)
	}
	sort.Strings(names)
	return names
}
