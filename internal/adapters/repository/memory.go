package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

type scoreKey struct {
	submissionID string
	judge        string
	round        model.Round
}

type voteKey struct {
	submissionID string
	voterID      string
}

// MemoryStore is an in-process Store. Each table has its own lock so score,
// vote and status writes never contend with each other.
type MemoryStore struct {
	subMu       sync.RWMutex
	submissions map[string]model.Submission
	history     map[string][]model.HistoryRecord

	scoreMu sync.RWMutex
	scores  map[scoreKey]model.JudgeScore

	voteMu      sync.RWMutex
	counted     map[voteKey]model.Vote
	voteHistory map[string][]model.Vote
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]model.Submission),
		history:     make(map[string][]model.HistoryRecord),
		scores:      make(map[scoreKey]model.JudgeScore),
		counted:     make(map[voteKey]model.Vote),
		voteHistory: make(map[string][]model.Vote),
	}
}

// CreateSubmission implements SubmissionStore.
func (m *MemoryStore) CreateSubmission(_ context.Context, s model.Submission) error {
	defer observe("create_submission", time.Now())
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.submissions[s.ID]; ok {
		return fmt.Errorf("submission %s: %w", s.ID, ErrAlreadyExists)
	}
	m.submissions[s.ID] = s
	return nil
}

// GetSubmission implements SubmissionStore.
func (m *MemoryStore) GetSubmission(_ context.Context, id string) (model.Submission, error) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ListSubmissions implements SubmissionStore.
func (m *MemoryStore) ListSubmissions(_ context.Context) ([]model.Submission, error) {
	defer observe("list_submissions", time.Now())
	m.subMu.RLock()
	out := make([]model.Submission, 0, len(m.submissions))
	for _, s := range m.submissions {
		out = append(out, s)
	}
	m.subMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CompareAndSetStatus implements SubmissionStore.
func (m *MemoryStore) CompareAndSetStatus(_ context.Context, id string, from, to model.Status, rec model.HistoryRecord) error {
	defer observe("set_status", time.Now())
	m.subMu.Lock()
	defer m.subMu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if s.Status != from {
		return fmt.Errorf("submission %s is %s, not %s: %w", id, s.Status, from, ErrStatusConflict)
	}
	s.Status = to
	s.UpdatedAt = rec.At
	m.submissions[id] = s
	m.history[id] = append(m.history[id], rec)
	return nil
}

// History implements SubmissionStore.
func (m *MemoryStore) History(_ context.Context, id string) ([]model.HistoryRecord, error) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	if _, ok := m.submissions[id]; !ok {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return append([]model.HistoryRecord(nil), m.history[id]...), nil
}

// UpsertScore implements ScoreStore.
func (m *MemoryStore) UpsertScore(_ context.Context, s model.JudgeScore) error {
	defer observe("upsert_score", time.Now())
	m.scoreMu.Lock()
	defer m.scoreMu.Unlock()
	m.scores[scoreKey{s.SubmissionID, s.Judge, s.Round}] = cloneScore(s)
	return nil
}

// GetScore implements ScoreStore.
func (m *MemoryStore) GetScore(_ context.Context, submissionID, judge string, round model.Round) (model.JudgeScore, error) {
	m.scoreMu.RLock()
	defer m.scoreMu.RUnlock()
	s, ok := m.scores[scoreKey{submissionID, judge, round}]
	if !ok {
		return model.JudgeScore{}, fmt.Errorf("score %s/%s/%d: %w", submissionID, judge, round, ErrNotFound)
	}
	return cloneScore(s), nil
}

// ListScores implements ScoreStore.
func (m *MemoryStore) ListScores(_ context.Context, submissionID string) ([]model.JudgeScore, error) {
	m.scoreMu.RLock()
	out := make([]model.JudgeScore, 0)
	for k, s := range m.scores {
		if k.submissionID == submissionID {
			out = append(out, cloneScore(s))
		}
	}
	m.scoreMu.RUnlock()
	sortScores(out)
	return out, nil
}

// ListAllScores implements ScoreStore.
func (m *MemoryStore) ListAllScores(_ context.Context) ([]model.JudgeScore, error) {
	defer observe("list_scores", time.Now())
	m.scoreMu.RLock()
	out := make([]model.JudgeScore, 0, len(m.scores))
	for _, s := range m.scores {
		out = append(out, cloneScore(s))
	}
	m.scoreMu.RUnlock()
	sortScores(out)
	return out, nil
}

// RecordVote implements VoteStore.
func (m *MemoryStore) RecordVote(_ context.Context, v model.Vote) (model.VoteOutcome, error) {
	defer observe("record_vote", time.Now())
	m.voteMu.Lock()
	defer m.voteMu.Unlock()

	key := voteKey{v.SubmissionID, v.VoterID}
	outcome := model.VoteCounted
	if prev, ok := m.counted[key]; ok {
		outcome = model.VoteReplaced
		if v.CastAt.Before(prev.CastAt) {
			outcome = model.VoteStale
		}
	}
	if outcome != model.VoteStale {
		m.counted[key] = v
	}
	m.voteHistory[v.SubmissionID] = append(m.voteHistory[v.SubmissionID], v)
	return outcome, nil
}

// CountedVotes implements VoteStore.
func (m *MemoryStore) CountedVotes(_ context.Context) ([]model.Vote, error) {
	m.voteMu.RLock()
	out := make([]model.Vote, 0, len(m.counted))
	for _, v := range m.counted {
		out = append(out, v)
	}
	m.voteMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmissionID != out[j].SubmissionID {
			return out[i].SubmissionID < out[j].SubmissionID
		}
		return out[i].VoterID < out[j].VoterID
	})
	return out, nil
}

// VoteHistory implements VoteStore.
func (m *MemoryStore) VoteHistory(_ context.Context, submissionID string) ([]model.Vote, error) {
	m.voteMu.RLock()
	defer m.voteMu.RUnlock()
	return append([]model.Vote(nil), m.voteHistory[submissionID]...), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func cloneScore(s model.JudgeScore) model.JudgeScore {
	if s.Round1 != nil {
		n := *s.Round1
		s.Round1 = &n
	}
	if s.Round2 != nil {
		n := *s.Round2
		s.Round2 = &n
	}
	return s
}

func sortScores(out []model.JudgeScore) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmissionID != out[j].SubmissionID {
			return out[i].SubmissionID < out[j].SubmissionID
		}
		if out[i].Judge != out[j].Judge {
			return out[i].Judge < out[j].Judge
		}
		return out[i].Round < out[j].Round
	})
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, metrics.Since(start))
}
