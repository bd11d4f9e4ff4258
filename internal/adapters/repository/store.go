// Package repository persists submissions, status history, judge scores and
// community votes behind a single Store contract.
package repository

import (
	"context"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
)

// SubmissionStore holds submissions and their append-only status history.
type SubmissionStore interface {
	// CreateSubmission inserts s. Returns ErrAlreadyExists for a known id.
	CreateSubmission(ctx context.Context, s model.Submission) error
	// GetSubmission returns ErrNotFound for an unknown id.
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	// ListSubmissions returns every submission ordered by creation time, then id.
	ListSubmissions(ctx context.Context) ([]model.Submission, error)
	// CompareAndSetStatus moves id from -> to and appends rec atomically.
	// Returns ErrStatusConflict when the stored status is not from.
	CompareAndSetStatus(ctx context.Context, id string, from, to model.Status, rec model.HistoryRecord) error
	// History returns the transitions of id in the order they were applied.
	History(ctx context.Context, id string) ([]model.HistoryRecord, error)
}

// ScoreStore holds judge scores keyed by (submission, judge, round).
type ScoreStore interface {
	// UpsertScore inserts or replaces the row for the score's composite key.
	UpsertScore(ctx context.Context, s model.JudgeScore) error
	// GetScore returns ErrNotFound when no row exists for the key.
	GetScore(ctx context.Context, submissionID, judge string, round model.Round) (model.JudgeScore, error)
	// ListScores returns the rows of one submission ordered by judge, then round.
	ListScores(ctx context.Context, submissionID string) ([]model.JudgeScore, error)
	// ListAllScores returns every row.
	ListAllScores(ctx context.Context) ([]model.JudgeScore, error)
}

// VoteStore holds the counted vote per (submission, voter) and the full
// ingestion history.
type VoteStore interface {
	// RecordVote appends v to history and makes it the counted vote unless a
	// newer one is already counted.
	RecordVote(ctx context.Context, v model.Vote) (model.VoteOutcome, error)
	// CountedVotes returns the counted vote of every (submission, voter).
	CountedVotes(ctx context.Context) ([]model.Vote, error)
	// VoteHistory returns every ingested vote of a submission in arrival order.
	VoteHistory(ctx context.Context, submissionID string) ([]model.Vote, error)
}

// Store is the full persistence contract.
type Store interface {
	SubmissionStore
	ScoreStore
	VoteStore
	Close() error
}
