package model

import "time"

// VoteKind distinguishes the two ingestion shapes.
type VoteKind string

// Vote kinds.
const (
	VoteReaction VoteKind = "reaction"
	VoteToken    VoteKind = "token"
)

// Vote is a single community signal for a submission.
type Vote struct {
	SubmissionID string    `json:"submission_id"`
	VoterID      string    `json:"voter_id"`
	Kind         VoteKind  `json:"kind"`
	Weight       float64   `json:"weight"`
	CastAt       time.Time `json:"cast_at"`
	// EventID identifies the upstream delivery (reaction message id, tx signature).
	EventID string `json:"event_id,omitempty"`
}

// VoteOutcome reports what happened to an ingested vote.
type VoteOutcome string

// Vote outcomes.
const (
	// VoteCounted is the first counted vote from this voter.
	VoteCounted VoteOutcome = "counted"
	// VoteReplaced superseded the voter's earlier counted vote.
	VoteReplaced VoteOutcome = "replaced"
	// VoteStale is older than the voter's counted vote; kept only in history.
	VoteStale VoteOutcome = "stale"
	// VoteRedelivered repeats an already ingested event id.
	VoteRedelivered VoteOutcome = "redelivered"
)
