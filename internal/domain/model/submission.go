// Package model contains the domain records shared by the scoring core.
package model

import "time"

// Status is a submission lifecycle state.
type Status string

// Lifecycle states.
const (
	StatusSubmitted  Status = "submitted"
	StatusResearched Status = "researched"
	StatusScored     Status = "scored"
	StatusPublished  Status = "published"
	StatusRejected   Status = "rejected"
)

// Statuses lists every state in lifecycle order.
var Statuses = []Status{StatusSubmitted, StatusResearched, StatusScored, StatusPublished, StatusRejected}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusRejected
}

func (s Status) String() string { return string(s) }

// Submission is a hackathon entry tracked by the ledger.
type Submission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryRecord is one applied transition. Records are never rewritten.
type HistoryRecord struct {
	SubmissionID string    `json:"submission_id"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	Actor        string    `json:"actor"`
	At           time.Time `json:"at"`
}

// TransitionEvent is emitted after a transition commits.
type TransitionEvent struct {
	SubmissionID string    `json:"submission_id"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	Actor        string    `json:"actor"`
	At           time.Time `json:"at"`
}
