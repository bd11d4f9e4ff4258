package model

import "time"

// LeaderboardEntry is a derived ranking row. It is never stored.
type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	SubmissionID   string    `json:"submission_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Status         Status    `json:"status"`
	AIScore        float64   `json:"ai_score"`
	CommunityScore float64   `json:"community_score"`
	FinalScore     float64   `json:"final_score"`
	JudgeCount     int       `json:"judge_count"`
	RosterSize     int       `json:"roster_size"`
	Complete       bool      `json:"complete"`
	HasRoundTwo    bool      `json:"has_round_two"`
	CreatedAt      time.Time `json:"created_at"`
}

// JudgeBreakdown is one judge's view of a submission across both rounds.
type JudgeBreakdown struct {
	Judge       string       `json:"judge"`
	Ratings     Ratings      `json:"ratings"`
	Round1Total float64      `json:"round1_total"`
	Round1Notes *Round1Notes `json:"round1_notes,omitempty"`
	Round2Total float64      `json:"round2_total"`
	Round2Notes *Round2Notes `json:"round2_notes,omitempty"`
}

// ScoreBreakdown is the per-submission score detail served to dashboards.
type ScoreBreakdown struct {
	Entry         LeaderboardEntry `json:"entry"`
	Ranked        bool             `json:"ranked"`
	Judges        []JudgeBreakdown `json:"judges"`
	MissingJudges []string         `json:"missing_judges,omitempty"`
	RosterVersion string           `json:"roster_version,omitempty"`
}
