package model

import "time"

// Round identifies a judging pass.
type Round int

// Judging rounds.
const (
	RoundOne Round = 1
	RoundTwo Round = 2
)

// Rating bounds per category.
const (
	MinRating = 0
	MaxRating = 10
	// MaxTotal is the nominal maximum of a per-judge total.
	MaxTotal = 40.0
)

// Category names a judged dimension.
type Category string

// Judged categories.
const (
	CategoryInnovation         Category = "innovation"
	CategoryTechnicalExecution Category = "technical_execution"
	CategoryMarketPotential    Category = "market_potential"
	CategoryUserExperience     Category = "user_experience"
)

// Categories lists the judged dimensions in canonical order.
var Categories = []Category{
	CategoryInnovation,
	CategoryTechnicalExecution,
	CategoryMarketPotential,
	CategoryUserExperience,
}

// Ratings holds one integer rating per category.
type Ratings struct {
	Innovation         int `json:"innovation"`
	TechnicalExecution int `json:"technical_execution"`
	MarketPotential    int `json:"market_potential"`
	UserExperience     int `json:"user_experience"`
}

// Get returns the rating for c.
func (r Ratings) Get(c Category) int {
	switch c {
	case CategoryInnovation:
		return r.Innovation
	case CategoryTechnicalExecution:
		return r.TechnicalExecution
	case CategoryMarketPotential:
		return r.MarketPotential
	case CategoryUserExperience:
		return r.UserExperience
	}
	return 0
}

// Round1Notes is the commentary attached to a round-1 score.
type Round1Notes struct {
	Innovation         string `json:"innovation,omitempty"`
	TechnicalExecution string `json:"technical_execution,omitempty"`
	MarketPotential    string `json:"market_potential,omitempty"`
	UserExperience     string `json:"user_experience,omitempty"`
	Overall            string `json:"overall,omitempty"`
}

// RevisionType is the direction of a round-2 revision.
type RevisionType string

// Revision directions.
const (
	RevisionIncrease RevisionType = "increase"
	RevisionDecrease RevisionType = "decrease"
	RevisionNone     RevisionType = "none"
)

// Influence describes how much community feedback moved a judge.
type Influence string

// Influence levels.
const (
	InfluenceNone  Influence = "none"
	InfluenceMinor Influence = "minor"
	InfluenceMajor Influence = "major"
)

// Confidence is a judge's self-reported confidence.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Revision is the numeric part of a round-2 score.
type Revision struct {
	Type       RevisionType `json:"type"`
	Adjustment float64      `json:"adjustment"`
	NewScore   float64      `json:"new_score"`
	// Requested is the signed adjustment before the bound was applied. It is
	// re-applied when the round-1 total changes.
	Requested float64 `json:"requested_adjustment,omitempty"`
}

// Round2Notes is the commentary and revision attached to a round-2 score.
type Round2Notes struct {
	Revision           Revision   `json:"score_revision"`
	CommunityInfluence Influence  `json:"community_influence,omitempty"`
	Confidence         Confidence `json:"confidence,omitempty"`
	Reasoning          string     `json:"reasoning,omitempty"`
}

// JudgeScore is one judge's score for one submission in one round.
// Exactly one of Round1 or Round2 is set, matching Round.
type JudgeScore struct {
	SubmissionID  string       `json:"submission_id"`
	Judge         string       `json:"judge"`
	Round         Round        `json:"round"`
	Ratings       Ratings      `json:"ratings"`
	WeightedTotal float64      `json:"weighted_total"`
	Round1        *Round1Notes `json:"round1_notes,omitempty"`
	Round2        *Round2Notes `json:"round2_notes,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
