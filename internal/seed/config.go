package seed

import (
	"errors"
	"time"
)

var (
	// ErrUnexpectedStatus is returned when the server answers with a status the step does not accept.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrUnhealthy is returned when /healthz does not answer 200.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrInconsistentLeaderboard is returned when the served ordering breaks a ranking rule.
	ErrInconsistentLeaderboard = errors.New("inconsistent leaderboard")
)

// Config controls a seeding run.
type Config struct {
	BaseURL     string        // base URL of a running server
	Submissions int           // number of submissions to create
	Votes       int           // votes cast per submission
	Workers     int           // concurrent requests in flight
	Timeout     time.Duration // per-request timeout
	Categories  []string      // categories assigned round-robin
	Revise      bool          // post a round-2 revision for every judge
}

// DefaultConfig returns the settings used by the seed command.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9080",
		Submissions: 25,
		Votes:       10,
		Workers:     8,
		Timeout:     10 * time.Second,
		Categories:  []string{"defi", "gaming", "infra"},
		Revise:      true,
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Submissions int
	Scores      int
	Revisions   int
	Votes       int
	Ranked      int
	Duration    time.Duration
}
