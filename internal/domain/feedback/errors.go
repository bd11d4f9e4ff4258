package feedback

import "errors"

var (
	// ErrInvalidVote is returned for a malformed vote.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrSubmissionClosed is returned for votes on a rejected submission.
	ErrSubmissionClosed = errors.New("submission closed to votes")
)
