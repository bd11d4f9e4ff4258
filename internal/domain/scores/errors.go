package scores

import (
	"errors"
	"fmt"

	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
)

var (
	// ErrInvalidRating is returned when a category rating is outside [0,10].
	ErrInvalidRating = errors.New("invalid rating")
	// ErrUnknownJudge is returned for a judge outside the active roster.
	ErrUnknownJudge = errors.New("unknown judge")
	// ErrNotScorable is returned when the submission is not researched or scored.
	ErrNotScorable = fmt.Errorf("submission not scorable: %w", ledger.ErrInvalidTransition)
)
