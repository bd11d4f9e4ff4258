package synthesis

import (
	"errors"
	"fmt"

	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
)

var (
	// ErrInvalidRevision is returned for a malformed revision.
	ErrInvalidRevision = errors.New("invalid revision")
	// ErrNoRoundOneScore is returned when the judge has no round-1 row.
	ErrNoRoundOneScore = errors.New("no round-1 score for judge")
	// ErrNotRevisable is returned unless the submission is scored.
	ErrNotRevisable = fmt.Errorf("submission not open for round 2: %w", ledger.ErrInvalidTransition)
)
