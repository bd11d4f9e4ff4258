package ledger

import "errors"

// ErrInvalidTransition is returned for a status move outside the lifecycle
// graph. Precondition failures in other components wrap it.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInvalidSubmission is returned when an intake record cannot be accepted.
var ErrInvalidSubmission = errors.New("invalid submission")
