package service

import "errors"

var (
	// ErrNotStarted is returned by operations invoked before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidWeights is returned for a weight profile naming an unknown category.
	ErrInvalidWeights = errors.New("invalid judge weights")
)
