// Package worker drains transition events from the queue and hands them to
// a publisher.
package worker

import (
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// Option applies a configuration option to a Worker or Pool.
type Option func(*settings)

type settings struct {
	name string
	log  logger.Logger
}

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}
