package ledger

import (
	"time"

	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithNotifier sets the sink for applied transitions.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides how ids are minted for submissions created without one.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}
