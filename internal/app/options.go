package service

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithStore uses an already opened store. The caller keeps ownership and
// Stop does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithStoreDriver selects memory, sqlite or postgres and its DSN.
func WithStoreDriver(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		s.storeDSN = dsn
	}
}

// WithAutoMigrate toggles table creation when a SQL store opens.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Service) {
		s.autoMigrate = enabled
	}
}

// WithRoster sets the active judges and the roster version label.
func WithRoster(version string, judges []string) Option {
	return func(s *Service) {
		if len(judges) > 0 {
			s.judges = judges
		}
		if version != "" {
			s.rosterVersion = version
		}
	}
}

// WithJudgeWeights sets per-judge category weights.
func WithJudgeWeights(weights map[string]map[string]float64) Option {
	return func(s *Service) {
		s.judgeWeights = weights
	}
}

// WithRevisionBound sets the round-2 bound as a fraction of the round-1 total.
func WithRevisionBound(fraction float64) Option {
	return func(s *Service) {
		if fraction >= 0 {
			s.revisionBound = fraction
		}
	}
}

// WithMaxTokenWeight caps token vote weights. Zero disables the cap.
func WithMaxTokenWeight(limit float64) Option {
	return func(s *Service) {
		if limit >= 0 {
			s.maxTokenWeight = limit
		}
	}
}

// WithDedupeSize sets the size of the vote event id window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithQueueSize sets the capacity of the transition event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of publishing workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithNATS publishes transition events to a NATS server instead of the
// in-process channel.
func WithNATS(url string) Option {
	return func(s *Service) {
		s.natsURL = url
	}
}

// WithMessagePublisher publishes transition events to pub. It takes
// precedence over WithNATS.
func WithMessagePublisher(pub message.Publisher) Option {
	return func(s *Service) {
		s.messagePublisher = pub
	}
}

// WithTopic sets the transition event topic.
func WithTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithMaxPageSize caps leaderboard page sizes.
func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}
