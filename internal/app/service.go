// Package service wires the scoring core together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/M3-org/clanktank-sub000/internal/adapters/mq/publisher"
	eventqueue "github.com/M3-org/clanktank-sub000/internal/adapters/mq/queue"
	workerpool "github.com/M3-org/clanktank-sub000/internal/adapters/mq/worker"
	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/dedupe"
	"github.com/M3-org/clanktank-sub000/internal/domain/feedback"
	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/ranking"
	"github.com/M3-org/clanktank-sub000/internal/domain/scores"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

// Store drivers understood by Start.
const (
	DriverMemory   = "memory"
	DriverSQLite   = repository.DriverSQLite
	DriverPostgres = repository.DriverPostgres
)

// Service implements the API dependencies for the scoring core.
type Service struct {
	mu sync.RWMutex

	// Core components, built by Start.
	store      repository.Store
	ownsStore  bool
	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool
	publisher  *publisher.Publisher
	ledger     *ledger.Ledger
	scores     *scores.Store
	feedback   *feedback.Aggregator
	synthesis  *synthesis.Engine
	ranking    *ranking.Engine
	rosterInfo scores.Roster

	// Configuration
	storeDriver      string
	storeDSN         string
	autoMigrate      bool
	judges           []string
	rosterVersion    string
	judgeWeights     map[string]map[string]float64
	revisionBound    float64
	maxTokenWeight   float64
	dedupeSize       int
	queueSize        int
	workerCount      int
	natsURL          string
	messagePublisher message.Publisher
	topic            string
	maxPageSize      int

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:   DriverMemory,
		autoMigrate:   true,
		judges:        scores.DefaultJudges,
		rosterVersion: "v1",
		revisionBound: synthesis.DefaultBound,
		dedupeSize:    50_000,
		queueSize:     1024,
		workerCount:   2,
		topic:         publisher.TopicTransitioned,
		maxPageSize:   100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and builds every component. Calling Start twice is
// a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	log := s.logger

	weights, err := weightProfiles(s.judgeWeights)
	if err != nil {
		return err
	}

	if s.store == nil {
		store, err := openStore(ctx, s.storeDriver, s.storeDSN, s.autoMigrate)
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.storeDriver, err)
		}
		s.store = store
		s.ownsStore = true
	}

	pub := s.messagePublisher
	if pub == nil {
		if s.natsURL != "" {
			if pub, err = publisher.NewNATS(s.natsURL, log.Named("nats")); err != nil {
				_ = s.closeStore()
				return err
			}
		} else {
			pub = publisher.NewGoChannel(log.Named("gochannel"))
		}
	}
	s.publisher = publisher.New(pub, publisher.WithTopic(s.topic), publisher.WithLogger(log.Named("publisher")))

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithLogger(log.Named("notify-queue")),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.publisher, workerpool.WithLogger(log))
	// Workers outlive the start context; Stop drains them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.rosterInfo = scores.NewRoster(s.rosterVersion, s.judges)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	s.ledger = ledger.New(s.store,
		ledger.WithNotifier(s.queue),
		ledger.WithLogger(log.Named("ledger")),
	)
	s.synthesis = synthesis.New(s.store, s.store,
		synthesis.WithBound(s.revisionBound),
		synthesis.WithRoster(s.rosterInfo),
		synthesis.WithLogger(log.Named("synthesis")),
	)
	s.scores = scores.New(s.store, s.store,
		scores.WithRoster(s.rosterInfo),
		scores.WithWeightProfiles(weights),
		scores.WithRebaser(s.synthesis),
		scores.WithLogger(log.Named("scores")),
	)
	s.feedback = feedback.New(s.store, s.store,
		feedback.WithDeduper(s.deduper),
		feedback.WithMaxTokenWeight(s.maxTokenWeight),
		feedback.WithLogger(log.Named("feedback")),
	)
	s.ranking = ranking.New(s.store, s.store, s.feedback,
		ranking.WithRoster(s.rosterInfo),
		ranking.WithMaxPageSize(s.maxPageSize),
		ranking.WithLogger(log.Named("ranking")),
	)

	s.started = true
	s.startedAt = time.Now()
	log.Info(ctx, "scoring service started",
		logger.String("store", s.storeDriver),
		logger.String("roster_version", s.rosterInfo.Version),
		logger.Int("judges", s.rosterInfo.Size()),
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Bool("nats", s.natsURL != "" && s.messagePublisher == nil),
	)
	return nil
}

// Stop drains pending transition events and releases the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping scoring service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.closeStore(); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
	return errors.Join(errs...)
}

func (s *Service) closeStore() error {
	if !s.ownsStore || s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	s.ownsStore = false
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, driver, dsn string, autoMigrate bool) (repository.Store, error) {
	switch driver {
	case DriverMemory:
		return repository.NewMemoryStore(), nil
	case DriverSQLite, DriverPostgres:
		db, err := repository.OpenGorm(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore(ctx, db, repository.WithAutoMigrate(autoMigrate))
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// weightProfiles converts configured judge weights, rejecting unknown categories.
func weightProfiles(raw map[string]map[string]float64) (map[string]scores.Weights, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]scores.Weights, len(raw))
	for judge, byCategory := range raw {
		w := scores.Uniform()
		for name, v := range byCategory {
			c := model.Category(strings.ToLower(strings.TrimSpace(name)))
			if !slices.Contains(model.Categories, c) {
				return nil, fmt.Errorf("%w: %s: unknown category %q", ErrInvalidWeights, judge, name)
			}
			w[c] = v
		}
		out[judge] = w
	}
	return out, nil
}

// running returns nil once Start has completed.
func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// CreateSubmission accepts an intake record.
func (s *Service) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	if err := s.running(); err != nil {
		return model.Submission{}, err
	}
	return s.ledger.Create(ctx, sub)
}

// GetSubmission returns a submission and its transition history.
func (s *Service) GetSubmission(ctx context.Context, id string) (model.Submission, []model.HistoryRecord, error) {
	if err := s.running(); err != nil {
		return model.Submission{}, nil, err
	}
	sub, err := s.ledger.Get(ctx, id)
	if err != nil {
		return model.Submission{}, nil, err
	}
	history, err := s.ledger.History(ctx, id)
	if err != nil {
		return model.Submission{}, nil, err
	}
	return sub, history, nil
}

// Transition moves a submission along its lifecycle.
func (s *Service) Transition(ctx context.Context, id string, to model.Status, actor string) (ledger.Result, error) {
	if err := s.running(); err != nil {
		return ledger.Result{}, err
	}
	return s.ledger.Transition(ctx, id, to, actor)
}

// SubmitRoundOne upserts a judge's round-1 score.
func (s *Service) SubmitRoundOne(ctx context.Context, id, judge string, ratings model.Ratings, notes *model.Round1Notes) (model.JudgeScore, error) {
	if err := s.running(); err != nil {
		return model.JudgeScore{}, err
	}
	return s.scores.Submit(ctx, id, judge, ratings, notes)
}

// SubmitRevision applies a judge's round-2 revision.
func (s *Service) SubmitRevision(ctx context.Context, id, judge string, rev synthesis.Revision) (synthesis.Result, error) {
	if err := s.running(); err != nil {
		return synthesis.Result{}, err
	}
	return s.synthesis.Submit(ctx, id, judge, rev)
}

// SubmissionScores returns the per-judge breakdown of one submission.
func (s *Service) SubmissionScores(ctx context.Context, id string) (model.ScoreBreakdown, error) {
	if err := s.running(); err != nil {
		return model.ScoreBreakdown{}, err
	}
	return s.ranking.SubmissionScores(ctx, id)
}

// RecordVote ingests a community vote.
func (s *Service) RecordVote(ctx context.Context, v model.Vote) (model.VoteOutcome, error) {
	if err := s.running(); err != nil {
		return "", err
	}
	return s.feedback.Record(ctx, v)
}

// Votes returns the ingestion history of a submission.
func (s *Service) Votes(ctx context.Context, id string) ([]model.Vote, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.feedback.History(ctx, id)
}

// Leaderboard returns one ranked page.
func (s *Service) Leaderboard(ctx context.Context, q ranking.Query) (ranking.Page, error) {
	if err := s.running(); err != nil {
		return ranking.Page{}, err
	}
	return s.ranking.Leaderboard(ctx, q)
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"store":         s.storeDriver,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"revisionBound": s.revisionBound,
	}
	if !s.started {
		return stats
	}

	stats["uptimeSeconds"] = int(time.Since(s.startedAt).Seconds())
	stats["rosterVersion"] = s.rosterInfo.Version
	stats["judges"] = s.rosterInfo.Judges
	queueLen := s.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["seenVoteEvents"] = s.deduper.Size()
	metrics.UpdateNotifyQueueSize(queueLen)

	subs, err := s.ledger.List(ctx)
	if err != nil {
		s.logger.Warn(ctx, "stats: list submissions failed", logger.Error(err))
		return stats
	}
	byStatus := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		byStatus[st] = 0
	}
	for _, sub := range subs {
		byStatus[sub.Status]++
	}
	stats["submissions"] = len(subs)
	stats["byStatus"] = byStatus
	return stats
}
