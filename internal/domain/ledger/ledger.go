// Package ledger owns the submission lifecycle: the status graph, the
// append-only transition history and the transition events fed to
// downstream consumers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
	"github.com/M3-org/clanktank-sub000/pkg/metrics"
)

// graph lists the forward moves. Rejection is handled separately.
var graph = map[model.Status]model.Status{
	model.StatusSubmitted:  model.StatusResearched,
	model.StatusResearched: model.StatusScored,
	model.StatusScored:     model.StatusPublished,
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to model.Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == model.StatusRejected {
		return true
	}
	return graph[from] == to
}

// Notifier receives applied transitions. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, ev model.TransitionEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.TransitionEvent) {}

// Ledger is the only writer of submission status.
type Ledger struct {
	store    repository.SubmissionStore
	notifier Notifier
	log      logger.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Ledger over store.
func New(store repository.SubmissionStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		notifier: nopNotifier{},
		log:      logger.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result describes the outcome of a Transition call.
type Result struct {
	Submission model.Submission
	// Applied is false when the submission was already in the target state.
	Applied bool
}

// Create accepts an intake record in status submitted. An empty id is
// replaced with a generated one.
func (l *Ledger) Create(ctx context.Context, s model.Submission) (model.Submission, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		s.ID = l.newID()
	}
	if strings.ContainsAny(s.ID, "/?#") {
		return model.Submission{}, fmt.Errorf("id %q: %w", s.ID, ErrInvalidSubmission)
	}
	now := l.now().UTC()
	s.Status = model.StatusSubmitted
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := l.store.CreateSubmission(ctx, s); err != nil {
		return model.Submission{}, err
	}
	metrics.RecordSubmissionCreated()
	l.log.Info(ctx, "submission created",
		logger.String("submission_id", s.ID),
		logger.String("category", s.Category),
	)
	return s, nil
}

// Transition moves submission id to the target status. Requesting the
// current status is a no-op. Concurrent callers race on a compare-and-set of
// the status they read; the loser re-reads and either observes the no-op or
// gets ErrInvalidTransition.
func (l *Ledger) Transition(ctx context.Context, id string, to model.Status, actor string) (Result, error) {
	if !to.Valid() {
		return Result{}, fmt.Errorf("unknown status %q: %w", to, ErrInvalidTransition)
	}

	cur, err := l.store.GetSubmission(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if cur.Status == to {
		return Result{Submission: cur}, nil
	}
	if !CanTransition(cur.Status, to) {
		return Result{Submission: cur}, l.refuse(ctx, cur, to)
	}

	at := l.now().UTC()
	rec := model.HistoryRecord{SubmissionID: id, From: cur.Status, To: to, Actor: actor, At: at}
	err = l.store.CompareAndSetStatus(ctx, id, cur.Status, to, rec)
	if errors.Is(err, repository.ErrStatusConflict) {
		latest, gerr := l.store.GetSubmission(ctx, id)
		if gerr != nil {
			return Result{}, gerr
		}
		if latest.Status == to {
			return Result{Submission: latest}, nil
		}
		return Result{Submission: latest}, l.refuse(ctx, latest, to)
	}
	if err != nil {
		return Result{}, err
	}

	cur.Status = to
	cur.UpdatedAt = at
	metrics.RecordTransition(rec.From.String(), rec.To.String())
	l.log.Info(ctx, "transition applied",
		logger.String("submission_id", id),
		logger.String("from", rec.From.String()),
		logger.String("to", rec.To.String()),
		logger.String("actor", actor),
	)
	l.notifier.Notify(ctx, model.TransitionEvent(rec))
	return Result{Submission: cur, Applied: true}, nil
}

func (l *Ledger) refuse(ctx context.Context, cur model.Submission, to model.Status) error {
	metrics.RecordTransitionRejected(cur.Status.String(), to.String())
	l.log.Debug(ctx, "transition refused",
		logger.String("submission_id", cur.ID),
		logger.String("from", cur.Status.String()),
		logger.String("to", to.String()),
	)
	return fmt.Errorf("%s -> %s: %w", cur.Status, to, ErrInvalidTransition)
}

// Get returns one submission.
func (l *Ledger) Get(ctx context.Context, id string) (model.Submission, error) {
	return l.store.GetSubmission(ctx, id)
}

// History returns the applied transitions of id, oldest first.
func (l *Ledger) History(ctx context.Context, id string) ([]model.HistoryRecord, error) {
	return l.store.History(ctx, id)
}

// List returns every submission ordered by creation time.
func (l *Ledger) List(ctx context.Context) ([]model.Submission, error) {
	return l.store.ListSubmissions(ctx)
}
