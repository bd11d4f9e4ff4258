package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/M3-org/clanktank-sub000/internal/adapters/mq/publisher"
	service "github.com/M3-org/clanktank-sub000/internal/app"
	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/ranking"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

func startService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	svc := service.New(append([]service.Option{service.WithLogger(logger.Nop())}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	return svc
}

func advance(ctx context.Context, svc *service.Service, id string, to ...model.Status) {
	for _, st := range to {
		_, err := svc.Transition(ctx, id, st, "test")
		So(err, ShouldBeNil)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))

		Convey("Operations fail with ErrNotStarted", func() {
			_, err := svc.CreateSubmission(context.Background(), model.Submission{Name: "x"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Stats(context.Background())["started"], ShouldEqual, false)
		})

		Convey("Stop is a no-op", func() {
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given weights naming an unknown category", t, func() {
		svc := service.New(
			service.WithLogger(logger.Nop()),
			service.WithJudgeWeights(map[string]map[string]float64{"peepo": {"vibes": 2}}),
		)

		Convey("Start refuses them", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrInvalidWeights), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		svc := startService(t)
		ctx := context.Background()

		Convey("Start is idempotent and stats report the roster", func() {
			So(svc.Start(ctx), ShouldBeNil)
			_, err := svc.CreateSubmission(ctx, model.Submission{ID: "s1", Name: "One"})
			So(err, ShouldBeNil)

			stats := svc.Stats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["submissions"], ShouldEqual, 1)
			So(stats["rosterVersion"], ShouldEqual, "v1")
			So(stats["byStatus"].(map[model.Status]int)[model.StatusSubmitted], ShouldEqual, 1)
		})

		Convey("Stop marks the service stopped", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stats(ctx)["started"], ShouldEqual, false)
		})
	})
}

func TestService_Scenarios(t *testing.T) {
	Convey("Given a service with a single-judge roster", t, func() {
		ctx := context.Background()
		svc := startService(t, service.WithRoster("test", []string{"aimarc"}))
		_, err := svc.CreateSubmission(ctx, model.Submission{ID: "s1", Name: "One", Category: "defi"})
		So(err, ShouldBeNil)

		Convey("Scoring a submitted entry is refused", func() {
			_, err := svc.SubmitRoundOne(ctx, "s1", "aimarc", model.Ratings{Innovation: 8}, nil)
			So(errors.Is(err, ledger.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("A researched entry scored 8/7/9/6 contributes 7.5", func() {
			advance(ctx, svc, "s1", model.StatusResearched, model.StatusScored)
			score, err := svc.SubmitRoundOne(ctx, "s1", "aimarc",
				model.Ratings{Innovation: 8, TechnicalExecution: 7, MarketPotential: 9, UserExperience: 6}, nil)
			So(err, ShouldBeNil)
			So(score.WeightedTotal, ShouldEqual, 30)

			b, err := svc.SubmissionScores(ctx, "s1")
			So(err, ShouldBeNil)
			So(b.Entry.AIScore, ShouldEqual, 7.5)
			So(b.Entry.FinalScore, ShouldEqual, 7.5)

			Convey("And a +3 revision lifts the final score to 8.25", func() {
				res, err := svc.SubmitRevision(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 3})
				So(err, ShouldBeNil)
				So(res.Score.WeightedTotal, ShouldEqual, 33)
				So(res.Warnings, ShouldBeEmpty)

				b, err := svc.SubmissionScores(ctx, "s1")
				So(err, ShouldBeNil)
				So(b.Entry.FinalScore, ShouldEqual, 8.25)
				So(b.Entry.AIScore, ShouldEqual, 7.5)
			})
		})

		Convey("A +50 revision on a total of 20 is clamped to 24", func() {
			advance(ctx, svc, "s1", model.StatusResearched, model.StatusScored)
			_, err := svc.SubmitRoundOne(ctx, "s1", "aimarc",
				model.Ratings{Innovation: 5, TechnicalExecution: 5, MarketPotential: 5, UserExperience: 5}, nil)
			So(err, ShouldBeNil)

			res, err := svc.SubmitRevision(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 50})
			So(err, ShouldBeNil)
			So(res.Score.WeightedTotal, ShouldEqual, 24)
			So(res.Warnings, ShouldContain, synthesis.WarningRevisionOutOfBounds)
		})

		Convey("A round-1 rescore after an increase moves the round-2 total with it", func() {
			advance(ctx, svc, "s1", model.StatusResearched, model.StatusScored)
			_, err := svc.SubmitRoundOne(ctx, "s1", "aimarc",
				model.Ratings{Innovation: 5, TechnicalExecution: 5, MarketPotential: 5, UserExperience: 5}, nil)
			So(err, ShouldBeNil)
			_, err = svc.SubmitRevision(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 4})
			So(err, ShouldBeNil)

			_, err = svc.SubmitRoundOne(ctx, "s1", "aimarc",
				model.Ratings{Innovation: 10, TechnicalExecution: 10, MarketPotential: 10, UserExperience: 10}, nil)
			So(err, ShouldBeNil)

			b, err := svc.SubmissionScores(ctx, "s1")
			So(err, ShouldBeNil)
			So(b.Entry.AIScore, ShouldEqual, 10)
			So(b.Entry.FinalScore, ShouldEqual, 10)
			So(b.Judges[0].Round2Total, ShouldEqual, 40)
		})

		Convey("Only a voter's latest vote counts", func() {
			_, err := svc.CreateSubmission(ctx, model.Submission{ID: "s2", Name: "Two"})
			So(err, ShouldBeNil)
			base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

			out, err := svc.RecordVote(ctx, model.Vote{SubmissionID: "s1", VoterID: "a", Kind: model.VoteToken, Weight: 5, CastAt: base})
			So(err, ShouldBeNil)
			So(out, ShouldEqual, model.VoteCounted)
			out, err = svc.RecordVote(ctx, model.Vote{SubmissionID: "s1", VoterID: "a", Kind: model.VoteToken, Weight: 2, CastAt: base.Add(time.Minute)})
			So(err, ShouldBeNil)
			So(out, ShouldEqual, model.VoteReplaced)
			_, err = svc.RecordVote(ctx, model.Vote{SubmissionID: "s2", VoterID: "b", Kind: model.VoteToken, Weight: 4, CastAt: base})
			So(err, ShouldBeNil)

			for _, id := range []string{"s1", "s2"} {
				advance(ctx, svc, id, model.StatusResearched)
				_, err := svc.SubmitRoundOne(ctx, id, "aimarc", model.Ratings{Innovation: 5}, nil)
				So(err, ShouldBeNil)
			}
			b1, err := svc.SubmissionScores(ctx, "s1")
			So(err, ShouldBeNil)
			b2, err := svc.SubmissionScores(ctx, "s2")
			So(err, ShouldBeNil)
			So(b2.Entry.CommunityScore, ShouldEqual, 10)
			So(b1.Entry.CommunityScore, ShouldEqual, 5)

			history, err := svc.Votes(ctx, "s1")
			So(err, ShouldBeNil)
			So(history, ShouldHaveLength, 2)
		})
	})
}

func TestService_TieBreaks(t *testing.T) {
	Convey("Given four entries tied at a final score of 8.0", t, func() {
		ctx := context.Background()
		svc := startService(t, service.WithRoster("test", []string{"aimarc"}))
		eights := model.Ratings{Innovation: 8, TechnicalExecution: 8, MarketPotential: 8, UserExperience: 8}
		for _, id := range []string{"tie-a", "tie-b", "tie-c", "tie-d"} {
			_, err := svc.CreateSubmission(ctx, model.Submission{ID: id, Name: id})
			So(err, ShouldBeNil)
			advance(ctx, svc, id, model.StatusResearched)
			_, err = svc.SubmitRoundOne(ctx, id, "aimarc", eights, nil)
			So(err, ShouldBeNil)
		}
		for i, voter := range []string{"v1", "v2", "v3"} {
			_, err := svc.RecordVote(ctx, model.Vote{SubmissionID: "tie-d", VoterID: voter, Kind: model.VoteReaction})
			So(err, ShouldBeNil)
			if i == 0 {
				_, err = svc.RecordVote(ctx, model.Vote{SubmissionID: "tie-c", VoterID: voter, Kind: model.VoteReaction})
				So(err, ShouldBeNil)
			}
		}

		Convey("Community breaks the tie, then creation order", func() {
			page, err := svc.Leaderboard(ctx, ranking.Query{})
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 4)
			order := make([]string, 0, len(page.Entries))
			for _, e := range page.Entries {
				So(e.FinalScore, ShouldEqual, 8.0)
				order = append(order, e.SubmissionID)
			}
			So(order, ShouldResemble, []string{"tie-d", "tie-c", "tie-a", "tie-b"})
			So(page.Entries[0].Rank, ShouldEqual, 1)
			So(page.Entries[3].Rank, ShouldEqual, 4)
		})

		Convey("A rejected entry leaves the leaderboard", func() {
			advance(ctx, svc, "tie-d", model.StatusRejected)
			page, err := svc.Leaderboard(ctx, ranking.Query{})
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 3)
			So(page.Entries[0].SubmissionID, ShouldEqual, "tie-c")
		})
	})
}

func TestService_TransitionEvents(t *testing.T) {
	Convey("Given a service publishing to an in-process channel", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
		messages, err := pubsub.Subscribe(ctx, publisher.TopicTransitioned)
		So(err, ShouldBeNil)

		svc := startService(t, service.WithMessagePublisher(pubsub), service.WithWorkerCount(1))
		_, err = svc.CreateSubmission(ctx, model.Submission{ID: "s1", Name: "One"})
		So(err, ShouldBeNil)

		Convey("Every applied transition is published once", func() {
			advance(ctx, svc, "s1", model.StatusResearched, model.StatusScored)
			res, err := svc.Transition(ctx, "s1", model.StatusScored, "replay")
			So(err, ShouldBeNil)
			So(res.Applied, ShouldBeFalse)

			got := map[model.Status]model.TransitionEvent{}
			for len(got) < 2 {
				select {
				case msg := <-messages:
					ev, err := publisher.Decode(msg)
					So(err, ShouldBeNil)
					msg.Ack()
					got[ev.To] = ev
				case <-ctx.Done():
					t.Fatal("timed out waiting for transition events")
				}
			}
			So(got[model.StatusResearched].From, ShouldEqual, model.StatusSubmitted)
			So(got[model.StatusScored].From, ShouldEqual, model.StatusResearched)
			So(got[model.StatusScored].Actor, ShouldEqual, "test")

			select {
			case msg := <-messages:
				t.Fatalf("unexpected event %s", msg.Payload)
			case <-time.After(100 * time.Millisecond):
			}
		})
	})
}

func TestService_SQLiteStore(t *testing.T) {
	Convey("Given a service backed by a sqlite file", t, func() {
		ctx := context.Background()
		dsn := filepath.Join(t.TempDir(), "data", "scores.db")
		opts := []service.Option{
			service.WithLogger(logger.Nop()),
			service.WithStoreDriver(service.DriverSQLite, dsn),
			service.WithMessagePublisher(discardPublisher{}),
		}

		svc := service.New(opts...)
		So(svc.Start(ctx), ShouldBeNil)
		_, err := svc.CreateSubmission(ctx, model.Submission{ID: "s1", Name: "One"})
		So(err, ShouldBeNil)
		advance(ctx, svc, "s1", model.StatusResearched, model.StatusScored)
		ratings := model.Ratings{Innovation: 5, TechnicalExecution: 5, MarketPotential: 5, UserExperience: 5}
		_, err = svc.SubmitRoundOne(ctx, "s1", "aimarc", ratings, &model.Round1Notes{Overall: "ok"})
		So(err, ShouldBeNil)
		_, err = svc.SubmitRevision(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 50})
		So(err, ShouldBeNil)
		before, err := svc.SubmissionScores(ctx, "s1")
		So(err, ShouldBeNil)
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("State survives a restart", func() {
			again := service.New(opts...)
			So(again.Start(ctx), ShouldBeNil)
			defer func() { _ = again.Stop(ctx) }()

			sub, history, err := again.GetSubmission(ctx, "s1")
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusScored)
			So(history, ShouldHaveLength, 2)
		})

		Convey("An identical resubmission after a restart leaves the rows alone", func() {
			again := service.New(opts...)
			So(again.Start(ctx), ShouldBeNil)
			defer func() { _ = again.Stop(ctx) }()

			_, err := again.SubmitRoundOne(ctx, "s1", "aimarc", ratings, &model.Round1Notes{Overall: "ok"})
			So(err, ShouldBeNil)
			after, err := again.SubmissionScores(ctx, "s1")
			So(err, ShouldBeNil)
			So(after.Judges, ShouldResemble, before.Judges)
		})

		Convey("A rescore after a restart re-applies the stored request", func() {
			again := service.New(opts...)
			So(again.Start(ctx), ShouldBeNil)
			defer func() { _ = again.Stop(ctx) }()

			_, err := again.SubmitRoundOne(ctx, "s1", "aimarc",
				model.Ratings{Innovation: 8, TechnicalExecution: 7, MarketPotential: 9, UserExperience: 6}, nil)
			So(err, ShouldBeNil)
			after, err := again.SubmissionScores(ctx, "s1")
			So(err, ShouldBeNil)
			So(after.Judges[0].Round2Total, ShouldEqual, 36)
			So(after.Judges[0].Round2Notes.Revision.Requested, ShouldEqual, 50)
		})
	})
}

type discardPublisher struct{}

func (discardPublisher) Publish(string, ...*message.Message) error { return nil }
func (discardPublisher) Close() error                              { return nil }
