package synthesis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/domain/ledger"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/scores"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
)

func TestApply(t *testing.T) {
	Convey("Given a round-1 total of 20 and the default bound", t, func() {
		Convey("When the adjustment is inside the bound", func() {
			got, applied, clamped := synthesis.Apply(20, 3, synthesis.DefaultBound)

			Convey("Then it is applied as is", func() {
				So(got, ShouldEqual, 23.0)
				So(applied, ShouldEqual, 3.0)
				So(clamped, ShouldBeFalse)
			})
		})

		Convey("When the adjustment exceeds the bound", func() {
			up, upApplied, upClamped := synthesis.Apply(20, 50, synthesis.DefaultBound)
			down, downApplied, downClamped := synthesis.Apply(20, -50, synthesis.DefaultBound)

			Convey("Then it is clamped to plus or minus 20 percent", func() {
				So(up, ShouldEqual, 24.0)
				So(upApplied, ShouldEqual, 4.0)
				So(upClamped, ShouldBeTrue)
				So(down, ShouldEqual, 16.0)
				So(downApplied, ShouldEqual, -4.0)
				So(downClamped, ShouldBeTrue)
			})
		})
	})

	Convey("Given a total near the top of the scale", t, func() {
		got, _, clamped := synthesis.Apply(38, 5, synthesis.DefaultBound)

		Convey("Then the new score never exceeds 40", func() {
			So(got, ShouldEqual, 40.0)
			So(clamped, ShouldBeFalse)
		})
	})
}

func TestSigned(t *testing.T) {
	Convey("Given revision types", t, func() {
		Convey("Then the direction comes from the type", func() {
			So(synthesis.Signed(synthesis.Revision{Type: model.RevisionIncrease, Adjustment: -3}), ShouldEqual, 3.0)
			So(synthesis.Signed(synthesis.Revision{Type: model.RevisionDecrease, Adjustment: 3}), ShouldEqual, -3.0)
			So(synthesis.Signed(synthesis.Revision{Type: model.RevisionNone, Adjustment: 3}), ShouldEqual, 0.0)
		})
	})
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a submission with a round-1 score", t, func() {
		store := repository.NewMemoryStore()
		l := ledger.New(store)
		_, err := l.Create(ctx, model.Submission{ID: "s1"})
		So(err, ShouldBeNil)
		_, err = l.Transition(ctx, "s1", model.StatusResearched, "research")
		So(err, ShouldBeNil)

		sc := scores.New(store, store)
		_, err = sc.Submit(ctx, "s1", "aimarc", model.Ratings{Innovation: 8, TechnicalExecution: 7, MarketPotential: 9, UserExperience: 6}, nil)
		So(err, ShouldBeNil)
		_, err = sc.Submit(ctx, "s1", "aishaw", model.Ratings{Innovation: 5, TechnicalExecution: 5, MarketPotential: 5, UserExperience: 5}, nil)
		So(err, ShouldBeNil)

		e := synthesis.New(store, store)

		Convey("When it is not yet scored", func() {
			_, err := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 3})

			Convey("Then round 2 is refused", func() {
				So(errors.Is(err, synthesis.ErrNotRevisable), ShouldBeTrue)
				So(errors.Is(err, ledger.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When it is scored", func() {
			_, err := l.Transition(ctx, "s1", model.StatusScored, "judges")
			So(err, ShouldBeNil)

			Convey("And a judge raises their score within the bound", func() {
				res, err := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{
					Type: model.RevisionIncrease, Adjustment: 3,
					CommunityInfluence: model.InfluenceMinor, Confidence: model.ConfidenceHigh,
					Reasoning: "community liked the demo",
				})

				Convey("Then the new score is round 1 plus the adjustment", func() {
					So(err, ShouldBeNil)
					So(res.Clamped(), ShouldBeFalse)
					So(res.Score.WeightedTotal, ShouldEqual, 33.0)
					So(res.Score.Round2.Revision.NewScore, ShouldEqual, 33.0)
					So(res.Score.Ratings.Innovation, ShouldEqual, 8)

					stored, err := store.GetScore(ctx, "s1", "aimarc", model.RoundTwo)
					So(err, ShouldBeNil)
					So(stored.Round2.Confidence, ShouldEqual, model.ConfidenceHigh)
					So(stored.Round2.CommunityInfluence, ShouldEqual, model.InfluenceMinor)
				})
			})

			Convey("And a judge asks for far more than the bound", func() {
				res, err := e.Submit(ctx, "s1", "aishaw", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 50})

				Convey("Then the adjustment is clamped with a warning", func() {
					So(err, ShouldBeNil)
					So(res.Clamped(), ShouldBeTrue)
					So(res.Warnings, ShouldContain, synthesis.WarningRevisionOutOfBounds)
					So(res.RequestedAdjustment, ShouldEqual, 50.0)
					So(res.Score.WeightedTotal, ShouldEqual, 24.0)
					So(res.Score.Round2.Revision.Adjustment, ShouldEqual, 4.0)
				})
			})

			Convey("And a judge sends no change", func() {
				res, err := e.Submit(ctx, "s1", "aishaw", synthesis.Revision{Type: model.RevisionNone, Confidence: model.ConfidenceLow})
				again, err2 := e.Submit(ctx, "s1", "aishaw", synthesis.Revision{Type: model.RevisionNone, Confidence: model.ConfidenceLow})

				Convey("Then the round-1 total is kept and the row is written once", func() {
					So(err, ShouldBeNil)
					So(err2, ShouldBeNil)
					So(res.Score.WeightedTotal, ShouldEqual, 20.0)
					So(again.Score.WeightedTotal, ShouldEqual, 20.0)
					rows, _ := store.ListScores(ctx, "s1")
					So(len(rows), ShouldEqual, 3)
				})
			})

			Convey("And the judge never scored round 1", func() {
				_, err := e.Submit(ctx, "s1", "peepo", synthesis.Revision{Type: model.RevisionDecrease, Adjustment: 1})

				Convey("Then round 2 is refused", func() {
					So(errors.Is(err, synthesis.ErrNoRoundOneScore), ShouldBeTrue)
				})
			})

			Convey("And the revision is malformed", func() {
				_, errType := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{Type: "sideways"})
				_, errConf := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionNone, Confidence: "certain"})
				_, errInfl := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionNone, CommunityInfluence: "huge"})

				Convey("Then it is rejected", func() {
					So(errors.Is(errType, synthesis.ErrInvalidRevision), ShouldBeTrue)
					So(errors.Is(errConf, synthesis.ErrInvalidRevision), ShouldBeTrue)
					So(errors.Is(errInfl, synthesis.ErrInvalidRevision), ShouldBeTrue)
				})
			})

			Convey("And the judge is not on the roster", func() {
				_, err := e.Submit(ctx, "s1", "mallory", synthesis.Revision{Type: model.RevisionNone})

				Convey("Then it is rejected", func() {
					So(errors.Is(err, scores.ErrUnknownJudge), ShouldBeTrue)
				})
			})
		})
	})

	Convey("Given a tighter bound", t, func() {
		store := repository.NewMemoryStore()
		l := ledger.New(store)
		_, _ = l.Create(ctx, model.Submission{ID: "s1"})
		_, _ = l.Transition(ctx, "s1", model.StatusResearched, "")
		_, err := scores.New(store, store).Submit(ctx, "s1", "peepo", model.Ratings{Innovation: 10, TechnicalExecution: 10, MarketPotential: 10, UserExperience: 10}, nil)
		So(err, ShouldBeNil)
		_, _ = l.Transition(ctx, "s1", model.StatusScored, "")

		e := synthesis.New(store, store, synthesis.WithBound(0.05))
		res, err := e.Submit(ctx, "s1", "peepo", synthesis.Revision{Type: model.RevisionDecrease, Adjustment: 10})

		Convey("Then the clamp follows the configured fraction", func() {
			So(err, ShouldBeNil)
			So(res.Score.WeightedTotal, ShouldEqual, 38.0)
			So(res.Clamped(), ShouldBeTrue)
		})
	})
}

func TestRebase(t *testing.T) {
	ctx := context.Background()
	flat := func(r int) model.Ratings {
		return model.Ratings{Innovation: r, TechnicalExecution: r, MarketPotential: r, UserExperience: r}
	}

	Convey("Given a scored submission with a round-2 revision", t, func() {
		store := repository.NewMemoryStore()
		l := ledger.New(store)
		_, err := l.Create(ctx, model.Submission{ID: "s1"})
		So(err, ShouldBeNil)
		_, err = l.Transition(ctx, "s1", model.StatusResearched, "research")
		So(err, ShouldBeNil)

		e := synthesis.New(store, store)
		sc := scores.New(store, store, scores.WithRebaser(e))
		_, err = sc.Submit(ctx, "s1", "aimarc", flat(5), nil)
		So(err, ShouldBeNil)
		_, err = sc.Submit(ctx, "s1", "aishaw", flat(5), nil)
		So(err, ShouldBeNil)
		_, err = l.Transition(ctx, "s1", model.StatusScored, "judges")
		So(err, ShouldBeNil)

		res, err := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 4})
		So(err, ShouldBeNil)
		So(res.Score.WeightedTotal, ShouldEqual, 24.0)

		Convey("When the judge raises their round-1 score", func() {
			_, err := sc.Submit(ctx, "s1", "aimarc", flat(8), nil)
			So(err, ShouldBeNil)
			r2, err := store.GetScore(ctx, "s1", "aimarc", model.RoundTwo)
			So(err, ShouldBeNil)

			Convey("Then the round-2 total follows the new round-1 total", func() {
				So(r2.WeightedTotal, ShouldEqual, 36.0)
				So(r2.Round2.Revision.NewScore, ShouldEqual, 36.0)
				So(r2.Round2.Revision.Adjustment, ShouldEqual, 4.0)
				So(r2.Ratings, ShouldResemble, flat(8))
			})
		})

		Convey("When the judge rescores to the top of the scale", func() {
			_, err := sc.Submit(ctx, "s1", "aimarc", flat(10), nil)
			So(err, ShouldBeNil)
			r2, err := store.GetScore(ctx, "s1", "aimarc", model.RoundTwo)
			So(err, ShouldBeNil)

			Convey("Then the increase is clamped to 40 and never falls below round 1", func() {
				So(r2.WeightedTotal, ShouldEqual, 40.0)
			})
		})

		Convey("When a clamped revision meets a larger round-1 total", func() {
			res, err := e.Submit(ctx, "s1", "aishaw", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 50})
			So(err, ShouldBeNil)
			So(res.Score.WeightedTotal, ShouldEqual, 24.0)
			_, err = sc.Submit(ctx, "s1", "aishaw", model.Ratings{Innovation: 8, TechnicalExecution: 7, MarketPotential: 9, UserExperience: 6}, nil)
			So(err, ShouldBeNil)
			r2, err := store.GetScore(ctx, "s1", "aishaw", model.RoundTwo)
			So(err, ShouldBeNil)

			Convey("Then the original request is re-applied under the new bound", func() {
				So(r2.Round2.Revision.Requested, ShouldEqual, 50.0)
				So(r2.Round2.Revision.Adjustment, ShouldEqual, 6.0)
				So(r2.WeightedTotal, ShouldEqual, 36.0)
			})
		})

		Convey("When a judge without a round-2 row rescores", func() {
			_, err := sc.Submit(ctx, "s1", "aishaw", flat(7), nil)

			Convey("Then no round-2 row appears", func() {
				So(err, ShouldBeNil)
				_, err := store.GetScore(ctx, "s1", "aishaw", model.RoundTwo)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the same revision is sent again later", func() {
			before, _ := store.GetScore(ctx, "s1", "aimarc", model.RoundTwo)
			time.Sleep(2 * time.Millisecond)
			_, err := e.Submit(ctx, "s1", "aimarc", synthesis.Revision{Type: model.RevisionIncrease, Adjustment: 4})
			So(err, ShouldBeNil)
			after, _ := store.GetScore(ctx, "s1", "aimarc", model.RoundTwo)

			Convey("Then the stored row is unchanged", func() {
				So(after, ShouldResemble, before)
			})
		})
	})
}
