package seed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/M3-org/clanktank-sub000/internal/adapters/http/api"
	service "github.com/M3-org/clanktank-sub000/internal/app"
	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	svc := service.New(
		service.WithLogger(logger.Nop()),
		service.WithRoster("seed-test", []string{"aimarc", "aishaw"}),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(svc).Router(ctx))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(ctx)
	})
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running scoring server", t, func() {
		srv := newTestServer(t)
		cfg := DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.Submissions = 6
		cfg.Votes = 3
		cfg.Workers = 3
		cfg.Timeout = 5 * time.Second

		Convey("A seeding run scores every submission and ranks it", func() {
			st, err := Run(context.Background(), cfg, logger.Nop())
			So(err, ShouldBeNil)
			So(st.Submissions, ShouldEqual, 6)
			So(st.Scores, ShouldEqual, 12)
			So(st.Revisions, ShouldEqual, 12)
			So(st.Votes, ShouldEqual, 18)
			So(st.Ranked, ShouldEqual, 6)
		})

		Convey("Revisions can be skipped", func() {
			cfg.Revise = false
			st, err := Run(context.Background(), cfg, logger.Nop())
			So(err, ShouldBeNil)
			So(st.Revisions, ShouldEqual, 0)
			So(st.Ranked, ShouldEqual, 6)
		})
	})

	Convey("Given a server that is not healthy", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		cfg := DefaultConfig()
		cfg.BaseURL = srv.URL

		Convey("Run fails before writing anything", func() {
			_, err := Run(context.Background(), cfg, logger.Nop())
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}

func TestCheckOrder(t *testing.T) {
	Convey("Given leaderboard entries", t, func() {
		entries := []model.LeaderboardEntry{
			{Rank: 1, SubmissionID: "a", Complete: true, FinalScore: 8},
			{Rank: 2, SubmissionID: "b", Complete: true, FinalScore: 6},
			{Rank: 3, SubmissionID: "c", Complete: false, FinalScore: 9},
		}

		Convey("A well ordered board passes", func() {
			So(checkOrder(entries), ShouldBeNil)
		})

		Convey("A gap in ranks is reported", func() {
			entries[2].Rank = 4
			So(errors.Is(checkOrder(entries), ErrInconsistentLeaderboard), ShouldBeTrue)
		})

		Convey("A higher score below a lower one is reported", func() {
			entries[1].FinalScore = 9
			So(errors.Is(checkOrder(entries), ErrInconsistentLeaderboard), ShouldBeTrue)
		})

		Convey("A complete entry below a partial one is reported", func() {
			entries[1], entries[2] = entries[2], entries[1]
			entries[1].Rank, entries[2].Rank = 2, 3
			So(errors.Is(checkOrder(entries), ErrInconsistentLeaderboard), ShouldBeTrue)
		})
	})
}

func TestClientRetriesRateLimited(t *testing.T) {
	Convey("Given a server that rate limits the first request", t, func() {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"x"}`))
		}))
		defer srv.Close()

		Convey("The post is retried and succeeds", func() {
			var out map[string]string
			err := newClient(srv.URL, time.Second).post(context.Background(), "/submissions", map[string]string{"name": "x"}, &out)
			So(err, ShouldBeNil)
			So(out["id"], ShouldEqual, "x")
			So(calls, ShouldEqual, 2)
		})
	})
}
