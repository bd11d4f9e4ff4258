// Package seed drives a running scoring server through a full hackathon
// round over its HTTP API and checks the leaderboard it serves afterwards.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/synthesis"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

const actor = "seed"

type statsResponse struct {
	Judges        []string `json:"judges"`
	RosterVersion string   `json:"rosterVersion"`
}

type roundOneBody struct {
	Judge   string        `json:"judge"`
	Ratings model.Ratings `json:"ratings"`
}

type revisionBody struct {
	Judge string `json:"judge"`
	synthesis.Revision
}

type voteBody struct {
	VoterID string         `json:"voter_id"`
	Kind    model.VoteKind `json:"kind"`
	Weight  float64        `json:"weight,omitempty"`
	EventID string         `json:"event_id"`
}

// Run seeds submissions, scores and votes, then verifies the leaderboard.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Stats, error) {
	start := time.Now()
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "seeding",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("votes", cfg.Votes),
		logger.Int("workers", cfg.Workers))

	var health map[string]string
	if err := c.get(ctx, "/healthz", &health); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	var info statsResponse
	if err := c.get(ctx, "/stats", &info); err != nil {
		return Stats{}, fmt.Errorf("read roster: %w", err)
	}
	log.Info(ctx, "roster", logger.String("version", info.RosterVersion), logger.Int("judges", len(info.Judges)))

	ids := make([]string, cfg.Submissions)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	st := Stats{Submissions: len(ids)}
	scored := make([]int, len(ids))
	revised := make([]int, len(ids))
	voted := make([]int, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, id := range ids {
		category := ""
		if len(cfg.Categories) > 0 {
			category = cfg.Categories[i%len(cfg.Categories)]
		}
		g.Go(func() error {
			n, r, v, err := seedOne(gctx, c, cfg, id, category, info.Judges)
			scored[i], revised[i], voted[i] = n, r, v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	for i := range ids {
		st.Scores += scored[i]
		st.Revisions += revised[i]
		st.Votes += voted[i]
	}

	ranked, err := verify(ctx, c, ids)
	st.Ranked = ranked
	st.Duration = time.Since(start)
	if err != nil {
		return st, err
	}

	log.Info(ctx, "seed complete",
		logger.Int("scores", st.Scores),
		logger.Int("revisions", st.Revisions),
		logger.Int("votes", st.Votes),
		logger.Int("ranked", st.Ranked),
		logger.Duration("duration", st.Duration))
	return st, nil
}

// seedOne walks one submission from intake to scored and casts its votes.
func seedOne(ctx context.Context, c *client, cfg Config, id, category string, judges []string) (scores, revisions, votes int, err error) {
	path := "/submissions/" + url.PathEscape(id)

	if err = c.post(ctx, "/submissions", map[string]string{
		"id":       id,
		"name":     "Project " + id[:8],
		"category": category,
	}, nil); err != nil {
		return
	}
	if err = c.post(ctx, path+"/transitions", transition(model.StatusResearched), nil); err != nil {
		return
	}
	for _, judge := range judges {
		if err = c.post(ctx, path+"/scores", roundOneBody{Judge: judge, Ratings: randomRatings()}, nil); err != nil {
			return
		}
		scores++
	}
	if err = c.post(ctx, path+"/transitions", transition(model.StatusScored), nil); err != nil {
		return
	}

	for range cfg.Votes {
		if err = c.post(ctx, path+"/votes", randomVote(), nil); err != nil {
			return
		}
		votes++
	}

	if !cfg.Revise {
		return
	}
	for _, judge := range judges {
		if err = c.post(ctx, path+"/revisions", revisionBody{Judge: judge, Revision: randomRevision()}, nil); err != nil {
			return
		}
		revisions++
	}
	return
}

func transition(to model.Status) map[string]string {
	return map[string]string{"to": string(to), "actor": actor}
}

func randomRatings() model.Ratings {
	r := func() int { return model.MinRating + rand.IntN(model.MaxRating-model.MinRating+1) }
	return model.Ratings{
		Innovation:         r(),
		TechnicalExecution: r(),
		MarketPotential:    r(),
		UserExperience:     r(),
	}
}

func randomVote() voteBody {
	v := voteBody{VoterID: uuid.NewString(), Kind: model.VoteReaction, EventID: uuid.NewString()}
	if rand.IntN(4) == 0 {
		v.Kind = model.VoteToken
		v.Weight = float64(1 + rand.IntN(50))
	}
	return v
}

func randomRevision() synthesis.Revision {
	rev := synthesis.Revision{
		Type:               model.RevisionNone,
		CommunityInfluence: model.InfluenceMinor,
		Confidence:         model.ConfidenceMedium,
		Reasoning:          "seeded revision",
	}
	switch rand.IntN(3) {
	case 0:
		rev.Type = model.RevisionIncrease
		rev.Adjustment = float64(rand.IntN(4))
	case 1:
		rev.Type = model.RevisionDecrease
		rev.Adjustment = float64(rand.IntN(4))
	}
	return rev
}
