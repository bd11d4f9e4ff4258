package seed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/internal/domain/ranking"
)

const verifyPageSize = 100

// verify pages through the whole leaderboard and checks the ordering rules.
// It returns how many of the seeded ids were ranked.
func verify(ctx context.Context, c *client, ids []string) (int, error) {
	var entries []model.LeaderboardEntry
	for page := 1; ; page++ {
		var p ranking.Page
		q := "/leaderboard?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(verifyPageSize)
		if err := c.get(ctx, q, &p); err != nil {
			return 0, fmt.Errorf("read leaderboard: %w", err)
		}
		entries = append(entries, p.Entries...)
		if len(p.Entries) == 0 || len(entries) >= p.Total {
			break
		}
	}
	if err := checkOrder(entries); err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.SubmissionID] = struct{}{}
	}
	ranked := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			ranked++
		}
	}
	if ranked != len(ids) {
		return ranked, fmt.Errorf("%w: %d of %d seeded submissions ranked", ErrInconsistentLeaderboard, ranked, len(ids))
	}
	return ranked, nil
}

// checkOrder verifies dense ranks, complete entries ahead of partial ones
// and non-increasing final scores within each group.
func checkOrder(entries []model.LeaderboardEntry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrInconsistentLeaderboard, i+1, e.Rank)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if !prev.Complete && e.Complete {
			return fmt.Errorf("%w: complete %s ranked below partial %s", ErrInconsistentLeaderboard, e.SubmissionID, prev.SubmissionID)
		}
		if prev.Complete == e.Complete && e.FinalScore > prev.FinalScore {
			return fmt.Errorf("%w: %s (%.4f) ranked below %s (%.4f)",
				ErrInconsistentLeaderboard, e.SubmissionID, e.FinalScore, prev.SubmissionID, prev.FinalScore)
		}
	}
	return nil
}
