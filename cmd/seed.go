package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/M3-org/clanktank-sub000/internal/seed"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

var seedCfg = seed.DefaultConfig()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Drive a running server through a full judging round",
	Long: "seed creates submissions on a running server, scores them with every\n" +
		"roster judge, casts community votes and posts round-2 revisions, then\n" +
		"checks that the served leaderboard is consistently ordered.",
	RunE: runSeed,
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedCfg.BaseURL, "url", "", "base URL of the server (default derived from addr)")
	f.IntVarP(&seedCfg.Submissions, "submissions", "n", seedCfg.Submissions, "submissions to create")
	f.IntVar(&seedCfg.Votes, "votes", seedCfg.Votes, "votes per submission")
	f.IntVarP(&seedCfg.Workers, "workers", "w", seedCfg.Workers, "concurrent requests")
	f.DurationVar(&seedCfg.Timeout, "timeout", seedCfg.Timeout, "per-request timeout")
	f.StringSliceVar(&seedCfg.Categories, "categories", seedCfg.Categories, "categories assigned round-robin")
	f.BoolVar(&seedCfg.Revise, "revise", seedCfg.Revise, "post round-2 revisions")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	run := seedCfg
	if run.BaseURL == "" {
		run.BaseURL = baseURL(cfg.Addr)
	}
	_, err = seed.Run(ctx, run, log.Named("seed"))
	if err != nil {
		log.Error(ctx, "seed failed", logger.Error(err))
	}
	return err
}

// baseURL turns a listen address into a loopback URL.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
