package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/M3-org/clanktank-sub000/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "clanktank",
	Short: "Hackathon scoring core",
	Long: "clanktank tracks hackathon submissions through their lifecycle, records\n" +
		"judge scores in two rounds, aggregates community votes and serves the\n" +
		"derived leaderboard over HTTP.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath == "" {
			return nil
		}
		return os.Setenv(config.EnvConfigFile, configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
