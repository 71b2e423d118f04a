// Package cmd defines the tagrelay CLI: the supervisor and the crawl worker it spawns.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tagrelay",
		Short: "Relays hashtag posts from a live search feed to a webhook and an overlay.",
		Long: `tagrelay watches a social search feed for configured hashtags, keeps a
permanent record of what it has already relayed, and posts new matches to a
chat webhook and a local on-screen overlay.

Run "tagrelay serve" for the operator page; it starts and stops the worker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the .env settings file")

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tagrelay:", err)
		os.Exit(1)
	}
}
