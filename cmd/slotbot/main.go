// Package main is the entry point for the slotbot CLI.
//
// Usage:
//
//	slotbot run -c config.yaml      # Start the bot
//	slotbot validate -c config.yaml # Validate configuration
//	slotbot check -c config.yaml    # Run one poll cycle locally
//	slotbot version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "slotbot",
	Short: "Watch TestFlight pages and notify Telegram subscribers",
	Long: `slotbot polls TestFlight join pages at a fixed interval and tells
subscribed Telegram users when a beta has an open slot.

Subscribers pick a tier with /notify and /test_mode:
  NORMAL  - a message only when a slot opens
  VERBOSE - a status update every cycle

Quick start:
  1. Create a config file (config.yaml)
  2. Run: slotbot validate -c config.yaml
  3. Run: slotbot run -c config.yaml`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "slotbot %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "./config.yaml", "path to config file (.yaml, .yml or .json)")
	rootCmd.AddCommand(versionCmd)
}
