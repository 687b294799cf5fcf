package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"slotbot/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	Long: `Start polling targets and serving Telegram commands.

The process stops on SIGINT or SIGTERM, or when a core component fails.
Edits to the config file are picked up live for the logging section and
the owner list; other sections are reported as needing a restart.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	stopTimeout, _ := cmd.Flags().GetDuration("stop-timeout")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("fatal start: %w", err)
	}

	reason := app.StopAppStop
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
