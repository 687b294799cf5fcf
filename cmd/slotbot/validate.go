package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slotbot/internal/config"
)

// validateCmd validates a config file without contacting Telegram.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Parse and validate a slotbot configuration file without starting the bot.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  slotbot validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("require-token", false, "fail when telegram.token is empty")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	requireToken, _ := cmd.Flags().GetBool("require-token")

	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Validate(cfg, requireToken); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ws, _ := cfg.WatchSettings()
	ds, _ := cfg.DispatchSettings()

	storageDriver := "none"
	if cfg.Storage != nil && cfg.Storage.Driver != "" {
		storageDriver = cfg.Storage.Driver
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Schedule:      %s\n", ws.Schedule)
	fmt.Fprintf(out, "  Fetch timeout: %s\n", ws.FetchTimeout)
	fmt.Fprintf(out, "  Targets:       %d\n", len(ws.Targets))
	for _, t := range ws.Targets {
		fmt.Fprintf(out, "    - %s (%s)\n", t.Name, t.URL)
	}
	fmt.Fprintf(out, "  Dispatch:      %d workers, %s send timeout\n", ds.Workers, ds.SendTimeout)
	fmt.Fprintf(out, "  Owners:        %d\n", len(cfg.Telegram.OwnerUserIDs))
	fmt.Fprintf(out, "  Storage:       %s\n", storageDriver)
	return nil
}
