package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"slotbot/internal/config"
	"slotbot/internal/monitor"
	"slotbot/internal/watch"
	logx "slotbot/pkg/logx"
)

var (
	styleHeader      = lipgloss.NewStyle().Bold(true)
	styleFull        = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	styleAvailable   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	styleUnreachable = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// checkCmd runs one cycle against the configured targets and prints the
// result. Nothing is sent to Telegram.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one poll cycle and print the result",
	Long: `Fetch every configured target once and print what subscribers would see.

No Telegram connection is made and the token may be empty. The exit code is
0 even when targets are unreachable; failures show up in the output.

Example:
  slotbot check -c config.yaml`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("log-level", "WARN", "log level for fetch diagnostics (written to stderr)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Validate(cfg, false); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ws, _ := cfg.WatchSettings()

	targets := make([]watch.Target, 0, len(ws.Targets))
	for _, t := range ws.Targets {
		targets = append(targets, watch.Target{Name: t.Name, URL: t.URL})
	}
	reg, err := watch.NewRegistry(targets...)
	if err != nil {
		return err
	}
	checker := watch.NewChecker(watch.NewHTTPFetcher(ws.FetchTimeout, ws.UserAgent), ws.FullMarker, ws.SlotMarker)

	// No population and no dispatcher: the cycle always runs and sends nothing.
	eng := monitor.New(reg, checker, nil, nil, monitor.Options{
		Log: logx.NewWriter(cmd.ErrOrStderr(), level),
	})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := eng.RunCycle(ctx)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), *report)
	return nil
}

func printReport(w io.Writer, r watch.CycleReport) {
	fmt.Fprintln(w, styleHeader.Render(watch.VerboseHeader))
	for _, res := range r.Results {
		fmt.Fprintln(w, stateStyle(res.State).Render(res.Detail))
	}
	counts := r.Counts()
	fmt.Fprintf(w, "\n%d full, %d available, %d unreachable (took %s)\n",
		counts[watch.StateFull], counts[watch.StateAvailable], counts[watch.StateUnreachable],
		r.Duration.Round(time.Millisecond))
}

func stateStyle(s watch.State) lipgloss.Style {
	switch s {
	case watch.StateAvailable:
		return styleAvailable
	case watch.StateUnreachable:
		return styleUnreachable
	default:
		return styleFull
	}
}
