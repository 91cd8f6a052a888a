package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

// newScrapeCmd creates the 'scrape' subcommand.
// It runs one pipeline pass and exits; per-entry failures are reported but do not fail the command.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape pass",
		Long: `Fetches the feed once, labels every image not already stored and
uploads it. The command fails only when the feed itself cannot be fetched.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, err := appInstance.Scrape(cmd.Context())
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.Int("entries", len(report.Entries)),
		zap.Duration("duration", report.Duration()),
	}
	for _, outcome := range scrape.Outcomes {
		if n := report.Count(outcome); n > 0 {
			fields = append(fields, zap.Int(string(outcome), n))
		}
	}
	zap.L().Info("Scrape command finished.", fields...)

	out := cmd.OutOrStdout()
	for _, outcome := range scrape.Outcomes {
		if n := report.Count(outcome); n > 0 {
			fmt.Fprintf(out, "%s: %d\n", outcome, n)
		}
	}
	return nil
}
