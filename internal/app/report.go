package app

import (
	"fmt"
	"io"

	"github.com/29m10/foodeasy-backend/internal/metrics"
)

// PrintMetricsReport writes recent token usage and runs from the metrics store.
func PrintMetricsReport(w io.Writer, store *metrics.Store, dbPath string, days int) error {
	usage, err := store.GetDailyUsage(days)
	if err != nil {
		return fmt.Errorf("failed to read daily usage: %w", err)
	}
	runs, err := store.RecentRuns(10)
	if err != nil {
		return fmt.Errorf("failed to read recent runs: %w", err)
	}

	fmt.Fprintf(w, "=== LLM USAGE (last %d days) ===\n", days)
	if len(usage) == 0 {
		fmt.Fprintln(w, "No data yet")
	}
	for _, d := range usage {
		fmt.Fprintf(w, "%s: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
	}

	fmt.Fprintln(w, "\n=== RECENT RUNS ===")
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
	}
	for _, r := range runs {
		dry := ""
		if r.DryRun {
			dry = " [dry run]"
		}
		fmt.Fprintf(w, "%s %s%s: %d active, %d deactivated, %d generated, %d errors\n",
			r.RunDate, r.RunID, dry, r.TotalActive, r.Inactivated, r.Generated, r.Errors)
	}

	fmt.Fprintf(w, "\nMetrics DB: %s (%s)\n", dbPath, metrics.FileSize(dbPath))
	return nil
}
