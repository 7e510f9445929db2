package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/29m10/foodeasy-backend/internal/config"
	"github.com/29m10/foodeasy-backend/internal/lifecycle"
	"github.com/29m10/foodeasy-backend/internal/mealplan"
	"github.com/29m10/foodeasy-backend/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exit statuses of the lifecycle command.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

// Notifier reports the outcome of a run.
type Notifier interface {
	NotifyRun(summary lifecycle.Summary, runErr error) error
}

// App holds the application's dependencies.
type App struct {
	cfg          *config.Config
	store        lifecycle.Store
	generator    lifecycle.Generator
	metricsStore *metrics.Store
	notifier     Notifier
	logger       *zap.SugaredLogger
	out          io.Writer
}

// NewApp creates and initializes a new App instance.
// metricsStore and notifier are optional.
func NewApp(
	cfg *config.Config,
	store lifecycle.Store,
	generator lifecycle.Generator,
	metricsStore *metrics.Store,
	notifier Notifier,
	logger *zap.SugaredLogger,
	out io.Writer,
) *App {
	return &App{
		cfg:          cfg,
		store:        store,
		generator:    generator,
		metricsStore: metricsStore,
		notifier:     notifier,
		logger:       logger,
		out:          out,
	}
}

// RunOptions are the per-invocation switches of the run command.
type RunOptions struct {
	DryRun bool
	// Today overrides the run date when not zero.
	Today time.Time
}

// RunLifecycle runs the processor once, records and reports the outcome and
// prints the summary.
func (a *App) RunLifecycle(ctx context.Context, opts RunOptions) (lifecycle.Summary, error) {
	runID := uuid.NewString()

	procOpts := lifecycle.Options{
		PlanDays:          a.cfg.PlanDays,
		DryRun:            opts.DryRun,
		GenerationTimeout: a.cfg.GenerationTimeout,
		Today:             opts.Today,
		Location:          a.cfg.Location,
		RunID:             runID,
	}
	if a.metricsStore != nil {
		procOpts.Usage = a.metricsStore.ForRun(runID)
	}

	processor := lifecycle.NewProcessor(a.store, a.generator, a.logger, procOpts)
	summary, runErr := processor.Run(ctx)

	a.recordRun(summary)
	if a.notifier != nil {
		if err := a.notifier.NotifyRun(summary, runErr); err != nil {
			a.logger.Warnw("Failed to send run notification", "run_id", runID, "error", err)
		}
	}

	if runErr != nil {
		return summary, runErr
	}
	PrintSummary(a.out, summary)
	return summary, nil
}

func (a *App) recordRun(summary lifecycle.Summary) {
	if a.metricsStore == nil {
		return
	}
	err := a.metricsStore.RecordRun(metrics.RunRecord{
		RunID:       summary.RunID,
		RunDate:     mealplan.FormatDate(summary.Today),
		DryRun:      summary.DryRun,
		TotalActive: summary.TotalActive,
		Inactivated: summary.Inactivated,
		Generated:   summary.Generated,
		Skipped:     summary.Skipped,
		Errors:      len(summary.Errors),
		TotalTokens: summary.Usage.TotalTokens,
		DurationMS:  summary.Duration.Milliseconds(),
	})
	if err != nil {
		a.logger.Warnw("Failed to record run metrics", "run_id", summary.RunID, "error", err)
	}
}

// ExitCode maps the outcome of a run to the process exit status.
func ExitCode(summary lifecycle.Summary, err error, failOnRecordErrors bool) int {
	if err != nil {
		return ExitFatal
	}
	if failOnRecordErrors && summary.HasErrors() {
		return ExitFatal
	}
	return ExitOK
}

// PrintSummary writes a human readable run summary.
func PrintSummary(w io.Writer, s lifecycle.Summary) {
	title := "MEAL PLAN LIFECYCLE"
	if s.DryRun {
		title += " (DRY RUN)"
	}
	fmt.Fprintf(w, "\n=== %s %s ===\n", title, mealplan.FormatDate(s.Today))
	fmt.Fprintf(w, "Run ID:       %s\n", s.RunID)
	fmt.Fprintf(w, "Active plans: %d\n", s.TotalActive)

	fmt.Fprintf(w, "Deactivated:  %d\n", s.Inactivated)
	for _, in := range s.Inactivations {
		fmt.Fprintf(w, "  - plan %d (user %s) ended %s\n", in.PlanID, in.UserID, mealplan.FormatDate(in.EndDate))
	}

	fmt.Fprintf(w, "Generated:    %d\n", s.Generated)
	for _, g := range s.Generations {
		fmt.Fprintf(w, "  - user %s: %s to %s", g.UserID, mealplan.FormatDate(g.NewStartDate), mealplan.FormatDate(g.NewEndDate))
		if g.NewPlanID != 0 {
			fmt.Fprintf(w, " (plan %d)", g.NewPlanID)
		}
		fmt.Fprintf(w, " after plan %d\n", g.SourcePlanID)
	}

	if s.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:      %d\n", s.Skipped)
	}

	fmt.Fprintf(w, "Errors:       %d\n", len(s.Errors))
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  - %s\n", e.Error())
	}

	if s.Usage.TotalTokens > 0 {
		fmt.Fprintf(w, "Tokens:       %d\n", s.Usage.TotalTokens)
	}
	fmt.Fprintf(w, "Duration:     %s\n", s.Duration.Round(time.Millisecond))
}
