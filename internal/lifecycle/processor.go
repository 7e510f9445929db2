// Package lifecycle deactivates expired meal plans and generates successors
// for plans that are about to end.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/29m10/foodeasy-backend/internal/mealplan"
	"github.com/29m10/foodeasy-backend/internal/planner"
	"github.com/29m10/foodeasy-backend/internal/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrFetchActivePlans marks the fatal failure to read the active plan set.
var ErrFetchActivePlans = errors.New("failed to fetch active meal plans")

// Store is the persistence the processor needs.
type Store interface {
	FetchActivePlans(ctx context.Context) ([]mealplan.MealPlan, error)
	SetInactive(ctx context.Context, id int64) error
	InsertPlan(ctx context.Context, plan mealplan.NewPlan) (int64, error)
}

// Generator produces the content of a successor plan.
type Generator interface {
	Generate(ctx context.Context, userID string, startDate time.Time, numDays int) (planner.PlanContent, error)
}

// UsageRecorder receives the token usage of every generation call.
type UsageRecorder interface {
	RecordMeta(meta shared.AgentMeta) error
}

// Options tune a Processor. The zero value is usable.
type Options struct {
	// PlanDays is the length of generated plans. Defaults to 7.
	PlanDays int
	// DryRun evaluates and reports decisions without writing or generating.
	DryRun bool
	// GenerationTimeout bounds each generation call when positive.
	GenerationTimeout time.Duration
	// Today overrides the run date. When zero it is derived from Now in Location.
	Today    time.Time
	Now      func() time.Time
	Location *time.Location
	// Usage, when set, is told about every generation's token usage.
	Usage UsageRecorder
	// RunID identifies the run in logs. A random UUID is used when empty.
	RunID string
}

// Processor applies the expiration and generation rules to all active plans.
type Processor struct {
	store     Store
	generator Generator
	logger    *zap.SugaredLogger
	opts      Options
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, generator Generator, logger *zap.SugaredLogger, opts Options) *Processor {
	if opts.PlanDays <= 0 {
		opts.PlanDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Processor{store: store, generator: generator, logger: logger, opts: opts}
}

// Run performs one pass over the active plans.
// The returned error is only non-nil for run-level failures; per-record
// failures are collected in Summary.Errors and processing continues.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	started := p.opts.Now()
	today := p.opts.Today
	if today.IsZero() {
		today = mealplan.Today(started, p.opts.Location)
	}
	today = mealplan.Date(today)

	runID := p.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := Summary{
		RunID:  runID,
		Today:  today,
		DryRun: p.opts.DryRun,
	}
	log := p.logger.With("run_id", summary.RunID)
	log.Infow("Starting meal plan lifecycle run", "today", mealplan.FormatDate(today), "dry_run", p.opts.DryRun)

	plans, err := p.store.FetchActivePlans(ctx)
	if err != nil {
		log.Errorw("Failed to fetch active meal plans", "error", err)
		return summary, fmt.Errorf("%w: %w", ErrFetchActivePlans, err)
	}
	summary.TotalActive = len(plans)
	log.Infow("Fetched active meal plans", "count", len(plans))

	covered := newCoverage(plans)
	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			summary.Duration = p.opts.Now().Sub(started)
			log.Errorw("Run interrupted", "error", err, "processed", summary.Inactivated+summary.Generated)
			return summary, fmt.Errorf("run interrupted: %w", err)
		}

		if ShouldExpire(plan, today) {
			p.expire(ctx, log, plan, &summary)
		}
		if ShouldGenerate(plan, today) {
			p.generate(ctx, log, plan, covered, &summary)
		}
	}

	summary.Duration = p.opts.Now().Sub(started)
	log.Infow("Meal plan lifecycle run complete",
		"total_active", summary.TotalActive,
		"inactivated", summary.Inactivated,
		"generated", summary.Generated,
		"skipped", summary.Skipped,
		"errors", len(summary.Errors),
		"duration", summary.Duration,
	)
	return summary, nil
}

func (p *Processor) expire(ctx context.Context, log *zap.SugaredLogger, plan mealplan.MealPlan, summary *Summary) {
	log = log.With("plan_id", plan.ID, "user_id", plan.UserID, "end_date", mealplan.FormatDate(plan.EndDate))

	if !p.opts.DryRun {
		if err := p.store.SetInactive(ctx, plan.ID); err != nil {
			log.Warnw("Failed to deactivate meal plan", "error", err)
			summary.addError(plan, StageInactivate, err)
			return
		}
	}

	summary.Inactivated++
	summary.Inactivations = append(summary.Inactivations, Inactivation{
		PlanID:  plan.ID,
		UserID:  plan.UserID,
		EndDate: plan.EndDate,
	})
	log.Infow("Deactivated expired meal plan")
}

func (p *Processor) generate(ctx context.Context, log *zap.SugaredLogger, plan mealplan.MealPlan, covered coverage, summary *Summary) {
	start, end := SuccessorWindow(plan, p.opts.PlanDays)
	log = log.With(
		"plan_id", plan.ID,
		"user_id", plan.UserID,
		"old_end_date", mealplan.FormatDate(plan.EndDate),
		"new_start_date", mealplan.FormatDate(start),
	)

	if covered.has(plan.UserID, start) {
		summary.Skipped++
		log.Infow("Successor meal plan already exists, skipping generation")
		return
	}

	gen := Generation{
		SourcePlanID: plan.ID,
		UserID:       plan.UserID,
		OldEndDate:   plan.EndDate,
		NewStartDate: start,
		NewEndDate:   end,
	}

	if p.opts.DryRun {
		covered.add(plan.UserID, start, end)
		summary.Generated++
		summary.Generations = append(summary.Generations, gen)
		log.Infow("Would generate successor meal plan")
		return
	}

	genCtx := ctx
	if p.opts.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.opts.GenerationTimeout)
		defer cancel()
	}

	content, err := p.generator.Generate(genCtx, plan.UserID, start, p.opts.PlanDays)
	p.recordUsage(log, content.Meta)
	summary.Usage = summary.Usage.Add(content.Meta.Usage)
	if err != nil {
		log.Warnw("Failed to generate successor meal plan", "error", err)
		summary.addError(plan, StageGenerate, err)
		return
	}

	newID, err := p.store.InsertPlan(ctx, mealplan.NewPlan{
		UserID:    plan.UserID,
		StartDate: start,
		EndDate:   end,
		Days:      content.Days,
	})
	if err != nil {
		log.Warnw("Failed to insert successor meal plan", "error", err)
		summary.addError(plan, StageInsert, err)
		return
	}

	gen.NewPlanID = newID
	covered.add(plan.UserID, start, end)
	summary.Generated++
	summary.Generations = append(summary.Generations, gen)
	log.Infow("Generated successor meal plan", "new_plan_id", newID, "latency", content.Meta.Latency)
}

func (p *Processor) recordUsage(log *zap.SugaredLogger, meta shared.AgentMeta) {
	if p.opts.Usage == nil || meta.AgentName == "" {
		return
	}
	if err := p.opts.Usage.RecordMeta(meta); err != nil {
		log.Warnw("Failed to record generation usage", "error", err)
	}
}

// coverage tracks the date ranges of each user's active plans.
type coverage map[string][][2]time.Time

func newCoverage(plans []mealplan.MealPlan) coverage {
	c := coverage{}
	for _, plan := range plans {
		c.add(plan.UserID, plan.StartDate, plan.EndDate)
	}
	return c
}

func (c coverage) add(userID string, start, end time.Time) {
	c[userID] = append(c[userID], [2]time.Time{mealplan.Date(start), mealplan.Date(end)})
}

func (c coverage) has(userID string, day time.Time) bool {
	day = mealplan.Date(day)
	for _, r := range c[userID] {
		if !day.Before(r[0]) && !day.After(r[1]) {
			return true
		}
	}
	return false
}
