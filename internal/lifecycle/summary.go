package lifecycle

import (
	"fmt"
	"time"

	"github.com/29m10/foodeasy-backend/internal/mealplan"
	"github.com/29m10/foodeasy-backend/internal/shared"
)

// Stage names the step of a per-record failure.
type Stage string

const (
	StageInactivate Stage = "inactivate"
	StageGenerate   Stage = "generate"
	StageInsert     Stage = "insert"
)

// Inactivation records a plan that was deactivated.
type Inactivation struct {
	PlanID  int64
	UserID  string
	EndDate time.Time
}

// Generation records a successor plan. NewPlanID is zero in dry runs.
type Generation struct {
	SourcePlanID int64
	NewPlanID    int64
	UserID       string
	OldEndDate   time.Time
	NewStartDate time.Time
	NewEndDate   time.Time
}

// RecordError is a per-record failure that did not stop the run.
type RecordError struct {
	PlanID int64
	UserID string
	Stage  Stage
	Err    error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s plan %d (user %s): %v", e.Stage, e.PlanID, e.UserID, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// Summary is the outcome of one run. Skipped counts generations not attempted
// because the user already has an active plan covering the successor window.
type Summary struct {
	RunID         string
	Today         time.Time
	DryRun        bool
	TotalActive   int
	Inactivated   int
	Generated     int
	Skipped       int
	Inactivations []Inactivation
	Generations   []Generation
	Errors        []RecordError
	Usage         shared.TokenUsage
	Duration      time.Duration
}

// HasErrors reports whether any record failed.
func (s Summary) HasErrors() bool {
	return len(s.Errors) > 0
}

func (s *Summary) addError(plan mealplan.MealPlan, stage Stage, err error) {
	s.Errors = append(s.Errors, RecordError{
		PlanID: plan.ID,
		UserID: plan.UserID,
		Stage:  stage,
		Err:    err,
	})
}
