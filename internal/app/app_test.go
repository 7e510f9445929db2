package app

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/29m10/foodeasy-backend/internal/config"
	"github.com/29m10/foodeasy-backend/internal/database"
	"github.com/29m10/foodeasy-backend/internal/lifecycle"
	"github.com/29m10/foodeasy-backend/internal/mealplan"
	"github.com/29m10/foodeasy-backend/internal/metrics"
	"github.com/29m10/foodeasy-backend/internal/planner"
	"github.com/29m10/foodeasy-backend/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubStore struct {
	plans    []mealplan.MealPlan
	fetchErr error
	inactive []int64
	nextID   int64
	newPlans []mealplan.NewPlan
}

func (s *stubStore) FetchActivePlans(ctx context.Context) ([]mealplan.MealPlan, error) {
	return s.plans, s.fetchErr
}

func (s *stubStore) SetInactive(ctx context.Context, id int64) error {
	s.inactive = append(s.inactive, id)
	return nil
}

func (s *stubStore) InsertPlan(ctx context.Context, plan mealplan.NewPlan) (int64, error) {
	s.nextID++
	s.newPlans = append(s.newPlans, plan)
	return s.nextID, nil
}

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(ctx context.Context, userID string, start time.Time, numDays int) (planner.PlanContent, error) {
	meta := shared.AgentMeta{
		AgentName: "PlanGenerator",
		Usage:     shared.TokenUsage{PromptTokens: 900, CompletionTokens: 300, TotalTokens: 1200, Model: "test-model"},
		Latency:   time.Second,
	}
	if g.err != nil {
		return planner.PlanContent{Meta: meta}, g.err
	}
	days := make([]mealplan.PlannedDay, numDays)
	for i := range days {
		days[i] = mealplan.PlannedDay{
			Date:  mealplan.AddDays(start, i),
			Meals: []mealplan.PlannedMeal{{MealType: mealplan.MealDinner, MealItemID: 3, Name: "Paneer Tikka"}},
		}
	}
	return planner.PlanContent{Days: days, Meta: meta}, nil
}

type recordingNotifier struct {
	summaries []lifecycle.Summary
	errs      []error
	fail      error
}

func (n *recordingNotifier) NotifyRun(summary lifecycle.Summary, runErr error) error {
	n.summaries = append(n.summaries, summary)
	n.errs = append(n.errs, runErr)
	return n.fail
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := mealplan.ParseDate(s)
	require.NoError(t, err)
	return d
}

func testConfig() *config.Config {
	return &config.Config{
		PlanDays:          7,
		Location:          time.UTC,
		GenerationTimeout: time.Minute,
	}
}

func newMetricsStore(t *testing.T) *metrics.Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"), nil)
	require.NoError(t, err)
	s := metrics.NewStore(db.SQL)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	store := &stubStore{
		nextID: 200,
		plans: []mealplan.MealPlan{
			{ID: 1, UserID: "42", StartDate: mustDate(t, "2024-01-01"), EndDate: mustDate(t, "2024-01-20"), IsActive: true},
			{ID: 2, UserID: "7", StartDate: mustDate(t, "2024-02-01"), EndDate: mustDate(t, "2024-02-07"), IsActive: true},
		},
	}
	metricsStore := newMetricsStore(t)
	notifier := &recordingNotifier{fail: errors.New("telegram down")}
	var out bytes.Buffer

	a := NewApp(testConfig(), store, &stubGenerator{}, metricsStore, notifier, zaptest.NewLogger(t).Sugar(), &out)
	summary, err := a.RunLifecycle(context.Background(), RunOptions{Today: mustDate(t, "2024-02-05")})
	require.NoError(t, err, "notification failures do not fail the run")

	assert.Equal(t, 1, summary.Inactivated)
	assert.Equal(t, 1, summary.Generated)
	assert.Equal(t, []int64{1}, store.inactive)
	require.Len(t, store.newPlans, 1)
	assert.Equal(t, mustDate(t, "2024-02-08"), store.newPlans[0].StartDate)
	assert.Equal(t, mustDate(t, "2024-02-14"), store.newPlans[0].EndDate)

	printed := out.String()
	assert.Contains(t, printed, "=== MEAL PLAN LIFECYCLE 2024-02-05 ===")
	assert.Contains(t, printed, "  - plan 1 (user 42) ended 2024-01-20")
	assert.Contains(t, printed, "  - user 7: 2024-02-08 to 2024-02-14 (plan 201) after plan 2")
	assert.Contains(t, printed, "Errors:       0")
	assert.Contains(t, printed, "Tokens:       1200")

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, summary.RunID, notifier.summaries[0].RunID)
	assert.NoError(t, notifier.errs[0])

	runs, err := metricsStore.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, "2024-02-05", runs[0].RunDate)
	assert.Equal(t, 1200, runs[0].TotalTokens)

	usage, err := metricsStore.GetDailyUsage(1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].TotalExecution)

	var report bytes.Buffer
	require.NoError(t, PrintMetricsReport(&report, metricsStore, "missing.db", 7))
	assert.Contains(t, report.String(), "2024-02-05 "+summary.RunID+": 2 active, 1 deactivated, 1 generated, 0 errors")
	assert.Contains(t, report.String(), "1200 tokens (1 execs)")
}

func TestRunLifecycle_FetchFailure(t *testing.T) {
	store := &stubStore{fetchErr: errors.New("connection refused")}
	notifier := &recordingNotifier{}
	var out bytes.Buffer

	a := NewApp(testConfig(), store, &stubGenerator{}, nil, notifier, zaptest.NewLogger(t).Sugar(), &out)
	summary, err := a.RunLifecycle(context.Background(), RunOptions{Today: mustDate(t, "2024-02-05")})

	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrFetchActivePlans)
	assert.Empty(t, out.String(), "no summary is claimed for a failed run")
	require.Len(t, notifier.errs, 1)
	assert.Error(t, notifier.errs[0])
	assert.Equal(t, ExitFatal, ExitCode(summary, err, false))
}

func TestRunLifecycle_DryRun(t *testing.T) {
	store := &stubStore{
		plans: []mealplan.MealPlan{
			{ID: 2, UserID: "7", StartDate: mustDate(t, "2024-02-01"), EndDate: mustDate(t, "2024-02-07"), IsActive: true},
		},
	}
	var out bytes.Buffer

	a := NewApp(testConfig(), store, &stubGenerator{}, nil, nil, zaptest.NewLogger(t).Sugar(), &out)
	summary, err := a.RunLifecycle(context.Background(), RunOptions{DryRun: true, Today: mustDate(t, "2024-02-05")})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Generated)
	assert.Empty(t, store.newPlans)
	assert.Contains(t, out.String(), "(DRY RUN)")
	assert.Contains(t, out.String(), "  - user 7: 2024-02-08 to 2024-02-14 after plan 2")
}

func TestExitCode(t *testing.T) {
	withErrors := lifecycle.Summary{Errors: []lifecycle.RecordError{{PlanID: 1, Stage: lifecycle.StageGenerate, Err: errors.New("x")}}}

	tests := []struct {
		name     string
		summary  lifecycle.Summary
		err      error
		failFlag bool
		want     int
	}{
		{"Clean", lifecycle.Summary{}, nil, false, ExitOK},
		{"RecordErrorsTolerated", withErrors, nil, false, ExitOK},
		{"RecordErrorsFail", withErrors, nil, true, ExitFatal},
		{"CleanWithFailFlag", lifecycle.Summary{}, nil, true, ExitOK},
		{"Fatal", lifecycle.Summary{}, lifecycle.ErrFetchActivePlans, false, ExitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.summary, tt.err, tt.failFlag))
		})
	}
}
