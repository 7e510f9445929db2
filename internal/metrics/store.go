package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/29m10/foodeasy-backend/internal/metrics/metrics_db"
	"github.com/29m10/foodeasy-backend/internal/shared"
)

// timestampLayout keeps stored timestamps lexically ordered.
const timestampLayout = "2006-01-02 15:04:05"

// ExecutionMetric records metadata for a single generation call.
type ExecutionMetric struct {
	RunID            string
	AgentName        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Timestamp        time.Time
}

// RunRecord is the persisted outcome of one lifecycle run.
type RunRecord struct {
	RunID       string
	RunDate     string
	DryRun      bool
	TotalActive int
	Inactivated int
	Generated   int
	Skipped     int
	Errors      int
	TotalTokens int
	DurationMS  int64
	Timestamp   time.Time
}

// Store handles persistence of metrics to SQLite.
type Store struct {
	queries *metricsdb.Queries
	db      *sql.DB
	runID   string
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{
		queries: metricsdb.New(db),
		db:      db,
	}
}

// ForRun returns a Store that tags execution metrics with runID.
func (s *Store) ForRun(runID string) *Store {
	return &Store{queries: s.queries, db: s.db, runID: runID}
}

// Record saves a metric to the database.
func (s *Store) Record(m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if m.RunID == "" {
		m.RunID = s.runID
	}

	err := s.queries.InsertExecutionMetric(context.Background(), metricsdb.InsertExecutionMetricParams{
		RunID:            m.RunID,
		AgentName:        m.AgentName,
		Model:            m.Model,
		PromptTokens:     int64(m.PromptTokens),
		CompletionTokens: int64(m.CompletionTokens),
		LatencyMs:        m.LatencyMS,
		Timestamp:        formatTimestamp(ts),
	})
	if err != nil {
		return fmt.Errorf("failed to insert execution metric: %w", err)
	}
	return nil
}

// RecordMeta records metrics directly from shared.AgentMeta.
func (s *Store) RecordMeta(meta shared.AgentMeta) error {
	if meta.Usage.PromptTokens == 0 && meta.Usage.CompletionTokens == 0 {
		return nil
	}
	return s.Record(MapUsage(meta.AgentName, meta.Usage, meta.Latency))
}

// RecordRun saves the outcome of a lifecycle run.
func (s *Store) RecordRun(r RunRecord) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var dryRun int64
	if r.DryRun {
		dryRun = 1
	}

	err := s.queries.InsertLifecycleRun(context.Background(), metricsdb.InsertLifecycleRunParams{
		RunID:       r.RunID,
		RunDate:     r.RunDate,
		DryRun:      dryRun,
		TotalActive: int64(r.TotalActive),
		Inactivated: int64(r.Inactivated),
		Generated:   int64(r.Generated),
		Skipped:     int64(r.Skipped),
		Errors:      int64(r.Errors),
		TotalTokens: int64(r.TotalTokens),
		DurationMs:  r.DurationMS,
		Timestamp:   formatTimestamp(ts),
	})
	if err != nil {
		return fmt.Errorf("failed to insert lifecycle run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := s.queries.ListRecentRuns(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle runs: %w", err)
	}

	runs := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		ts, err := time.ParseInLocation(timestampLayout, row.Timestamp, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", row.Timestamp, err)
		}
		runs = append(runs, RunRecord{
			RunID:       row.RunID,
			RunDate:     row.RunDate,
			DryRun:      row.DryRun != 0,
			TotalActive: int(row.TotalActive),
			Inactivated: int(row.Inactivated),
			Generated:   int(row.Generated),
			Skipped:     int(row.Skipped),
			Errors:      int(row.Errors),
			TotalTokens: int(row.TotalTokens),
			DurationMS:  row.DurationMs,
			Timestamp:   ts,
		})
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalExecution  int
}

// GetDailyUsage retrieves usage for the last N days, newest day first.
func (s *Store) GetDailyUsage(days int) ([]DailyUsage, error) {
	since := formatTimestamp(time.Now().AddDate(0, 0, -days))
	rows, err := s.queries.GetDailyUsage(context.Background(), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}

	var results []DailyUsage
	for _, r := range rows {
		results = append(results, DailyUsage{
			Date:            r.Day,
			TotalPrompt:     int(r.TotalPrompt),
			TotalCompletion: int(r.TotalCompletion),
			TotalExecution:  int(r.Executions),
		})
	}
	return results, nil
}

// Cleanup removes records older than the specified number of days and
// returns how many rows were deleted.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	ctx := context.Background()
	threshold := formatTimestamp(time.Now().AddDate(0, 0, -olderThanDays))

	metricsDeleted, err := s.queries.DeleteExecutionMetricsBefore(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up execution metrics: %w", err)
	}
	runsDeleted, err := s.queries.DeleteLifecycleRunsBefore(ctx, threshold)
	if err != nil {
		return metricsDeleted, fmt.Errorf("failed to clean up lifecycle runs: %w", err)
	}
	return metricsDeleted + runsDeleted, nil
}

// MapUsage helper to convert shared.TokenUsage to ExecutionMetric.
func MapUsage(agentName string, usage shared.TokenUsage, latency time.Duration) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        agentName,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Timestamp:        time.Now(),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
