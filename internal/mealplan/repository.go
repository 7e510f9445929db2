package mealplan

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a Postgres-backed store for meal plans. It talks to the
// Supabase database directly through the connection pooler.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to databaseURL and verifies the connection.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const fetchActivePlansSQL = `
SELECT id, user_id::text, start_date, end_date, is_active
FROM user_meal_plan
WHERE is_active = true
ORDER BY id`

// FetchActivePlans returns every plan with is_active = true.
func (r *PostgresRepository) FetchActivePlans(ctx context.Context) ([]MealPlan, error) {
	rows, err := r.pool.Query(ctx, fetchActivePlansSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query active meal plans: %w", err)
	}

	plans, err := pgx.CollectRows(rows, pgx.RowToStructByPos[MealPlan])
	if err != nil {
		return nil, fmt.Errorf("failed to scan active meal plans: %w", err)
	}
	for i := range plans {
		plans[i].StartDate = Date(plans[i].StartDate)
		plans[i].EndDate = Date(plans[i].EndDate)
	}
	return plans, nil
}

// SetInactive flips is_active to false for a single plan.
func (r *PostgresRepository) SetInactive(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_meal_plan SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate meal plan %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate meal plan %d: %w", id, ErrPlanNotFound)
	}
	return nil
}

// InsertPlan writes the plan row and its details in one transaction and returns the new id.
func (r *PostgresRepository) InsertPlan(ctx context.Context, plan NewPlan) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO user_meal_plan (user_id, start_date, end_date, is_active)
		 VALUES ($1, $2, $3, true)
		 RETURNING id`,
		plan.UserID, plan.StartDate, plan.EndDate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meal plan for user %s: %w", plan.UserID, err)
	}

	details := plan.details()
	if len(details) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"user_meal_plan_details"},
			[]string{"user_meal_plan_id", "meal_item_id", "meal_date", "meal_type", "is_active"},
			pgx.CopyFromSlice(len(details), func(i int) ([]any, error) {
				d := details[i]
				return []any{id, d.MealItemID, d.MealDate, string(d.MealType), true}, nil
			}),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert details for meal plan %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit meal plan for user %s: %w", plan.UserID, err)
	}
	return id, nil
}

// ListActiveMealItems returns the active meal_items catalog.
func (r *PostgresRepository) ListActiveMealItems(ctx context.Context) ([]MealItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name,
		       COALESCE(is_breakfast, false), COALESCE(is_lunch, false),
		       COALESCE(is_dinner, false), COALESCE(is_snacks, false)
		FROM meal_items
		WHERE is_active = true
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meal items: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[MealItem])
	if err != nil {
		return nil, fmt.Errorf("failed to scan meal items: %w", err)
	}
	return items, nil
}
