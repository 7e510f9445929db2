package mealplan

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/29m10/foodeasy-backend/internal/supabase"
)

// defaultPageSize matches the PostgREST db-max-rows default on Supabase.
const defaultPageSize = 1000

// RESTRepository stores meal plans through the Supabase REST API.
type RESTRepository struct {
	client   *supabase.Client
	pageSize int
}

// NewRESTRepository creates a RESTRepository using an admin Supabase client.
func NewRESTRepository(client *supabase.Client) *RESTRepository {
	return &RESTRepository{client: client, pageSize: defaultPageSize}
}

type planRow struct {
	ID        int64  `json:"id,omitempty"`
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  bool   `json:"is_active"`
}

type detailRow struct {
	UserMealPlanID int64  `json:"user_meal_plan_id"`
	MealItemID     int64  `json:"meal_item_id"`
	MealDate       string `json:"meal_date"`
	MealType       string `json:"meal_type"`
	IsActive       bool   `json:"is_active"`
}

func (r planRow) toMealPlan() (MealPlan, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return MealPlan{}, fmt.Errorf("meal plan %d has invalid start_date %q: %w", r.ID, r.StartDate, err)
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return MealPlan{}, fmt.Errorf("meal plan %d has invalid end_date %q: %w", r.ID, r.EndDate, err)
	}
	return MealPlan{ID: r.ID, UserID: r.UserID, StartDate: start, EndDate: end, IsActive: r.IsActive}, nil
}

// FetchActivePlans returns every plan with is_active = true, reading as many
// pages as the server reports.
func (r *RESTRepository) FetchActivePlans(ctx context.Context) ([]MealPlan, error) {
	rows, err := supabase.SelectAll[planRow](ctx, r.client, "user_meal_plan", url.Values{
		"select":    {"id,user_id,start_date,end_date,is_active"},
		"is_active": {"eq.true"},
		"order":     {"id.asc"},
	}, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active meal plans: %w", err)
	}

	plans := make([]MealPlan, 0, len(rows))
	for _, row := range rows {
		plan, err := row.toMealPlan()
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// SetInactive flips is_active to false for a single plan.
func (r *RESTRepository) SetInactive(ctx context.Context, id int64) error {
	n, err := r.client.Update(ctx, "user_meal_plan", url.Values{
		"id":        {"eq." + strconv.FormatInt(id, 10)},
		"is_active": {"eq.true"},
	}, map[string]any{"is_active": false})
	if err != nil {
		return fmt.Errorf("failed to deactivate meal plan %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("deactivate meal plan %d: %w", id, ErrPlanNotFound)
	}
	return nil
}

// InsertPlan inserts the plan row and then its details.
// PostgREST offers no transaction across the two requests, so a failed details
// insert deactivates the freshly created plan instead of leaving it empty.
func (r *RESTRepository) InsertPlan(ctx context.Context, plan NewPlan) (int64, error) {
	var created []planRow
	err := r.client.Insert(ctx, "user_meal_plan", []planRow{{
		UserID:    plan.UserID,
		StartDate: FormatDate(plan.StartDate),
		EndDate:   FormatDate(plan.EndDate),
		IsActive:  true,
	}}, &created)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meal plan for user %s: %w", plan.UserID, err)
	}
	if len(created) == 0 {
		return 0, fmt.Errorf("insert meal plan for user %s: no row returned", plan.UserID)
	}
	id := created[0].ID

	details := plan.details()
	if len(details) == 0 {
		return id, nil
	}

	rows := make([]detailRow, 0, len(details))
	for _, d := range details {
		rows = append(rows, detailRow{
			UserMealPlanID: id,
			MealItemID:     d.MealItemID,
			MealDate:       FormatDate(d.MealDate),
			MealType:       string(d.MealType),
			IsActive:       true,
		})
	}
	if err := r.client.Insert(ctx, "user_meal_plan_details", rows, nil); err != nil {
		if rbErr := r.SetInactive(ctx, id); rbErr != nil {
			return 0, fmt.Errorf("failed to insert details for meal plan %d: %w (deactivating it also failed: %v)", id, err, rbErr)
		}
		return 0, fmt.Errorf("failed to insert details for meal plan %d: %w", id, err)
	}
	return id, nil
}

// ListActiveMealItems returns the active meal_items catalog.
func (r *RESTRepository) ListActiveMealItems(ctx context.Context) ([]MealItem, error) {
	items, err := supabase.SelectAll[MealItem](ctx, r.client, "meal_items", url.Values{
		"select":    {"id,name,is_breakfast,is_lunch,is_dinner,is_snacks"},
		"is_active": {"eq.true"},
		"order":     {"id.asc"},
	}, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meal items: %w", err)
	}
	return items, nil
}
