package mealplan

import (
	"errors"
	"time"
)

// ErrPlanNotFound is returned when a write targets a plan that is missing or already inactive.
var ErrPlanNotFound = errors.New("meal plan not found or already inactive")

// MealPlan is a row of the user_meal_plan table.
// Dates are calendar dates held as midnight UTC.
type MealPlan struct {
	ID        int64
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
}

// MealType is the slot of the day a meal is planned for.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealSnacks    MealType = "snacks"
	MealDinner    MealType = "dinner"
)

// MealTypes lists the slots in the order they are served during the day.
var MealTypes = []MealType{MealBreakfast, MealLunch, MealSnacks, MealDinner}

// Valid reports whether t is one of the known meal slots.
func (t MealType) Valid() bool {
	switch t {
	case MealBreakfast, MealLunch, MealSnacks, MealDinner:
		return true
	}
	return false
}

// MealItem is an entry of the meal_items catalog.
type MealItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsBreakfast bool   `json:"is_breakfast"`
	IsLunch     bool   `json:"is_lunch"`
	IsDinner    bool   `json:"is_dinner"`
	IsSnacks    bool   `json:"is_snacks"`
}

// Serves reports whether the item may be planned for the given slot.
func (m MealItem) Serves(t MealType) bool {
	switch t {
	case MealBreakfast:
		return m.IsBreakfast
	case MealLunch:
		return m.IsLunch
	case MealDinner:
		return m.IsDinner
	case MealSnacks:
		return m.IsSnacks
	}
	return false
}

// PlannedMeal is a single meal inside a generated plan.
// MealItemID is zero when the meal was not matched to the catalog.
type PlannedMeal struct {
	MealType   MealType `json:"meal_type"`
	MealItemID int64    `json:"meal_item_id"`
	Name       string   `json:"name"`
}

// PlannedDay groups the meals of one calendar day.
type PlannedDay struct {
	Date  time.Time
	Meals []PlannedMeal
}

// NewPlan is a plan to be inserted as a new active row together with its details.
type NewPlan struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	Days      []PlannedDay
}

// planDetail is one user_meal_plan_details row.
type planDetail struct {
	MealItemID int64
	MealDate   time.Time
	MealType   MealType
}

// details flattens the catalog-backed meals of the plan. Meals without a
// catalog id have nothing to reference and are skipped.
func (p NewPlan) details() []planDetail {
	var out []planDetail
	for _, day := range p.Days {
		for _, meal := range day.Meals {
			if meal.MealItemID == 0 {
				continue
			}
			out = append(out, planDetail{
				MealItemID: meal.MealItemID,
				MealDate:   day.Date,
				MealType:   meal.MealType,
			})
		}
	}
	return out
}
