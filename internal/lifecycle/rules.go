package lifecycle

import (
	"time"

	"github.com/29m10/foodeasy-backend/internal/mealplan"
)

// GenerationLeadDays is how many days before a plan's end date its successor is generated.
const GenerationLeadDays = 2

// ShouldExpire reports whether the plan ended before today.
// A plan ending today is still current.
func ShouldExpire(plan mealplan.MealPlan, today time.Time) bool {
	return mealplan.Date(plan.EndDate).Before(mealplan.Date(today))
}

// ShouldGenerate reports whether today is the day to generate the plan's successor,
// i.e. today is exactly GenerationLeadDays before the plan's end date.
// Only an exact match triggers, so a missed day is not caught up later.
func ShouldGenerate(plan mealplan.MealPlan, today time.Time) bool {
	return mealplan.AddDays(plan.EndDate, -GenerationLeadDays).Equal(mealplan.Date(today))
}

// SuccessorWindow returns the dates of the plan that follows plan:
// it starts the day after plan ends and lasts numDays days.
func SuccessorWindow(plan mealplan.MealPlan, numDays int) (start, end time.Time) {
	start = mealplan.AddDays(plan.EndDate, 1)
	end = mealplan.AddDays(start, numDays-1)
	return start, end
}
