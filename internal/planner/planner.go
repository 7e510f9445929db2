package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/29m10/foodeasy-backend/internal/llm"
	"github.com/29m10/foodeasy-backend/internal/mealplan"
	"github.com/29m10/foodeasy-backend/internal/shared"
)

const agentName = "PlanGenerator"

var (
	// ErrIncompletePlan is returned when the model planned fewer days than requested.
	ErrIncompletePlan = errors.New("generated plan does not cover the requested window")
	// ErrNoUsableMeals is returned when no generated meal survived validation.
	ErrNoUsableMeals = errors.New("generated plan has no usable meals")
	// ErrEmptyCatalog is returned when a catalog is configured but has no active items.
	ErrEmptyCatalog = errors.New("meal item catalog has no active items")
)

// CatalogReader gives the generator access to the meal items it may plan with.
type CatalogReader interface {
	ListActiveMealItems(ctx context.Context) ([]mealplan.MealItem, error)
}

// PlanContent is the structured result of one generation.
type PlanContent struct {
	Days []mealplan.PlannedDay
	Meta shared.AgentMeta
}

// Generator produces meal plans with an LLM.
type Generator struct {
	textGen llm.TextGenerator
	catalog CatalogReader

	items  []mealplan.MealItem
	loaded bool
}

// NewGenerator creates a Generator. catalog may be nil, in which case meals are
// planned as free text and are not linked to meal items.
func NewGenerator(textGen llm.TextGenerator, catalog CatalogReader) *Generator {
	return &Generator{textGen: textGen, catalog: catalog}
}

// Generate asks the model for a plan of numDays days starting at startDate.
func (g *Generator) Generate(ctx context.Context, userID string, startDate time.Time, numDays int) (PlanContent, error) {
	if numDays < 1 {
		return PlanContent{}, fmt.Errorf("invalid number of days %d", numDays)
	}
	start := time.Now()

	items, err := g.loadCatalog(ctx)
	if err != nil {
		return PlanContent{}, err
	}

	startDate = mealplan.Date(startDate)
	dates := make([]string, numDays)
	for i := range dates {
		dates[i] = mealplan.FormatDate(mealplan.AddDays(startDate, i))
	}

	prompt, err := buildPrompt(promptData{
		UserID:    userID,
		StartDate: dates[0],
		NumDays:   numDays,
		Dates:     dates,
		Catalog:   items,
	})
	if err != nil {
		return PlanContent{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	resp, err := g.textGen.GenerateContent(ctx, prompt)
	if err != nil {
		return PlanContent{}, fmt.Errorf("failed to generate meal plan from LLM: %w", err)
	}

	meta := shared.AgentMeta{
		AgentName: agentName,
		Usage:     resp.Usage,
		Latency:   time.Since(start),
	}

	days, err := parsePlan(resp.Content, startDate, numDays, g.catalog != nil, items)
	if err != nil {
		return PlanContent{Meta: meta}, err
	}

	return PlanContent{Days: days, Meta: meta}, nil
}

func (g *Generator) loadCatalog(ctx context.Context) ([]mealplan.MealItem, error) {
	if g.catalog == nil || g.loaded {
		return g.items, nil
	}
	items, err := g.catalog.ListActiveMealItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load meal item catalog: %w", err)
	}
	// Not cached, the next record asks again.
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}
	g.items = items
	g.loaded = true
	return items, nil
}

type rawPlan struct {
	Days []struct {
		Date  string                 `json:"date"`
		Meals []mealplan.PlannedMeal `json:"meals"`
	} `json:"days"`
}

// parsePlan decodes the model output and keeps only meals that can be stored.
// Day i is always dated startDate+i whatever date the model wrote. Without a
// catalog meals are kept as free text.
func parsePlan(content string, startDate time.Time, numDays int, useCatalog bool, catalog []mealplan.MealItem) ([]mealplan.PlannedDay, error) {
	raw := &rawPlan{}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), raw); err != nil {
		return nil, fmt.Errorf("failed to parse meal plan JSON: %w. Response: %s", err, content)
	}

	if len(raw.Days) < numDays {
		return nil, fmt.Errorf("%w: got %d of %d days", ErrIncompletePlan, len(raw.Days), numDays)
	}

	lookup := make(map[int64]mealplan.MealItem, len(catalog))
	for _, item := range catalog {
		lookup[item.ID] = item
	}

	days := make([]mealplan.PlannedDay, 0, numDays)
	usable := 0
	for i := 0; i < numDays; i++ {
		day := mealplan.PlannedDay{Date: mealplan.AddDays(startDate, i)}
		for _, meal := range raw.Days[i].Meals {
			meal.MealType = mealplan.MealType(strings.ToLower(strings.TrimSpace(string(meal.MealType))))
			if !meal.MealType.Valid() {
				continue
			}

			if useCatalog {
				item, ok := lookup[meal.MealItemID]
				if !ok || !item.Serves(meal.MealType) {
					continue
				}
				meal.Name = item.Name
			} else {
				meal.MealItemID = 0
				meal.Name = strings.TrimSpace(meal.Name)
				if meal.Name == "" {
					continue
				}
			}

			day.Meals = append(day.Meals, meal)
			usable++
		}
		days = append(days, day)
	}

	if usable == 0 {
		return nil, ErrNoUsableMeals
	}
	return days, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
