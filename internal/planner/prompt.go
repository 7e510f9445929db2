package planner

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/29m10/foodeasy-backend/internal/mealplan"
)

//go:embed planner_prompt.md
var plannerPrompt string

type promptData struct {
	UserID    string
	StartDate string
	NumDays   int
	Dates     []string
	Catalog   []mealplan.MealItem
}

var promptFuncs = template.FuncMap{
	"slots": func(item mealplan.MealItem) string {
		var slots []string
		for _, t := range mealplan.MealTypes {
			if item.Serves(t) {
				slots = append(slots, string(t))
			}
		}
		return strings.Join(slots, ", ")
	},
}

func buildPrompt(data promptData) (string, error) {
	tmpl, err := template.New("planner").Funcs(promptFuncs).Parse(plannerPrompt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
