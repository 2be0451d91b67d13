package model

import "time"

// DietPlanStatus is the lifecycle state of a diet plan.
type DietPlanStatus string

const (
	DietPlanActive   DietPlanStatus = "active"
	DietPlanArchived DietPlanStatus = "archived"
)

// Calorie target bounds accepted for a plan.
const (
	MinCalorieTarget = 800
	MaxCalorieTarget = 6000
)

// DietPlan is a per-patient document of free-text meals authored by a
// nutritionist. A patient has at most one active plan.
type DietPlan struct {
	ID               string         `json:"id"`
	PatientID        string         `json:"patient_id"`
	NutritionistID   string         `json:"nutritionist_id"`
	NutritionistName string         `json:"nutritionist_name"`
	PlanName         string         `json:"plan_name"`
	Duration         string         `json:"duration,omitempty"`
	CalorieTarget    int            `json:"calorie_target,omitempty"`
	Breakfast        string         `json:"breakfast,omitempty"`
	Lunch            string         `json:"lunch,omitempty"`
	Dinner           string         `json:"dinner,omitempty"`
	Snacks           string         `json:"snacks,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	Status           DietPlanStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Meal is one named slot of a plan.
type Meal struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Meals returns the non-empty meal slots in serving order.
func (p *DietPlan) Meals() []Meal {
	slots := []Meal{
		{Type: "breakfast", Description: p.Breakfast},
		{Type: "lunch", Description: p.Lunch},
		{Type: "dinner", Description: p.Dinner},
		{Type: "snacks", Description: p.Snacks},
	}
	meals := make([]Meal, 0, len(slots))
	for _, m := range slots {
		if m.Description != "" {
			meals = append(meals, m)
		}
	}
	return meals
}
