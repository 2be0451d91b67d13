package assistant

import (
	"strings"
	"testing"
)

func TestBMI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		height, weight float64
		want           float64
		category       string
	}{
		{170, 65, 22.5, "normal"},
		{180, 55, 17, "underweight"},
		{165, 75, 27.5, "overweight"},
		{160, 90, 35.2, "obese"},
		{0, 70, 0, "unknown"},
	}
	for _, tc := range tests {
		got := BMI(tc.height, tc.weight)
		if got != tc.want {
			t.Errorf("BMI(%v, %v) = %v, want %v", tc.height, tc.weight, got, tc.want)
		}
		if cat := BMICategory(got); cat != tc.category {
			t.Errorf("BMICategory(%v) = %s, want %s", got, cat, tc.category)
		}
	}
}

func TestParseGoal(t *testing.T) {
	t.Parallel()

	tests := map[string]GoalKind{
		"weight loss":  GoalLose,
		"Lose weight":  GoalLose,
		"gain muscle":  GoalGain,
		"bulk":         GoalGain,
		"stay healthy": GoalMaintain,
		"":             GoalMaintain,
	}
	for in, want := range tests {
		if got := ParseGoal(in); got != want {
			t.Errorf("ParseGoal(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestEstimateCalories(t *testing.T) {
	t.Parallel()

	// Female, 165 cm, 60 kg, 25 years: BMR 1345.25, x1.4 = 1883.35.
	if got := EstimateCalories(165, 60, 25, "female", GoalMaintain); got != 1900 {
		t.Errorf("maintain = %d, want 1900", got)
	}
	if got := EstimateCalories(165, 60, 25, "female", GoalLose); got != 1400 {
		t.Errorf("lose = %d, want 1400", got)
	}
	// Male, 180 cm, 80 kg, 30 years: BMR 1780, x1.4 = 2492, +400.
	if got := EstimateCalories(180, 80, 30, "male", GoalGain); got != 2900 {
		t.Errorf("gain = %d, want 2900", got)
	}
	// Clamped at the minimum.
	if got := EstimateCalories(140, 35, 80, "female", GoalLose); got != minPlanCalories {
		t.Errorf("clamped = %d, want %d", got, minPlanCalories)
	}
	// Zero age uses the default.
	if EstimateCalories(170, 70, 0, "", GoalMaintain) != EstimateCalories(170, 70, defaultAge, "", GoalMaintain) {
		t.Error("zero age should use the default age")
	}
}

func TestBuildPlan(t *testing.T) {
	t.Parallel()

	req := MealPlanRequest{Height: 165, Weight: 60, Age: 25, Gender: "female", Goal: "weight loss", Conditions: "diabetes, vegetarian"}
	plan := BuildPlan(req)

	if plan.Goal != GoalLose || plan.CalorieTarget != 1400 {
		t.Errorf("unexpected plan header: %+v", plan)
	}
	if len(plan.Meals) != 4 {
		t.Fatalf("meals = %d, want 4", len(plan.Meals))
	}
	total := 0
	for _, m := range plan.Meals {
		total += m.Calories
	}
	if total < 1350 || total > 1450 {
		t.Errorf("meal calories total %d far from target", total)
	}
	if len(plan.Tips) != 2 {
		t.Errorf("tips = %v, want diabetes and vegetarian tips", plan.Tips)
	}

	text := plan.Text()
	for _, want := range []string{"BMI is 22.0", "1400 kcal", "Breakfast (~350 kcal)", "Tips:"} {
		if !strings.Contains(text, want) {
			t.Errorf("plan text missing %q:\n%s", want, text)
		}
	}
}

func TestPlanText_MealTypes(t *testing.T) {
	t.Parallel()

	plan := Plan{
		BMI:           21,
		BMICategory:   "normal",
		CalorieTarget: 1800,
		Goal:          GoalMaintain,
		Meals: []PlannedMeal{
			{Type: "", Description: "water", Calories: 0},
			{Type: "élevenses", Description: "fruit", Calories: 150},
			{Type: "lunch", Description: "salad", Calories: 500},
		},
	}

	text := plan.Text()
	for _, want := range []string{" (~0 kcal): water", "Élevenses (~150 kcal)", "Lunch (~500 kcal)"} {
		if !strings.Contains(text, want) {
			t.Errorf("plan text missing %q:\n%s", want, text)
		}
	}
}
