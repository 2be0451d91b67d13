package assistant

import (
	"fmt"
	"math"
	"strings"

	"github.com/smartdiet/smartdiet/internal/textutil"
)

// Calorie bounds for generated plans.
const (
	minPlanCalories = 1200
	maxPlanCalories = 4000
	activityFactor  = 1.4
	defaultAge      = 30
)

// GoalKind is the normalised direction of a goal.
type GoalKind string

const (
	GoalLose     GoalKind = "lose"
	GoalGain     GoalKind = "gain"
	GoalMaintain GoalKind = "maintain"
)

// ParseGoal maps free text like "weight loss" or "bulk" to a GoalKind.
func ParseGoal(goal string) GoalKind {
	g := strings.ToLower(goal)
	switch {
	case strings.Contains(g, "los"), strings.Contains(g, "cut"), strings.Contains(g, "slim"), strings.Contains(g, "fat"):
		return GoalLose
	case strings.Contains(g, "gain"), strings.Contains(g, "bulk"), strings.Contains(g, "muscle"):
		return GoalGain
	default:
		return GoalMaintain
	}
}

// PlannedMeal is one meal of a generated plan.
type PlannedMeal struct {
	Type        string `json:"type" cbor:"1,keyasint"`
	Description string `json:"description" cbor:"2,keyasint"`
	Calories    int    `json:"calories" cbor:"3,keyasint"`
}

// Plan is a structured meal plan.
type Plan struct {
	BMI           float64       `json:"bmi" cbor:"1,keyasint"`
	BMICategory   string        `json:"bmi_category" cbor:"2,keyasint"`
	CalorieTarget int           `json:"calorie_target" cbor:"3,keyasint"`
	Goal          GoalKind      `json:"goal" cbor:"4,keyasint"`
	Meals         []PlannedMeal `json:"meals" cbor:"5,keyasint"`
	Tips          []string      `json:"tips,omitempty" cbor:"6,keyasint,omitempty"`
}

// BMI returns weight / height² rounded to one decimal.
func BMI(heightCM, weightKG float64) float64 {
	if heightCM <= 0 || weightKG <= 0 {
		return 0
	}
	m := heightCM / 100
	return math.Round(weightKG/(m*m)*10) / 10
}

// BMICategory returns the WHO category for bmi.
func BMICategory(bmi float64) string {
	switch {
	case bmi <= 0:
		return "unknown"
	case bmi < 18.5:
		return "underweight"
	case bmi < 25:
		return "normal"
	case bmi < 30:
		return "overweight"
	default:
		return "obese"
	}
}

// EstimateCalories returns a daily target from the Mifflin-St Jeor resting
// rate, a light activity factor and the goal adjustment, rounded to 50 kcal
// and clamped to a safe range. Unknown sex uses the midpoint constant.
func EstimateCalories(heightCM, weightKG, age float64, gender string, goal GoalKind) int {
	if age <= 0 {
		age = defaultAge
	}
	sexConstant := -78.0
	switch strings.ToLower(gender) {
	case "male", "m", "man":
		sexConstant = 5
	case "female", "f", "woman":
		sexConstant = -161
	}
	bmr := 10*weightKG + 6.25*heightCM - 5*age + sexConstant
	tdee := bmr * activityFactor

	switch goal {
	case GoalLose:
		tdee -= 500
	case GoalGain:
		tdee += 400
	}

	target := int(math.Round(tdee/50) * 50)
	return max(minPlanCalories, min(maxPlanCalories, target))
}

var mealSplit = []struct {
	mealType string
	share    float64
}{
	{"breakfast", 0.25},
	{"lunch", 0.35},
	{"dinner", 0.30},
	{"snack", 0.10},
}

var mealMenus = map[GoalKind]map[string]string{
	GoalLose: {
		"breakfast": "Greek yogurt with berries and a spoon of chia seeds",
		"lunch":     "Grilled chicken salad with leafy greens, chickpeas and olive oil dressing",
		"dinner":    "Baked white fish with steamed vegetables and a small portion of quinoa",
		"snack":     "An apple with a handful of almonds",
	},
	GoalGain: {
		"breakfast": "Oatmeal cooked in milk with banana, peanut butter and honey",
		"lunch":     "Brown rice bowl with salmon, avocado and edamame",
		"dinner":    "Lean beef or lentil stew with sweet potatoes and whole grain bread",
		"snack":     "Smoothie with milk, oats, banana and whey or soy protein",
	},
	GoalMaintain: {
		"breakfast": "Whole grain toast with eggs and sliced tomato",
		"lunch":     "Quinoa salad with chickpeas, cucumber and lemon-tahini dressing",
		"dinner":    "Grilled chicken or tofu with roasted vegetables and brown rice",
		"snack":     "Carrot sticks with hummus",
	},
}

// conditionTips maps condition keywords to advice.
var conditionTips = []struct {
	keywords []string
	tip      string
}{
	{[]string{"diabet", "sugar"}, "Prefer low glycemic carbohydrates and pair them with protein or fiber."},
	{[]string{"pressure", "hypertens"}, "Keep sodium low: skip processed foods and season with herbs instead of salt."},
	{[]string{"cholesterol", "heart"}, "Favour unsaturated fats such as olive oil, nuts and oily fish."},
	{[]string{"vegetarian", "vegan"}, "Replace meat and fish with legumes, tofu or tempeh."},
	{[]string{"gluten", "celiac", "coeliac"}, "Choose gluten free grains such as rice, quinoa and buckwheat."},
	{[]string{"lactose", "dairy"}, "Use lactose free or plant based alternatives to milk and yogurt."},
}

// BuildPlan produces a deterministic plan for r. r must be normalised.
func BuildPlan(r MealPlanRequest) Plan {
	goal := ParseGoal(r.Goal)
	bmi := BMI(float64(r.Height), float64(r.Weight))
	target := EstimateCalories(float64(r.Height), float64(r.Weight), float64(r.Age), r.Gender, goal)

	plan := Plan{
		BMI:           bmi,
		BMICategory:   BMICategory(bmi),
		CalorieTarget: target,
		Goal:          goal,
	}
	menu := mealMenus[goal]
	for _, slot := range mealSplit {
		plan.Meals = append(plan.Meals, PlannedMeal{
			Type:        slot.mealType,
			Description: menu[slot.mealType],
			Calories:    int(math.Round(float64(target)*slot.share/10) * 10),
		})
	}

	conditions := strings.ToLower(r.Conditions)
	for _, ct := range conditionTips {
		for _, kw := range ct.keywords {
			if strings.Contains(conditions, kw) {
				plan.Tips = append(plan.Tips, ct.tip)
				break
			}
		}
	}
	return plan
}

// Text renders p as the plain text shown in the meal-plan form.
func (p Plan) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your BMI is %.1f (%s).\n", p.BMI, p.BMICategory)
	fmt.Fprintf(&b, "Daily calorie target: %d kcal (goal: %s).\n\n", p.CalorieTarget, p.Goal)
	for _, m := range p.Meals {
		fmt.Fprintf(&b, "%s (~%d kcal): %s\n", textutil.Capitalize(m.Type), m.Calories, m.Description)
	}
	if len(p.Tips) > 0 {
		b.WriteString("\nTips:\n")
		for _, tip := range p.Tips {
			fmt.Fprintf(&b, "- %s\n", tip)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
