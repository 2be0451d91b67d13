package assistant

import (
	"fmt"
	"strings"
)

func buildChatPrompt(r ChatRequest) string {
	var b strings.Builder
	b.WriteString("You are a friendly nutrition assistant for the SmartDiet app. ")
	b.WriteString("Answer in at most 150 words of plain text without markdown. ")
	b.WriteString("Do not give medical diagnoses; suggest seeing a nutritionist for medical conditions.\n\n")

	p := r.UserProfile
	var profile []string
	if p.Age > 0 {
		profile = append(profile, fmt.Sprintf("- Age: %.0f years", float64(p.Age)))
	}
	if p.Gender != "" {
		profile = append(profile, "- Gender: "+p.Gender)
	}
	if p.Height > 0 {
		profile = append(profile, fmt.Sprintf("- Height: %.0f cm", float64(p.Height)))
	}
	if p.Weight > 0 {
		profile = append(profile, fmt.Sprintf("- Weight: %.1f kg", float64(p.Weight)))
	}
	if p.Allergies != "" {
		profile = append(profile, "- Allergies: "+p.Allergies)
	}
	if p.Goal != "" {
		profile = append(profile, "- Goal: "+p.Goal)
	}
	if p.HealthIssue != "" {
		profile = append(profile, "- Health issues: "+p.HealthIssue)
	}
	if len(profile) > 0 {
		b.WriteString("USER PROFILE:\n")
		b.WriteString(strings.Join(profile, "\n"))
		b.WriteString("\n\n")
	}

	b.WriteString("QUESTION:\n")
	b.WriteString(r.Message)
	return b.String()
}

func buildMealPlanPrompt(r MealPlanRequest, base Plan) string {
	var b strings.Builder
	b.WriteString("You are a professional nutritionist. Create a one day meal plan.\n\n")
	b.WriteString("USER PROFILE:\n")
	fmt.Fprintf(&b, "- Height: %.0f cm\n", float64(r.Height))
	fmt.Fprintf(&b, "- Weight: %.1f kg\n", float64(r.Weight))
	if r.Age > 0 {
		fmt.Fprintf(&b, "- Age: %.0f years\n", float64(r.Age))
	}
	if r.Gender != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", r.Gender)
	}
	fmt.Fprintf(&b, "- Goal: %s\n", base.Goal)
	if r.Conditions != "" {
		fmt.Fprintf(&b, "- Conditions: %s\n", r.Conditions)
	}
	fmt.Fprintf(&b, "- BMI: %.1f\n", base.BMI)
	fmt.Fprintf(&b, "- Daily calorie target: %d kcal\n\n", base.CalorieTarget)

	b.WriteString("Respond with JSON only, in this exact shape:\n")
	b.WriteString(`{"meals":[{"type":"breakfast","description":"...","calories":400},`)
	b.WriteString(`{"type":"lunch","description":"...","calories":600},`)
	b.WriteString(`{"type":"dinner","description":"...","calories":550},`)
	b.WriteString(`{"type":"snack","description":"...","calories":150}],"tips":["..."]}`)
	b.WriteString("\nMeal calories must add up to the daily target within 10%.")
	return b.String()
}
