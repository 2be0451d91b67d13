package dto

import "time"

// NutritionistRequest is the body of POST /api/v1/nutritionists/{id}/requests.
type NutritionistRequest struct {
	Message string `json:"message,omitempty"`
}

// DietPlanRequest is the body of PUT /api/v1/patients/{id}/diet-plan.
type DietPlanRequest struct {
	PlanName      string `json:"plan_name"`
	Duration      string `json:"duration,omitempty"`
	CalorieTarget int    `json:"calorie_target,omitempty"`
	Breakfast     string `json:"breakfast,omitempty"`
	Lunch         string `json:"lunch,omitempty"`
	Dinner        string `json:"dinner,omitempty"`
	Snacks        string `json:"snacks,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// MessageRequest is the body of POST /api/v1/conversations/{patientID}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MealLogRequest is the body of POST /api/v1/me/progress/meals.
type MealLogRequest struct {
	Date     string `json:"date,omitempty"`
	MealType string `json:"meal_type"`
	Followed bool   `json:"followed"`
	Note     string `json:"note,omitempty"`
}

// ReviewRequest is the body of the review create and update routes.
type ReviewRequest struct {
	Rating  *int    `json:"rating,omitempty"`
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ConsultationRequest is the body of POST /api/v1/me/consultations.
type ConsultationRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}
