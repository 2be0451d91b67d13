package model

import (
	"slices"
	"time"
)

// MealType names a logged meal slot.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// ValidMealTypes contains all valid meal types.
var ValidMealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}

// IsValid reports whether m is a known meal type.
func (m MealType) IsValid() bool {
	return slices.Contains(ValidMealTypes, m)
}

// MealLog records whether a patient followed their plan for one meal.
type MealLog struct {
	ID        string    `json:"id"`       // ULID
	EventID   string    `json:"event_id"` // Redis stream ID, set by the consumer
	PatientID string    `json:"patient_id"`
	Date      time.Time `json:"date"` // UTC date (time component zeroed)
	MealType  MealType  `json:"meal_type"`
	Followed  bool      `json:"followed"`
	Note      string    `json:"note,omitempty"`
	LoggedAt  time.Time `json:"logged_at"`
}

// DailyProgress is the per-day aggregate of a patient's meal logs.
type DailyProgress struct {
	PatientID     string    `json:"patient_id"`
	Date          time.Time `json:"date"`
	MealsLogged   int       `json:"meals_logged"`
	MealsFollowed int       `json:"meals_followed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Followed reports whether the day counts toward a streak.
func (d DailyProgress) Followed() bool {
	return d.MealsFollowed > 0
}

// GoalMet reports whether every logged meal that day was on plan.
func (d DailyProgress) GoalMet() bool {
	return d.MealsLogged > 0 && d.MealsFollowed == d.MealsLogged
}

// Badge is an achievement shown on the patient dashboard.
type Badge struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// DayPoint is one entry of the recent adherence chart.
type DayPoint struct {
	Date          string `json:"date"` // ISO date
	MealsLogged   int    `json:"meals_logged"`
	MealsFollowed int    `json:"meals_followed"`
}

// ProgressSummary is the computed progress view for one patient.
type ProgressSummary struct {
	PatientID     string     `json:"patient_id"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	Adherence     int        `json:"adherence"`
	GoalsAchieved int        `json:"goals_achieved"`
	DaysFollowing int        `json:"days_following"`
	Badges        []Badge    `json:"badges"`
	LastSevenDays []DayPoint `json:"last_seven_days"`
	GeneratedAt   time.Time  `json:"generated_at"`
}
