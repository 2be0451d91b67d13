package model

import (
	"math"
	"time"
)

// Review is a patient's rating of their nutritionist.
type Review struct {
	ID             string    `json:"id"`
	NutritionistID string    `json:"nutritionist_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	Rating         int       `json:"rating"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RatingSummary aggregates reviews for one nutritionist.
type RatingSummary struct {
	Average float64     `json:"average"`
	Total   int         `json:"total"`
	ByStars map[int]int `json:"by_stars"`
}

// NewRatingSummary builds a summary from per-star counts (index 1..5).
// The average is rounded to one decimal place.
func NewRatingSummary(counts [6]int) RatingSummary {
	summary := RatingSummary{ByStars: make(map[int]int, 5)}
	sum := 0
	for stars := 1; stars <= 5; stars++ {
		summary.ByStars[stars] = counts[stars]
		summary.Total += counts[stars]
		sum += stars * counts[stars]
	}
	if summary.Total > 0 {
		summary.Average = math.Round(float64(sum)/float64(summary.Total)*10) / 10
	}
	return summary
}
