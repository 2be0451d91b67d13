package model

import "time"

// ConsultationStatus is the state of a booked session.
type ConsultationStatus string

const (
	ConsultationBooked    ConsultationStatus = "booked"
	ConsultationCancelled ConsultationStatus = "cancelled"
)

// Consultation bounds in minutes.
const (
	MinConsultationMinutes = 15
	MaxConsultationMinutes = 120
)

// Consultation is a session a patient booked with their nutritionist.
type Consultation struct {
	ID              string             `json:"id"`
	PatientID       string             `json:"patient_id"`
	NutritionistID  string             `json:"nutritionist_id"`
	ScheduledAt     time.Time          `json:"scheduled_at"`
	DurationMinutes int                `json:"duration_minutes"`
	Notes           string             `json:"notes,omitempty"`
	Status          ConsultationStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// IsParticipant reports whether userID is either side of the consultation.
func (c *Consultation) IsParticipant(userID string) bool {
	return c.PatientID == userID || c.NutritionistID == userID
}
