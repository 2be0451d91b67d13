package model

import "time"

// AssignmentStatus is the state of a patient's link to a nutritionist.
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentApproved AssignmentStatus = "approved"
	AssignmentRejected AssignmentStatus = "rejected"
)

// IsOpen reports whether the assignment blocks a new request.
func (s AssignmentStatus) IsOpen() bool {
	return s == AssignmentPending || s == AssignmentApproved
}

// Assignment links one patient to one nutritionist.
type Assignment struct {
	PatientID      string           `json:"patient_id"`
	NutritionistID string           `json:"nutritionist_id"`
	Status         AssignmentStatus `json:"status"`
	RequestedAt    time.Time        `json:"requested_at"`
	ApprovedAt     *time.Time       `json:"approved_at,omitempty"`
	RejectedAt     *time.Time       `json:"rejected_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// PendingRequest is a patient's open request in a nutritionist's inbox.
type PendingRequest struct {
	ID             string    `json:"id"`
	NutritionistID string    `json:"nutritionist_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	PatientEmail   string    `json:"patient_email"`
	Message        string    `json:"message,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

// RosterEntry is one approved patient as shown on the nutritionist dashboard.
type RosterEntry struct {
	PatientID     string     `json:"patient_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Age           int        `json:"age,omitempty"`
	WeightKG      float64    `json:"weight_kg,omitempty"`
	FitnessGoal   string     `json:"fitness_goal,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	Adherence     int        `json:"adherence"`
	Progress      int        `json:"progress"`
	DaysFollowing int        `json:"days_following"`
}

// DaysSince returns whole days elapsed from t to now, never negative.
func DaysSince(t *time.Time, now time.Time) int {
	if t == nil || now.Before(*t) {
		return 0
	}
	return int(now.Sub(*t).Hours() / 24)
}
