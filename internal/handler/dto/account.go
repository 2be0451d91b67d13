package dto

import (
	"time"

	"github.com/smartdiet/smartdiet/internal/model"
)

// SignupRequest is the body of POST /api/v1/auth/signup.
type SignupRequest struct {
	Role            model.Role `json:"role"`
	Email           string     `json:"email"`
	Password        string     `json:"password"`
	ConfirmPassword string     `json:"confirm_password"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	MedicalID       string     `json:"medical_id,omitempty"`
	Specialization  string     `json:"specialization,omitempty"`
	Age             int        `json:"age,omitempty"`
	Gender          string     `json:"gender,omitempty"`
	HeightCM        float64    `json:"height_cm,omitempty"`
	WeightKG        float64    `json:"weight_kg,omitempty"`
	FitnessGoal     string     `json:"fitness_goal,omitempty"`
}

// LoginRequest is the body of POST /api/v1/auth/login. For doctors the
// identifier may be a medical ID.
type LoginRequest struct {
	Role       model.Role `json:"role"`
	Identifier string     `json:"identifier"`
	Email      string     `json:"email,omitempty"`
	Password   string     `json:"password"`
}

// LoginIdentifier returns identifier, falling back to email.
func (r LoginRequest) LoginIdentifier() string {
	if r.Identifier != "" {
		return r.Identifier
	}
	return r.Email
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	Dashboard string      `json:"dashboard"`
}

// LogoutAllResponse reports how many sessions were revoked.
type LogoutAllResponse struct {
	Revoked int `json:"revoked"`
}

// UpdateProfileRequest is the body of PATCH /api/v1/me. Absent fields are
// left unchanged.
type UpdateProfileRequest struct {
	Name           *string   `json:"name,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Specialization *string   `json:"specialization,omitempty"`
	Qualifications *[]string `json:"qualifications,omitempty"`
	Availability   *string   `json:"availability,omitempty"`
	Bio            *string   `json:"bio,omitempty"`
	Age            *int      `json:"age,omitempty"`
	Gender         *string   `json:"gender,omitempty"`
	HeightCM       *float64  `json:"height_cm,omitempty"`
	WeightKG       *float64  `json:"weight_kg,omitempty"`
	FitnessGoal    *string   `json:"fitness_goal,omitempty"`
	Allergies      *[]string `json:"allergies,omitempty"`
	HealthIssues   *[]string `json:"health_issues,omitempty"`
}
