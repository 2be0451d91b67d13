// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Role tags which dashboard and records an account may access.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
)

// SignupRoles are the roles an account may pick for itself.
var SignupRoles = []Role{RoleDoctor, RolePatient, RoleUser}

// IsSignupRole reports whether r may be chosen at signup.
func (r Role) IsSignupRole() bool {
	return slices.Contains(SignupRoles, r)
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r.IsSignupRole() || r == RoleAdmin
}

// Dashboard returns the relative page a client should open after login.
func (r Role) Dashboard() string {
	switch r {
	case RoleDoctor:
		return "doctor/doctor-dashboard.html"
	case RolePatient:
		return "patient/patient-dashboard.html"
	case RoleAdmin:
		return "admin/admin-dashboard.html"
	default:
		return "user/user-dashboard.html"
	}
}

// VerificationStatus tracks a doctor's credential review.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)

// CanUpload reports whether documents may still be added or removed.
func (s VerificationStatus) CanUpload() bool {
	return s == VerificationUnverified || s == VerificationRejected
}

// User is an account of any role. Role specific fields are left empty
// for roles that do not use them.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`

	// Doctor
	MedicalID          string             `json:"medical_id,omitempty"`
	Specialization     string             `json:"specialization,omitempty"`
	Qualifications     []string           `json:"qualifications,omitempty"`
	Availability       string             `json:"availability,omitempty"`
	Bio                string             `json:"bio,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	VerificationNote   string             `json:"verification_note,omitempty"`

	// Patient and user
	Age          int      `json:"age,omitempty"`
	Gender       string   `json:"gender,omitempty"`
	HeightCM     float64  `json:"height_cm,omitempty"`
	WeightKG     float64  `json:"weight_kg,omitempty"`
	FitnessGoal  string   `json:"fitness_goal,omitempty"`
	Allergies    []string `json:"allergies,omitempty"`
	HealthIssues []string `json:"health_issues,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsVerifiedDoctor reports whether the account may act as a nutritionist.
func (u *User) IsVerifiedDoctor() bool {
	return u.Role == RoleDoctor && u.VerificationStatus == VerificationVerified
}
