package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/smartdiet/smartdiet/internal/model"
)

// placeholderHash is a well-formed argon2id string no password matches.
const placeholderHash = "$argon2id$v=19$m=65536,t=3,p=4$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

// NewTestUser returns an unsaved user of role with a unique email.
// Doctors come back verified so nutritionist routes accept them.
func NewTestUser(t testing.TB, role model.Role) *model.User {
	t.Helper()
	id := NewID()
	now := time.Now().UTC().Truncate(time.Microsecond)

	u := &model.User{
		ID:           id,
		Email:        strings.ToLower(id) + "@test.smartdiet.local",
		PasswordHash: placeholderHash,
		Role:         role,
		Name:         "Test " + string(role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch role {
	case model.RoleDoctor:
		u.MedicalID = "MED-" + id[len(id)-8:]
		u.Specialization = "Clinical nutrition"
		u.VerificationStatus = model.VerificationVerified
	case model.RolePatient:
		u.Age, u.WeightKG, u.HeightCM = 34, 72.5, 170
		u.FitnessGoal = "lose weight"
	}
	return u
}

// NewID returns a fresh ULID string.
func NewID() string {
	return ulid.Make().String()
}
