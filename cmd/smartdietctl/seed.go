package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/model"
)

// seedFile is the document read by the seed command.
type seedFile struct {
	Users []seedUser `json:"users" yaml:"users"`
}

// seedUser is one account to create. Verified only applies to doctors.
type seedUser struct {
	Role           model.Role `json:"role" yaml:"role"`
	Email          string     `json:"email" yaml:"email"`
	Password       string     `json:"password" yaml:"password"`
	Name           string     `json:"name" yaml:"name"`
	Phone          string     `json:"phone" yaml:"phone"`
	MedicalID      string     `json:"medical_id" yaml:"medical_id"`
	Specialization string     `json:"specialization" yaml:"specialization"`
	Bio            string     `json:"bio" yaml:"bio"`
	Verified       bool       `json:"verified" yaml:"verified"`
	Age            int        `json:"age" yaml:"age"`
	Gender         string     `json:"gender" yaml:"gender"`
	HeightCM       float64    `json:"height_cm" yaml:"height_cm"`
	WeightKG       float64    `json:"weight_kg" yaml:"weight_kg"`
	FitnessGoal    string     `json:"fitness_goal" yaml:"fitness_goal"`
	Allergies      []string   `json:"allergies" yaml:"allergies"`
}

// parseSeed decodes YAML, or JSON with comments and trailing commas,
// depending on ext.
func parseSeed(data []byte, ext string) (*seedFile, error) {
	var out seedFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported seed format %q", ext)
	}
	return &out, nil
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	out, err := parseSeed(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// toUser validates the entry and builds the stored account.
func (s seedUser) toUser(createdAt time.Time) (*model.User, error) {
	if !s.Role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", s.Role)
	}
	email, err := auth.NormalizeEmail(s.Email)
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	if err := auth.CheckNewPassword(s.Password, s.Password); err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	hash, err := auth.HashPassword(s.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         s.Role,
		Name:         name,
		Phone:        strings.TrimSpace(s.Phone),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	switch s.Role {
	case model.RoleDoctor:
		user.MedicalID = strings.ToUpper(strings.TrimSpace(s.MedicalID))
		if user.MedicalID == "" {
			return nil, fmt.Errorf("medical_id is required for doctors")
		}
		user.Specialization = s.Specialization
		user.Bio = s.Bio
		user.VerificationStatus = model.VerificationUnverified
		if s.Verified {
			user.VerificationStatus = model.VerificationVerified
		}
	case model.RolePatient, model.RoleUser:
		user.Age = s.Age
		user.Gender = s.Gender
		user.HeightCM = s.HeightCM
		user.WeightKG = s.WeightKG
		user.FitnessGoal = s.FitnessGoal
		user.Allergies = s.Allergies
	}
	return user, nil
}
