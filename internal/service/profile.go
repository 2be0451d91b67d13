package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/cache"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

const (
	maxListItems  = 20
	maxListItem   = 100
	maxBioLength  = 2000
	maxTextLength = 200
)

// ProfileService reads and edits accounts and public nutritionist profiles.
type ProfileService struct {
	repo   *repository.Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewProfileService creates a new ProfileService.
func NewProfileService(repo *repository.Repository, c *cache.Cache, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, cache: c, logger: logger}
}

// GetUser returns an account by ID.
func (s *ProfileService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ProfileUpdate holds the editable fields. Nil means unchanged.
type ProfileUpdate struct {
	Name           *string
	Email          *string
	Phone          *string
	Specialization *string
	Qualifications *[]string
	Availability   *string
	Bio            *string
	Age            *int
	Gender         *string
	HeightCM       *float64
	WeightKG       *float64
	FitnessGoal    *string
	Allergies      *[]string
	HealthIssues   *[]string
}

// applyProfileUpdate validates u and writes it onto user.
func applyProfileUpdate(user *model.User, u ProfileUpdate) error {
	if u.Name != nil {
		name := textutil.Truncate(textutil.CleanText(*u.Name), 100)
		if name == "" {
			return invalid("name", "cannot be empty")
		}
		user.Name = name
	}
	if u.Email != nil {
		email, err := auth.NormalizeEmail(*u.Email)
		if err != nil {
			return err
		}
		user.Email = email
	}
	if u.Phone != nil {
		phone := strings.TrimSpace(*u.Phone)
		if len(phone) > 32 {
			return invalid("phone", "must be at most 32 characters")
		}
		user.Phone = phone
	}

	if user.Role == model.RoleDoctor {
		if u.Specialization != nil {
			user.Specialization = cleanShort(*u.Specialization)
		}
		if u.Qualifications != nil {
			list, err := cleanList("qualifications", *u.Qualifications)
			if err != nil {
				return err
			}
			user.Qualifications = list
		}
		if u.Availability != nil {
			user.Availability = cleanShort(*u.Availability)
		}
		if u.Bio != nil {
			bio := textutil.CleanText(*u.Bio)
			if textutil.Length(bio) > maxBioLength {
				return invalid("bio", "must be at most %d characters", maxBioLength)
			}
			user.Bio = bio
		}
		return nil
	}

	if u.Age != nil {
		user.Age = *u.Age
	}
	if u.HeightCM != nil {
		user.HeightCM = *u.HeightCM
	}
	if u.WeightKG != nil {
		user.WeightKG = *u.WeightKG
	}
	if err := validateBody(user.Age, user.HeightCM, user.WeightKG); err != nil {
		return err
	}
	if u.Gender != nil {
		user.Gender = textutil.Truncate(textutil.CleanText(*u.Gender), 32)
	}
	if u.FitnessGoal != nil {
		user.FitnessGoal = cleanShort(*u.FitnessGoal)
	}
	if u.Allergies != nil {
		list, err := cleanList("allergies", *u.Allergies)
		if err != nil {
			return err
		}
		user.Allergies = list
	}
	if u.HealthIssues != nil {
		list, err := cleanList("health_issues", *u.HealthIssues)
		if err != nil {
			return err
		}
		user.HealthIssues = list
	}
	return nil
}

func cleanShort(s string) string {
	return textutil.Truncate(textutil.CleanText(s), maxTextLength)
}

// cleanList sanitizes items, drops blanks and case-insensitive duplicates.
func cleanList(field string, items []string) ([]string, error) {
	if len(items) > maxListItems {
		return nil, invalid(field, "at most %d entries", maxListItems)
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = textutil.CleanText(item)
		if item == "" {
			continue
		}
		if textutil.Length(item) > maxListItem {
			return nil, invalid(field, "entries must be at most %d characters", maxListItem)
		}
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out, nil
}

// UpdateProfile applies u to the caller's account.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*model.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	oldName, oldEmail := user.Name, user.Email

	if err := applyProfileUpdate(user, u); err != nil {
		return nil, err
	}
	user.UpdatedAt = now()

	if err := s.repo.UpdateUserProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	// Cached auth contexts carry name and email.
	if user.Name != oldName || user.Email != oldEmail {
		if err := s.cache.InvalidateUserSessions(ctx, user.ID); err != nil {
			s.logger.Warn("failed to drop cached sessions", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// NutritionistProfile is the public view of a verified doctor.
type NutritionistProfile struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	Phone            string              `json:"phone,omitempty"`
	Specialization   string              `json:"specialization,omitempty"`
	Qualifications   []string            `json:"qualifications"`
	Availability     string              `json:"availability,omitempty"`
	Bio              string              `json:"bio,omitempty"`
	Rating           model.RatingSummary `json:"rating"`
	NextConsultation *model.Consultation `json:"next_consultation,omitempty"`
}

func newNutritionistProfile(u *model.User, rating model.RatingSummary) *NutritionistProfile {
	quals := u.Qualifications
	if quals == nil {
		quals = []string{}
	}
	return &NutritionistProfile{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		Specialization: u.Specialization,
		Qualifications: quals,
		Availability:   u.Availability,
		Bio:            u.Bio,
		Rating:         rating,
	}
}

// ListNutritionists returns every verified doctor with their rating.
func (s *ProfileService) ListNutritionists(ctx context.Context) ([]*NutritionistProfile, error) {
	doctors, err := s.repo.ListVerifiedDoctors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*NutritionistProfile, 0, len(doctors))
	for _, d := range doctors {
		counts, err := s.repo.RatingCounts(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, newNutritionistProfile(d, model.NewRatingSummary(counts)))
	}
	return out, nil
}

// verifiedDoctor loads id and fails unless it is a verified doctor.
func verifiedDoctor(ctx context.Context, repo *repository.Repository, id string) (*model.User, error) {
	user, err := repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNutritionistNotFound
		}
		return nil, err
	}
	if !user.IsVerifiedDoctor() {
		return nil, ErrNutritionistNotFound
	}
	return user, nil
}

// GetNutritionist returns a public profile. When the viewer is a patient the
// next booked consultation between them is included.
func (s *ProfileService) GetNutritionist(ctx context.Context, id string, viewer *model.AuthContext) (*NutritionistProfile, error) {
	doctor, err := verifiedDoctor(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.RatingCounts(ctx, doctor.ID)
	if err != nil {
		return nil, err
	}
	profile := newNutritionistProfile(doctor, model.NewRatingSummary(counts))

	if viewer != nil && viewer.Role == model.RolePatient {
		next, err := s.repo.NextConsultation(ctx, viewer.UserID, doctor.ID, time.Now().UTC())
		switch {
		case err == nil:
			profile.NextConsultation = next
		case errors.Is(err, repository.ErrConsultationNotFound):
		default:
			return nil, err
		}
	}
	return profile, nil
}
