package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/cache"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

// MinLoginDuration pads failed logins so unknown accounts and wrong
// passwords are indistinguishable by timing.
const MinLoginDuration = 300 * time.Millisecond

// AccountService handles signup, login and logout.
type AccountService struct {
	repo       *repository.Repository
	cache      *cache.Cache
	logger     *slog.Logger
	metrics    metrics.Recorder
	sessionTTL time.Duration
	tokenEnv   string
	minLogin   time.Duration
}

// NewAccountService creates a new AccountService.
func NewAccountService(repo *repository.Repository, c *cache.Cache, logger *slog.Logger, recorder metrics.Recorder, sessionTTL time.Duration, tokenEnv string) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		repo:       repo,
		cache:      c,
		logger:     logger,
		metrics:    recorder,
		sessionTTL: sessionTTL,
		tokenEnv:   tokenEnv,
		minLogin:   MinLoginDuration,
	}
}

// SignupInput is the signup form.
type SignupInput struct {
	Role            model.Role
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	Phone           string

	MedicalID      string
	Specialization string

	Age         int
	Gender      string
	HeightCM    float64
	WeightKG    float64
	FitnessGoal string
}

// SessionMeta describes the client a session is issued to.
type SessionMeta struct {
	UserAgent string
	ClientIP  string
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
	Dashboard string
}

// validateSignup checks the form and returns the normalized email.
func validateSignup(in *SignupInput) (string, error) {
	if !in.Role.IsSignupRole() {
		return "", ErrInvalidRole
	}
	if err := auth.CheckNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return "", err
	}
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return "", err
	}

	in.Name = textutil.Truncate(textutil.CleanText(in.Name), 100)
	if in.Name == "" {
		return "", invalid("name", "is required")
	}
	in.Phone = strings.TrimSpace(in.Phone)
	if len(in.Phone) > 32 {
		return "", invalid("phone", "must be at most 32 characters")
	}

	if in.Role == model.RoleDoctor {
		in.MedicalID = strings.ToUpper(strings.TrimSpace(in.MedicalID))
		if in.MedicalID == "" {
			return "", invalid("medical_id", "is required for doctors")
		}
		if len(in.MedicalID) > 64 {
			return "", invalid("medical_id", "must be at most 64 characters")
		}
		in.Specialization = textutil.Truncate(textutil.CleanText(in.Specialization), 100)
	}
	if err := validateBody(in.Age, in.HeightCM, in.WeightKG); err != nil {
		return "", err
	}
	in.Gender = textutil.Truncate(textutil.CleanText(in.Gender), 32)
	in.FitnessGoal = textutil.Truncate(textutil.CleanText(in.FitnessGoal), 200)
	return email, nil
}

func validateBody(age int, height, weight float64) error {
	if age < 0 || age > 120 {
		return invalid("age", "must be between 0 and 120")
	}
	if height < 0 || height > 272 {
		return invalid("height_cm", "must be between 0 and 272")
	}
	if weight < 0 || weight > 400 {
		return invalid("weight_kg", "must be between 0 and 400")
	}
	return nil
}

// Signup creates an account and logs it in.
func (s *AccountService) Signup(ctx context.Context, in SignupInput, meta SessionMeta) (*AuthResult, error) {
	email, err := validateSignup(&in)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ts := now()
	user := &model.User{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		Name:         in.Name,
		Phone:        in.Phone,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	switch in.Role {
	case model.RoleDoctor:
		user.MedicalID = in.MedicalID
		user.Specialization = in.Specialization
		user.VerificationStatus = model.VerificationUnverified
	default:
		user.Age = in.Age
		user.Gender = in.Gender
		user.HeightCM = in.HeightCM
		user.WeightKG = in.WeightKG
		user.FitnessGoal = in.FitnessGoal
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		case errors.Is(err, repository.ErrMedicalIDExists):
			return nil, ErrMedicalIDExists
		}
		return nil, err
	}
	s.metrics.IncSignup(string(user.Role))
	s.logger.Info("account created", "user_id", user.ID, "role", user.Role)

	return s.issueSession(ctx, user, meta)
}

// LoginInput is the login form. For doctors Identifier may be the medical
// ID or the email; for everyone else it is the email.
type LoginInput struct {
	Role       model.Role
	Identifier string
	Password   string
}

// Login verifies credentials and issues a session.
func (s *AccountService) Login(ctx context.Context, in LoginInput, meta SessionMeta) (*AuthResult, error) {
	start := time.Now()
	fail := func(err error, status string) (*AuthResult, error) {
		s.metrics.IncLogin(status)
		if remaining := s.minLogin - time.Since(start); remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
			}
		}
		return nil, err
	}

	if !in.Role.IsValid() {
		return nil, ErrInvalidRole
	}

	user, err := s.findLoginUser(ctx, in.Role, in.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			auth.BurnVerify(in.Password)
			return fail(ErrInvalidCredentials, "invalid")
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil || !ok {
		return fail(ErrInvalidCredentials, "invalid")
	}
	if user.Role != in.Role {
		return fail(ErrRoleMismatch, "role_mismatch")
	}

	s.metrics.IncLogin("success")
	s.upgradePasswordHash(ctx, user, in.Password)
	return s.issueSession(ctx, user, meta)
}

// upgradePasswordHash rewrites a hash made with an older cost profile. A
// failure only costs another attempt at the next login.
func (s *AccountService) upgradePasswordHash(ctx context.Context, user *model.User, password string) {
	if !auth.NeedsRehash(user.PasswordHash, auth.PasswordParams) {
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", "user_id", user.ID, "error", err)
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.Warn("failed to store rehashed password", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	s.logger.Info("password hash upgraded", "user_id", user.ID)
}

func (s *AccountService) findLoginUser(ctx context.Context, role model.Role, identifier string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, repository.ErrUserNotFound
	}
	if role == model.RoleDoctor && !strings.Contains(identifier, "@") {
		return s.repo.GetDoctorByMedicalID(ctx, strings.ToUpper(identifier))
	}
	email, err := auth.NormalizeEmail(identifier)
	if err != nil {
		return nil, repository.ErrUserNotFound
	}
	return s.repo.GetUserByEmail(ctx, email)
}

func (s *AccountService) issueSession(ctx context.Context, user *model.User, meta SessionMeta) (*AuthResult, error) {
	token, err := auth.GenerateSessionToken(s.tokenEnv)
	if err != nil {
		return nil, err
	}

	ts := now()
	session := &model.Session{
		ID:          newID(),
		UserID:      user.ID,
		TokenHash:   token.Hash,
		TokenPrefix: token.Prefix,
		UserAgent:   textutil.Truncate(meta.UserAgent, 256),
		ClientIP:    meta.ClientIP,
		ExpiresAt:   ts.Add(s.sessionTTL),
		CreatedAt:   ts,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      user,
		Token:     token.Plaintext,
		ExpiresAt: session.ExpiresAt,
		Dashboard: user.Role.Dashboard(),
	}, nil
}

// Logout revokes the session and drops its cached auth context.
func (s *AccountService) Logout(ctx context.Context, sessionID, token string) error {
	if err := s.repo.RevokeSession(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	if token != "" {
		if err := s.cache.DeleteAuthContext(ctx, auth.QuickHash(token)); err != nil {
			s.logger.Warn("failed to drop cached session", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// LogoutAll revokes every session of userID.
func (s *AccountService) LogoutAll(ctx context.Context, userID string) (int, error) {
	ids, err := s.repo.RevokeUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.InvalidateUserSessions(ctx, userID); err != nil {
		s.logger.Warn("failed to drop cached sessions", "user_id", userID, "error", err)
	}
	return len(ids), nil
}
