package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrMedicalIDExists = errors.New("medical ID already registered")
	ErrStatusConflict  = errors.New("verification status changed concurrently")
)

const userColumns = `
	id, email, password_hash, role, name, phone, medical_id, specialization,
	qualifications, availability, bio, verification_status, verification_note,
	age, gender, height_cm, weight_kg, fitness_goal, allergies, health_issues,
	created_at, updated_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Name,
		user.Phone,
		nullableString(user.MedicalID),
		user.Specialization,
		emptyIfNil(user.Qualifications),
		user.Availability,
		user.Bio,
		string(user.VerificationStatus),
		user.VerificationNote,
		user.Age,
		user.Gender,
		user.HeightCM,
		user.WeightKG,
		user.FitnessGoal,
		emptyIfNil(user.Allergies),
		emptyIfNil(user.HealthIssues),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == "idx_users_medical_id" {
				return ErrMedicalIDExists
			}
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapUserErr(err, "by ID")
	}
	return user, nil
}

// GetUserByEmail retrieves a user by their email address (case-insensitive).
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, wrapUserErr(err, "by email")
	}
	return user, nil
}

// GetDoctorByMedicalID retrieves a doctor by medical ID.
func (r *Repository) GetDoctorByMedicalID(ctx context.Context, medicalID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'doctor' AND medical_id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, medicalID))
	if err != nil {
		return nil, wrapUserErr(err, "by medical ID")
	}
	return user, nil
}

// UpdateUserProfile writes the editable profile fields of user.
func (r *Repository) UpdateUserProfile(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, phone = $4, specialization = $5,
		    qualifications = $6, availability = $7, bio = $8,
		    age = $9, gender = $10, height_cm = $11, weight_kg = $12,
		    fitness_goal = $13, allergies = $14, health_issues = $15,
		    updated_at = $16
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Phone,
		user.Specialization,
		emptyIfNil(user.Qualifications),
		user.Availability,
		user.Bio,
		user.Age,
		user.Gender,
		user.HeightCM,
		user.WeightKG,
		user.FitnessGoal,
		emptyIfNil(user.Allergies),
		emptyIfNil(user.HealthIssues),
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash of userID.
func (r *Repository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateVerificationStatus moves a doctor from one of the from statuses to
// to. Returns ErrStatusConflict if the doctor is in none of them.
func (r *Repository) UpdateVerificationStatus(ctx context.Context, doctorID string, from []model.VerificationStatus, to model.VerificationStatus, note string) error {
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}

	query := `
		UPDATE users
		SET verification_status = $2, verification_note = $3, updated_at = $4
		WHERE id = $1 AND role = 'doctor' AND verification_status = ANY($5)
	`

	result, err := r.pool.Exec(ctx, query, doctorID, string(to), note, time.Now().UTC(), fromStrings)
	if err != nil {
		return fmt.Errorf("failed to update verification status: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetUserByID(ctx, doctorID); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

// ListDoctorsByVerification returns doctors in status, oldest update first.
func (r *Repository) ListDoctorsByVerification(ctx context.Context, status model.VerificationStatus) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'doctor' AND verification_status = $1
		ORDER BY updated_at ASC
	`
	return r.queryUsers(ctx, query, string(status))
}

// ListVerifiedDoctors returns all nutritionists patients may request.
func (r *Repository) ListVerifiedDoctors(ctx context.Context) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'doctor' AND verification_status = 'verified'
		ORDER BY name ASC
	`
	return r.queryUsers(ctx, query)
}

// AccountCounts is the number of accounts per role and, for doctors, per
// verification status.
type AccountCounts struct {
	ByRole         map[model.Role]int
	ByVerification map[model.VerificationStatus]int
}

// CountAccounts groups every account by role and verification status.
func (r *Repository) CountAccounts(ctx context.Context) (*AccountCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role, verification_status, COUNT(*)
		FROM users
		GROUP BY role, verification_status
	`)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	defer rows.Close()

	counts := &AccountCounts{
		ByRole:         make(map[model.Role]int),
		ByVerification: make(map[model.VerificationStatus]int),
	}
	for rows.Next() {
		var (
			role   string
			status string
			n      int
		)
		if err := rows.Scan(&role, &status, &n); err != nil {
			return nil, fmt.Errorf("scan account count: %w", err)
		}
		counts.ByRole[model.Role(role)] += n
		if model.Role(role) == model.RoleDoctor {
			counts.ByVerification[model.VerificationStatus(status)] += n
		}
	}
	return counts, rows.Err()
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var role, status string
	var medicalID *string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Name,
		&user.Phone,
		&medicalID,
		&user.Specialization,
		&user.Qualifications,
		&user.Availability,
		&user.Bio,
		&status,
		&user.VerificationNote,
		&user.Age,
		&user.Gender,
		&user.HeightCM,
		&user.WeightKG,
		&user.FitnessGoal,
		&user.Allergies,
		&user.HealthIssues,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = model.Role(role)
	user.VerificationStatus = model.VerificationStatus(status)
	if medicalID != nil {
		user.MedicalID = *medicalID
	}
	return &user, nil
}

func wrapUserErr(err error, lookup string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	return fmt.Errorf("failed to get user %s: %w", lookup, err)
}
