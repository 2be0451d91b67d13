package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

// ErrConsultationNotFound is returned when a consultation does not exist.
var ErrConsultationNotFound = errors.New("consultation not found")

const consultationColumns = `
	id, patient_id, nutritionist_id, scheduled_at, duration_minutes, notes,
	status, created_at, updated_at`

// CreateConsultation books a session.
func (r *Repository) CreateConsultation(ctx context.Context, c *model.Consultation) error {
	query := `
		INSERT INTO consultations (` + consultationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.PatientID,
		c.NutritionistID,
		c.ScheduledAt,
		c.DurationMinutes,
		c.Notes,
		string(c.Status),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

// GetConsultation returns a consultation by ID.
func (r *Repository) GetConsultation(ctx context.Context, id string) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`
	c, err := scanConsultation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	return c, nil
}

// CancelConsultation marks a booked consultation cancelled.
func (r *Repository) CancelConsultation(ctx context.Context, id string) error {
	query := `
		UPDATE consultations
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'booked'
	`
	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cancel consultation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConsultationNotFound
	}
	return nil
}

// ListPatientConsultations returns a patient's consultations, soonest first.
func (r *Repository) ListPatientConsultations(ctx context.Context, patientID string) ([]*model.Consultation, error) {
	query := `
		SELECT ` + consultationColumns + `
		FROM consultations
		WHERE patient_id = $1
		ORDER BY scheduled_at ASC
	`
	return r.queryConsultations(ctx, query, patientID)
}

// ListUpcomingConsultations returns a nutritionist's booked sessions from now on.
func (r *Repository) ListUpcomingConsultations(ctx context.Context, nutritionistID string, now time.Time) ([]*model.Consultation, error) {
	query := `
		SELECT ` + consultationColumns + `
		FROM consultations
		WHERE nutritionist_id = $1 AND status = 'booked' AND scheduled_at >= $2
		ORDER BY scheduled_at ASC
	`
	return r.queryConsultations(ctx, query, nutritionistID, now)
}

// NextConsultation returns the next booked session between a patient and a
// nutritionist, or ErrConsultationNotFound.
func (r *Repository) NextConsultation(ctx context.Context, patientID, nutritionistID string, now time.Time) (*model.Consultation, error) {
	query := `
		SELECT ` + consultationColumns + `
		FROM consultations
		WHERE patient_id = $1 AND nutritionist_id = $2 AND status = 'booked' AND scheduled_at >= $3
		ORDER BY scheduled_at ASC
		LIMIT 1
	`
	c, err := scanConsultation(r.pool.QueryRow(ctx, query, patientID, nutritionistID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, fmt.Errorf("failed to get next consultation: %w", err)
	}
	return c, nil
}

func (r *Repository) queryConsultations(ctx context.Context, query string, args ...any) ([]*model.Consultation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}
	defer rows.Close()

	var out []*model.Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consultations: %w", err)
	}
	return out, nil
}

func scanConsultation(row pgx.Row) (*model.Consultation, error) {
	var c model.Consultation
	var status string
	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.NutritionistID,
		&c.ScheduledAt,
		&c.DurationMinutes,
		&c.Notes,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ConsultationStatus(status)
	return &c, nil
}
