package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

// Errors for patient/nutritionist assignment operations.
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAssignmentExists   = errors.New("patient already has an open assignment")
	ErrRequestNotFound    = errors.New("pending request not found")
)

const assignmentColumns = `patient_id, nutritionist_id, status, requested_at, approved_at, rejected_at, updated_at`

// CreatePendingRequest opens a request from a patient to a nutritionist and
// marks the patient's assignment pending. A patient with a pending or
// approved assignment cannot open another.
func (r *Repository) CreatePendingRequest(ctx context.Context, req *model.PendingRequest) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM assignments WHERE patient_id = $1 FOR UPDATE`,
			req.PatientID,
		).Scan(&status)
		switch {
		case err == nil:
			if model.AssignmentStatus(status).IsOpen() {
				return ErrAssignmentExists
			}
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("failed to lock assignment: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO assignments (patient_id, nutritionist_id, status, requested_at, updated_at)
			VALUES ($1, $2, 'pending', $3, $3)
			ON CONFLICT (patient_id) DO UPDATE
			SET nutritionist_id = EXCLUDED.nutritionist_id,
			    status = 'pending',
			    requested_at = EXCLUDED.requested_at,
			    approved_at = NULL,
			    rejected_at = NULL,
			    updated_at = EXCLUDED.updated_at
		`, req.PatientID, req.NutritionistID, req.RequestedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAssignmentExists
			}
			return fmt.Errorf("failed to upsert assignment: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pending_requests (id, nutritionist_id, patient_id, patient_name, patient_email, message, requested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, req.ID, req.NutritionistID, req.PatientID, req.PatientName, req.PatientEmail, req.Message, req.RequestedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAssignmentExists
			}
			return fmt.Errorf("failed to create pending request: %w", err)
		}
		return nil
	})
}

// ResolvePendingRequest approves or rejects a request addressed to
// nutritionistID: the assignment is updated and the request deleted in one
// transaction.
func (r *Repository) ResolvePendingRequest(ctx context.Context, requestID, nutritionistID string, approve bool) (*model.Assignment, error) {
	var assignment *model.Assignment

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var patientID string
		err := tx.QueryRow(ctx, `
			DELETE FROM pending_requests
			WHERE id = $1 AND nutritionist_id = $2
			RETURNING patient_id
		`, requestID, nutritionistID).Scan(&patientID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("failed to delete pending request: %w", err)
		}

		now := time.Now().UTC()
		query := `
			UPDATE assignments
			SET status = 'rejected', rejected_at = $3, updated_at = $3
			WHERE patient_id = $1 AND nutritionist_id = $2
			RETURNING ` + assignmentColumns
		if approve {
			query = `
				UPDATE assignments
				SET status = 'approved', approved_at = $3, updated_at = $3
				WHERE patient_id = $1 AND nutritionist_id = $2
				RETURNING ` + assignmentColumns
		}

		assignment, err = scanAssignment(tx.QueryRow(ctx, query, patientID, nutritionistID, now))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAssignmentNotFound
			}
			return fmt.Errorf("failed to update assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// GetAssignment returns a patient's current assignment.
func (r *Repository) GetAssignment(ctx context.Context, patientID string) (*model.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE patient_id = $1`
	assignment, err := scanAssignment(r.pool.QueryRow(ctx, query, patientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

// GetPendingRequest returns one pending request.
func (r *Repository) GetPendingRequest(ctx context.Context, id string) (*model.PendingRequest, error) {
	query := `
		SELECT id, nutritionist_id, patient_id, patient_name, patient_email, message, requested_at
		FROM pending_requests
		WHERE id = $1
	`
	var req model.PendingRequest
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.NutritionistID, &req.PatientID,
		&req.PatientName, &req.PatientEmail, &req.Message, &req.RequestedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get pending request: %w", err)
	}
	return &req, nil
}

// ListPendingRequests returns a nutritionist's inbox, oldest first.
func (r *Repository) ListPendingRequests(ctx context.Context, nutritionistID string) ([]*model.PendingRequest, error) {
	query := `
		SELECT id, nutritionist_id, patient_id, patient_name, patient_email, message, requested_at
		FROM pending_requests
		WHERE nutritionist_id = $1
		ORDER BY requested_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, nutritionistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.PendingRequest
	for rows.Next() {
		var req model.PendingRequest
		if err := rows.Scan(
			&req.ID, &req.NutritionistID, &req.PatientID,
			&req.PatientName, &req.PatientEmail, &req.Message, &req.RequestedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		requests = append(requests, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending requests: %w", err)
	}
	return requests, nil
}

// RosterRow is one approved patient with raw adherence counters for the
// window starting at since.
type RosterRow struct {
	Entry         model.RosterEntry
	MealsLogged   int
	MealsFollowed int
	DaysFollowed  int
}

// ListRoster returns a nutritionist's approved patients ordered by name.
// If patientID is non-empty only that patient is returned.
func (r *Repository) ListRoster(ctx context.Context, nutritionistID, patientID string, since time.Time) ([]*RosterRow, error) {
	query := `
		SELECT u.id, u.name, u.email, u.age, u.weight_kg, u.fitness_goal, a.approved_at,
		       COALESCE(SUM(dp.meals_logged), 0),
		       COALESCE(SUM(dp.meals_followed), 0),
		       COUNT(dp.day) FILTER (WHERE dp.meals_followed > 0)
		FROM assignments a
		JOIN users u ON u.id = a.patient_id
		LEFT JOIN daily_progress dp ON dp.patient_id = a.patient_id AND dp.day >= $2
		WHERE a.nutritionist_id = $1 AND a.status = 'approved'
		  AND ($3 = '' OR a.patient_id = $3)
		GROUP BY u.id, u.name, u.email, u.age, u.weight_kg, u.fitness_goal, a.approved_at
		ORDER BY u.name ASC, u.id ASC
	`

	rows, err := r.pool.Query(ctx, query, nutritionistID, since.UTC().Truncate(24*time.Hour), patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	defer rows.Close()

	var roster []*RosterRow
	for rows.Next() {
		var row RosterRow
		if err := rows.Scan(
			&row.Entry.PatientID,
			&row.Entry.Name,
			&row.Entry.Email,
			&row.Entry.Age,
			&row.Entry.WeightKG,
			&row.Entry.FitnessGoal,
			&row.Entry.ApprovedAt,
			&row.MealsLogged,
			&row.MealsFollowed,
			&row.DaysFollowed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan roster row: %w", err)
		}
		roster = append(roster, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster: %w", err)
	}
	return roster, nil
}

func scanAssignment(row pgx.Row) (*model.Assignment, error) {
	var a model.Assignment
	var status string
	err := row.Scan(
		&a.PatientID,
		&a.NutritionistID,
		&status,
		&a.RequestedAt,
		&a.ApprovedAt,
		&a.RejectedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AssignmentStatus(status)
	return &a, nil
}
