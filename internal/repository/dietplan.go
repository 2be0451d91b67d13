package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

var (
	// ErrDietPlanNotFound is returned when a patient has no active plan.
	ErrDietPlanNotFound = errors.New("diet plan not found")
	// ErrDietPlanConflict is returned when another save took the active slot.
	ErrDietPlanConflict = errors.New("diet plan changed concurrently")
)

const dietPlanColumns = `
	id, patient_id, nutritionist_id, nutritionist_name, plan_name, duration,
	calorie_target, breakfast, lunch, dinner, snacks, notes, status,
	created_at, updated_at`

// ReplaceActivePlan archives the patient's current plan and stores plan as
// the active one. Saves for the same patient are serialized on a
// transaction-scoped advisory lock.
func (r *Repository) ReplaceActivePlan(ctx context.Context, plan *model.DietPlan) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('diet_plans:' || $1))`, plan.PatientID); err != nil {
			return fmt.Errorf("failed to lock diet plans: %w", err)
		}

		_, err := tx.Exec(ctx, `
			UPDATE diet_plans
			SET status = 'archived'
			WHERE patient_id = $1 AND status = 'active'
		`, plan.PatientID)
		if err != nil {
			return fmt.Errorf("failed to archive diet plan: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO diet_plans (`+dietPlanColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			plan.ID,
			plan.PatientID,
			plan.NutritionistID,
			plan.NutritionistName,
			plan.PlanName,
			plan.Duration,
			plan.CalorieTarget,
			plan.Breakfast,
			plan.Lunch,
			plan.Dinner,
			plan.Snacks,
			plan.Notes,
			string(plan.Status),
			plan.CreatedAt,
			plan.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDietPlanConflict
			}
			return fmt.Errorf("failed to insert diet plan: %w", err)
		}
		return nil
	})
}

// GetActivePlan returns the patient's active plan.
func (r *Repository) GetActivePlan(ctx context.Context, patientID string) (*model.DietPlan, error) {
	query := `
		SELECT ` + dietPlanColumns + `
		FROM diet_plans
		WHERE patient_id = $1 AND status = 'active'
	`
	plan, err := scanDietPlan(r.pool.QueryRow(ctx, query, patientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDietPlanNotFound
		}
		return nil, fmt.Errorf("failed to get active diet plan: %w", err)
	}
	return plan, nil
}

// ListArchivedPlans returns the patient's superseded plans, newest first.
// The active plan is not included.
func (r *Repository) ListArchivedPlans(ctx context.Context, patientID string, limit int) ([]*model.DietPlan, error) {
	query := `
		SELECT ` + dietPlanColumns + `
		FROM diet_plans
		WHERE patient_id = $1 AND status = 'archived'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diet plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.DietPlan
	for rows.Next() {
		plan, err := scanDietPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diet plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diet plans: %w", err)
	}
	return plans, nil
}

func scanDietPlan(row pgx.Row) (*model.DietPlan, error) {
	var plan model.DietPlan
	var status string
	err := row.Scan(
		&plan.ID,
		&plan.PatientID,
		&plan.NutritionistID,
		&plan.NutritionistName,
		&plan.PlanName,
		&plan.Duration,
		&plan.CalorieTarget,
		&plan.Breakfast,
		&plan.Lunch,
		&plan.Dinner,
		&plan.Snacks,
		&plan.Notes,
		&status,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	plan.Status = model.DietPlanStatus(status)
	return &plan, nil
}
