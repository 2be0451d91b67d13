package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

// MealLogRepository provides database access for meal logs and their daily
// aggregates.
type MealLogRepository struct {
	repo *Repository
}

// NewMealLogRepository creates a new MealLogRepository.
func NewMealLogRepository(repo *Repository) *MealLogRepository {
	return &MealLogRepository{repo: repo}
}

// BulkUpsert writes meal logs. A later log for the same patient, day and
// meal replaces an earlier one; replays of an older log are ignored.
func (r *MealLogRepository) BulkUpsert(ctx context.Context, logs []*model.MealLog) error {
	if len(logs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO meal_logs (id, event_id, patient_id, log_date, meal_type, followed, note, logged_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (patient_id, log_date, meal_type) DO UPDATE
		SET followed = EXCLUDED.followed,
		    note = EXCLUDED.note,
		    event_id = EXCLUDED.event_id,
		    logged_at = EXCLUDED.logged_at
		WHERE meal_logs.logged_at <= EXCLUDED.logged_at
	`

	for _, log := range logs {
		batch.Queue(query,
			log.ID,
			nullableString(log.EventID),
			log.PatientID,
			log.Date,
			string(log.MealType),
			log.Followed,
			log.Note,
			log.LoggedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range logs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert meal log %d: %w", i, err)
		}
	}

	return nil
}

// UpdateDailyProgress recomputes the daily aggregate for every patient/day
// touched by logs.
func (r *MealLogRepository) UpdateDailyProgress(ctx context.Context, logs []*model.MealLog) error {
	for _, key := range uniqueDailyKeys(logs) {
		if err := r.recalculateDay(ctx, key.patientID, key.date); err != nil {
			return fmt.Errorf("recalculate progress %s:%s: %w", key.patientID, key.date.Format("2006-01-02"), err)
		}
	}
	return nil
}

type dailyKey struct {
	patientID string
	date      time.Time
}

func uniqueDailyKeys(logs []*model.MealLog) []dailyKey {
	seen := make(map[string]bool)
	var keys []dailyKey
	for _, log := range logs {
		day := log.Date.UTC().Truncate(24 * time.Hour)
		id := log.PatientID + ":" + day.Format("2006-01-02")
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, dailyKey{patientID: log.PatientID, date: day})
	}
	return keys
}

func (r *MealLogRepository) recalculateDay(ctx context.Context, patientID string, day time.Time) error {
	query := `
		INSERT INTO daily_progress (patient_id, day, meals_logged, meals_followed, updated_at)
		SELECT $1, $2, COUNT(*), COUNT(*) FILTER (WHERE followed), NOW()
		FROM meal_logs
		WHERE patient_id = $1 AND log_date = $2
		ON CONFLICT (patient_id, day) DO UPDATE
		SET meals_logged = EXCLUDED.meals_logged,
		    meals_followed = EXCLUDED.meals_followed,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.repo.pool.Exec(ctx, query, patientID, day)
	return err
}

// GetDailyProgress returns per-day aggregates in [from, to], oldest first.
func (r *MealLogRepository) GetDailyProgress(ctx context.Context, patientID string, from, to time.Time) ([]model.DailyProgress, error) {
	query := `
		SELECT patient_id, day, meals_logged, meals_followed, updated_at
		FROM daily_progress
		WHERE patient_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC
	`

	rows, err := r.repo.pool.Query(ctx, query, patientID, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily progress: %w", err)
	}
	defer rows.Close()

	var days []model.DailyProgress
	for rows.Next() {
		var d model.DailyProgress
		if err := rows.Scan(&d.PatientID, &d.Date, &d.MealsLogged, &d.MealsFollowed, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily progress: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily progress: %w", err)
	}
	return days, nil
}
