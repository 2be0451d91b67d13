package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

// Errors for review operations.
var (
	ErrReviewNotFound = errors.New("review not found")
	ErrReviewExists   = errors.New("review already exists")
)

const reviewColumns = `id, nutritionist_id, patient_id, patient_name, rating, title, content, created_at, updated_at`

// CreateReview inserts a review. A patient has at most one live review per
// nutritionist.
func (r *Repository) CreateReview(ctx context.Context, review *model.Review) error {
	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		review.ID,
		review.NutritionistID,
		review.PatientID,
		review.PatientName,
		review.Rating,
		review.Title,
		review.Content,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrReviewExists
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// GetReview returns a live review by ID.
func (r *Repository) GetReview(ctx context.Context, id string) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1 AND deleted_at IS NULL`
	review, err := scanReview(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return review, nil
}

// UpdateReview writes rating, title and content.
func (r *Repository) UpdateReview(ctx context.Context, review *model.Review) error {
	query := `
		UPDATE reviews
		SET rating = $2, title = $3, content = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, review.ID, review.Rating, review.Title, review.Content, review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// DeleteReview soft-deletes a review.
func (r *Repository) DeleteReview(ctx context.Context, id string) error {
	query := `
		UPDATE reviews
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// ListReviews returns a nutritionist's live reviews newest first. A rating
// of 0 means all ratings.
func (r *Repository) ListReviews(ctx context.Context, nutritionistID string, rating, limit int) ([]*model.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE nutritionist_id = $1 AND deleted_at IS NULL
		  AND ($2 = 0 OR rating = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, nutritionistID, rating, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}

// RatingCounts returns live review counts per star, indexed 1..5.
func (r *Repository) RatingCounts(ctx context.Context, nutritionistID string) ([6]int, error) {
	var counts [6]int

	query := `
		SELECT rating, COUNT(*)
		FROM reviews
		WHERE nutritionist_id = $1 AND deleted_at IS NULL
		GROUP BY rating
	`
	rows, err := r.pool.Query(ctx, query, nutritionistID)
	if err != nil {
		return counts, fmt.Errorf("failed to count ratings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return counts, fmt.Errorf("failed to scan rating count: %w", err)
		}
		if rating >= 1 && rating <= 5 {
			counts[rating] = count
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("error iterating rating counts: %w", err)
	}
	return counts, nil
}

func scanReview(row pgx.Row) (*model.Review, error) {
	var review model.Review
	err := row.Scan(
		&review.ID,
		&review.NutritionistID,
		&review.PatientID,
		&review.PatientName,
		&review.Rating,
		&review.Title,
		&review.Content,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &review, nil
}
