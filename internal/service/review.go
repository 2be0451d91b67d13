package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

const (
	maxReviewTitle   = 100
	maxReviewContent = 2000
	reviewListLimit  = 100
)

// ReviewService manages patient reviews of nutritionists.
type ReviewService struct {
	repo    *repository.Repository
	care    *CareService
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewReviewService creates a new ReviewService.
func NewReviewService(repo *repository.Repository, care *CareService, logger *slog.Logger, recorder metrics.Recorder) *ReviewService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ReviewService{repo: repo, care: care, logger: logger, metrics: recorder}
}

// ReviewInput is the review form. Nil fields are unchanged on update.
type ReviewInput struct {
	Rating  *int
	Title   *string
	Content *string
}

func validRating(r int) bool {
	return r >= 1 && r <= 5
}

// applyReview validates in and writes it onto review.
func applyReview(review *model.Review, in ReviewInput) error {
	if in.Rating != nil {
		if !validRating(*in.Rating) {
			return invalid("rating", "must be between 1 and 5")
		}
		review.Rating = *in.Rating
	}
	if in.Title != nil {
		title := textutil.CleanText(*in.Title)
		if textutil.Length(title) > maxReviewTitle {
			return invalid("title", "must be at most %d characters", maxReviewTitle)
		}
		review.Title = title
	}
	if in.Content != nil {
		content := textutil.CleanText(*in.Content)
		if textutil.Length(content) > maxReviewContent {
			return invalid("content", "must be at most %d characters", maxReviewContent)
		}
		review.Content = content
	}
	return nil
}

// Create stores the patient's review of their approved nutritionist.
func (s *ReviewService) Create(ctx context.Context, patient *model.AuthContext, nutritionistID string, in ReviewInput) (*model.Review, error) {
	if in.Rating == nil {
		return nil, invalid("rating", "is required")
	}
	ts := now()
	review := &model.Review{
		ID:             newID(),
		NutritionistID: nutritionistID,
		PatientID:      patient.UserID,
		PatientName:    patient.Name,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if err := applyReview(review, in); err != nil {
		return nil, err
	}
	if err := s.care.RequireAssigned(ctx, nutritionistID, patient.UserID); err != nil {
		return nil, err
	}

	if err := s.repo.CreateReview(ctx, review); err != nil {
		if errors.Is(err, repository.ErrReviewExists) {
			return nil, ErrReviewExists
		}
		return nil, err
	}
	s.metrics.IncDomainEvent("review_created")
	return review, nil
}

func (s *ReviewService) ownReview(ctx context.Context, authorID, reviewID string) (*model.Review, error) {
	review, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	if review.PatientID != authorID {
		return nil, ErrNotAuthor
	}
	return review, nil
}

// Update edits the author's review.
func (s *ReviewService) Update(ctx context.Context, authorID, reviewID string, in ReviewInput) (*model.Review, error) {
	review, err := s.ownReview(ctx, authorID, reviewID)
	if err != nil {
		return nil, err
	}
	if err := applyReview(review, in); err != nil {
		return nil, err
	}
	review.UpdatedAt = now()
	if err := s.repo.UpdateReview(ctx, review); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return review, nil
}

// Delete removes the author's review.
func (s *ReviewService) Delete(ctx context.Context, authorID, reviewID string) error {
	if _, err := s.ownReview(ctx, authorID, reviewID); err != nil {
		return err
	}
	if err := s.repo.DeleteReview(ctx, reviewID); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return ErrReviewNotFound
		}
		return err
	}
	return nil
}

// ReviewList is a nutritionist's reviews with the unfiltered summary.
type ReviewList struct {
	Summary model.RatingSummary `json:"summary"`
	Reviews []*model.Review     `json:"reviews"`
}

// List returns reviews of nutritionistID. rating 0 means every rating.
func (s *ReviewService) List(ctx context.Context, nutritionistID string, rating int) (*ReviewList, error) {
	if rating != 0 && !validRating(rating) {
		return nil, invalid("rating", "must be between 1 and 5")
	}
	if _, err := verifiedDoctor(ctx, s.repo, nutritionistID); err != nil {
		return nil, err
	}
	counts, err := s.repo.RatingCounts(ctx, nutritionistID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListReviews(ctx, nutritionistID, rating, reviewListLimit)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []*model.Review{}
	}
	return &ReviewList{Summary: model.NewRatingSummary(counts), Reviews: reviews}, nil
}
