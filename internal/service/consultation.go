package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
	"github.com/smartdiet/smartdiet/internal/webhook"
)

const maxConsultationNotes = 500

// maxBookingAhead bounds how far in advance a session may be booked.
const maxBookingAhead = 365 * 24 * time.Hour

// ConsultationService books and cancels sessions.
type ConsultationService struct {
	repo      *repository.Repository
	care      *CareService
	publisher *webhook.Publisher
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewConsultationService creates a new ConsultationService. publisher may be nil.
func NewConsultationService(repo *repository.Repository, care *CareService, publisher *webhook.Publisher, logger *slog.Logger, recorder metrics.Recorder) *ConsultationService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ConsultationService{
		repo:      repo,
		care:      care,
		publisher: publisher,
		logger:    logger,
		metrics:   recorder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// BookingInput is the book-session form.
type BookingInput struct {
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           string
}

// validateBooking checks the booking window and duration.
func validateBooking(in *BookingInput, now time.Time) error {
	if in.ScheduledAt.IsZero() {
		return invalid("scheduled_at", "is required")
	}
	if !in.ScheduledAt.After(now) {
		return invalid("scheduled_at", "must be in the future")
	}
	if in.ScheduledAt.Sub(now) > maxBookingAhead {
		return invalid("scheduled_at", "must be within a year")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = 30
	}
	if in.DurationMinutes < model.MinConsultationMinutes || in.DurationMinutes > model.MaxConsultationMinutes {
		return invalid("duration_minutes", "must be between %d and %d", model.MinConsultationMinutes, model.MaxConsultationMinutes)
	}
	in.Notes = textutil.CleanText(in.Notes)
	if textutil.Length(in.Notes) > maxConsultationNotes {
		return invalid("notes", "must be at most %d characters", maxConsultationNotes)
	}
	return nil
}

// Book schedules a session with the patient's approved nutritionist.
func (s *ConsultationService) Book(ctx context.Context, patient *model.AuthContext, in BookingInput) (*model.Consultation, error) {
	if err := validateBooking(&in, s.now()); err != nil {
		return nil, err
	}
	nutritionistID, err := s.care.ApprovedNutritionist(ctx, patient.UserID)
	if err != nil {
		return nil, err
	}

	ts := now()
	c := &model.Consultation{
		ID:              newID(),
		PatientID:       patient.UserID,
		NutritionistID:  nutritionistID,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		Notes:           in.Notes,
		Status:          model.ConsultationBooked,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := s.repo.CreateConsultation(ctx, c); err != nil {
		return nil, err
	}
	s.metrics.IncDomainEvent("consultation_booked")

	if s.publisher != nil {
		if err := s.publisher.PublishConsultationBooked(ctx, c); err != nil {
			s.logger.Warn("failed to publish consultation webhook", "consultation_id", c.ID, "error", err)
		}
	}
	return c, nil
}

// ListForPatient returns the patient's consultations, soonest first.
func (s *ConsultationService) ListForPatient(ctx context.Context, patientID string) ([]*model.Consultation, error) {
	list, err := s.repo.ListPatientConsultations(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.Consultation{}
	}
	return list, nil
}

// ListUpcoming returns the nutritionist's booked sessions from now on.
func (s *ConsultationService) ListUpcoming(ctx context.Context, nutritionistID string) ([]*model.Consultation, error) {
	list, err := s.repo.ListUpcomingConsultations(ctx, nutritionistID, s.now())
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.Consultation{}
	}
	return list, nil
}

// Cancel cancels a booked consultation. Either participant may cancel.
func (s *ConsultationService) Cancel(ctx context.Context, caller *model.AuthContext, id string) (*model.Consultation, error) {
	c, err := s.repo.GetConsultation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrConsultationNotFound) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}
	if !c.IsParticipant(caller.UserID) {
		// Hide the existence of other people's sessions.
		return nil, ErrConsultationNotFound
	}
	if c.Status == model.ConsultationCancelled {
		return nil, ErrConsultationClosed
	}
	if err := s.repo.CancelConsultation(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConsultationNotFound) {
			return nil, ErrConsultationClosed
		}
		return nil, err
	}
	c.Status = model.ConsultationCancelled
	c.UpdatedAt = now()
	s.metrics.IncDomainEvent("consultation_cancelled")
	return c, nil
}
