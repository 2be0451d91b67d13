package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
	"github.com/smartdiet/smartdiet/internal/webhook"
)

// RosterWindowDays is the adherence window shown on the roster.
const RosterWindowDays = 30

const maxRequestMessage = 500

// CareService manages patient requests and the nutritionist roster.
type CareService struct {
	repo      *repository.Repository
	publisher *webhook.Publisher
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewCareService creates a new CareService. publisher may be nil.
func NewCareService(repo *repository.Repository, publisher *webhook.Publisher, logger *slog.Logger, recorder metrics.Recorder) *CareService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CareService{repo: repo, publisher: publisher, logger: logger, metrics: recorder}
}

// RequestNutritionist opens a request from the patient to a verified doctor.
func (s *CareService) RequestNutritionist(ctx context.Context, patient *model.AuthContext, nutritionistID, message string) (*model.PendingRequest, error) {
	if _, err := verifiedDoctor(ctx, s.repo, nutritionistID); err != nil {
		return nil, err
	}
	message = textutil.CleanText(message)
	if textutil.Length(message) > maxRequestMessage {
		return nil, invalid("message", "must be at most %d characters", maxRequestMessage)
	}

	req := &model.PendingRequest{
		ID:             newID(),
		NutritionistID: nutritionistID,
		PatientID:      patient.UserID,
		PatientName:    patient.Name,
		PatientEmail:   patient.Email,
		Message:        message,
		RequestedAt:    now(),
	}
	if err := s.repo.CreatePendingRequest(ctx, req); err != nil {
		if errors.Is(err, repository.ErrAssignmentExists) {
			return nil, ErrAssignmentExists
		}
		return nil, err
	}

	s.metrics.IncDomainEvent("request_created")
	if s.publisher != nil {
		if err := s.publisher.PublishRequestCreated(ctx, req); err != nil {
			s.logger.Warn("failed to publish request webhook", "request_id", req.ID, "error", err)
		}
	}
	return req, nil
}

// GetAssignment returns the patient's current assignment.
func (s *CareService) GetAssignment(ctx context.Context, patientID string) (*model.Assignment, error) {
	a, err := s.repo.GetAssignment(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrAssignmentNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return a, nil
}

// ApprovedNutritionist returns the nutritionist ID of the patient's approved
// assignment, or ErrNotAssigned.
func (s *CareService) ApprovedNutritionist(ctx context.Context, patientID string) (string, error) {
	a, err := s.GetAssignment(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return "", ErrNotAssigned
		}
		return "", err
	}
	if a.Status != model.AssignmentApproved {
		return "", ErrNotAssigned
	}
	return a.NutritionistID, nil
}

// RequireAssigned fails unless patientID has an approved assignment to
// nutritionistID.
func (s *CareService) RequireAssigned(ctx context.Context, nutritionistID, patientID string) error {
	assigned, err := s.ApprovedNutritionist(ctx, patientID)
	if err != nil {
		return err
	}
	if assigned != nutritionistID {
		return ErrNotAssigned
	}
	return nil
}

// CanViewPatient allows the patient themself and their approved nutritionist.
func (s *CareService) CanViewPatient(ctx context.Context, viewer *model.AuthContext, patientID string) error {
	if viewer.UserID == patientID {
		return nil
	}
	if viewer.Role == model.RoleAdmin {
		return nil
	}
	if viewer.Role != model.RoleDoctor {
		return ErrNotAssigned
	}
	return s.RequireAssigned(ctx, viewer.UserID, patientID)
}

// ListRequests returns the nutritionist's pending requests, oldest first.
func (s *CareService) ListRequests(ctx context.Context, nutritionistID string) ([]*model.PendingRequest, error) {
	reqs, err := s.repo.ListPendingRequests(ctx, nutritionistID)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []*model.PendingRequest{}
	}
	return reqs, nil
}

// ResolveRequest approves or rejects a pending request.
func (s *CareService) ResolveRequest(ctx context.Context, nutritionistID, requestID string, approve bool) (*model.Assignment, error) {
	a, err := s.repo.ResolvePendingRequest(ctx, requestID, nutritionistID, approve)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrAssignmentNotFound):
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	event := "request_rejected"
	if approve {
		event = "request_approved"
	}
	s.metrics.IncDomainEvent(event)
	s.logger.Info("patient request resolved", "nutritionist_id", nutritionistID, "patient_id", a.PatientID, "status", a.Status)
	return a, nil
}

// rosterEntry fills the derived percentages of row. Adherence is the share
// of logged meals followed in the window; progress is the share of window
// days with at least one followed meal, where the window starts no earlier
// than the approval date.
func rosterEntry(row *repository.RosterRow, now time.Time) model.RosterEntry {
	entry := row.Entry
	entry.DaysFollowing = model.DaysSince(entry.ApprovedAt, now)
	if row.MealsLogged > 0 {
		entry.Adherence = int(math.Round(float64(row.MealsFollowed) * 100 / float64(row.MealsLogged)))
	}
	window := min(RosterWindowDays, entry.DaysFollowing+1)
	if window > 0 {
		entry.Progress = min(100, int(math.Round(float64(row.DaysFollowed)*100/float64(window))))
	}
	return entry
}

// Roster returns the nutritionist's approved patients.
func (s *CareService) Roster(ctx context.Context, nutritionistID string) ([]model.RosterEntry, error) {
	ts := time.Now().UTC()
	rows, err := s.repo.ListRoster(ctx, nutritionistID, "", ts.AddDate(0, 0, -(RosterWindowDays-1)))
	if err != nil {
		return nil, err
	}
	out := make([]model.RosterEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, rosterEntry(row, ts))
	}
	return out, nil
}

// PatientDetail is one patient as seen by their nutritionist.
type PatientDetail struct {
	model.RosterEntry
	Gender       string   `json:"gender,omitempty"`
	HeightCM     float64  `json:"height_cm,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Allergies    []string `json:"allergies"`
	HealthIssues []string `json:"health_issues"`
}

// GetPatient returns one assigned patient.
func (s *CareService) GetPatient(ctx context.Context, nutritionistID, patientID string) (*PatientDetail, error) {
	ts := time.Now().UTC()
	rows, err := s.repo.ListRoster(ctx, nutritionistID, patientID, ts.AddDate(0, 0, -(RosterWindowDays-1)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotAssigned
	}
	user, err := s.repo.GetUserByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	detail := &PatientDetail{
		RosterEntry:  rosterEntry(rows[0], ts),
		Gender:       user.Gender,
		HeightCM:     user.HeightCM,
		Phone:        user.Phone,
		Allergies:    user.Allergies,
		HealthIssues: user.HealthIssues,
	}
	if detail.Allergies == nil {
		detail.Allergies = []string{}
	}
	if detail.HealthIssues == nil {
		detail.HealthIssues = []string{}
	}
	return detail, nil
}
