package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/smartdiet/smartdiet/internal/export"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

const (
	maxMealLength     = 1000
	maxNotesLength    = 5000
	planHistoryLimit  = 50
	planHistoryExport = 20
)

// DietPlanService manages nutritionist-authored plans.
type DietPlanService struct {
	repo    *repository.Repository
	care    *CareService
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewDietPlanService creates a new DietPlanService.
func NewDietPlanService(repo *repository.Repository, care *CareService, logger *slog.Logger, recorder metrics.Recorder) *DietPlanService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &DietPlanService{repo: repo, care: care, logger: logger, metrics: recorder}
}

// DietPlanInput is the plan form.
type DietPlanInput struct {
	PlanName      string
	Duration      string
	CalorieTarget int
	Breakfast     string
	Lunch         string
	Dinner        string
	Snacks        string
	Notes         string
}

// normalizeDietPlan sanitizes in and enforces required fields and bounds.
func normalizeDietPlan(in *DietPlanInput) error {
	in.PlanName = textutil.Truncate(textutil.CleanText(in.PlanName), 100)
	if in.PlanName == "" {
		return invalid("plan_name", "is required")
	}
	in.Duration = textutil.Truncate(textutil.CleanText(in.Duration), 50)

	meals := map[string]*string{
		"breakfast": &in.Breakfast,
		"lunch":     &in.Lunch,
		"dinner":    &in.Dinner,
		"snacks":    &in.Snacks,
	}
	present := 0
	for field, meal := range meals {
		*meal = textutil.CleanText(*meal)
		if textutil.Length(*meal) > maxMealLength {
			return invalid(field, "must be at most %d characters", maxMealLength)
		}
		if *meal != "" {
			present++
		}
	}
	if present == 0 {
		return invalid("meals", "at least one meal is required")
	}

	if in.CalorieTarget != 0 && (in.CalorieTarget < model.MinCalorieTarget || in.CalorieTarget > model.MaxCalorieTarget) {
		return invalid("calorie_target", "must be between %d and %d", model.MinCalorieTarget, model.MaxCalorieTarget)
	}

	// Notes are Markdown. Indentation and blank lines are significant, and
	// raw HTML is dropped when rendering.
	in.Notes = textutil.NormalizeMarkdown(in.Notes)
	if textutil.Length(in.Notes) > maxNotesLength {
		return invalid("notes", "must be at most %d characters", maxNotesLength)
	}
	return nil
}

// Save replaces the patient's active plan. The caller must be the
// patient's approved nutritionist.
func (s *DietPlanService) Save(ctx context.Context, doctor *model.AuthContext, patientID string, in DietPlanInput) (*model.DietPlan, error) {
	if err := normalizeDietPlan(&in); err != nil {
		return nil, err
	}
	if err := s.care.RequireAssigned(ctx, doctor.UserID, patientID); err != nil {
		return nil, err
	}

	ts := now()
	plan := &model.DietPlan{
		ID:               newID(),
		PatientID:        patientID,
		NutritionistID:   doctor.UserID,
		NutritionistName: doctor.Name,
		PlanName:         in.PlanName,
		Duration:         in.Duration,
		CalorieTarget:    in.CalorieTarget,
		Breakfast:        in.Breakfast,
		Lunch:            in.Lunch,
		Dinner:           in.Dinner,
		Snacks:           in.Snacks,
		Notes:            in.Notes,
		Status:           model.DietPlanActive,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	if err := s.repo.ReplaceActivePlan(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrDietPlanConflict) {
			return nil, ErrDietPlanConflict
		}
		return nil, err
	}
	s.metrics.IncDomainEvent("diet_plan_saved")
	s.logger.Info("diet plan saved", "patient_id", patientID, "nutritionist_id", doctor.UserID, "plan_id", plan.ID)
	return plan, nil
}

// DietPlanView is a plan with its notes rendered to HTML.
type DietPlanView struct {
	*model.DietPlan
	NotesHTML string `json:"notes_html,omitempty"`
}

// Active returns the patient's active plan. viewer must be allowed to see
// the patient.
func (s *DietPlanService) Active(ctx context.Context, viewer *model.AuthContext, patientID string) (*DietPlanView, error) {
	if err := s.care.CanViewPatient(ctx, viewer, patientID); err != nil {
		return nil, err
	}
	plan, err := s.activePlan(ctx, patientID)
	if err != nil {
		return nil, err
	}
	html, err := textutil.RenderMarkdown(plan.Notes)
	if err != nil {
		return nil, err
	}
	return &DietPlanView{DietPlan: plan, NotesHTML: html}, nil
}

func (s *DietPlanService) activePlan(ctx context.Context, patientID string) (*model.DietPlan, error) {
	plan, err := s.repo.GetActivePlan(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrDietPlanNotFound) {
			return nil, ErrDietPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// History returns the patient's archived plans, newest first. The active
// plan is served by Active.
func (s *DietPlanService) History(ctx context.Context, viewer *model.AuthContext, patientID string) ([]*model.DietPlan, error) {
	if err := s.care.CanViewPatient(ctx, viewer, patientID); err != nil {
		return nil, err
	}
	plans, err := s.repo.ListArchivedPlans(ctx, patientID, planHistoryLimit)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []*model.DietPlan{}
	}
	return plans, nil
}

// Export writes the active plan and archived history as an .xlsx workbook
// and returns the attachment filename.
func (s *DietPlanService) Export(ctx context.Context, viewer *model.AuthContext, patientID string, w io.Writer) (string, error) {
	if err := s.care.CanViewPatient(ctx, viewer, patientID); err != nil {
		return "", err
	}
	plan, err := s.activePlan(ctx, patientID)
	if err != nil {
		return "", err
	}
	archived, err := s.repo.ListArchivedPlans(ctx, patientID, planHistoryExport)
	if err != nil {
		return "", err
	}
	if err := export.WriteDietPlan(w, plan, archived); err != nil {
		return "", err
	}
	return export.Filename(plan), nil
}
