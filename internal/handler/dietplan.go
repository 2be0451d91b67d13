package handler

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/export"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

// DietPlanHandler serves diet plans and their spreadsheet export.
type DietPlanHandler struct {
	svc    *service.DietPlanService
	logger *slog.Logger
}

// NewDietPlanHandler creates a new DietPlanHandler.
func NewDietPlanHandler(svc *service.DietPlanService, logger *slog.Logger) *DietPlanHandler {
	return &DietPlanHandler{svc: svc, logger: logger.With("handler", "dietplan")}
}

// Save handles PUT /api/v1/patients/{id}/diet-plan.
func (h *DietPlanHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req dto.DietPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctor := auth.MustAuthFromContext(r.Context())
	plan, err := h.svc.Save(r.Context(), doctor, patientID(r), service.DietPlanInput{
		PlanName:      req.PlanName,
		Duration:      req.Duration,
		CalorieTarget: req.CalorieTarget,
		Breakfast:     req.Breakfast,
		Lunch:         req.Lunch,
		Dinner:        req.Dinner,
		Snacks:        req.Snacks,
		Notes:         req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("diet_plan_saved", "plan_id", plan.ID, "patient_id", plan.PatientID, "nutritionist_id", doctor.UserID)
	writeJSON(w, http.StatusOK, plan)
}

// Active handles GET /api/v1/patients/{id}/diet-plan and GET /api/v1/me/diet-plan.
func (h *DietPlanHandler) Active(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Active(r.Context(), auth.MustAuthFromContext(r.Context()), patientID(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// History handles GET /api/v1/patients/{id}/diet-plan/history and its /me twin.
func (h *DietPlanHandler) History(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.History(r.Context(), auth.MustAuthFromContext(r.Context()), patientID(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(plans))
}

// Export handles GET /api/v1/patients/{id}/diet-plan/export and its /me twin.
// The workbook is buffered so a failure still yields a JSON error.
func (h *DietPlanHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	filename, err := h.svc.Export(r.Context(), auth.MustAuthFromContext(r.Context()), patientID(r), &buf)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
