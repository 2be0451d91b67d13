package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

// CareHandler serves nutritionist requests, assignments and the roster.
type CareHandler struct {
	svc    *service.CareService
	logger *slog.Logger
}

// NewCareHandler creates a new CareHandler.
func NewCareHandler(svc *service.CareService, logger *slog.Logger) *CareHandler {
	return &CareHandler{svc: svc, logger: logger.With("handler", "care")}
}

// RequestNutritionist handles POST /api/v1/nutritionists/{id}/requests.
func (h *CareHandler) RequestNutritionist(w http.ResponseWriter, r *http.Request) {
	var req dto.NutritionistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patient := auth.MustAuthFromContext(r.Context())
	pending, err := h.svc.RequestNutritionist(r.Context(), patient, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("nutritionist_requested",
		"request_id", pending.ID,
		"patient_id", patient.UserID,
		"nutritionist_id", pending.NutritionistID,
	)
	writeJSON(w, http.StatusCreated, pending)
}

// Assignment handles GET /api/v1/me/assignment.
func (h *CareHandler) Assignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAssignment(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListRequests handles GET /api/v1/requests.
func (h *CareHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.ListRequests(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(reqs))
}

// Approve handles POST /api/v1/requests/{id}/approve.
func (h *CareHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

// Reject handles POST /api/v1/requests/{id}/reject.
func (h *CareHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

func (h *CareHandler) resolve(w http.ResponseWriter, r *http.Request, approve bool) {
	nutritionistID := auth.UserIDFromContext(r.Context())
	requestID := chi.URLParam(r, "id")
	a, err := h.svc.ResolveRequest(r.Context(), nutritionistID, requestID, approve)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("request_resolved",
		"request_id", requestID,
		"nutritionist_id", nutritionistID,
		"status", a.Status,
	)
	writeJSON(w, http.StatusOK, a)
}

// Roster handles GET /api/v1/patients.
func (h *CareHandler) Roster(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Roster(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(entries))
}

// Patient handles GET /api/v1/patients/{id}.
func (h *CareHandler) Patient(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetPatient(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// patientID resolves the patient a request is about: the {id} path
// parameter on nutritionist routes, the caller on /me routes.
func patientID(r *http.Request) string {
	if id := chi.URLParam(r, "id"); id != "" {
		return id
	}
	return auth.UserIDFromContext(r.Context())
}
