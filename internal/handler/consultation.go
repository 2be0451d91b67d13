package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

// ConsultationHandler books and cancels sessions.
type ConsultationHandler struct {
	svc    *service.ConsultationService
	logger *slog.Logger
}

// NewConsultationHandler creates a new ConsultationHandler.
func NewConsultationHandler(svc *service.ConsultationService, logger *slog.Logger) *ConsultationHandler {
	return &ConsultationHandler{svc: svc, logger: logger.With("handler", "consultation")}
}

// Book handles POST /api/v1/me/consultations.
func (h *ConsultationHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req dto.ConsultationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.Book(r.Context(), auth.MustAuthFromContext(r.Context()), service.BookingInput{
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("consultation_booked",
		"consultation_id", c.ID,
		"patient_id", c.PatientID,
		"nutritionist_id", c.NutritionistID,
	)
	writeJSON(w, http.StatusCreated, c)
}

// ListMine handles GET /api/v1/me/consultations.
func (h *ConsultationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListForPatient(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(list))
}

// ListUpcoming handles GET /api/v1/consultations.
func (h *ConsultationHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListUpcoming(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(list))
}

// Cancel handles POST /api/v1/consultations/{id}/cancel.
func (h *ConsultationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Cancel(r.Context(), auth.MustAuthFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
