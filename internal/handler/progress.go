package handler

import (
	"log/slog"
	"net/http"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/service"
)

// ProgressHandler handles meal logging and progress summaries.
type ProgressHandler struct {
	svc    *service.ProgressService
	logger *slog.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(svc *service.ProgressService, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{
		svc:    svc,
		logger: logger.With("component", "handler.progress"),
	}
}

// LogMeal handles POST /api/v1/me/progress/meals. A queued log is
// acknowledged with 202; a log written synchronously with 201.
func (h *ProgressHandler) LogMeal(w http.ResponseWriter, r *http.Request) {
	var req dto.MealLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.LogMeal(r.Context(), auth.UserIDFromContext(r.Context()), service.MealLogInput{
		Date:     req.Date,
		MealType: model.MealType(req.MealType),
		Followed: req.Followed,
		Note:     req.Note,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Summary handles GET /api/v1/me/progress and GET /api/v1/patients/{id}/progress.
func (h *ProgressHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context(), auth.MustAuthFromContext(r.Context()), patientID(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
