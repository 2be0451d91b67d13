package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

// ProfileHandler serves the caller's account and nutritionist profiles.
type ProfileHandler struct {
	svc    *service.ProfileService
	logger *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(svc *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{svc: svc, logger: logger.With("handler", "profile")}
}

// Me handles GET /api/v1/me.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /api/v1/me.
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), auth.UserIDFromContext(r.Context()), service.ProfileUpdate{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		Qualifications: req.Qualifications,
		Availability:   req.Availability,
		Bio:            req.Bio,
		Age:            req.Age,
		Gender:         req.Gender,
		HeightCM:       req.HeightCM,
		WeightKG:       req.WeightKG,
		FitnessGoal:    req.FitnessGoal,
		Allergies:      req.Allergies,
		HealthIssues:   req.HealthIssues,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListNutritionists handles GET /api/v1/nutritionists.
func (h *ProfileHandler) ListNutritionists(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListNutritionists(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(list))
}

// GetNutritionist handles GET /api/v1/nutritionists/{id}.
func (h *ProfileHandler) GetNutritionist(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.GetNutritionist(r.Context(), chi.URLParam(r, "id"), auth.AuthFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
