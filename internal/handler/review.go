package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

// ReviewHandler serves nutritionist reviews.
type ReviewHandler struct {
	svc    *service.ReviewService
	logger *slog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, logger: logger.With("handler", "review")}
}

func toReviewInput(req dto.ReviewRequest) service.ReviewInput {
	return service.ReviewInput{Rating: req.Rating, Title: req.Title, Content: req.Content}
}

// Create handles POST /api/v1/nutritionists/{id}/reviews.
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := h.svc.Create(r.Context(), auth.MustAuthFromContext(r.Context()), chi.URLParam(r, "id"), toReviewInput(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// List handles GET /api/v1/nutritionists/{id}/reviews?rating=N.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	rating := 0
	if raw := r.URL.Query().Get("rating"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "rating: must be a number between 1 and 5")
			return
		}
		rating = n
	}
	list, err := h.svc.List(r.Context(), chi.URLParam(r, "id"), rating)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Update handles PATCH /api/v1/reviews/{id}.
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := h.svc.Update(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), toReviewInput(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// Delete handles DELETE /api/v1/reviews/{id}.
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	noContent(w)
}
