package handler

import (
	"log/slog"
	"net/http"

	"github.com/smartdiet/smartdiet/internal/assistant"
)

// AssistantHandler serves the public chatbot and meal-plan forms.
type AssistantHandler struct {
	svc    *assistant.Service
	logger *slog.Logger
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(svc *assistant.Service, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{svc: svc, logger: logger.With("handler", "assistant")}
}

// Chat handles POST /chat.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := h.svc.Chat(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// MealPlan handles POST /mealplan.
func (h *AssistantHandler) MealPlan(w http.ResponseWriter, r *http.Request) {
	var req assistant.MealPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.MealPlan(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
