package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/middleware"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/textutil"
	"github.com/smartdiet/smartdiet/internal/webhook"
)

// WebhookHandler handles webhook management endpoints for nutritionists.
type WebhookHandler struct {
	repo         *webhook.Repository
	box          *webhook.SecretBox
	logger       *slog.Logger
	allowPrivate bool
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(repo *webhook.Repository, box *webhook.SecretBox, logger *slog.Logger, allowPrivate bool) *WebhookHandler {
	return &WebhookHandler{
		repo:         repo,
		box:          box,
		logger:       logger.With("handler", "webhook"),
		allowPrivate: allowPrivate,
	}
}

func (h *WebhookHandler) validateURL(w http.ResponseWriter, r *http.Request, target string) bool {
	err := middleware.ValidateWebhookURL(target)
	if err == nil {
		err = webhook.TargetPolicy{AllowPrivate: h.allowPrivate}.Check(r.Context(), target)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return false
	}
	return true
}

func validEventTypes(w http.ResponseWriter, types []model.EventType) bool {
	for _, et := range types {
		if !model.IsValidEventType(et) {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "Invalid event type: "+string(et))
			return false
		}
	}
	return true
}

// cleanField strips control characters from an optional text field and
// caps its length.
func cleanField(v *string, limit int) string {
	if v == nil {
		return ""
	}
	return textutil.Truncate(textutil.CleanText(*v), limit)
}

// newSecret generates a signing secret, returning it with its hash and
// sealed form.
func (h *WebhookHandler) newSecret() (secret, hash, sealed string, err error) {
	secret, err = webhook.GenerateSecret()
	if err != nil {
		return "", "", "", err
	}
	sealed, err = h.box.Seal(secret)
	if err != nil {
		return "", "", "", err
	}
	return secret, webhook.HashSecret(secret), sealed, nil
}

// ownedEndpoint loads {id} and writes 404 unless the caller owns it.
func (h *WebhookHandler) ownedEndpoint(w http.ResponseWriter, r *http.Request) (*model.WebhookEndpoint, bool) {
	endpoint, err := h.repo.GetEndpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, webhook.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Webhook not found")
			return nil, false
		}
		h.logger.Error("failed to get endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load webhook")
		return nil, false
	}
	if endpoint.UserID != auth.UserIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Webhook not found")
		return nil, false
	}
	return endpoint, true
}

// Create handles POST /api/v1/webhooks.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.WebhookEndpointInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetURL == nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", "target_url is required")
		return
	}
	if !h.validateURL(w, r, *req.TargetURL) {
		return
	}
	eventTypes := model.AllEventTypes()
	if req.EventTypes != nil && len(*req.EventTypes) > 0 {
		eventTypes = *req.EventTypes
	}
	if !validEventTypes(w, eventTypes) {
		return
	}

	secret, hash, sealed, err := h.newSecret()
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create webhook")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	now := time.Now().UTC()
	endpoint := &model.WebhookEndpoint{
		ID:              ulid.Make().String(),
		UserID:          userID,
		TargetURL:       *req.TargetURL,
		SecretHash:      hash,
		SecretEncrypted: sealed,
		Enabled:         req.Enabled == nil || *req.Enabled,
		EventTypes:      eventTypes,
		Name:            cleanField(req.Name, 100),
		Description:     cleanField(req.Description, 500),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.repo.CreateEndpoint(r.Context(), endpoint); err != nil {
		h.logger.Error("failed to create endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create webhook")
		return
	}

	h.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"user_id", userID,
	)

	// The secret is only shown once.
	writeJSON(w, http.StatusCreated, model.WebhookEndpointCreated{
		WebhookEndpointView: endpoint.View(),
		Secret:              secret,
	})
}

// List handles GET /api/v1/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.repo.ListEndpointsByUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.logger.Error("failed to list endpoints", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list webhooks")
		return
	}

	resp := make([]model.WebhookEndpointView, len(endpoints))
	for i, ep := range endpoints {
		resp[i] = ep.View()
	}
	writeJSON(w, http.StatusOK, dto.NewList(resp))
}

// Get handles GET /api/v1/webhooks/{id}.
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, endpoint.View())
}

// Update handles PATCH /api/v1/webhooks/{id}.
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	var req model.WebhookEndpointInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name != nil {
		endpoint.Name = cleanField(req.Name, 100)
	}
	if req.Description != nil {
		endpoint.Description = cleanField(req.Description, 500)
	}
	if req.TargetURL != nil {
		if !h.validateURL(w, r, *req.TargetURL) {
			return
		}
		endpoint.TargetURL = *req.TargetURL
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	if req.EventTypes != nil {
		if len(*req.EventTypes) == 0 {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "At least one event type is required")
			return
		}
		if !validEventTypes(w, *req.EventTypes) {
			return
		}
		endpoint.EventTypes = *req.EventTypes
	}
	endpoint.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateEndpoint(r.Context(), endpoint); err != nil {
		h.logger.Error("failed to update endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update webhook")
		return
	}

	h.logger.Info("webhook endpoint updated",
		"endpoint_id", endpoint.ID,
		"user_id", endpoint.UserID,
	)
	writeJSON(w, http.StatusOK, endpoint.View())
}

// Delete handles DELETE /api/v1/webhooks/{id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}
	if err := h.repo.DeleteEndpoint(r.Context(), endpoint.ID); err != nil {
		h.logger.Error("failed to delete endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete webhook")
		return
	}

	h.logger.Info("webhook endpoint deleted",
		"endpoint_id", endpoint.ID,
		"user_id", endpoint.UserID,
	)
	noContent(w)
}

// RotateSecret handles POST /api/v1/webhooks/{id}/rotate-secret.
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	secret, hash, sealed, err := h.newSecret()
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate secret")
		return
	}
	if err := h.repo.UpdateEndpointSecret(r.Context(), endpoint.ID, hash, sealed); err != nil {
		h.logger.Error("failed to update secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate secret")
		return
	}

	h.logger.Info("webhook secret rotated",
		"endpoint_id", endpoint.ID,
		"user_id", endpoint.UserID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// DeliveryListResponse is one page of deliveries.
type DeliveryListResponse struct {
	Data    []model.WebhookDeliveryView `json:"data"`
	Total   int                         `json:"total"`
	Page    int                         `json:"page"`
	PerPage int                         `json:"per_page"`
}

// ListDeliveries handles GET /api/v1/webhooks/{id}/deliveries.
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	statuses := query["status"]
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	switch {
	case perPage < 1:
		perPage = 20
	case perPage > 100:
		perPage = 100
	}

	deliveries, total, err := h.repo.ListDeliveries(r.Context(), endpoint.ID, webhook.DeliveryFilter{
		Statuses: statuses,
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	})
	if err != nil {
		h.logger.Error("failed to list deliveries", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deliveries")
		return
	}

	resp := make([]model.WebhookDeliveryView, len(deliveries))
	for i, d := range deliveries {
		resp[i] = d.View()
	}
	writeJSON(w, http.StatusOK, DeliveryListResponse{
		Data:    resp,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// RetryDelivery handles POST /api/v1/webhooks/{id}/deliveries/{deliveryID}/retry.
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}
	deliveryID := chi.URLParam(r, "deliveryID")

	delivery, err := h.repo.GetDelivery(r.Context(), deliveryID)
	if err != nil || delivery.EndpointID != endpoint.ID {
		if err != nil && !errors.Is(err, webhook.ErrDeliveryNotFound) {
			h.logger.Error("failed to get delivery", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retry delivery")
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Delivery not found")
		return
	}

	if err := h.repo.Requeue(r.Context(), deliveryID); err != nil {
		if errors.Is(err, webhook.ErrDeliveryNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Delivery not found or not exhausted")
			return
		}
		h.logger.Error("failed to retry delivery", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retry delivery")
		return
	}

	h.logger.Info("webhook delivery retry requested",
		"delivery_id", deliveryID,
		"endpoint_id", endpoint.ID,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry_scheduled"})
}
