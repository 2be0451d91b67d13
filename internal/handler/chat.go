package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/service"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
const streamHeartbeat = 25 * time.Second

// ChatHandler serves patient and nutritionist conversations.
type ChatHandler struct {
	svc    *service.ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger.With("handler", "chat")}
}

// MessageListResponse is one page of a conversation.
type MessageListResponse struct {
	Data       []*model.ChatMessage `json:"data"`
	Pagination dto.Pagination       `json:"pagination"`
}

// Send handles POST /api/v1/conversations/{patientID}/messages.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dto.MessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.svc.Send(r.Context(), auth.MustAuthFromContext(r.Context()), chi.URLParam(r, "patientID"), req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /api/v1/conversations/{patientID}/messages?cursor=&limit=.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))

	page, err := h.svc.List(r.Context(), auth.MustAuthFromContext(r.Context()),
		chi.URLParam(r, "patientID"), query.Get("cursor"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageListResponse{
		Data: page.Messages,
		Pagination: dto.Pagination{
			NextCursor: page.NextCursor,
			HasMore:    page.NextCursor != "",
		},
	})
}

// Stream handles GET /api/v1/conversations/{patientID}/stream. Each new
// message is sent as an SSE "message" event until the client disconnects.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := auth.MustAuthFromContext(ctx)
	patientID := chi.URLParam(r, "patientID")

	sub, err := h.svc.Subscribe(ctx, caller, patientID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout does not apply to a long-lived stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "retry: 3000\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming unsupported", "error", err)
		return
	}

	h.logger.Info("chat_stream_opened", "patient_id", patientID, "user_id", caller.UserID)
	defer h.logger.Info("chat_stream_closed", "patient_id", patientID, "user_id", caller.UserID)

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := writeEvent(w, "message", msg.ID, msg); err != nil {
				h.logger.Warn("chat stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent writes one SSE event with a JSON data line.
func writeEvent(w http.ResponseWriter, event, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", event, id, payload)
	return err
}
