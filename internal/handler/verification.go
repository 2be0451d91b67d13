package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/service"
)

// multipartOverhead covers form boundaries and the category field.
const multipartOverhead = 64 << 10

// VerificationHandler serves a doctor's own credential documents.
type VerificationHandler struct {
	svc    *service.VerificationService
	logger *slog.Logger
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(svc *service.VerificationService, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{svc: svc, logger: logger.With("handler", "verification")}
}

// Status handles GET /api/v1/verification.
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Status(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.VerificationResponse{
		Status:    view.Status,
		Note:      view.Note,
		Documents: dto.ToDocumentResponses(view.Documents),
		Missing:   view.Missing,
	})
}

// Upload handles POST /api/v1/verification/documents (multipart: category, file).
func (h *VerificationHandler) Upload(w http.ResponseWriter, r *http.Request) {
	maxSize := h.svc.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, h.logger, service.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Expected a multipart form with category and file")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "A file is required")
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		writeServiceError(w, h.logger, service.ErrFileTooLarge)
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	doc, err := h.svc.Upload(r.Context(), auth.UserIDFromContext(r.Context()), service.UploadInput{
		Category: model.DocumentCategory(r.FormValue("category")),
		FileName: header.Filename,
		Content:  content,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToDocumentResponse(doc))
}

// DeleteDocument handles DELETE /api/v1/verification/documents/{id}.
func (h *VerificationHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteDocument(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	noContent(w)
}

// Submit handles POST /api/v1/verification/submit.
func (h *VerificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	doctorID := auth.UserIDFromContext(r.Context())
	if err := h.svc.Submit(r.Context(), doctorID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("verification_submitted", "doctor_id", doctorID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(model.VerificationPending)})
}
