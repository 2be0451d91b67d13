package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

// adminTimeout bounds admin reads that walk every pending doctor.
const adminTimeout = 10 * time.Second

// AdminHandler provides operator endpoints for credential review.
type AdminHandler struct {
	verification *service.VerificationService
	logger       *slog.Logger
	startedAt    time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(verification *service.VerificationService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		verification: verification,
		logger:       logger.With("handler", "admin"),
		startedAt:    time.Now(),
	}
}

// ListPending handles GET /api/v1/admin/verifications.
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()

	pending, err := h.verification.ListPending(ctx)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	out := make([]dto.PendingDoctorResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, dto.PendingDoctorResponse{
			ID:             p.Doctor.ID,
			Name:           p.Doctor.Name,
			Email:          p.Doctor.Email,
			MedicalID:      p.Doctor.MedicalID,
			Specialization: p.Doctor.Specialization,
			Documents:      dto.ToDocumentResponses(p.Documents),
		})
	}
	writeJSON(w, http.StatusOK, dto.NewList(out))
}

// Document handles GET /api/v1/admin/documents/{id} and streams the
// decrypted file.
func (h *AdminHandler) Document(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, content, err := h.verification.OpenDocument(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("document_opened", "document_id", doc.ID, "doctor_id", doc.DoctorID)

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// Approve handles POST /api/v1/admin/verifications/{doctorID}/approve.
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if err := h.verification.Approve(r.Context(), doctorID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("doctor_verified", "doctor_id", doctorID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// Reject handles POST /api/v1/admin/verifications/{doctorID}/reject.
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req dto.RejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID := chi.URLParam(r, "doctorID")
	if err := h.verification.Reject(r.Context(), doctorID, req.Reason); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("doctor_rejected", "doctor_id", doctorID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// StatsResponse is the admin dashboard summary.
type StatsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	*service.AccountStats
}

// Stats handles GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()

	stats, err := h.verification.Stats(ctx)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Timestamp:    time.Now().UTC(),
		Version:      Version,
		Uptime:       time.Since(h.startedAt).Truncate(time.Second).String(),
		AccountStats: stats,
	})
}
