package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/smartdiet/smartdiet/internal/assistant"
	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/document"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/service"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	// Account
	{service.ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE", "Role must be doctor, patient or user"},
	{auth.ErrPasswordMismatch, http.StatusBadRequest, "PASSWORD_MISMATCH", "Passwords do not match"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 6 characters long"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address"},
	{service.ErrEmailExists, http.StatusConflict, "EMAIL_EXISTS", "Email already registered"},
	{service.ErrMedicalIDExists, http.StatusConflict, "MEDICAL_ID_EXISTS", "Medical ID already registered"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials"},
	{service.ErrRoleMismatch, http.StatusForbidden, "ROLE_MISMATCH", "Account role does not match the selected role"},
	{service.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"},

	// Verification
	{service.ErrNutritionistNotFound, http.StatusNotFound, "NUTRITIONIST_NOT_FOUND", "Nutritionist not found"},
	{service.ErrVerificationLocked, http.StatusConflict, "VERIFICATION_LOCKED", "Documents cannot change in the current verification status"},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large"},
	{service.ErrUnsupportedFileType, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE", "Only PDF, PNG and JPEG files are accepted"},
	{service.ErrDuplicateDocument, http.StatusConflict, "DUPLICATE_DOCUMENT", "This file was already uploaded in this category"},
	{service.ErrDocumentNotFound, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "Document not found"},
	{service.ErrStatusConflict, http.StatusConflict, "STATUS_CONFLICT", "Verification status does not allow this action"},
	{document.ErrNotConfigured, http.StatusServiceUnavailable, "DOCUMENT_STORE_UNAVAILABLE", "Document storage is not configured"},
	{document.ErrNoIdentity, http.StatusServiceUnavailable, "DOCUMENT_STORE_UNAVAILABLE", "Documents cannot be opened on this server"},
	{document.ErrTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large"},

	// Care
	{service.ErrAssignmentExists, http.StatusConflict, "ASSIGNMENT_EXISTS", "You already have a pending or approved nutritionist"},
	{service.ErrAssignmentNotFound, http.StatusNotFound, "ASSIGNMENT_NOT_FOUND", "No nutritionist assignment"},
	{service.ErrRequestNotFound, http.StatusNotFound, "REQUEST_NOT_FOUND", "Request not found"},
	{service.ErrNotAssigned, http.StatusForbidden, "NOT_ASSIGNED", "Patient is not assigned to you"},

	// Plans, chat
	{service.ErrDietPlanNotFound, http.StatusNotFound, "DIET_PLAN_NOT_FOUND", "No diet plan has been created yet"},
	{service.ErrDietPlanConflict, http.StatusConflict, "DIET_PLAN_CONFLICT", "The plan was saved by someone else at the same time, reload and retry"},
	{service.ErrNotParticipant, http.StatusForbidden, "NOT_PARTICIPANT", "You are not a participant of this conversation"},
	{service.ErrInvalidCursor, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor"},

	// Reviews, consultations
	{service.ErrReviewExists, http.StatusConflict, "REVIEW_EXISTS", "You already reviewed this nutritionist"},
	{service.ErrReviewNotFound, http.StatusNotFound, "REVIEW_NOT_FOUND", "Review not found"},
	{service.ErrNotAuthor, http.StatusForbidden, "NOT_AUTHOR", "Only the author may change this review"},
	{service.ErrConsultationNotFound, http.StatusNotFound, "CONSULTATION_NOT_FOUND", "Consultation not found"},
	{service.ErrConsultationClosed, http.StatusConflict, "CONSULTATION_CLOSED", "Consultation already cancelled"},

	// Assistant
	{assistant.ErrEmptyMessage, http.StatusBadRequest, "EMPTY_MESSAGE", "Message is required"},
	{assistant.ErrMessageTooLong, http.StatusBadRequest, "MESSAGE_TOO_LONG", "Message is too long"},
	{assistant.ErrInvalidMeasure, http.StatusBadRequest, "INVALID_MEASUREMENTS", "Height and weight must be positive numbers"},
	{assistant.ErrMeasureOutRange, http.StatusBadRequest, "INVALID_MEASUREMENTS", "Height or weight out of range"},
}

// writeServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: dto.ErrorDetail{
			Code:    "VALIDATION_ERROR",
			Message: verr.Error(),
			Field:   verr.Field,
		}})
		return
	}

	var missing *service.MissingDocumentsError
	if errors.As(err, &missing) {
		names := make([]string, len(missing.Categories))
		for i, c := range missing.Categories {
			names[i] = string(c)
		}
		writeError(w, http.StatusConflict, "MISSING_DOCUMENTS", "Upload at least one document for: "+strings.Join(names, ", "))
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.message)
			return
		}
	}

	logger.Error("internal_error", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}
