// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/smartdiet/smartdiet/internal/model"
)

// Service errors. Handlers map these to HTTP status codes and stable
// error codes.
var (
	// Account
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoleMismatch       = errors.New("account role does not match")
	ErrEmailExists        = errors.New("email already registered")
	ErrMedicalIDExists    = errors.New("medical ID already registered")
	ErrUserNotFound       = errors.New("user not found")

	// Verification
	ErrNutritionistNotFound = errors.New("nutritionist not found")
	ErrVerificationLocked   = errors.New("documents cannot change in the current verification status")
	ErrFileTooLarge         = errors.New("file too large")
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrDuplicateDocument    = errors.New("document already uploaded in this category")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrStatusConflict       = errors.New("verification status does not allow this action")

	// Care
	ErrAssignmentExists   = errors.New("patient already has an open assignment")
	ErrAssignmentNotFound = errors.New("no assignment")
	ErrRequestNotFound    = errors.New("request not found")
	ErrNotAssigned        = errors.New("patient is not assigned to this nutritionist")

	// Diet plan
	ErrDietPlanNotFound = errors.New("diet plan not found")
	ErrDietPlanConflict = errors.New("diet plan changed concurrently")

	// Chat
	ErrNotParticipant = errors.New("not a participant of this conversation")
	ErrInvalidCursor  = errors.New("invalid pagination cursor")

	// Reviews
	ErrReviewExists   = errors.New("review already exists")
	ErrReviewNotFound = errors.New("review not found")
	ErrNotAuthor      = errors.New("only the author may change this review")

	// Consultations
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrConsultationClosed   = errors.New("consultation already cancelled")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MissingDocumentsError lists the categories still lacking a document.
type MissingDocumentsError struct {
	Categories []model.DocumentCategory
}

func (e *MissingDocumentsError) Error() string {
	names := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		names[i] = string(c)
	}
	return "missing documents: " + strings.Join(names, ", ")
}

func newID() string {
	return ulid.Make().String()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
