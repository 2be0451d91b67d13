package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/smartdiet/smartdiet/internal/cache"
	"github.com/smartdiet/smartdiet/internal/document"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

// DefaultMaxDocumentSize is the per-file upload limit.
const DefaultMaxDocumentSize = 5 << 20

// VerificationService handles doctor credential upload and admin review.
type VerificationService struct {
	repo    *repository.Repository
	cache   *cache.Cache
	vault   *document.Vault
	logger  *slog.Logger
	metrics metrics.Recorder
	maxSize int64
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(repo *repository.Repository, c *cache.Cache, vault *document.Vault, logger *slog.Logger, recorder metrics.Recorder, maxSize int64) *VerificationService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}
	return &VerificationService{
		repo:    repo,
		cache:   c,
		vault:   vault,
		logger:  logger,
		metrics: recorder,
		maxSize: maxSize,
	}
}

// MaxSize returns the per-file upload limit in bytes.
func (s *VerificationService) MaxSize() int64 {
	return s.maxSize
}

// UploadInput is one uploaded credential file.
type UploadInput struct {
	Category model.DocumentCategory
	FileName string
	Content  []byte
}

// detectDocumentType sniffs content and returns its MIME type if allowed.
func detectDocumentType(content []byte) (string, error) {
	detected := http.DetectContentType(content)
	if i := strings.Index(detected, ";"); i >= 0 {
		detected = detected[:i]
	}
	if !slices.Contains(model.AllowedDocumentTypes, detected) {
		return "", ErrUnsupportedFileType
	}
	return detected, nil
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = textutil.Truncate(textutil.Condense(name), 200)
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}

func (s *VerificationService) loadDoctor(ctx context.Context, doctorID string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Role != model.RoleDoctor {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Upload seals and stores a document while the doctor may still edit.
func (s *VerificationService) Upload(ctx context.Context, doctorID string, in UploadInput) (*model.VerificationDocument, error) {
	if !in.Category.IsValid() {
		return nil, invalid("category", "must be one of certificate, government_id, medical_id")
	}
	if len(in.Content) == 0 {
		return nil, invalid("file", "is empty")
	}
	if int64(len(in.Content)) > s.maxSize {
		return nil, ErrFileTooLarge
	}
	contentType, err := detectDocumentType(in.Content)
	if err != nil {
		return nil, err
	}

	doctor, err := s.loadDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.VerificationStatus.CanUpload() {
		return nil, ErrVerificationLocked
	}

	sealed, applied, err := s.vault.Seal(in.Content)
	if err != nil {
		return nil, err
	}
	doc := &model.VerificationDocument{
		ID:          newID(),
		DoctorID:    doctorID,
		Category:    in.Category,
		FileName:    cleanFileName(in.FileName),
		ContentType: contentType,
		SizeBytes:   int64(len(in.Content)),
		ContentHash: s.vault.Hash(in.Content),
		Compression: applied.String(),
		CreatedAt:   now(),
	}
	if err := s.repo.CreateDocument(ctx, doc, sealed); err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			return nil, ErrDuplicateDocument
		}
		return nil, err
	}

	s.metrics.IncDomainEvent("document_uploaded")
	s.logger.Info("verification document uploaded",
		"doctor_id", doctorID,
		"document_id", doc.ID,
		"category", doc.Category,
		"size", doc.SizeBytes,
		"compression", doc.Compression,
	)
	return doc, nil
}

// VerificationView is a doctor's verification state.
type VerificationView struct {
	Status    model.VerificationStatus     `json:"status"`
	Note      string                       `json:"note,omitempty"`
	Documents []*model.VerificationDocument `json:"documents"`
	Missing   []model.DocumentCategory     `json:"missing"`
}

// Status returns the doctor's status and documents.
func (s *VerificationService) Status(ctx context.Context, doctorID string) (*VerificationView, error) {
	doctor, err := s.loadDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*model.VerificationDocument{}
	}
	missing := model.MissingCategories(docs)
	if missing == nil {
		missing = []model.DocumentCategory{}
	}
	return &VerificationView{
		Status:    doctor.VerificationStatus,
		Note:      doctor.VerificationNote,
		Documents: docs,
		Missing:   missing,
	}, nil
}

// DeleteDocument removes one of the doctor's documents before submission.
func (s *VerificationService) DeleteDocument(ctx context.Context, doctorID, documentID string) error {
	doctor, err := s.loadDoctor(ctx, doctorID)
	if err != nil {
		return err
	}
	if !doctor.VerificationStatus.CanUpload() {
		return ErrVerificationLocked
	}
	if err := s.repo.DeleteDocument(ctx, documentID, doctorID); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}
	return nil
}

// Submit moves the doctor to pending once every category has a document.
func (s *VerificationService) Submit(ctx context.Context, doctorID string) error {
	view, err := s.Status(ctx, doctorID)
	if err != nil {
		return err
	}
	if !view.Status.CanUpload() {
		return ErrStatusConflict
	}
	if len(view.Missing) > 0 {
		return &MissingDocumentsError{Categories: view.Missing}
	}

	err = s.repo.UpdateVerificationStatus(ctx, doctorID,
		[]model.VerificationStatus{model.VerificationUnverified, model.VerificationRejected},
		model.VerificationPending, "")
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return ErrStatusConflict
		}
		return err
	}
	s.invalidate(ctx, doctorID)
	s.metrics.IncDomainEvent("verification_submitted")
	return nil
}

// PendingDoctor is one entry of the admin review queue.
type PendingDoctor struct {
	Doctor    *model.User                   `json:"doctor"`
	Documents []*model.VerificationDocument `json:"documents"`
}

// ListPending returns doctors awaiting review with their documents.
func (s *VerificationService) ListPending(ctx context.Context) ([]*PendingDoctor, error) {
	doctors, err := s.repo.ListDoctorsByVerification(ctx, model.VerificationPending)
	if err != nil {
		return nil, err
	}
	out := make([]*PendingDoctor, 0, len(doctors))
	for _, d := range doctors {
		docs, err := s.repo.ListDocuments(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			docs = []*model.VerificationDocument{}
		}
		out = append(out, &PendingDoctor{Doctor: d, Documents: docs})
	}
	return out, nil
}

// AccountStats is the admin overview of registered accounts.
type AccountStats struct {
	Total          int                              `json:"total"`
	ByRole         map[model.Role]int               `json:"by_role"`
	ByVerification map[model.VerificationStatus]int `json:"doctors_by_verification"`
}

// Stats counts accounts per role and doctors per verification status.
// Every known role and doctor status is present, zero when empty.
func (s *VerificationService) Stats(ctx context.Context) (*AccountStats, error) {
	counts, err := s.repo.CountAccounts(ctx)
	if err != nil {
		return nil, err
	}
	stats := &AccountStats{
		ByRole:         make(map[model.Role]int, 4),
		ByVerification: make(map[model.VerificationStatus]int, 4),
	}
	for _, role := range []model.Role{model.RoleDoctor, model.RolePatient, model.RoleUser, model.RoleAdmin} {
		stats.ByRole[role] = counts.ByRole[role]
		stats.Total += counts.ByRole[role]
	}
	for _, status := range []model.VerificationStatus{
		model.VerificationUnverified, model.VerificationPending,
		model.VerificationVerified, model.VerificationRejected,
	} {
		stats.ByVerification[status] = counts.ByVerification[status]
	}
	return stats, nil
}

// OpenDocument decrypts a stored document for an admin.
func (s *VerificationService) OpenDocument(ctx context.Context, documentID string) (*model.VerificationDocument, []byte, error) {
	doc, sealed, err := s.repo.GetDocumentContent(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, nil, ErrDocumentNotFound
		}
		return nil, nil, err
	}
	content, err := s.vault.Open(sealed)
	if err != nil {
		return nil, nil, err
	}
	return doc, content, nil
}

// Approve marks a pending doctor verified.
func (s *VerificationService) Approve(ctx context.Context, doctorID string) error {
	return s.review(ctx, doctorID, model.VerificationVerified, "", "verification_approved")
}

// Reject returns a pending doctor to rejected with reason.
func (s *VerificationService) Reject(ctx context.Context, doctorID, reason string) error {
	reason = textutil.Truncate(textutil.CleanText(reason), 500)
	if reason == "" {
		return invalid("reason", "is required")
	}
	return s.review(ctx, doctorID, model.VerificationRejected, reason, "verification_rejected")
}

func (s *VerificationService) review(ctx context.Context, doctorID string, to model.VerificationStatus, note, event string) error {
	err := s.repo.UpdateVerificationStatus(ctx, doctorID,
		[]model.VerificationStatus{model.VerificationPending}, to, note)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return ErrUserNotFound
		case errors.Is(err, repository.ErrStatusConflict):
			return ErrStatusConflict
		}
		return err
	}
	s.invalidate(ctx, doctorID)
	s.metrics.IncDomainEvent(event)
	s.logger.Info("verification reviewed", "doctor_id", doctorID, "status", to)
	return nil
}

// invalidate drops cached auth so the new status applies immediately.
func (s *VerificationService) invalidate(ctx context.Context, doctorID string) {
	if err := s.cache.InvalidateUserSessions(ctx, doctorID); err != nil {
		s.logger.Warn("failed to drop cached sessions", "user_id", doctorID, "error", err)
	}
}
