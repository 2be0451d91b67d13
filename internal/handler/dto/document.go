package dto

import (
	"time"

	"github.com/smartdiet/smartdiet/internal/model"
)

// DocumentResponse is an uploaded credential file without its content.
type DocumentResponse struct {
	ID          string                 `json:"id"`
	Category    model.DocumentCategory `json:"category"`
	FileName    string                 `json:"file_name"`
	ContentType string                 `json:"content_type"`
	SizeBytes   int64                  `json:"size_bytes"`
	SizeLabel   string                 `json:"size_label"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ToDocumentResponse converts a document model.
func ToDocumentResponse(doc *model.VerificationDocument) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID,
		Category:    doc.Category,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		SizeLabel:   doc.SizeLabel(),
		CreatedAt:   doc.CreatedAt,
	}
}

// ToDocumentResponses converts a slice of documents.
func ToDocumentResponses(docs []*model.VerificationDocument) []DocumentResponse {
	out := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = ToDocumentResponse(d)
	}
	return out
}

// VerificationResponse is a doctor's verification state.
type VerificationResponse struct {
	Status    model.VerificationStatus `json:"status"`
	Note      string                   `json:"note,omitempty"`
	Documents []DocumentResponse       `json:"documents"`
	Missing   []model.DocumentCategory `json:"missing"`
}

// PendingDoctorResponse is one doctor waiting for review.
type PendingDoctorResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	MedicalID      string             `json:"medical_id"`
	Specialization string             `json:"specialization,omitempty"`
	Documents      []DocumentResponse `json:"documents"`
}

// RejectRequest is the body of the reject verification route.
type RejectRequest struct {
	Reason string `json:"reason"`
}
