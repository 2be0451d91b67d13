package model

import (
	"fmt"
	"slices"
	"time"
)

// DocumentCategory is one of the credential kinds a doctor must provide.
type DocumentCategory string

const (
	DocumentCertificate  DocumentCategory = "certificate"
	DocumentGovernmentID DocumentCategory = "government_id"
	DocumentMedicalID    DocumentCategory = "medical_id"
)

// RequiredDocumentCategories must each hold at least one file before a
// doctor can submit for review.
var RequiredDocumentCategories = []DocumentCategory{
	DocumentCertificate,
	DocumentGovernmentID,
	DocumentMedicalID,
}

// IsValid reports whether c is a known category.
func (c DocumentCategory) IsValid() bool {
	return slices.Contains(RequiredDocumentCategories, c)
}

// AllowedDocumentTypes lists accepted upload content types.
var AllowedDocumentTypes = []string{"application/pdf", "image/png", "image/jpeg"}

// VerificationDocument is the metadata of an uploaded credential file.
// The sealed content is stored alongside but never loaded into this struct.
type VerificationDocument struct {
	ID          string           `json:"id"`
	DoctorID    string           `json:"doctor_id"`
	Category    DocumentCategory `json:"category"`
	FileName    string           `json:"file_name"`
	ContentType string           `json:"content_type"`
	SizeBytes   int64            `json:"size_bytes"`
	ContentHash string           `json:"content_hash"`
	Compression string           `json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
}

// SizeLabel formats the file size for display.
func (d *VerificationDocument) SizeLabel() string {
	return FormatFileSize(d.SizeBytes)
}

// FormatFileSize renders n as "N bytes", "N.NN KB" or "N.NN MB".
func FormatFileSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d bytes", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}

// MissingCategories returns the required categories absent from docs.
func MissingCategories(docs []*VerificationDocument) []DocumentCategory {
	var missing []DocumentCategory
	for _, category := range RequiredDocumentCategories {
		found := slices.ContainsFunc(docs, func(d *VerificationDocument) bool {
			return d.Category == category
		})
		if !found {
			missing = append(missing, category)
		}
	}
	return missing
}
