package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/smartdiet/smartdiet/internal/model"
)

// Errors for verification document storage.
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDuplicateDocument = errors.New("document already uploaded")
)

const documentColumns = `
	id, doctor_id, category, file_name, content_type, size_bytes,
	content_hash, compression, created_at`

// CreateDocument stores document metadata with its sealed content.
func (r *Repository) CreateDocument(ctx context.Context, doc *model.VerificationDocument, sealed []byte) error {
	query := `
		INSERT INTO verification_documents (` + documentColumns + `, sealed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		doc.ID,
		doc.DoctorID,
		string(doc.Category),
		doc.FileName,
		doc.ContentType,
		doc.SizeBytes,
		doc.ContentHash,
		doc.Compression,
		doc.CreatedAt,
		sealed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDocument
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// ListDocuments returns a doctor's documents in upload order.
func (r *Repository) ListDocuments(ctx context.Context, doctorID string) ([]*model.VerificationDocument, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM verification_documents
		WHERE doctor_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.VerificationDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// GetDocumentContent returns a document's metadata and sealed bytes.
func (r *Repository) GetDocumentContent(ctx context.Context, id string) (*model.VerificationDocument, []byte, error) {
	query := `
		SELECT ` + documentColumns + `, sealed
		FROM verification_documents
		WHERE id = $1
	`

	var doc model.VerificationDocument
	var category string
	var sealed []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.DoctorID,
		&category,
		&doc.FileName,
		&doc.ContentType,
		&doc.SizeBytes,
		&doc.ContentHash,
		&doc.Compression,
		&doc.CreatedAt,
		&sealed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrDocumentNotFound
		}
		return nil, nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Category = model.DocumentCategory(category)
	return &doc, sealed, nil
}

// DeleteDocument removes one of doctorID's documents.
func (r *Repository) DeleteDocument(ctx context.Context, id, doctorID string) error {
	query := `DELETE FROM verification_documents WHERE id = $1 AND doctor_id = $2`
	result, err := r.pool.Exec(ctx, query, id, doctorID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*model.VerificationDocument, error) {
	var doc model.VerificationDocument
	var category string
	err := row.Scan(
		&doc.ID,
		&doc.DoctorID,
		&category,
		&doc.FileName,
		&doc.ContentType,
		&doc.SizeBytes,
		&doc.ContentHash,
		&doc.Compression,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Category = model.DocumentCategory(category)
	return &doc, nil
}
