package repository

import (
	"context"
	"fmt"

	"github.com/smartdiet/smartdiet/internal/model"
)

// CreateMessage stores a chat message.
func (r *Repository) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, patient_id, sender_id, sender_role, sender_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.PatientID,
		msg.SenderID,
		string(msg.SenderRole),
		msg.SenderName,
		msg.Text,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation newest first using keyset pagination.
// The returned cursor is empty when there are no more messages.
func (r *Repository) ListMessages(ctx context.Context, patientID, cursor string, limit int) ([]*model.ChatMessage, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `
		SELECT id, patient_id, sender_id, sender_role, sender_name, body, created_at
		FROM chat_messages
		WHERE patient_id = $1
	`
	args := []any{patientID}
	argIndex := 2

	if cursorData != nil {
		query += fmt.Sprintf(" AND id < $%d", argIndex)
		args = append(args, cursorData.ID)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to detect more pages

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.ChatMessage
	for rows.Next() {
		var msg model.ChatMessage
		var role string
		if err := rows.Scan(
			&msg.ID,
			&msg.PatientID,
			&msg.SenderID,
			&role,
			&msg.SenderName,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, "", fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SenderRole = model.Role(role)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating messages: %w", err)
	}

	var nextCursor string
	if len(messages) > limit {
		messages = messages[:limit]
		last := messages[len(messages)-1]
		nextCursor = encodeCursor(&PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return messages, nextCursor, nil
}
