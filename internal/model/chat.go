package model

import "time"

// MaxMessageLength bounds a chat message after sanitizing.
const MaxMessageLength = 2000

// ChatMessage is one message in a patient's conversation with their
// nutritionist. Conversations are keyed by patient id.
type ChatMessage struct {
	ID         string    `json:"id"` // ULID, sorts by creation
	PatientID  string    `json:"patient_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole Role      `json:"sender_role"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
