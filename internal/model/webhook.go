package model

import (
	"slices"
	"time"
)

// EventType names a notification a nutritionist can subscribe to.
type EventType string

const (
	EventTypeRequestCreated     EventType = "request.created"
	EventTypeMessageCreated     EventType = "message.created"
	EventTypeConsultationBooked EventType = "consultation.booked"
)

var eventTypes = []EventType{
	EventTypeRequestCreated,
	EventTypeMessageCreated,
	EventTypeConsultationBooked,
}

// AllEventTypes returns every event type, for endpoints created without an
// explicit subscription list.
func AllEventTypes() []EventType {
	return slices.Clone(eventTypes)
}

// IsValidEventType reports whether et is a known event type.
func IsValidEventType(et EventType) bool {
	return slices.Contains(eventTypes, et)
}

// DeliveryStatus is where a delivery sits in its retry lifecycle:
// pending -> success, or pending -> failed -> ... -> exhausted.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// Final reports whether no further attempts will be made.
func (s DeliveryStatus) Final() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusExhausted
}

// WebhookEndpoint is a URL a doctor registered to receive notifications.
// The signing secret is stored twice: hashed to prove ownership on
// rotation, and sealed so the worker can sign with it.
type WebhookEndpoint struct {
	ID              string
	UserID          string
	Name            string
	Description     string
	TargetURL       string
	EventTypes      []EventType
	Enabled         bool
	SecretHash      string
	SecretEncrypted string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// IsActive reports whether deliveries to the endpoint should be attempted.
func (e *WebhookEndpoint) IsActive() bool {
	return e.Enabled && e.DeletedAt == nil
}

// Wants reports whether an event of type et should be queued for e.
func (e *WebhookEndpoint) Wants(et EventType) bool {
	return e.IsActive() && slices.Contains(e.EventTypes, et)
}

// WebhookDelivery is one event queued for one endpoint.
type WebhookDelivery struct {
	ID             string
	EndpointID     string
	EventID        string
	EventType      EventType
	PayloadJSON    string
	Status         DeliveryStatus
	AttemptCount   int
	MaxAttempts    int
	NextRetryAt    time.Time
	LastAttemptAt  *time.Time
	LastHTTPStatus *int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookEndpointInput is the body of create and update calls. On update,
// nil fields are left unchanged.
type WebhookEndpointInput struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	TargetURL   *string      `json:"target_url,omitempty"`
	Enabled     *bool        `json:"enabled,omitempty"`
	EventTypes  *[]EventType `json:"event_types,omitempty"`
}

// WebhookEndpointView is the public form of an endpoint. Secrets never
// appear in it.
type WebhookEndpointView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	TargetURL   string      `json:"target_url"`
	Enabled     bool        `json:"enabled"`
	EventTypes  []EventType `json:"event_types"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// View returns the public form of e.
func (e *WebhookEndpoint) View() WebhookEndpointView {
	return WebhookEndpointView{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		TargetURL:   e.TargetURL,
		Enabled:     e.Enabled,
		EventTypes:  e.EventTypes,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// WebhookEndpointCreated is returned once, when the plaintext secret is
// still known.
type WebhookEndpointCreated struct {
	WebhookEndpointView
	Secret string `json:"secret"`
}

// WebhookDeliveryView is the public form of a delivery. The payload is
// left out; receivers already have it.
type WebhookDeliveryView struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastHTTPStatus *int           `json:"last_http_status,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// View returns the public form of d. NextRetryAt is only shown while
// another attempt is still due.
func (d *WebhookDelivery) View() WebhookDeliveryView {
	v := WebhookDeliveryView{
		ID:             d.ID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Status:         d.Status,
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		LastAttemptAt:  d.LastAttemptAt,
		LastHTTPStatus: d.LastHTTPStatus,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
	}
	if !d.Status.Final() && !d.NextRetryAt.IsZero() {
		next := d.NextRetryAt
		v.NextRetryAt = &next
	}
	return v
}

// WebhookEnvelope is the JSON body POSTed to receivers.
type WebhookEnvelope struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// RequestCreatedData is the envelope data for request.created.
type RequestCreatedData struct {
	RequestID    string `json:"request_id"`
	PatientID    string `json:"patient_id"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
}

// MessageCreatedData is the envelope data for message.created. Preview is
// truncated so message bodies stay inside the platform.
type MessageCreatedData struct {
	MessageID  string `json:"message_id"`
	PatientID  string `json:"patient_id"`
	SenderName string `json:"sender_name"`
	Preview    string `json:"preview"`
}

// ConsultationBookedData is the envelope data for consultation.booked.
type ConsultationBookedData struct {
	ConsultationID  string    `json:"consultation_id"`
	PatientID       string    `json:"patient_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
}
