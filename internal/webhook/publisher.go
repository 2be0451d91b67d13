package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/smartdiet/smartdiet/internal/model"
)

// previewLength caps the message text copied into message.created payloads.
const previewLength = 80

// Publisher turns domain events into pending delivery rows. The Worker
// picks them up from there.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
		now:    time.Now,
	}
}

// event is one occurrence addressed to a single account.
type event struct {
	recipient  string
	kind       model.EventType
	id         string
	occurredAt time.Time
	data       any
}

// PublishRequestCreated notifies a nutritionist of a new patient request.
func (p *Publisher) PublishRequestCreated(ctx context.Context, req *model.PendingRequest) error {
	return p.publish(ctx, event{
		recipient:  req.NutritionistID,
		kind:       model.EventTypeRequestCreated,
		id:         req.ID,
		occurredAt: req.RequestedAt,
		data: model.RequestCreatedData{
			RequestID:    req.ID,
			PatientID:    req.PatientID,
			PatientName:  req.PatientName,
			PatientEmail: req.PatientEmail,
		},
	})
}

// PublishMessageCreated notifies recipientID of a chat message.
func (p *Publisher) PublishMessageCreated(ctx context.Context, recipientID string, msg *model.ChatMessage) error {
	return p.publish(ctx, event{
		recipient:  recipientID,
		kind:       model.EventTypeMessageCreated,
		id:         msg.ID,
		occurredAt: msg.CreatedAt,
		data: model.MessageCreatedData{
			MessageID:  msg.ID,
			PatientID:  msg.PatientID,
			SenderName: msg.SenderName,
			Preview:    preview(msg.Text),
		},
	})
}

// PublishConsultationBooked notifies the nutritionist of a booked session.
func (p *Publisher) PublishConsultationBooked(ctx context.Context, c *model.Consultation) error {
	return p.publish(ctx, event{
		recipient:  c.NutritionistID,
		kind:       model.EventTypeConsultationBooked,
		id:         c.ID,
		occurredAt: c.CreatedAt,
		data: model.ConsultationBookedData{
			ConsultationID:  c.ID,
			PatientID:       c.PatientID,
			ScheduledAt:     c.ScheduledAt,
			DurationMinutes: c.DurationMinutes,
		},
	})
}

// publish queues ev for every active endpoint of its recipient that wants
// ev.kind. A failed insert for one endpoint does not stop the others;
// (event_id, endpoint_id) is unique so replays are harmless.
func (p *Publisher) publish(ctx context.Context, ev event) error {
	endpoints, err := p.repo.ListActiveEndpointsByUserAndEvent(ctx, ev.recipient, ev.kind)
	if err != nil {
		return fmt.Errorf("list active endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	body, err := json.Marshal(model.WebhookEnvelope{
		EventType: string(ev.kind),
		EventID:   ev.id,
		Timestamp: ev.occurredAt.UTC(),
		Data:      ev.data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.kind, err)
	}

	queued := 0
	for _, ep := range endpoints {
		d := p.newDelivery(ep.ID, ev, body)
		if err := p.repo.CreateDelivery(ctx, d); err != nil {
			p.logger.Warn("queue delivery failed", "endpoint_id", ep.ID, "event_id", ev.id, "error", err)
			continue
		}
		queued++
	}
	p.logger.Debug("event queued", "event_type", ev.kind, "event_id", ev.id, "endpoints", len(endpoints), "queued", queued)
	return nil
}

func (p *Publisher) newDelivery(endpointID string, ev event, body []byte) *model.WebhookDelivery {
	now := p.now()
	return &model.WebhookDelivery{
		ID:          ulid.Make().String(),
		EndpointID:  endpointID,
		EventID:     ev.id,
		EventType:   ev.kind,
		PayloadJSON: string(body),
		Status:      model.DeliveryStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "…"
}
