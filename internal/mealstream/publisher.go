// Package mealstream carries meal logs from the API to the progress
// aggregator through a Redis stream.
package mealstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
)

const (
	// StreamKey is the Redis stream for meal log events.
	StreamKey = "stream:meal_logs"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:meal_logs:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 250 * time.Millisecond

	dateLayout = "2006-01-02"
)

// MealLogPayload is the compact event format stored in the stream.
type MealLogPayload struct {
	ID        string `json:"id"`
	PatientID string `json:"pid"`
	Date      string `json:"d"`  // YYYY-MM-DD
	MealType  string `json:"mt"` // breakfast, lunch, dinner, snack
	Followed  bool   `json:"f"`
	Note      string `json:"n,omitempty"`
	LoggedAt  int64  `json:"t"` // Unix milliseconds
}

// PayloadFromLog converts a meal log into its stream form.
func PayloadFromLog(log *model.MealLog) MealLogPayload {
	return MealLogPayload{
		ID:        log.ID,
		PatientID: log.PatientID,
		Date:      log.Date.UTC().Format(dateLayout),
		MealType:  string(log.MealType),
		Followed:  log.Followed,
		Note:      log.Note,
		LoggedAt:  log.LoggedAt.UnixMilli(),
	}
}

// ToLog converts a stream payload back into a meal log. eventID is the
// Redis stream id of the message.
func (p MealLogPayload) ToLog(eventID string) (*model.MealLog, error) {
	date, err := time.Parse(dateLayout, p.Date)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	return &model.MealLog{
		ID:        p.ID,
		EventID:   eventID,
		PatientID: p.PatientID,
		Date:      date,
		MealType:  model.MealType(p.MealType),
		Followed:  p.Followed,
		Note:      p.Note,
		LoggedAt:  time.UnixMilli(p.LoggedAt).UTC(),
	}, nil
}

// Publisher enqueues meal logs to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new meal log publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "mealstream.publisher"),
		metrics: recorder,
	}
}

// Publish adds a meal log to the stream and returns the stream id.
func (p *Publisher) Publish(ctx context.Context, log *model.MealLog) (string, error) {
	data, err := json.Marshal(PayloadFromLog(log))
	if err != nil {
		return "", fmt.Errorf("marshal meal log: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	streamID, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		p.metrics.IncMealLogPublished("failed")
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("meal log published",
		"patient_id", log.PatientID,
		"meal_type", log.MealType,
		"stream_id", streamID,
	)
	p.metrics.IncMealLogPublished("success")
	return streamID, nil
}
