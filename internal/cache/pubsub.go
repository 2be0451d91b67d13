package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/smartdiet/smartdiet/internal/model"
)

const chatChannelPrefix = "chat:conversation:"

func chatChannel(patientID string) string {
	return chatChannelPrefix + patientID
}

// PublishChatMessage fans a stored message out to live subscribers of the
// conversation. Delivery is best effort; history stays in Postgres.
func (c *Cache) PublishChatMessage(ctx context.Context, msg *model.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	if err := c.client.Publish(ctx, chatChannel(msg.PatientID), data).Err(); err != nil {
		return fmt.Errorf("publish chat message: %w", err)
	}
	return nil
}

// ChatSubscription streams messages of one conversation.
type ChatSubscription struct {
	pubsub   *redis.PubSub
	messages chan *model.ChatMessage
}

// SubscribeChat subscribes to a conversation. The returned subscription
// must be closed by the caller.
func (c *Cache) SubscribeChat(ctx context.Context, patientID string, logger *slog.Logger) (*ChatSubscription, error) {
	pubsub := c.client.Subscribe(ctx, chatChannel(patientID))

	// Wait for confirmation so no message published after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe chat: %w", err)
	}

	sub := &ChatSubscription{
		pubsub:   pubsub,
		messages: make(chan *model.ChatMessage, 16),
	}

	go func() {
		defer close(sub.messages)
		for raw := range pubsub.Channel() {
			var msg model.ChatMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Warn("dropping malformed chat payload", "channel", raw.Channel, "error", err)
				continue
			}
			select {
			case sub.messages <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// Messages returns the delivery channel. It is closed when the
// subscription ends.
func (s *ChatSubscription) Messages() <-chan *model.ChatMessage {
	return s.messages
}

// Close ends the subscription.
func (s *ChatSubscription) Close() error {
	return s.pubsub.Close()
}
