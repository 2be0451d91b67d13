package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smartdiet/smartdiet/internal/cache"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/textutil"
	"github.com/smartdiet/smartdiet/internal/webhook"
)

// ChatService stores and fans out conversation messages.
type ChatService struct {
	repo      *repository.Repository
	cache     *cache.Cache
	care      *CareService
	publisher *webhook.Publisher
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewChatService creates a new ChatService. publisher may be nil.
func NewChatService(repo *repository.Repository, c *cache.Cache, care *CareService, publisher *webhook.Publisher, logger *slog.Logger, recorder metrics.Recorder) *ChatService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ChatService{
		repo:      repo,
		cache:     c,
		care:      care,
		publisher: publisher,
		logger:    logger,
		metrics:   recorder,
	}
}

// sanitizeMessage strips markup and enforces 1..MaxMessageLength characters.
func sanitizeMessage(text string) (string, error) {
	text = textutil.CleanText(text)
	if text == "" {
		return "", invalid("text", "cannot be empty")
	}
	if textutil.Length(text) > model.MaxMessageLength {
		return "", invalid("text", "must be at most %d characters", model.MaxMessageLength)
	}
	return text, nil
}

// participants returns the conversation's nutritionist if caller may take
// part in patientID's conversation.
func (s *ChatService) participants(ctx context.Context, caller *model.AuthContext, patientID string) (string, error) {
	nutritionistID, err := s.care.ApprovedNutritionist(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotAssigned) {
			return "", ErrNotParticipant
		}
		return "", err
	}
	if caller.UserID != patientID && caller.UserID != nutritionistID {
		return "", ErrNotParticipant
	}
	return nutritionistID, nil
}

// Send stores a message and notifies live subscribers and webhooks.
func (s *ChatService) Send(ctx context.Context, sender *model.AuthContext, patientID, text string) (*model.ChatMessage, error) {
	text, err := sanitizeMessage(text)
	if err != nil {
		return nil, err
	}
	nutritionistID, err := s.participants(ctx, sender, patientID)
	if err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{
		ID:         newID(),
		PatientID:  patientID,
		SenderID:   sender.UserID,
		SenderRole: sender.Role,
		SenderName: sender.Name,
		Text:       text,
		CreatedAt:  now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.metrics.IncDomainEvent("message_sent")

	if err := s.cache.PublishChatMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to publish chat message", "message_id", msg.ID, "error", err)
	}

	recipient := nutritionistID
	if sender.UserID == nutritionistID {
		recipient = patientID
	}
	if s.publisher != nil {
		if err := s.publisher.PublishMessageCreated(ctx, recipient, msg); err != nil {
			s.logger.Warn("failed to publish message webhook", "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}

// MessagePage is one page of a conversation, newest first.
type MessagePage struct {
	Messages   []*model.ChatMessage
	NextCursor string
}

// List returns a page of the conversation.
func (s *ChatService) List(ctx context.Context, caller *model.AuthContext, patientID, cursor string, limit int) (*MessagePage, error) {
	if _, err := s.participants(ctx, caller, patientID); err != nil {
		return nil, err
	}
	msgs, next, err := s.repo.ListMessages(ctx, patientID, cursor, clampLimit(limit, 50, 100))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}
	return &MessagePage{Messages: msgs, NextCursor: next}, nil
}

// Subscribe opens a live feed of new messages in patientID's conversation.
// The caller must Close the subscription.
func (s *ChatService) Subscribe(ctx context.Context, caller *model.AuthContext, patientID string) (*cache.ChatSubscription, error) {
	if _, err := s.participants(ctx, caller, patientID); err != nil {
		return nil, err
	}
	return s.cache.SubscribeChat(ctx, patientID, s.logger)
}
