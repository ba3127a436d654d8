package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/store"
)

const (
	maxContentLength  = 4000
	maxClientIDLength = 128
)

// MessagePublisher broadcasts newly persisted messages.
type MessagePublisher interface {
	PublishMessageCreated(ctx context.Context, msg *models.ChatMessage) error
}

// MessageService manages chat messages
type MessageService struct {
	store     store.SessionStore
	publisher MessagePublisher
	logger    *slog.Logger
}

// NewMessageService creates a new MessageService. publisher may be nil.
func NewMessageService(st store.SessionStore, publisher MessagePublisher) *MessageService {
	return &MessageService{
		store:     st,
		publisher: publisher,
		logger:    slog.Default().With("component", "message-service"),
	}
}

// ValidateSendRequest checks a send request without touching the store.
func ValidateSendRequest(req models.SendMessageRequest) (models.SendMessageRequest, error) {
	if strings.TrimSpace(req.Content) == "" {
		return req, NewValidationError("content", "required")
	}
	if utf8.RuneCountInString(req.Content) > maxContentLength {
		return req, NewValidationError("content", fmt.Sprintf("must be at most %d characters", maxContentLength))
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}
	if !req.MessageType.Valid() {
		return req, NewValidationError("message_type", fmt.Sprintf("unknown type %q", req.MessageType))
	}
	if req.MessageType == models.MessageTypeSystem {
		return req, NewValidationError("message_type", "system messages cannot be sent by participants")
	}
	if len(req.ClientID) > maxClientIDLength {
		return req, NewValidationError("client_id", "too long")
	}
	return req, nil
}

// SendMessage validates and persists a message from a session participant.
// Validation runs before any store access.
func (s *MessageService) SendMessage(ctx context.Context, actor models.Actor, sessionID string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	req, err := ValidateSendRequest(req)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !session.IsParticipant(actor) {
		return nil, NewAuthorizationError("send message", "not a participant")
	}
	if session.Status == models.SessionStatusEnded {
		return nil, &ConflictError{Op: "send", Current: string(session.Status), Session: session, Err: ErrInvalidTransition}
	}

	msg, err := s.store.InsertMessage(ctx, &models.ChatMessage{
		SessionID:   sessionID,
		SenderID:    actor.ID,
		SenderType:  actor.SenderType(),
		MessageType: req.MessageType,
		Content:     req.Content,
		Metadata:    req.Metadata,
		ClientID:    req.ClientID,
	})
	if err != nil {
		if errors.Is(err, store.ErrSessionEnded) {
			return nil, &ConflictError{Op: "send", Current: string(models.SessionStatusEnded), Err: ErrInvalidTransition}
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessageCreated(ctx, msg); err != nil {
			s.logger.Warn("Failed to publish message",
				"session_id", sessionID, "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}

// ListMessages returns a session's messages in creation order.
func (s *MessageService) ListMessages(ctx context.Context, actor models.Actor, sessionID string) ([]*models.ChatMessage, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !canView(actor, session) {
		return nil, NewAuthorizationError("list messages", "not a participant")
	}

	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// MarkRead marks the other party's messages as read by the actor.
func (s *MessageService) MarkRead(ctx context.Context, actor models.Actor, sessionID string) (int, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get session: %w", err)
	}
	if !session.IsParticipant(actor) {
		return 0, NewAuthorizationError("mark messages read", "not a participant")
	}

	n, err := s.store.MarkMessagesRead(ctx, sessionID, actor.SenderType())
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return n, nil
}
