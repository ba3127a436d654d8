package models

import "time"

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser       SenderType = "user"
	SenderSpecialist SenderType = "specialist"
	SenderSystem     SenderType = "system"
)

// Valid reports whether t is a known sender type.
func (t SenderType) Valid() bool {
	return t == SenderUser || t == SenderSpecialist || t == SenderSystem
}

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText             MessageType = "text"
	MessageTypeQuickAction      MessageType = "quick_action"
	MessageTypeSystem           MessageType = "system"
	MessageTypePhoneCallRequest MessageType = "phone_call_request"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeQuickAction, MessageTypeSystem, MessageTypePhoneCallRequest:
		return true
	}
	return false
}

// ChatMessage is an immutable message within one session.
// ClientID carries the sender's temporary id so optimistic entries can be
// reconciled with the persisted row.
type ChatMessage struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	SenderID    string         `json:"sender_id"`
	SenderType  SenderType     `json:"sender_type"`
	MessageType MessageType    `json:"message_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ClientID    string         `json:"client_id,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   time.Time      `json:"created_at"`
	Seq         int64          `json:"seq"`
}

// SendMessageRequest contains fields for sending a message.
type SendMessageRequest struct {
	Content     string         `json:"content"`
	MessageType MessageType    `json:"message_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ClientID    string         `json:"client_id,omitempty"`
}

// MessageListResponse wraps a session's message history.
type MessageListResponse struct {
	Messages []*ChatMessage `json:"messages"`
}
