package events

import (
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
)

// ChangePayload mirrors a row-change notification: the event type, the
// table, and the new and old row images.
type ChangePayload struct {
	Type      string `json:"type"`
	Table     string `json:"table"`
	EventType string `json:"event_type"` // INSERT or UPDATE
	SessionID string `json:"session_id"`
	New       any    `json:"new"`
	Old       any    `json:"old,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewSessionChangedPayload builds a session.changed payload. old is nil for
// inserts.
func NewSessionChangedPayload(eventType string, session, old *models.ChatSession) ChangePayload {
	p := ChangePayload{
		Type:      EventTypeSessionChanged,
		Table:     TableChatSessions,
		EventType: eventType,
		SessionID: session.ID,
		New:       session,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if old != nil {
		p.Old = old
	}
	return p
}

// NewMessageCreatedPayload builds a message.created payload.
func NewMessageCreatedPayload(msg *models.ChatMessage) ChangePayload {
	return ChangePayload{
		Type:      EventTypeMessageCreated,
		Table:     TableChatMessages,
		EventType: models.ChangeInsert,
		SessionID: msg.SessionID,
		New:       msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
