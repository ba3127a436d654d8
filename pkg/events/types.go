// Package events delivers the realtime feed: row-change events for chat
// sessions and messages, fanned out over WebSocket and distributed between
// processes with PostgreSQL NOTIFY/LISTEN.
//
// Channels:
//
//	sessions        every session insert/update; the specialists' waiting list
//	session:{id}    changes and messages of one session
//
// Events on a session channel are persisted to the events table before the
// NOTIFY so a reconnecting client can catch up from its last db_event_id.
// Copies on the sessions channel are NOTIFY-only. Delivery is at-least-once
// and may reorder; clients reconcile by row id.
package events

import "strings"

// Event types carried in the payload "type" field.
const (
	EventTypeSessionChanged = "session.changed"
	EventTypeMessageCreated = "message.created"
)

// Tables named in change payloads.
const (
	TableChatSessions = "chat_sessions"
	TableChatMessages = "chat_messages"
)

// Server → client control messages.
const (
	MsgConnectionEstablished = "connection.established"
	MsgSubscriptionConfirmed = "subscription.confirmed"
	MsgSubscriptionError     = "subscription.error"
	MsgCatchupOverflow       = "catchup.overflow"
	MsgPong                  = "pong"
	MsgError                 = "error"
)

// Client → server actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionCatchup     = "catchup"
	ActionPing        = "ping"
)

// GlobalSessionsChannel carries every session change for the waiting list.
const GlobalSessionsChannel = "sessions"

const sessionChannelPrefix = "session:"

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return sessionChannelPrefix + sessionID
}

// ParseSessionChannel returns the session id of a session channel.
func ParseSessionChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, sessionChannelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
// LastEventID on subscribe or catchup resumes delivery after that event.
type ClientMessage struct {
	Action      string `json:"action"`
	Channel     string `json:"channel,omitempty"`
	LastEventID *int   `json:"last_event_id,omitempty"`
}
