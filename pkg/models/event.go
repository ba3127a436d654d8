package models

import "time"

// Event is a persisted realtime event used for catch-up after reconnect.
type Event struct {
	ID        int            `json:"id"`
	SessionID string         `json:"session_id"`
	Channel   string         `json:"channel"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Row-change kinds carried by realtime events.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
)
