package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
)

// notifyPayloadLimit keeps NOTIFY payloads under PostgreSQL's 8000-byte cap.
const notifyPayloadLimit = 7900

// EventPublisher publishes change events for WebSocket delivery.
// Session-channel events are stored in the events table then broadcast via
// NOTIFY; the global sessions channel receives NOTIFY-only copies.
type EventPublisher struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventPublisher creates a new EventPublisher.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{
		db:     db,
		logger: slog.Default().With("component", "event-publisher"),
	}
}

// PublishSessionChanged persists a session.changed event on the session
// channel and broadcasts a transient copy to the global sessions channel.
// Both publishes are attempted; the first error is returned.
func (p *EventPublisher) PublishSessionChanged(ctx context.Context, eventType string, session, old *models.ChatSession) error {
	payloadJSON, err := json.Marshal(NewSessionChangedPayload(eventType, session, old))
	if err != nil {
		return fmt.Errorf("failed to marshal session change: %w", err)
	}

	var firstErr error
	if err := p.persistAndNotify(ctx, session.ID, SessionChannel(session.ID), payloadJSON); err != nil {
		p.logger.Warn("Failed to publish session change to session channel",
			"session_id", session.ID, "status", session.Status, "error", err)
		firstErr = err
	}

	if err := p.notifyOnly(ctx, GlobalSessionsChannel, payloadJSON); err != nil {
		p.logger.Warn("Failed to publish session change to global channel",
			"session_id", session.ID, "status", session.Status, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishMessageCreated persists and broadcasts a message.created event on
// the message's session channel.
func (p *EventPublisher) PublishMessageCreated(ctx context.Context, msg *models.ChatMessage) error {
	payloadJSON, err := json.Marshal(NewMessageCreatedPayload(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}
	return p.persistAndNotify(ctx, msg.SessionID, SessionChannel(msg.SessionID), payloadJSON)
}

// persistAndNotify stores the event and issues pg_notify in one
// transaction; the notification is delivered only on COMMIT.
func (p *EventPublisher) persistAndNotify(ctx context.Context, sessionID, channel string, payloadJSON []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (session_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		sessionID, channel, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// notifyOnly broadcasts an event via NOTIFY without persisting it.
func (p *EventPublisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// injectDBEventIDAndTruncate adds db_event_id to the payload so clients can
// track their catch-up position.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enriched))
}

// truncateIfNeeded returns payloads that fit NOTIFY unchanged and replaces
// oversized ones with a routing envelope.
func truncateIfNeeded(payload string) (string, error) {
	if len(payload) <= notifyPayloadLimit {
		return payload, nil
	}
	return buildTruncatedPayload([]byte(payload))
}

// buildTruncatedPayload keeps the fields a client needs to refetch the row
// over REST or to catch up from the events table.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		Table     string `json:"table"`
		EventType string `json:"event_type"`
		SessionID string `json:"session_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":       routing.Type,
		"table":      routing.Table,
		"event_type": routing.EventType,
		"session_id": routing.SessionID,
		"truncated":  true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	out, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(out), nil
}
