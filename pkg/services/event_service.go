package services

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/jhjames1/peerchat/pkg/models"
)

const eventsTable = "events"

// EventService reads and prunes persisted realtime events
type EventService struct {
	db *stdsql.DB
}

// NewEventService creates a new EventService
func NewEventService(db *stdsql.DB) *EventService {
	return &EventService{db: db}
}

// GetEventsSince retrieves up to limit events on channel with id > sinceID,
// oldest first.
func (s *EventService) GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]models.Event, error) {
	selector := builder().Select("id", "session_id", "channel", "payload", "created_at").
		From(sql.Table(eventsTable)).
		Where(sql.And(
			sql.EQ("channel", channel),
			sql.GT("id", sinceID),
		)).
		OrderBy("id")
	if limit > 0 {
		selector = selector.Limit(limit)
	}
	query, args := selector.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			evt     models.Event
			payload []byte
		)
		if err := rows.Scan(&evt.ID, &evt.SessionID, &evt.Channel, &payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &evt.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event %d payload: %w", evt.ID, err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// CleanupOrphanedEvents removes events older than ttl
func (s *EventService) CleanupOrphanedEvents(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query, args := builder().Delete(eventsTable).
		Where(sql.LT("created_at", cutoff)).
		Query()

	res, err := s.db.ExecContext(writeCtx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup orphaned events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup orphaned events: %w", err)
	}
	return int(n), nil
}
