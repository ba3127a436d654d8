package events

import (
	"context"

	"github.com/jhjames1/peerchat/pkg/models"
)

// EventQuerier reads persisted events. Implemented by services.EventService.
type EventQuerier interface {
	GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]models.Event, error)
}

// EventServiceAdapter wraps an EventQuerier to implement CatchupQuerier.
type EventServiceAdapter struct {
	events EventQuerier
}

// NewEventServiceAdapter creates a CatchupQuerier from an EventQuerier.
func NewEventServiceAdapter(events EventQuerier) *EventServiceAdapter {
	return &EventServiceAdapter{events: events}
}

// GetCatchupEvents queries events since sinceID up to limit.
func (a *EventServiceAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	events, err := a.events.GetEventsSince(ctx, channel, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(events))
	for i, evt := range events {
		payload := evt.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		result[i] = CatchupEvent{ID: evt.ID, Payload: payload}
	}
	return result, nil
}
