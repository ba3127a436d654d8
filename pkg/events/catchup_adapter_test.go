package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEventQuerier struct {
	events []models.Event
	err    error
}

func (m *mockEventQuerier) GetEventsSince(_ context.Context, _ string, _ int, limit int) ([]models.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func TestEventServiceAdapter_GetCatchupEvents(t *testing.T) {
	querier := &mockEventQuerier{
		events: []models.Event{
			{ID: 10, Payload: map[string]any{"type": EventTypeSessionChanged, "seq": float64(1)}},
			{ID: 20, Payload: map[string]any{"type": EventTypeMessageCreated, "seq": float64(2)}},
		},
	}

	adapter := NewEventServiceAdapter(querier)
	events, err := adapter.GetCatchupEvents(context.Background(), "session:test", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, 10, events[0].ID)
	assert.Equal(t, 20, events[1].ID)
	assert.Equal(t, EventTypeSessionChanged, events[0].Payload["type"])
	assert.Equal(t, EventTypeMessageCreated, events[1].Payload["type"])
}

func TestEventServiceAdapter_GetCatchupEvents_WithLimit(t *testing.T) {
	querier := &mockEventQuerier{
		events: []models.Event{
			{ID: 1, Payload: map[string]any{"seq": float64(1)}},
			{ID: 2, Payload: map[string]any{"seq": float64(2)}},
			{ID: 3, Payload: map[string]any{"seq": float64(3)}},
		},
	}

	adapter := NewEventServiceAdapter(querier)
	events, err := adapter.GetCatchupEvents(context.Background(), "session:test", 0, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, events[0].ID)
	assert.Equal(t, 2, events[1].ID)
}

func TestEventServiceAdapter_GetCatchupEvents_NilPayload(t *testing.T) {
	adapter := NewEventServiceAdapter(&mockEventQuerier{events: []models.Event{{ID: 5}}})
	events, err := adapter.GetCatchupEvents(context.Background(), "session:test", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Payload)

	// The manager writes db_event_id into the payload map.
	events[0].Payload["db_event_id"] = 5
}

func TestEventServiceAdapter_GetCatchupEvents_Error(t *testing.T) {
	adapter := NewEventServiceAdapter(&mockEventQuerier{err: fmt.Errorf("database connection lost")})
	events, err := adapter.GetCatchupEvents(context.Background(), "session:test", 0, 10)
	assert.Error(t, err)
	assert.Nil(t, events)
	assert.Contains(t, err.Error(), "database connection lost")
}

func TestEventServiceAdapter_GetCatchupEvents_Empty(t *testing.T) {
	adapter := NewEventServiceAdapter(&mockEventQuerier{events: []models.Event{}})
	events, err := adapter.GetCatchupEvents(context.Background(), "session:test", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
