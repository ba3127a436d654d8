package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhjames1/peerchat/pkg/models"
)

type listerFunc func(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error)

func (f listerFunc) ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error) {
	return f(ctx, filter)
}

func TestWaitingList(t *testing.T) {
	var gotFilter models.SessionFilter
	lister := listerFunc(func(_ context.Context, filter models.SessionFilter) ([]*models.ChatSession, error) {
		gotFilter = filter
		return []*models.ChatSession{
			{ID: "b", Status: models.SessionStatusWaiting, SessionNumber: 2},
			{ID: "a", Status: models.SessionStatusWaiting, SessionNumber: 1},
		}, nil
	})

	updates := 0
	w := NewWaitingList(lister, func([]*models.ChatSession) { updates++ })
	require.NoError(t, w.Refresh(context.Background()))
	assert.Equal(t, models.SessionStatusWaiting, gotFilter.Status)
	assert.True(t, gotFilter.Ascending)

	ids := func() []string {
		var out []string
		for _, s := range w.Sessions() {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, ids())

	// INSERT adds without a reload.
	c := &models.ChatSession{ID: "c", Status: models.SessionStatusWaiting, SessionNumber: 3}
	w.HandleEvent(sessionEvent("INSERT", c))
	w.HandleEvent(sessionEvent("INSERT", c))
	assert.Equal(t, []string{"a", "b", "c"}, ids())

	// A claim removes it; a stale redelivered insert does not bring it back.
	claimed := &models.ChatSession{ID: "a", Status: models.SessionStatusActive, SessionNumber: 1}
	w.HandleEvent(sessionEvent("UPDATE", claimed))
	assert.Equal(t, []string{"b", "c"}, ids())
	w.HandleEvent(sessionEvent("INSERT", &models.ChatSession{ID: "a", Status: models.SessionStatusWaiting, SessionNumber: 1}))
	assert.Equal(t, []string{"b", "c"}, ids())

	// Unknown non-waiting sessions and message events are ignored.
	before := updates
	w.HandleEvent(sessionEvent("UPDATE", &models.ChatSession{ID: "z", Status: models.SessionStatusEnded}))
	w.HandleEvent(messageEvent(&models.ChatMessage{ID: "m", SessionID: "b"}))
	assert.Equal(t, before, updates)
}

func TestWaitingList_EventsDuringRefresh(t *testing.T) {
	var w *WaitingList
	lister := listerFunc(func(context.Context, models.SessionFilter) ([]*models.ChatSession, error) {
		// The snapshot was taken before these events were applied.
		w.HandleEvent(sessionEvent("INSERT", &models.ChatSession{ID: "d", Status: models.SessionStatusWaiting, SessionNumber: 4}))
		w.HandleEvent(sessionEvent("UPDATE", &models.ChatSession{ID: "b", Status: models.SessionStatusActive, SessionNumber: 2}))
		return []*models.ChatSession{
			{ID: "a", Status: models.SessionStatusWaiting, SessionNumber: 1},
			{ID: "b", Status: models.SessionStatusWaiting, SessionNumber: 2},
		}, nil
	})
	w = NewWaitingList(lister, nil)

	require.NoError(t, w.Refresh(context.Background()))
	var ids []string
	for _, s := range w.Sessions() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "d"}, ids)

	// A later refresh without d drops it; its event predates the fetch.
	lister2 := listerFunc(func(context.Context, models.SessionFilter) ([]*models.ChatSession, error) {
		return []*models.ChatSession{{ID: "a", Status: models.SessionStatusWaiting, SessionNumber: 1}}, nil
	})
	w.lister = lister2
	require.NoError(t, w.Refresh(context.Background()))
	require.Len(t, w.Sessions(), 1)
	assert.Equal(t, "a", w.Sessions()[0].ID)
}
