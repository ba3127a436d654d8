package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	db := env.client.DB()

	insert := func(channel string, n int, createdAt time.Time) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO events (session_id, channel, payload, created_at) VALUES ($1, $2, $3, $4)`,
			"s1", channel, fmt.Sprintf(`{"n": %d}`, n), createdAt)
		require.NoError(t, err)
	}

	now := time.Now()
	for i := 1; i <= 5; i++ {
		insert("session:s1", i, now)
	}
	insert("session:s2", 99, now)
	insert("session:s1", 100, now.Add(-8*24*time.Hour))

	t.Run("events since an id in order", func(t *testing.T) {
		all, err := env.events.GetEventsSince(ctx, "session:s1", 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 6)

		since, err := env.events.GetEventsSince(ctx, "session:s1", all[1].ID, 2)
		require.NoError(t, err)
		require.Len(t, since, 2)
		assert.Equal(t, all[2].ID, since[0].ID)
		assert.Equal(t, all[3].ID, since[1].ID)
		assert.EqualValues(t, 3, since[0].Payload["n"])
	})

	t.Run("cleanup removes only old events", func(t *testing.T) {
		n, err := env.events.CleanupOrphanedEvents(ctx, 7*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		remaining, err := env.events.GetEventsSince(ctx, "session:s1", 0, 0)
		require.NoError(t, err)
		assert.Len(t, remaining, 5)
	})
}
