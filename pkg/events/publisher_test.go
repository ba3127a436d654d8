package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messagePayload(t *testing.T, content string) []byte {
	t.Helper()
	payload, err := json.Marshal(NewMessageCreatedPayload(&models.ChatMessage{
		ID:          "msg-456",
		SessionID:   "sess-789",
		SenderID:    "user-1",
		SenderType:  models.SenderUser,
		MessageType: models.MessageTypeText,
		Content:     content,
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, err)
	return payload
}

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("passes through normal payload", func(t *testing.T) {
		payload := messagePayload(t, "hello")

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Equal(t, string(payload), result)
	})

	t.Run("oversized payload keeps only routing fields", func(t *testing.T) {
		payload := messagePayload(t, strings.Repeat("x", 8000))

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Less(t, len(result), notifyPayloadLimit)

		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(result), &m))
		assert.Equal(t, EventTypeMessageCreated, m["type"])
		assert.Equal(t, TableChatMessages, m["table"])
		assert.Equal(t, models.ChangeInsert, m["event_type"])
		assert.Equal(t, "sess-789", m["session_id"])
		assert.Equal(t, true, m["truncated"])
		assert.NotContains(t, result, "xxxx")
	})

	t.Run("boundary: payload at the limit is not truncated", func(t *testing.T) {
		build := func(content string) []byte {
			data, err := json.Marshal(ChangePayload{
				Type:      EventTypeMessageCreated,
				Table:     TableChatMessages,
				EventType: models.ChangeInsert,
				SessionID: "sess-1",
				New:       map[string]string{"content": content},
				Timestamp: "2026-01-01T00:00:00Z",
			})
			require.NoError(t, err)
			return data
		}
		base := build("")
		payload := build(strings.Repeat("b", notifyPayloadLimit-len(base)))
		require.Len(t, payload, notifyPayloadLimit)

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, `"truncated"`)

		over := build(strings.Repeat("b", notifyPayloadLimit-len(base)+1))
		result, err = truncateIfNeeded(string(over))
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
	})

	t.Run("invalid JSON over the limit is an error", func(t *testing.T) {
		_, err := truncateIfNeeded(strings.Repeat("{", notifyPayloadLimit+1))
		assert.Error(t, err)
	})
}

func TestInjectDBEventIDAndTruncate(t *testing.T) {
	t.Run("injects db_event_id into normal payload", func(t *testing.T) {
		result, err := injectDBEventIDAndTruncate(messagePayload(t, "hello"), 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "msg-456")
	})

	t.Run("truncated payload preserves db_event_id", func(t *testing.T) {
		result, err := injectDBEventIDAndTruncate(messagePayload(t, strings.Repeat("x", 8000)), 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "sess-789")
	})

	t.Run("rejects non-object payload", func(t *testing.T) {
		_, err := injectDBEventIDAndTruncate([]byte(`[1,2]`), 1)
		assert.Error(t, err)
	})
}

func TestNewEventPublisher(t *testing.T) {
	p := NewEventPublisher(nil)
	assert.NotNil(t, p)
	assert.NotNil(t, p.logger)
}
