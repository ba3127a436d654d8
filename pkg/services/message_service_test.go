package services

import (
	"context"
	"strings"
	"testing"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSendRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       models.SendMessageRequest
		wantField string
		wantType  models.MessageType
	}{
		{name: "defaults to text", req: models.SendMessageRequest{Content: "hello"}, wantType: models.MessageTypeText},
		{name: "quick action", req: models.SendMessageRequest{Content: "breathe", MessageType: models.MessageTypeQuickAction}, wantType: models.MessageTypeQuickAction},
		{name: "empty content", req: models.SendMessageRequest{Content: ""}, wantField: "content"},
		{name: "whitespace content", req: models.SendMessageRequest{Content: "  \n\t"}, wantField: "content"},
		{name: "too long", req: models.SendMessageRequest{Content: strings.Repeat("a", maxContentLength+1)}, wantField: "content"},
		{name: "unknown type", req: models.SendMessageRequest{Content: "x", MessageType: "sticker"}, wantField: "message_type"},
		{name: "system type", req: models.SendMessageRequest{Content: "x", MessageType: models.MessageTypeSystem}, wantField: "message_type"},
		{name: "client id too long", req: models.SendMessageRequest{Content: "x", ClientID: strings.Repeat("c", maxClientIDLength+1)}, wantField: "client_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSendRequest(tt.req)
			if tt.wantField != "" {
				require.Error(t, err)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantField, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.MessageType)
		})
	}
}

func TestMessageService_SendMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := user("user-msg")
	sp := env.specialist(t, "msg@example.com")

	session, _, err := env.sessions.StartSession(ctx, u)
	require.NoError(t, err)

	t.Run("user can write while waiting", func(t *testing.T) {
		msg, err := env.messages.SendMessage(ctx, u, session.ID, models.SendMessageRequest{Content: "is anyone there?"})
		require.NoError(t, err)
		assert.Equal(t, models.SenderUser, msg.SenderType)
		assert.Equal(t, u.ID, msg.SenderID)
		assert.Len(t, env.rec.messages, 1)
	})

	t.Run("unassigned specialist cannot write", func(t *testing.T) {
		_, err := env.messages.SendMessage(ctx, sp, session.ID, models.SendMessageRequest{Content: "hi"})
		assert.True(t, IsAuthorizationError(err))
	})

	_, err = env.sessions.ClaimSession(ctx, sp, session.ID, 0)
	require.NoError(t, err)

	t.Run("a user actor carrying the specialist's id is not the specialist", func(t *testing.T) {
		impostor := user(sp.ID)
		_, err := env.messages.ListMessages(ctx, impostor, session.ID)
		assert.True(t, IsAuthorizationError(err))
		_, err = env.messages.SendMessage(ctx, impostor, session.ID, models.SendMessageRequest{Content: "let me in"})
		assert.True(t, IsAuthorizationError(err))
		_, err = env.messages.MarkRead(ctx, impostor, session.ID)
		assert.True(t, IsAuthorizationError(err))
	})

	t.Run("specialist writes after claim", func(t *testing.T) {
		msg, err := env.messages.SendMessage(ctx, sp, session.ID, models.SendMessageRequest{Content: "I'm here"})
		require.NoError(t, err)
		assert.Equal(t, models.SenderSpecialist, msg.SenderType)
	})

	t.Run("retry with the same client id is not duplicated", func(t *testing.T) {
		req := models.SendMessageRequest{Content: "once", ClientID: "tmp-1"}
		first, err := env.messages.SendMessage(ctx, u, session.ID, req)
		require.NoError(t, err)
		second, err := env.messages.SendMessage(ctx, u, session.ID, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "tmp-1", second.ClientID)

		messages, err := env.messages.ListMessages(ctx, u, session.ID)
		require.NoError(t, err)
		count := 0
		for _, m := range messages {
			if m.ClientID == "tmp-1" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("messages list in send order", func(t *testing.T) {
		messages, err := env.messages.ListMessages(ctx, sp, session.ID)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "is anyone there?", messages[0].Content)
		assert.Equal(t, "I'm here", messages[1].Content)
		assert.Equal(t, "once", messages[2].Content)
	})

	t.Run("mark read counts the other party's messages", func(t *testing.T) {
		n, err := env.messages.MarkRead(ctx, sp, session.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ended session rejects sends without writing", func(t *testing.T) {
		_, err := env.sessions.EndSession(ctx, u, session.ID, "")
		require.NoError(t, err)
		before := len(env.rec.messages)

		_, err = env.messages.SendMessage(ctx, u, session.ID, models.SendMessageRequest{Content: "hello"})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Len(t, env.rec.messages, before)

		messages, err := env.messages.ListMessages(ctx, u, session.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 3)
	})

	t.Run("validation happens before the session lookup", func(t *testing.T) {
		_, err := env.messages.SendMessage(ctx, u, "00000000-0000-0000-0000-000000000000", models.SendMessageRequest{})
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.messages.SendMessage(ctx, u, "00000000-0000-0000-0000-000000000000", models.SendMessageRequest{Content: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
