package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhjames1/peerchat/pkg/models"
)

var (
	testUser       = models.Actor{ID: "user-1", Role: models.RoleUser}
	testSpecialist = models.Actor{ID: "specialist-1", Role: models.RoleSpecialist}
)

func newTestController(t *testing.T, actor models.Actor) (*Controller, *fakeBackend, *fakeFeed) {
	t.Helper()
	backend := newFakeBackend()
	feed := &fakeFeed{}
	c := NewController(ControllerConfig{
		Actor:   actor,
		Backend: backend,
		Dial:    feed.dial,
		FeedURL: func() string { return "ws://feed.test/api/v1/ws" },
	})
	t.Cleanup(func() { _ = c.Close() })
	return c, backend, feed
}

func TestController_StartSession(t *testing.T) {
	c, backend, feed := newTestController(t, testUser)
	ctx := context.Background()

	assert.Equal(t, StateConnecting, c.Monitor().Status().State)

	session, err := c.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusWaiting, session.Status)
	assert.Nil(t, session.SpecialistID)
	assert.NotZero(t, session.SessionNumber)
	assert.Equal(t, 1, backend.count("list"))

	require.Equal(t, 1, feed.dialCount())
	assert.Equal(t, []string{SessionChannel(session.ID)}, feed.conn().opts.Channels)

	feed.conn().status(FeedSubscribed, nil)
	assert.True(t, c.Monitor().Status().IsConnected())
}

func TestController_StartSessionErrors(t *testing.T) {
	t.Run("specialists cannot start", func(t *testing.T) {
		c, backend, _ := newTestController(t, testSpecialist)
		_, err := c.StartSession(context.Background())
		assert.True(t, IsKind(err, KindAuthorization))
		assert.Zero(t, backend.count("start"))
	})

	t.Run("store failure", func(t *testing.T) {
		c, backend, _ := newTestController(t, testUser)
		backend.startErr = &Error{Kind: KindTransientNetwork, Message: "connection refused"}
		_, err := c.StartSession(context.Background())
		assert.ErrorIs(t, err, ErrSessionCreate)
		assert.True(t, IsTransient(err))
		assert.Nil(t, c.Session())
	})

	t.Run("feed failure does not fail start", func(t *testing.T) {
		c, _, feed := newTestController(t, testUser)
		feed.dialErr = errors.New("dial refused")
		_, err := c.StartSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateError, c.Monitor().Status().State)
	})
}

func TestController_SendMessageReconciles(t *testing.T) {
	ctx := context.Background()

	t.Run("response then echo", func(t *testing.T) {
		c, _, feed := newTestController(t, testUser)
		_, err := c.StartSession(ctx)
		require.NoError(t, err)

		entry, err := c.SendMessage(ctx, "hello", "")
		require.NoError(t, err)
		assert.Equal(t, Confirmed, entry.State)
		assert.Equal(t, entry.TempID, entry.Message.ClientID)
		assert.NotEmpty(t, entry.Message.ID)

		// The realtime echo of the same row, delivered twice.
		feed.conn().deliver(messageEvent(&entry.Message))
		feed.conn().deliver(messageEvent(&entry.Message))

		msgs := c.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, Confirmed, msgs[0].State)
		assert.Equal(t, entry.Message.ID, msgs[0].Key())
	})

	t.Run("echo before response", func(t *testing.T) {
		c, backend, feed := newTestController(t, testUser)
		_, err := c.StartSession(ctx)
		require.NoError(t, err)

		var sawPending bool
		backend.beforeAck = func(m *models.ChatMessage) {
			msgs := c.Messages()
			sawPending = len(msgs) == 1 && msgs[0].State == Pending && msgs[0].TempID == m.ClientID
			feed.conn().deliver(messageEvent(m))
		}

		entry, err := c.SendMessage(ctx, "first", "")
		require.NoError(t, err)
		assert.True(t, sawPending)
		assert.Equal(t, Confirmed, entry.State)
		require.Len(t, c.Messages(), 1)
	})

	t.Run("validation happens before network", func(t *testing.T) {
		c, backend, _ := newTestController(t, testUser)
		_, err := c.StartSession(ctx)
		require.NoError(t, err)

		_, err = c.SendMessage(ctx, "   ", "")
		assert.True(t, IsKind(err, KindValidation))
		_, err = c.SendMessage(ctx, "x", models.MessageTypeSystem)
		assert.True(t, IsKind(err, KindValidation))
		assert.Zero(t, backend.count("send"))
		assert.Empty(t, c.Messages())
	})

	t.Run("no session", func(t *testing.T) {
		c, _, _ := newTestController(t, testUser)
		_, err := c.SendMessage(ctx, "hello", "")
		assert.True(t, IsKind(err, KindValidation))
	})
}

func TestController_FailedSendIsRetryable(t *testing.T) {
	ctx := context.Background()
	c, backend, _ := newTestController(t, testUser)
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	backend.sendErr = &Error{Kind: KindTransientNetwork, Message: "timeout"}
	failed, err := c.SendMessage(ctx, "one", "")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, Failed, failed.State)

	backend.sendErr = nil
	second, err := c.SendMessage(ctx, "two", "")
	require.NoError(t, err)
	assert.Equal(t, Confirmed, second.State)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Confirmed, msgs[0].State)
	assert.Equal(t, "two", msgs[0].Message.Content)
	assert.Equal(t, Failed, msgs[1].State)

	retried, err := c.RetryMessage(ctx, failed.TempID)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, retried.State)
	assert.Equal(t, failed.TempID, retried.Message.ClientID)
	assert.Equal(t, []string{"two", "one"}, contents(c.Messages()))

	_, err = c.RetryMessage(ctx, failed.TempID)
	assert.True(t, IsKind(err, KindValidation))
}

func TestController_SendOnEndedSession(t *testing.T) {
	ctx := context.Background()
	c, backend, _ := newTestController(t, testUser)
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	_, err = c.EndSession(ctx, "done")
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, "hello", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
	assert.Zero(t, backend.count("send"))
	assert.Empty(t, c.Messages())
}

func TestController_EndSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	c, backend, _ := newTestController(t, testUser)
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	first, err := c.EndSession(ctx, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, first.Status)

	second, err := c.EndSession(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.count("end"))
}

func TestController_ClaimConflictRefreshesSession(t *testing.T) {
	ctx := context.Background()
	c, backend, _ := newTestController(t, testSpecialist)
	backend.addSession("s-race", "user-9", models.SessionStatusWaiting)

	opened, err := c.OpenSession(ctx, "s-race")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusWaiting, opened.Status)

	// Another specialist wins first.
	_, err = backend.claimAs("s-race", "specialist-2", 0)
	require.NoError(t, err)

	_, err = c.ClaimSession(ctx, "s-race", 1)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))

	current := c.Session()
	assert.Equal(t, models.SessionStatusActive, current.Status)
	require.NotNil(t, current.SpecialistID)
	assert.Equal(t, "specialist-2", *current.SpecialistID)
}

func TestController_ClaimAdoptsSession(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testSpecialist)
	backend.addSession("s-1", "user-9", models.SessionStatusWaiting)

	claimed, err := c.ClaimSession(ctx, "s-1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, claimed.Status)
	assert.Equal(t, 1, feed.dialCount())

	_, err = NewController(ControllerConfig{Actor: testUser, Backend: backend}).ClaimSession(ctx, "s-1", 0)
	assert.True(t, IsKind(err, KindAuthorization))
}

func TestController_IgnoresStaleSessionEvents(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testUser)
	session, err := c.StartSession(ctx)
	require.NoError(t, err)
	waiting := *session

	active, err := backend.claimAs(session.ID, "specialist-1", 0)
	require.NoError(t, err)

	feed.conn().deliver(sessionEvent("UPDATE", active))
	assert.Equal(t, models.SessionStatusActive, c.Session().Status)

	// A late redelivery of the insert must not regress the status.
	feed.conn().deliver(sessionEvent("INSERT", &waiting))
	assert.Equal(t, models.SessionStatusActive, c.Session().Status)

	other := waiting
	other.ID = "someone-else"
	other.Status = models.SessionStatusEnded
	feed.conn().deliver(sessionEvent("UPDATE", &other))
	assert.Equal(t, session.ID, c.Session().ID)
}

func TestController_ReconnectConverges(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testUser)
	session, err := c.StartSession(ctx)
	require.NoError(t, err)
	feed.conn().status(FeedSubscribed, nil)

	_, err = c.SendMessage(ctx, "before drop", "")
	require.NoError(t, err)
	first := feed.conn()
	first.last[SessionChannel(session.ID)] = 7

	first.status(FeedChannelError, errors.New("socket reset"))
	assert.Equal(t, StateError, c.Monitor().Status().State)

	// Missed while disconnected.
	backend.insert(session.ID, "specialist-1", "missed one", "")
	backend.insert(session.ID, "specialist-1", "missed two", "")

	require.NoError(t, c.Monitor().Reconnect(ctx))
	assert.Equal(t, StateConnecting, c.Monitor().Status().State)
	assert.True(t, first.closed)
	require.Equal(t, 2, feed.dialCount())
	assert.Equal(t, 7, feed.conn().opts.LastEventIDs[SessionChannel(session.ID)])

	// A CLOSED report from the torn-down feed is ignored.
	first.status(FeedClosed, nil)
	assert.Equal(t, StateConnecting, c.Monitor().Status().State)

	feed.conn().status(FeedSubscribed, nil)
	assert.True(t, c.Monitor().Status().IsConnected())

	store, err := backend.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	msgs := c.Messages()
	require.Len(t, msgs, len(store))
	for i := range store {
		assert.Equal(t, store[i].ID, msgs[i].Message.ID)
		assert.Equal(t, Confirmed, msgs[i].State)
	}

	// Redelivered catch-up events do not duplicate.
	for _, m := range store {
		feed.conn().deliver(messageEvent(m))
	}
	assert.Len(t, c.Messages(), len(store))
}

func TestController_ForceReconnect(t *testing.T) {
	ctx := context.Background()
	c, _, feed := newTestController(t, testUser)
	_, err := c.StartSession(ctx)
	require.NoError(t, err)
	feed.conn().status(FeedSubscribed, nil)

	require.NoError(t, c.ForceReconnect(ctx))
	assert.Equal(t, 2, feed.dialCount())
	assert.Equal(t, StateConnecting, c.Monitor().Status().State)
}

func TestController_CloseDiscardsLateResults(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testUser)
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	backend.beforeAck = func(*models.ChatMessage) {
		require.NoError(t, c.Close())
	}
	_, err = c.SendMessage(ctx, "racing close", "")
	require.NoError(t, err)

	assert.True(t, feed.conn().closed)
	assert.Equal(t, 1, backend.count("send"))
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Pending, msgs[0].State)

	_, err = c.SendMessage(ctx, "after close", "")
	assert.True(t, IsKind(err, KindValidation))
}

func TestController_EventsDuringRefreshSurvive(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testUser)
	session, err := c.StartSession(ctx)
	require.NoError(t, err)
	feed.conn().status(FeedSubscribed, nil)

	_, err = backend.claimAs(session.ID, "specialist-1", 0)
	require.NoError(t, err)

	// While the history fetch is in flight, a message arrives and the
	// session ends; both are delivered before the snapshot is applied.
	fired := false
	backend.afterList = func(id string) {
		if fired {
			return
		}
		fired = true
		m := backend.insert(id, "specialist-1", "arrived during refresh", "")
		feed.conn().deliver(messageEvent(m))
		ended, err := backend.EndSession(ctx, id, "specialist_left")
		require.NoError(t, err)
		feed.conn().deliver(sessionEvent("UPDATE", ended))
	}

	require.NoError(t, c.RefreshSession(ctx))
	assert.Equal(t, []string{"arrived during refresh"}, contents(c.Messages()))
	assert.Equal(t, models.SessionStatusEnded, c.Session().Status)

	// The next refresh sees the message in the store and keeps one copy.
	require.NoError(t, c.RefreshSession(ctx))
	store, err := backend.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, c.Messages(), len(store))
	assert.Equal(t, store[0].ID, c.Messages()[0].Message.ID)
	assert.Equal(t, models.SessionStatusEnded, c.Session().Status)
}

func TestController_RefreshDoesNotRegressStatus(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testUser)
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	// The session ends after GetSession read the row but before the
	// refresh applies it.
	backend.afterGet = func(id string) {
		backend.afterGet = nil
		ended, err := backend.EndSession(ctx, id, "user_left")
		require.NoError(t, err)
		feed.conn().deliver(sessionEvent("UPDATE", ended))
	}

	require.NoError(t, c.RefreshSession(ctx))
	assert.Equal(t, models.SessionStatusEnded, c.Session().Status)
}

func TestController_SendCompletingAfterSwitchStaysInItsSession(t *testing.T) {
	ctx := context.Background()
	c, backend, _ := newTestController(t, testSpecialist)
	backend.addSession("s-a", "user-a", models.SessionStatusWaiting)
	backend.addSession("s-b", "user-b", models.SessionStatusWaiting)

	_, err := c.ClaimSession(ctx, "s-a", 0)
	require.NoError(t, err)

	backend.beforeAck = func(*models.ChatMessage) {
		backend.beforeAck = nil
		_, err := c.ClaimSession(ctx, "s-b", 1)
		require.NoError(t, err)
	}
	entry, err := c.SendMessage(ctx, "for user A only", "")
	require.NoError(t, err)
	assert.Equal(t, Confirmed, entry.State)
	assert.Equal(t, "s-a", entry.Message.SessionID)

	assert.Equal(t, "s-b", c.Session().ID)
	assert.Empty(t, c.Messages())

	// Back on A, the message is loaded from the store.
	_, err = c.OpenSession(ctx, "s-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"for user A only"}, contents(c.Messages()))
}

func TestController_ClaimKeptWhenHistoryLoadFails(t *testing.T) {
	ctx := context.Background()
	c, backend, feed := newTestController(t, testSpecialist)
	backend.addSession("s-1", "user-9", models.SessionStatusWaiting)
	backend.insert("s-1", "user-9", "hello?", "")
	backend.listErr = &Error{Kind: KindTransientNetwork, Message: "connection reset"}

	claimed, err := c.ClaimSession(ctx, "s-1", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHistoryLoad)
	assert.True(t, IsTransient(err))
	require.NotNil(t, claimed)
	assert.Equal(t, models.SessionStatusActive, claimed.Status)
	assert.Equal(t, "s-1", c.Session().ID)
	assert.Equal(t, 1, feed.dialCount())
	assert.Equal(t, 1, backend.count("claim"))

	backend.listErr = nil
	require.NoError(t, c.RefreshSession(ctx))
	assert.Equal(t, []string{"hello?"}, contents(c.Messages()))
	assert.Equal(t, 1, backend.count("claim"))
}
