package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jhjames1/peerchat/pkg/models"
)

// FeedStatus is a subscription status reported by the feed.
type FeedStatus string

const (
	FeedSubscribed   FeedStatus = "SUBSCRIBED"
	FeedChannelError FeedStatus = "CHANNEL_ERROR"
	FeedTimedOut     FeedStatus = "TIMED_OUT"
	FeedClosed       FeedStatus = "CLOSED"
)

// Wire names shared with the server.
const (
	WaitingListChannel = "sessions"

	tableChatSessions = "chat_sessions"
	tableChatMessages = "chat_messages"

	eventSessionChanged = "session.changed"
	eventMessageCreated = "message.created"
)

const defaultSubscribeTimeout = 10 * time.Second

// SessionChannel returns the feed channel of one session.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ChangeEvent is one row-change delivered by the feed. Delivery is
// at-least-once and may reorder; consumers reconcile by row id.
type ChangeEvent struct {
	Type      string          `json:"type"`
	Table     string          `json:"table"`
	EventType string          `json:"event_type"`
	SessionID string          `json:"session_id"`
	New       json.RawMessage `json:"new"`
	Old       json.RawMessage `json:"old,omitempty"`
	DBEventID int             `json:"db_event_id,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Session decodes the new session row of a chat_sessions event.
func (e ChangeEvent) Session() (*models.ChatSession, error) {
	if e.Table != tableChatSessions || len(e.New) == 0 {
		return nil, fmt.Errorf("event on %q carries no session", e.Table)
	}
	var s models.ChatSession
	if err := json.Unmarshal(e.New, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Message decodes the new message row of a chat_messages event.
func (e ChangeEvent) Message() (*models.ChatMessage, error) {
	if e.Table != tableChatMessages || len(e.New) == 0 {
		return nil, fmt.Errorf("event on %q carries no message", e.Table)
	}
	var m models.ChatMessage
	if err := json.Unmarshal(e.New, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &m, nil
}

// FeedOptions configures a feed connection.
type FeedOptions struct {
	// URL is the WebSocket URL including the token, see APIClient.FeedURL.
	URL      string
	Channels []string
	// LastEventIDs resumes channels after these db_event_ids.
	LastEventIDs map[string]int

	OnEvent  func(ChangeEvent)
	OnStatus func(channel string, status FeedStatus, err error)
	// OnOverflow is called when catch-up had more events than one page.
	OnOverflow func(channel string)

	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// FeedConn is an open feed subscription.
type FeedConn interface {
	LastEventIDs() map[string]int
	Close() error
}

// FeedDialer opens a feed subscription.
type FeedDialer func(ctx context.Context, opts FeedOptions) (FeedConn, error)

// Feed is one WebSocket connection to the realtime feed. It does not
// reconnect on its own; callers dial a new Feed with LastEventIDs.
type Feed struct {
	conn *websocket.Conn
	opts FeedOptions

	mu        sync.Mutex
	lastIDs   map[string]int
	confirmed map[string]bool
	closed    bool
	done      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// DialFeed connects and subscribes to opts.Channels.
func DialFeed(ctx context.Context, opts FeedOptions) (FeedConn, error) {
	if opts.URL == "" {
		return nil, validationError("url", "feed url is required")
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = defaultSubscribeTimeout
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Message: "dial feed", Err: err}
	}
	conn.SetReadLimit(1 << 20)

	runCtx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		conn:      conn,
		opts:      opts,
		lastIDs:   make(map[string]int),
		confirmed: make(map[string]bool),
		done:      make(chan struct{}),
		ctx:       runCtx,
		cancel:    cancel,
		logger:    slog.Default().With("component", "feed"),
	}
	for ch, id := range opts.LastEventIDs {
		f.lastIDs[ch] = id
	}

	go f.readLoop()

	for _, ch := range opts.Channels {
		if err := f.subscribe(ctx, ch); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (f *Feed) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return &Error{Kind: KindTransientNetwork, Message: "write feed", Err: err}
	}
	return nil
}

func (f *Feed) subscribe(ctx context.Context, channel string) error {
	msg := map[string]any{"action": "subscribe", "channel": channel}
	f.mu.Lock()
	if id, ok := f.lastIDs[channel]; ok && id > 0 {
		msg["last_event_id"] = id
	}
	f.mu.Unlock()

	if err := f.send(ctx, msg); err != nil {
		return err
	}

	time.AfterFunc(f.opts.SubscribeTimeout, func() {
		f.mu.Lock()
		pending := !f.closed && !f.confirmed[channel]
		f.mu.Unlock()
		if pending {
			f.status(channel, FeedTimedOut, fmt.Errorf("no confirmation within %v", f.opts.SubscribeTimeout))
		}
	})
	return nil
}

func (f *Feed) status(channel string, st FeedStatus, err error) {
	if f.opts.OnStatus != nil {
		f.opts.OnStatus(channel, st, err)
	}
}

func (f *Feed) readLoop() {
	defer close(f.done)
	for {
		_, data, err := f.conn.Read(f.ctx)
		if err != nil {
			f.mu.Lock()
			closing := f.closed
			f.closed = true
			f.mu.Unlock()
			f.cancel()

			for _, ch := range f.opts.Channels {
				if closing || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					f.status(ch, FeedClosed, nil)
				} else {
					f.status(ch, FeedChannelError, err)
				}
			}
			return
		}
		f.handle(data)
	}
}

type controlMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Message string `json:"message"`
}

func (f *Feed) handle(data []byte) {
	var ctl controlMessage
	if err := json.Unmarshal(data, &ctl); err != nil {
		f.logger.Warn("Invalid feed message", "error", err)
		return
	}

	switch ctl.Type {
	case "connection.established", "pong":
		return
	case "subscription.confirmed":
		f.mu.Lock()
		f.confirmed[ctl.Channel] = true
		f.mu.Unlock()
		f.status(ctl.Channel, FeedSubscribed, nil)
		return
	case "subscription.error":
		f.mu.Lock()
		f.confirmed[ctl.Channel] = true
		f.mu.Unlock()
		f.status(ctl.Channel, FeedChannelError, errors.New(ctl.Message))
		return
	case "catchup.overflow":
		// More history than one catch-up page; the caller refetches.
		if f.opts.OnOverflow != nil {
			f.opts.OnOverflow(ctl.Channel)
		} else {
			f.logger.Warn("Catch-up overflow", "channel", ctl.Channel)
		}
		return
	case "error":
		f.logger.Warn("Feed error", "message", ctl.Message)
		return
	}

	if !strings.Contains(ctl.Type, ".") {
		return
	}
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		f.logger.Warn("Invalid change event", "error", err)
		return
	}
	// Only session channel events are persisted and carry an id.
	if ev.DBEventID > 0 && ev.SessionID != "" {
		ch := SessionChannel(ev.SessionID)
		f.mu.Lock()
		if ev.DBEventID > f.lastIDs[ch] {
			f.lastIDs[ch] = ev.DBEventID
		}
		f.mu.Unlock()
	}
	if f.opts.OnEvent != nil {
		f.opts.OnEvent(ev)
	}
}

// LastEventIDs returns the highest db_event_id seen per session channel.
func (f *Feed) LastEventIDs() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.lastIDs))
	for k, v := range f.lastIDs {
		out[k] = v
	}
	return out
}

// Close unsubscribes every channel and closes the connection. The status
// callback receives CLOSED for each channel.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, ch := range f.opts.Channels {
		_ = f.send(ctx, map[string]string{"action": "unsubscribe", "channel": ch})
	}

	// The peer may already be gone; the close handshake result is moot.
	_ = f.conn.Close(websocket.StatusNormalClosure, "client closed")
	f.cancel()
	<-f.done
	return nil
}
