package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jhjames1/peerchat/pkg/models"
)

// Backend is the subset of APIClient the controller uses.
type Backend interface {
	StartSession(ctx context.Context) (*models.ChatSession, bool, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ClaimSession(ctx context.Context, id string, slot int) (*models.ChatSession, error)
	EndSession(ctx context.Context, id, reason string) (*models.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
	SendMessage(ctx context.Context, sessionID string, req models.SendMessageRequest) (*models.ChatMessage, error)
}

var _ Backend = (*APIClient)(nil)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Actor   models.Actor
	Backend Backend
	// Dial opens the realtime subscription; nil disables the feed.
	Dial    FeedDialer
	FeedURL func() string
	// OnChange is called after the session or message list changes.
	OnChange func()
}

// Controller mediates one participant's view of one session. Operations
// may be called from any goroutine; network calls run without holding the
// controller's lock, so results arriving after Close are discarded.
type Controller struct {
	actor    models.Actor
	backend  Backend
	dial     FeedDialer
	feedURL  func() string
	onChange func()
	monitor  *Monitor
	logger   *slog.Logger

	mu       sync.Mutex
	session  *models.ChatSession
	messages *messageLog
	feed     FeedConn
	feedGen  int
	lastIDs  map[string]int
	closed   bool
}

// NewController creates a controller. No network call is made until a
// session is started, opened or claimed.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		actor:    cfg.Actor,
		backend:  cfg.Backend,
		dial:     cfg.Dial,
		feedURL:  cfg.FeedURL,
		onChange: cfg.OnChange,
		messages: newMessageLog(),
		lastIDs:  make(map[string]int),
		logger:   slog.Default().With("component", "chat-controller", "actor_id", cfg.Actor.ID),
	}
	c.monitor = NewMonitor(c.reconnectFeed)
	return c
}

// Monitor returns the controller's connection monitor.
func (c *Controller) Monitor() *Monitor {
	return c.monitor
}

// Session returns a copy of the current session, or nil.
func (c *Controller) Session() *models.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Messages returns the message list: confirmed messages in store order,
// then pending and failed entries in send order.
func (c *Controller) Messages() []MessageEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.entries()
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// StartSession returns the user's open session, creating a waiting one if
// none exists, subscribes to its feed and loads its history. A failed
// history load still returns the session, with an ErrHistoryLoad error.
func (c *Controller) StartSession(ctx context.Context) (*models.ChatSession, error) {
	if c.actor.Role != models.RoleUser {
		return nil, &Error{Kind: KindAuthorization, Message: "only users can start sessions"}
	}

	session, _, err := c.backend.StartSession(ctx)
	if err != nil {
		if k := KindOf(err); k == KindValidation || k == KindAuthorization {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}
	return c.adopt(ctx, session)
}

// OpenSession loads an existing session the actor may view, such as a
// waiting session a specialist previews before claiming.
func (c *Controller) OpenSession(ctx context.Context, id string) (*models.ChatSession, error) {
	session, err := c.backend.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.adopt(ctx, session)
}

// ClaimSession claims a waiting session into slot. Losing the race returns
// a conflict *Error and leaves the controller showing the winner's state.
// A successful claim is always applied; if only the history load fails,
// the claimed session is returned together with an ErrHistoryLoad error.
func (c *Controller) ClaimSession(ctx context.Context, sessionID string, slot int) (*models.ChatSession, error) {
	if !c.actor.IsSpecialist() {
		return nil, &Error{Kind: KindAuthorization, Message: "only specialists can claim sessions"}
	}
	if slot < 0 {
		return nil, validationError("slot", "must not be negative")
	}

	claimed, err := c.backend.ClaimSession(ctx, sessionID, slot)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Kind == KindConflict {
			current := ce.Session
			if current == nil {
				current, _ = c.backend.GetSession(ctx, sessionID)
			}
			if current != nil && c.isCurrent(sessionID) {
				c.applySession(current)
			}
		}
		return nil, err
	}

	if c.isCurrent(sessionID) {
		c.applySession(claimed)
		return c.Session(), nil
	}
	return c.adopt(ctx, claimed)
}

// SendMessage shows content as a pending entry and persists it. A failed
// send leaves the entry Failed for RetryMessage; later sends are not
// blocked.
func (c *Controller) SendMessage(ctx context.Context, content string, msgType models.MessageType) (MessageEntry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return MessageEntry{}, validationError("content", "message content is required")
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if msgType == models.MessageTypeSystem {
		return MessageEntry{}, validationError("message_type", "system messages cannot be sent by participants")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return MessageEntry{}, validationError("session", "controller is closed")
	}
	if c.session == nil {
		c.mu.Unlock()
		return MessageEntry{}, validationError("session", "no session is open")
	}
	if c.session.Status == models.SessionStatusEnded {
		s := *c.session
		c.mu.Unlock()
		return MessageEntry{}, &Error{Kind: KindConflict, Message: "session has ended", Current: string(s.Status), Session: &s}
	}
	sessionID := c.session.ID
	tempID := uuid.NewString()
	pending := models.ChatMessage{
		SessionID:   sessionID,
		SenderID:    c.actor.ID,
		SenderType:  c.actor.SenderType(),
		MessageType: msgType,
		Content:     content,
		ClientID:    tempID,
	}
	c.messages.addPending(tempID, pending)
	c.mu.Unlock()
	c.changed()

	return c.persist(ctx, sessionID, pending)
}

// RetryMessage resends a failed entry under its original temporary id.
func (c *Controller) RetryMessage(ctx context.Context, tempID string) (MessageEntry, error) {
	c.mu.Lock()
	e, ok := c.messages.local[tempID]
	if !ok || e.State != Failed {
		c.mu.Unlock()
		return MessageEntry{}, validationError("temp_id", "no failed message with this id")
	}
	if c.session == nil || c.session.Status == models.SessionStatusEnded {
		c.mu.Unlock()
		return MessageEntry{}, &Error{Kind: KindConflict, Message: "session has ended"}
	}
	sessionID := c.session.ID
	pending := e.Message
	c.messages.setLocalState(tempID, Pending, nil)
	c.mu.Unlock()
	c.changed()

	return c.persist(ctx, sessionID, pending)
}

func (c *Controller) persist(ctx context.Context, sessionID string, pending models.ChatMessage) (MessageEntry, error) {
	tempID := pending.ClientID
	msg, err := c.backend.SendMessage(ctx, sessionID, models.SendMessageRequest{
		Content:     pending.Content,
		MessageType: pending.MessageType,
		Metadata:    pending.Metadata,
		ClientID:    tempID,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return MessageEntry{}, err
	}
	if c.session == nil || c.session.ID != sessionID {
		// The controller moved to another session while the send was in
		// flight; its log must not receive this message.
		c.mu.Unlock()
		if err != nil {
			return MessageEntry{State: Failed, TempID: tempID, Message: pending, Err: err}, err
		}
		return MessageEntry{State: Confirmed, TempID: tempID, Message: *msg}, nil
	}
	var entry MessageEntry
	if err != nil {
		entry, _ = c.messages.setLocalState(tempID, Failed, err)
		var ce *Error
		if errors.As(err, &ce) && ce.Session != nil && c.session != nil &&
			ce.Session.ID == c.session.ID && newerSession(c.session, ce.Session) {
			c.session = ce.Session
		}
	} else {
		entry = c.messages.confirm(*msg)
	}
	c.mu.Unlock()
	c.changed()

	if err != nil {
		c.logger.Warn("Message send failed", "session_id", sessionID, "temp_id", tempID, "error", err)
		return entry, err
	}
	return entry, nil
}

// EndSession ends the current session. Ending an ended session is a no-op.
func (c *Controller) EndSession(ctx context.Context, reason string) (*models.ChatSession, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, validationError("session", "no session is open")
	}
	if c.session.Status == models.SessionStatusEnded {
		s := *c.session
		c.mu.Unlock()
		return &s, nil
	}
	id := c.session.ID
	c.mu.Unlock()

	ended, err := c.backend.EndSession(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	c.applySession(ended)
	return c.Session(), nil
}

// RefreshSession refetches the session and its full history. Afterwards
// the confirmed messages are the store's, including any delivered by the
// feed while the fetch was in flight, and the status has not regressed.
func (c *Controller) RefreshSession(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return validationError("session", "no session is open")
	}
	id := c.session.ID
	c.mu.Unlock()

	session, err := c.backend.GetSession(ctx, id)
	if err != nil {
		return err
	}
	c.applySession(session)
	return c.loadHistory(ctx, id)
}

// loadHistory merges the stored messages of session id into the log.
// Confirmations that land while ListMessages is in flight are kept.
func (c *Controller) loadHistory(ctx context.Context, id string) error {
	c.mu.Lock()
	log := c.messages
	mark := log.mark()
	c.mu.Unlock()

	msgs, err := c.backend.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHistoryLoad, err)
	}

	c.mu.Lock()
	if c.closed || c.session == nil || c.session.ID != id {
		c.mu.Unlock()
		return nil
	}
	if c.messages != log {
		mark = 0
	}
	c.messages.mergeSnapshot(msgs, mark)
	c.mu.Unlock()
	c.changed()
	return nil
}

// ForceReconnect tears down the feed, subscribes again and refetches.
func (c *Controller) ForceReconnect(ctx context.Context) error {
	c.monitor.HandleFeedStatus(FeedClosed, nil)
	return c.monitor.Reconnect(ctx)
}

// Close unsubscribes the feed and detaches the controller. In-flight
// operations complete but their results are dropped.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	feed := c.feed
	c.feed = nil
	c.feedGen++
	c.mu.Unlock()

	c.monitor.Close()
	if feed != nil {
		return feed.Close()
	}
	return nil
}

// HandleEvent applies a feed event for the current session. Redelivered
// and reordered events are harmless.
func (c *Controller) HandleEvent(ev ChangeEvent) {
	c.mu.Lock()
	if c.closed || c.session == nil || ev.SessionID != c.session.ID {
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case eventMessageCreated:
		msg, err := ev.Message()
		if err != nil {
			c.mu.Unlock()
			c.logger.Warn("Undecodable message event", "error", err)
			return
		}
		c.messages.confirm(*msg)
	case eventSessionChanged:
		s, err := ev.Session()
		if err != nil {
			c.mu.Unlock()
			c.logger.Warn("Undecodable session event", "error", err)
			return
		}
		if !newerSession(c.session, s) {
			c.mu.Unlock()
			return
		}
		c.session = s
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.changed()
}

// newerSession reports whether next may replace cur. Status never moves
// backwards, so a late copy of an older row is ignored.
func newerSession(cur, next *models.ChatSession) bool {
	if next.Status != cur.Status {
		return cur.Status.CanTransition(next.Status)
	}
	return !next.LastActivity.Before(cur.LastActivity)
}

func (c *Controller) isCurrent(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.ID == id
}

func (c *Controller) applySession(s *models.ChatSession) {
	c.mu.Lock()
	if c.closed || c.session == nil || c.session.ID != s.ID || !newerSession(c.session, s) {
		c.mu.Unlock()
		return
	}
	c.session = s
	c.mu.Unlock()
	c.changed()
}

// adopt makes s the current session, subscribes to its feed and loads its
// history. s stays current even when the history load fails; the error is
// returned alongside it and RefreshSession recovers.
func (c *Controller) adopt(ctx context.Context, s *models.ChatSession) (*models.ChatSession, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, validationError("session", "controller is closed")
	}
	switching := c.session == nil || c.session.ID != s.ID
	if switching {
		c.session = s
		c.messages = newMessageLog()
	} else if newerSession(c.session, s) {
		c.session = s
	}
	c.mu.Unlock()
	c.changed()

	if switching {
		if err := c.subscribe(ctx); err != nil {
			c.logger.Warn("Feed subscription failed", "session_id", s.ID, "error", err)
			c.monitor.HandleFeedStatus(FeedChannelError, err)
		}
	}
	if err := c.loadHistory(ctx, s.ID); err != nil {
		c.logger.Warn("Session history load failed", "session_id", s.ID, "error", err)
		return c.Session(), err
	}
	return c.Session(), nil
}

// subscribe replaces the feed with one on the current session's channel.
func (c *Controller) subscribe(ctx context.Context) error {
	if c.dial == nil {
		return nil
	}

	c.mu.Lock()
	old := c.feed
	c.feed = nil
	c.feedGen++
	gen := c.feedGen
	if old != nil {
		for k, v := range old.LastEventIDs() {
			if v > c.lastIDs[k] {
				c.lastIDs[k] = v
			}
		}
	}
	channel := SessionChannel(c.session.ID)
	resume := map[string]int{channel: c.lastIDs[channel]}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	url := ""
	if c.feedURL != nil {
		url = c.feedURL()
	}
	feed, err := c.dial(ctx, FeedOptions{
		URL:          url,
		Channels:     []string{channel},
		LastEventIDs: resume,
		OnEvent:      c.HandleEvent,
		OnStatus: func(_ string, st FeedStatus, err error) {
			if c.currentGen(gen) {
				c.monitor.HandleFeedStatus(st, err)
			}
		},
		OnOverflow: func(string) {
			if c.currentGen(gen) {
				go func() { _ = c.RefreshSession(context.Background()) }()
			}
		},
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.feedGen != gen {
		c.mu.Unlock()
		_ = feed.Close()
		return nil
	}
	c.feed = feed
	c.mu.Unlock()
	return nil
}

func (c *Controller) currentGen(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.feedGen == gen
}

// reconnectFeed is the monitor's reconnect function: resubscribe, then
// refetch so the view converges on the store.
func (c *Controller) reconnectFeed(ctx context.Context) error {
	c.mu.Lock()
	hasSession := c.session != nil
	c.mu.Unlock()
	if !hasSession {
		return nil
	}
	if err := c.subscribe(ctx); err != nil {
		return err
	}
	return c.RefreshSession(ctx)
}
