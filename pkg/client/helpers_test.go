package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
)

// fakeBackend is an in-memory server with one session table.
type fakeBackend struct {
	mu        sync.Mutex
	sessions  map[string]*models.ChatSession
	messages  map[string][]*models.ChatMessage
	byClient  map[string]*models.ChatMessage
	nextNum   int64
	nextMsg   int
	calls     map[string]int
	sendErr   error
	startErr  error
	listErr   error
	beforeAck func(msg *models.ChatMessage)
	// afterGet and afterList run once the snapshot is taken, before it
	// is returned to the caller.
	afterGet  func(sessionID string)
	afterList func(sessionID string)
	now       time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string]*models.ChatSession),
		messages: make(map[string][]*models.ChatMessage),
		byClient: make(map[string]*models.ChatMessage),
		calls:    make(map[string]int),
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBackend) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) addSession(id, userID string, status models.SessionStatus) *models.ChatSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextNum++
	s := &models.ChatSession{ID: id, UserID: userID, Status: status, SessionNumber: f.nextNum, StartedAt: f.tick(), LastActivity: f.now}
	f.sessions[id] = s
	return s
}

func (f *fakeBackend) StartSession(_ context.Context) (*models.ChatSession, bool, error) {
	f.mu.Lock()
	f.calls["start"]++
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	s := f.addSession(fmt.Sprintf("session-%d", f.nextNum+1), "user-1", models.SessionStatusWaiting)
	cp := *s
	return &cp, true, nil
}

func (f *fakeBackend) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	f.mu.Lock()
	f.calls["get"]++
	s, ok := f.sessions[id]
	if !ok {
		f.mu.Unlock()
		return nil, &Error{Kind: KindNotFound, Status: 404}
	}
	cp := *s
	hook := f.afterGet
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return &cp, nil
}

func (f *fakeBackend) ClaimSession(_ context.Context, id string, slot int) (*models.ChatSession, error) {
	return f.claimAs(id, "specialist-1", slot)
}

func (f *fakeBackend) claimAs(id, specialistID string, slot int) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["claim"]++
	s, ok := f.sessions[id]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Status: 404}
	}
	if s.Status != models.SessionStatusWaiting {
		cp := *s
		return nil, &Error{Kind: KindConflict, Status: 409, Message: "session already claimed", Current: string(s.Status), Session: &cp}
	}
	s.Status = models.SessionStatusActive
	s.SpecialistID = &specialistID
	s.SlotNumber = &slot
	s.LastActivity = f.tick()
	cp := *s
	return &cp, nil
}

func (f *fakeBackend) EndSession(_ context.Context, id, reason string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["end"]++
	s := f.sessions[id]
	if s.Status != models.SessionStatusEnded {
		s.Status = models.SessionStatusEnded
		s.EndReason = &reason
		t := f.tick()
		s.EndedAt = &t
		s.LastActivity = t
	}
	cp := *s
	return &cp, nil
}

func (f *fakeBackend) ListMessages(_ context.Context, sessionID string) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	f.calls["list"]++
	if f.listErr != nil {
		err := f.listErr
		f.mu.Unlock()
		return nil, err
	}
	out := make([]*models.ChatMessage, 0, len(f.messages[sessionID]))
	for _, m := range f.messages[sessionID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	hook := f.afterList
	f.mu.Unlock()

	if hook != nil {
		hook(sessionID)
	}
	return out, nil
}

// insert stores a message as if another participant had sent it.
func (f *fakeBackend) insert(sessionID, senderID, content, clientID string) *models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(sessionID, senderID, content, clientID)
}

func (f *fakeBackend) insertLocked(sessionID, senderID, content, clientID string) *models.ChatMessage {
	if clientID != "" {
		if m, ok := f.byClient[clientID]; ok {
			return m
		}
	}
	f.nextMsg++
	m := &models.ChatMessage{
		ID:          fmt.Sprintf("msg-%d", f.nextMsg),
		SessionID:   sessionID,
		SenderID:    senderID,
		SenderType:  models.SenderUser,
		MessageType: models.MessageTypeText,
		Content:     content,
		ClientID:    clientID,
		CreatedAt:   f.tick(),
		Seq:         int64(f.nextMsg),
	}
	f.messages[sessionID] = append(f.messages[sessionID], m)
	if clientID != "" {
		f.byClient[clientID] = m
	}
	return m
}

func (f *fakeBackend) SendMessage(_ context.Context, sessionID string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	f.mu.Lock()
	f.calls["send"]++
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return nil, err
	}
	if s := f.sessions[sessionID]; s.Status == models.SessionStatusEnded {
		cp := *s
		f.mu.Unlock()
		return nil, &Error{Kind: KindConflict, Status: 409, Current: "ended", Session: &cp}
	}
	m := f.insertLocked(sessionID, "user-1", req.Content, req.ClientID)
	cp := *m
	hook := f.beforeAck
	f.mu.Unlock()

	if hook != nil {
		hook(&cp)
	}
	return &cp, nil
}

// fakeFeed records dials and lets tests drive status callbacks.
type fakeFeed struct {
	mu      sync.Mutex
	dials   []FeedOptions
	current *fakeFeedConn
	dialErr error
}

type fakeFeedConn struct {
	opts   FeedOptions
	last   map[string]int
	closed bool
}

func (c *fakeFeedConn) LastEventIDs() map[string]int { return c.last }

func (c *fakeFeedConn) Close() error {
	c.closed = true
	return nil
}

func (f *fakeFeed) dial(_ context.Context, opts FeedOptions) (FeedConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, opts)
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.current = &fakeFeedConn{opts: opts, last: map[string]int{}}
	return f.current, nil
}

func (f *fakeFeed) conn() *fakeFeedConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeFeed) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}

func (c *fakeFeedConn) status(st FeedStatus, err error) {
	for _, ch := range c.opts.Channels {
		c.opts.OnStatus(ch, st, err)
	}
}

func (c *fakeFeedConn) deliver(ev ChangeEvent) {
	c.opts.OnEvent(ev)
}

func messageEvent(m *models.ChatMessage) ChangeEvent {
	data, _ := json.Marshal(m)
	return ChangeEvent{Type: eventMessageCreated, Table: tableChatMessages, EventType: "INSERT", SessionID: m.SessionID, New: data}
}

func sessionEvent(eventType string, s *models.ChatSession) ChangeEvent {
	data, _ := json.Marshal(s)
	return ChangeEvent{Type: eventSessionChanged, Table: tableChatSessions, EventType: eventType, SessionID: s.ID, New: data}
}

func contents(entries []MessageEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message.Content
	}
	return out
}
