package client

import (
	"context"
	"sort"
	"sync"

	"github.com/jhjames1/peerchat/pkg/models"
)

// SessionLister lists sessions.
type SessionLister interface {
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error)
}

// WaitingList is the specialists' view of waiting sessions, oldest first.
// It is kept current from INSERT and UPDATE events on the sessions
// channel without reloading.
type WaitingList struct {
	lister   SessionLister
	onChange func([]*models.ChatSession)

	mu       sync.Mutex
	sessions map[string]*models.ChatSession
	// left holds sessions seen leaving waiting; they never return.
	left map[string]bool
	// gen advances on every applied event; eventGen records when each
	// listed session was last updated by one.
	gen      int
	eventGen map[string]int
}

// NewWaitingList creates an empty list. onChange may be nil.
func NewWaitingList(lister SessionLister, onChange func([]*models.ChatSession)) *WaitingList {
	return &WaitingList{
		lister:   lister,
		onChange: onChange,
		sessions: make(map[string]*models.ChatSession),
		left:     make(map[string]bool),
		eventGen: make(map[string]int),
	}
}

// Refresh reloads the list from the server. Sessions inserted or updated
// by events while the fetch was in flight survive it.
func (w *WaitingList) Refresh(ctx context.Context) error {
	w.mu.Lock()
	mark := w.gen
	w.mu.Unlock()

	sessions, err := w.lister.ListSessions(ctx, models.SessionFilter{
		Status:    models.SessionStatusWaiting,
		Ascending: true,
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	next := make(map[string]*models.ChatSession, len(sessions))
	for _, s := range sessions {
		if !w.left[s.ID] {
			next[s.ID] = s
		}
	}
	gens := make(map[string]int)
	for id, cur := range w.sessions {
		g := w.eventGen[id]
		if g <= mark {
			continue
		}
		if snap, ok := next[id]; ok && !newerSession(snap, cur) {
			continue
		}
		next[id] = cur
		gens[id] = g
	}
	w.sessions = next
	w.eventGen = gens
	w.mu.Unlock()
	w.notify()
	return nil
}

// Sessions returns the waiting sessions ordered by session number.
func (w *WaitingList) Sessions() []*models.ChatSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*models.ChatSession, 0, len(w.sessions))
	for _, s := range w.sessions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionNumber < out[j].SessionNumber })
	return out
}

// HandleEvent applies a session change. A session leaves the list when an
// update shows it is no longer waiting; redelivered events are harmless.
func (w *WaitingList) HandleEvent(ev ChangeEvent) {
	if ev.Table != tableChatSessions {
		return
	}
	s, err := ev.Session()
	if err != nil {
		return
	}

	w.mu.Lock()
	cur, known := w.sessions[s.ID]
	switch {
	case s.Status == models.SessionStatusWaiting:
		if w.left[s.ID] || (known && !newerSession(cur, s)) {
			w.mu.Unlock()
			return
		}
		w.gen++
		w.sessions[s.ID] = s
		w.eventGen[s.ID] = w.gen
	default:
		w.left[s.ID] = true
		if !known {
			w.mu.Unlock()
			return
		}
		delete(w.sessions, s.ID)
		delete(w.eventGen, s.ID)
	}
	w.mu.Unlock()
	w.notify()
}

// Watch subscribes to the sessions channel and forwards feed status
// reports to onStatus. The sessions channel has no catch-up, so callers
// Refresh after every new subscription.
func (w *WaitingList) Watch(ctx context.Context, dial FeedDialer, url string, onStatus func(FeedStatus, error)) (FeedConn, error) {
	return dial(ctx, FeedOptions{
		URL:      url,
		Channels: []string{WaitingListChannel},
		OnEvent:  w.HandleEvent,
		OnStatus: func(_ string, st FeedStatus, err error) {
			if onStatus != nil {
				onStatus(st, err)
			}
		},
	})
}

func (w *WaitingList) notify() {
	if w.onChange != nil {
		w.onChange(w.Sessions())
	}
}
