package client

import (
	"sort"

	"github.com/jhjames1/peerchat/pkg/models"
)

// EntryState tags a locally displayed message.
type EntryState int

const (
	// Pending is shown optimistically while the send is in flight.
	Pending EntryState = iota
	// Confirmed is backed by a persisted message.
	Confirmed
	// Failed could not be persisted and may be retried.
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MessageEntry is one message in a controller's list. TempID is the
// client-generated id sent as client_id; Message.ID is set only once
// Confirmed.
type MessageEntry struct {
	State   EntryState
	TempID  string
	Message models.ChatMessage
	Err     error
}

// Key identifies the entry: the persisted id when confirmed, else the
// temporary id.
func (e MessageEntry) Key() string {
	if e.State == Confirmed && e.Message.ID != "" {
		return e.Message.ID
	}
	return e.TempID
}

// messageLog holds confirmed messages keyed by persisted id and local
// entries keyed by temporary id. Reconciliation matches ids, never
// positions.
type messageLog struct {
	confirmed map[string]*MessageEntry
	local     map[string]*MessageEntry
	localSeq  []string
	// gen advances on every confirmation; confirmedGen records the
	// generation at which each persisted id was last confirmed.
	gen          int
	confirmedGen map[string]int
}

func newMessageLog() *messageLog {
	return &messageLog{
		confirmed:    make(map[string]*MessageEntry),
		local:        make(map[string]*MessageEntry),
		confirmedGen: make(map[string]int),
	}
}

// mark returns the current generation, to be passed to mergeSnapshot for
// a snapshot requested now.
func (l *messageLog) mark() int {
	return l.gen
}

func (l *messageLog) addPending(tempID string, msg models.ChatMessage) {
	l.local[tempID] = &MessageEntry{State: Pending, TempID: tempID, Message: msg}
	l.localSeq = append(l.localSeq, tempID)
}

func (l *messageLog) setLocalState(tempID string, state EntryState, err error) (MessageEntry, bool) {
	e, ok := l.local[tempID]
	if !ok {
		return MessageEntry{}, false
	}
	e.State = state
	e.Err = err
	return *e, true
}

// confirm records a persisted message, replacing a redelivered copy or the
// local entry whose temporary id it carries.
func (l *messageLog) confirm(msg models.ChatMessage) MessageEntry {
	l.gen++
	l.confirmedGen[msg.ID] = l.gen
	tempID := msg.ClientID
	if existing, ok := l.confirmed[msg.ID]; ok {
		existing.Message = msg
		l.dropLocal(tempID)
		return *existing
	}
	if tempID != "" {
		if _, ok := l.local[tempID]; ok {
			l.dropLocal(tempID)
		}
	}
	e := &MessageEntry{State: Confirmed, TempID: tempID, Message: msg}
	l.confirmed[msg.ID] = e
	return *e
}

func (l *messageLog) dropLocal(tempID string) {
	if tempID == "" {
		return
	}
	if _, ok := l.local[tempID]; !ok {
		return
	}
	delete(l.local, tempID)
	for i, id := range l.localSeq {
		if id == tempID {
			l.localSeq = append(l.localSeq[:i], l.localSeq[i+1:]...)
			break
		}
	}
}

// mergeSnapshot makes the confirmed set msgs plus every message confirmed
// after mark, since the snapshot may predate those. Local entries whose
// temporary id appears in msgs are resolved; others are kept.
func (l *messageLog) mergeSnapshot(msgs []*models.ChatMessage, mark int) {
	var later []models.ChatMessage
	for id, e := range l.confirmed {
		if l.confirmedGen[id] > mark {
			later = append(later, e.Message)
		}
	}
	l.confirmed = make(map[string]*MessageEntry, len(msgs)+len(later))
	l.confirmedGen = make(map[string]int, len(msgs)+len(later))
	for _, m := range msgs {
		l.confirm(*m)
	}
	for _, m := range later {
		l.confirm(m)
	}
}

// entries returns confirmed messages in store order followed by local
// entries in send order.
func (l *messageLog) entries() []MessageEntry {
	out := make([]MessageEntry, 0, len(l.confirmed)+len(l.localSeq))
	for _, e := range l.confirmed {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Message, out[j].Message
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
	for _, id := range l.localSeq {
		out = append(out, *l.local[id])
	}
	return out
}
