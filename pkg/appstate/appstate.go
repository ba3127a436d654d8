// Package appstate keeps per-user client application state: admin login
// flag, the latest recovery-strength snapshot and saved wisdom entries.
//
// App state is best-effort UI state. Chat session status always comes from
// the session store; nothing here is consulted for it.
package appstate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrVersionConflict is returned by Save when the stored state changed
	// since the caller loaded it.
	ErrVersionConflict = errors.New("app state version conflict")

	// ErrInvalidState is returned by Save for state that fails validation.
	ErrInvalidState = errors.New("invalid app state")
)

const (
	maxWisdomEntries = 200
	maxWisdomLength  = 2000
)

// RecoverySnapshot is the most recent recovery-strength reading.
type RecoverySnapshot struct {
	Score      int       `json:"score"`
	Streak     int       `json:"streak_days"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WisdomEntry is a saved quote or note.
type WisdomEntry struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// State is one owner's app state. Version increments on every Save and
// starts at 0 for an owner with nothing stored.
type State struct {
	OwnerID          string            `json:"owner_id"`
	AdminLoggedIn    bool              `json:"admin_logged_in"`
	RecoveryStrength *RecoverySnapshot `json:"recovery_strength,omitempty"`
	SavedWisdom      []WisdomEntry     `json:"saved_wisdom"`
	Version          int64             `json:"version"`
	UpdatedAt        time.Time         `json:"updated_at,omitempty"`
}

// Validate checks field bounds.
func (s *State) Validate() error {
	if s.OwnerID == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidState)
	}
	if r := s.RecoveryStrength; r != nil && (r.Score < 0 || r.Score > 100) {
		return fmt.Errorf("%w: recovery score %d not in 0..100", ErrInvalidState, r.Score)
	}
	if len(s.SavedWisdom) > maxWisdomEntries {
		return fmt.Errorf("%w: at most %d wisdom entries", ErrInvalidState, maxWisdomEntries)
	}
	for _, w := range s.SavedWisdom {
		if w.Text == "" || len(w.Text) > maxWisdomLength {
			return fmt.Errorf("%w: wisdom text must be 1..%d bytes", ErrInvalidState, maxWisdomLength)
		}
	}
	return nil
}

func (s *State) clone() *State {
	cp := *s
	if s.RecoveryStrength != nil {
		r := *s.RecoveryStrength
		cp.RecoveryStrength = &r
	}
	cp.SavedWisdom = append([]WisdomEntry(nil), s.SavedWisdom...)
	return &cp
}

// Empty returns the zero state for owner.
func Empty(ownerID string) *State {
	return &State{OwnerID: ownerID, SavedWisdom: []WisdomEntry{}}
}

// Store loads and saves app state with optimistic versioning.
type Store interface {
	// Load returns the owner's state, or Empty(ownerID) when none is stored.
	Load(ctx context.Context, ownerID string) (*State, error)
	// Save stores state if state.Version matches the stored version and
	// returns the stored copy with the incremented version.
	Save(ctx context.Context, state *State) (*State, error)
	Close() error
}
