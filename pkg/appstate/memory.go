package appstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps app state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, ownerID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[ownerID]
	if !ok {
		return Empty(ownerID), nil
	}
	return st.clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, state *State) (*State, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if stored, ok := m.states[state.OwnerID]; ok {
		current = stored.Version
	}
	if state.Version != current {
		return nil, ErrVersionConflict
	}

	next := state.clone()
	next.Version = current + 1
	next.UpdatedAt = time.Now().UTC()
	m.states[state.OwnerID] = next
	return next.clone(), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*State)
	return nil
}
