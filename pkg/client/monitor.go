package client

import (
	"context"
	"sync"
)

// ConnectionState is the simplified feed health shown to the UI.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// ConnectionStatus is the monitor's current state.
type ConnectionStatus struct {
	State ConnectionState `json:"status"`
	Error string          `json:"error,omitempty"`
}

// IsConnected reports whether the feed is live.
func (s ConnectionStatus) IsConnected() bool {
	return s.State == StateConnected
}

// Monitor tracks the realtime subscription lifecycle:
//
//	connecting            → connected | error | disconnected
//	connected             → disconnected | error
//	disconnected | error  → connecting (Reconnect only)
//
// A SUBSCRIBED report moves any state to connected, which is how a feed
// recovering on its own is reflected. The monitor never retries by itself.
type Monitor struct {
	mu        sync.Mutex
	status    ConnectionStatus
	reconnect func(ctx context.Context) error
	listeners map[int]func(ConnectionStatus)
	nextID    int
	closed    bool
}

// NewMonitor creates a monitor in the connecting state. reconnect is
// invoked by Reconnect to re-establish the subscription.
func NewMonitor(reconnect func(ctx context.Context) error) *Monitor {
	return &Monitor{
		status:    ConnectionStatus{State: StateConnecting},
		reconnect: reconnect,
		listeners: make(map[int]func(ConnectionStatus)),
	}
}

// Status returns the current status.
func (m *Monitor) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnChange registers fn for every status change and returns a function
// that removes it.
func (m *Monitor) OnChange(fn func(ConnectionStatus)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// HandleFeedStatus applies a feed status report.
func (m *Monitor) HandleFeedStatus(status FeedStatus, err error) {
	switch status {
	case FeedSubscribed:
		m.transition(StateConnected, "", func(ConnectionState) bool { return true })
	case FeedClosed:
		m.transition(StateDisconnected, "", leavesLive)
	case FeedTimedOut:
		m.transition(StateError, errString(err, "subscription timed out"), leavesLive)
	case FeedChannelError:
		m.transition(StateError, errString(err, "channel error"), leavesLive)
	}
}

// Reconnect moves a disconnected or errored monitor to connecting and
// invokes the reconnect function. It is a no-op in other states.
func (m *Monitor) Reconnect(ctx context.Context) error {
	if !m.transition(StateConnecting, "", func(from ConnectionState) bool {
		return from == StateDisconnected || from == StateError
	}) {
		return nil
	}
	if m.reconnect == nil {
		return nil
	}
	if err := m.reconnect(ctx); err != nil {
		m.transition(StateError, err.Error(), leavesLive)
		return err
	}
	return nil
}

// Close drops all listeners; later reports are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = map[int]func(ConnectionStatus){}
}

func leavesLive(from ConnectionState) bool {
	return from == StateConnected || from == StateConnecting
}

func (m *Monitor) transition(to ConnectionState, errMsg string, allowed func(from ConnectionState) bool) bool {
	m.mu.Lock()
	if m.closed || !allowed(m.status.State) {
		m.mu.Unlock()
		return false
	}
	next := ConnectionStatus{State: to, Error: errMsg}
	if next == m.status {
		m.mu.Unlock()
		return false
	}
	m.status = next
	fns := make([]func(ConnectionStatus), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return true
}

func errString(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
