package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingBroadcaster struct {
	channels []string
}

func (r *recordingBroadcaster) Broadcast(channel string, _ []byte) {
	r.channels = append(r.channels, channel)
}

func TestNewNotifyListener(t *testing.T) {
	target := &recordingBroadcaster{}
	listener := NewNotifyListener("host=localhost dbname=test", target)

	assert.NotNil(t, listener)
	assert.Equal(t, "host=localhost dbname=test", listener.connString)
	assert.NotNil(t, listener.channels)
	assert.Equal(t, target, listener.target)
	assert.False(t, listener.isListening("sessions"))
}

func TestNotifyListener_ChannelTrackingWithoutConnection(t *testing.T) {
	listener := NewNotifyListener("host=localhost dbname=test", &recordingBroadcaster{})

	t.Run("subscribe without connection returns error", func(t *testing.T) {
		err := listener.Subscribe(t.Context(), "test-channel")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not established")
		assert.False(t, listener.isListening("test-channel"))
	})

	t.Run("unsubscribe without connection is a no-op", func(t *testing.T) {
		err := listener.Unsubscribe(t.Context(), "test-channel")
		assert.NoError(t, err)
	})

	t.Run("stop before start is safe", func(t *testing.T) {
		listener.Stop(t.Context())
	})
}
