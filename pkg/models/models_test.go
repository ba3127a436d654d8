package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{SessionStatusWaiting, SessionStatusActive, true},
		{SessionStatusWaiting, SessionStatusEnded, true},
		{SessionStatusActive, SessionStatusEnded, true},
		{SessionStatusActive, SessionStatusWaiting, false},
		{SessionStatusEnded, SessionStatusActive, false},
		{SessionStatusEnded, SessionStatusWaiting, false},
		{SessionStatusEnded, SessionStatusEnded, false},
		{SessionStatusWaiting, SessionStatusWaiting, false},
		{SessionStatus("paused"), SessionStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestChatSession_IsParticipant(t *testing.T) {
	sp := "sp-1"
	user := Actor{ID: "u-1", Role: RoleUser}
	specialist := Actor{ID: "sp-1", Role: RoleSpecialist}

	s := &ChatSession{UserID: "u-1"}
	assert.True(t, s.IsParticipant(user))
	assert.False(t, s.IsParticipant(specialist))

	s.SpecialistID = &sp
	assert.True(t, s.IsParticipant(specialist))
	assert.False(t, s.IsParticipant(Actor{ID: "someone", Role: RoleSpecialist}))

	// Ids only match within the actor's role.
	assert.False(t, s.IsParticipant(Actor{ID: "sp-1", Role: RoleUser}))
	assert.False(t, s.IsParticipant(Actor{ID: "u-1", Role: RoleSpecialist}))
	assert.False(t, s.IsParticipant(Actor{ID: "u-1"}))
}

func TestMessageType_Valid(t *testing.T) {
	for _, mt := range []MessageType{MessageTypeText, MessageTypeQuickAction, MessageTypeSystem, MessageTypePhoneCallRequest} {
		assert.True(t, mt.Valid(), mt)
	}
	assert.False(t, MessageType("image").Valid())
	assert.False(t, MessageType("").Valid())
}

func TestActor_SenderType(t *testing.T) {
	assert.Equal(t, SenderUser, Actor{ID: "u", Role: RoleUser}.SenderType())
	assert.Equal(t, SenderSpecialist, Actor{ID: "s", Role: RoleSpecialist}.SenderType())
	assert.True(t, Actor{Role: RoleSpecialist}.IsSpecialist())
}

func TestPendingProposal_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &PendingProposal{ExpiresAt: now}
	assert.True(t, p.IsExpired(now), "expiry instant counts as expired")
	assert.False(t, p.IsExpired(now.Add(-time.Second)))
	assert.True(t, p.IsExpired(now.Add(time.Minute)))
}
