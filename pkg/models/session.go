// Package models contains request/response models and business domain types.
package models

import "time"

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

// Session lifecycle values. Progression is one-way: waiting → active → ended.
const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether a session may move from s to next.
// Ending is allowed from waiting (abandoned before a claim) and from active.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionStatusWaiting:
		return next == SessionStatusActive || next == SessionStatusEnded
	case SessionStatusActive:
		return next == SessionStatusEnded
	}
	return false
}

// ChatSession is one help-seeker/specialist chat engagement.
type ChatSession struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	SpecialistID  *string       `json:"specialist_id,omitempty"`
	Status        SessionStatus `json:"status"`
	SlotNumber    *int          `json:"slot_number,omitempty"`
	SessionNumber int64         `json:"session_number"`
	StartedAt     time.Time     `json:"started_at"`
	ClaimedAt     *time.Time    `json:"claimed_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	EndReason     *string       `json:"end_reason,omitempty"`
	LastActivity  time.Time     `json:"last_activity"`
}

// IsParticipant reports whether actor is the session's user, or its
// assigned specialist. The id is only compared within the actor's role.
func (s *ChatSession) IsParticipant(actor Actor) bool {
	switch actor.Role {
	case RoleUser:
		return actor.ID != "" && s.UserID == actor.ID
	case RoleSpecialist:
		return s.SpecialistID != nil && *s.SpecialistID == actor.ID
	}
	return false
}

// SessionFilter selects sessions for listing. Empty fields do not filter.
type SessionFilter struct {
	Status       SessionStatus `json:"status,omitempty"`
	SpecialistID string        `json:"specialist_id,omitempty"`
	UserID       string        `json:"user_id,omitempty"`
	Ascending    bool          `json:"ascending,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

// ClaimSessionRequest is the body of a claim call.
type ClaimSessionRequest struct {
	Slot int `json:"slot"`
}

// EndSessionRequest is the body of an end call.
type EndSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SessionListResponse wraps a list of sessions.
type SessionListResponse struct {
	Sessions []*ChatSession `json:"sessions"`
}

// SlotsResponse reports a specialist's slot availability; true means free.
type SlotsResponse struct {
	SpecialistID string `json:"specialist_id"`
	Slots        []bool `json:"slots"`
}
