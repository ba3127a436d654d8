// Package store defines the durable Session Store for chat sessions and
// messages, and its PostgreSQL implementation.
//
// The claim of a waiting session is a compare-and-set performed by the
// store itself; callers never read-then-write to claim.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
)

var (
	// ErrNotFound is returned when a session or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClaimConflict is returned when the conditional claim matched no
	// row: the session is no longer waiting or already has a specialist.
	ErrClaimConflict = errors.New("session is no longer claimable")

	// ErrSlotTaken is returned when the specialist slot already holds an
	// active session.
	ErrSlotTaken = errors.New("slot already occupied")

	// ErrOpenSessionExists is returned when the user already has a
	// non-ended session.
	ErrOpenSessionExists = errors.New("user already has an open session")

	// ErrSessionEnded is returned when writing a message to an ended session.
	ErrSessionEnded = errors.New("session has ended")
)

// SessionStore is the source of truth for sessions and messages.
type SessionStore interface {
	// CreateSession inserts a waiting session for userID.
	CreateSession(ctx context.Context, userID string) (*models.ChatSession, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	// FindOpenSession returns the user's most recent non-ended session.
	FindOpenSession(ctx context.Context, userID string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error)

	// ClaimSession moves a waiting, unassigned session to active for
	// specialistID in the given slot, atomically.
	ClaimSession(ctx context.Context, id, specialistID string, slot int) (*models.ChatSession, error)
	// EndSession ends a non-ended session. changed is false when the
	// session had already ended; the stored row is returned either way.
	EndSession(ctx context.Context, id, reason string) (session *models.ChatSession, changed bool, err error)
	// TouchSession advances last_activity to at unless it is already later.
	TouchSession(ctx context.Context, id string, at time.Time) error
	// ActiveSlots returns the slot numbers occupied by the specialist's
	// active sessions.
	ActiveSlots(ctx context.Context, specialistID string) ([]int, error)

	// InsertMessage persists msg and advances the session's last_activity.
	// A retry carrying an already-stored ClientID returns the stored row.
	InsertMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
	// MarkMessagesRead marks messages not sent by readerType as read.
	MarkMessagesRead(ctx context.Context, sessionID string, readerType models.SenderType) (int, error)
}
