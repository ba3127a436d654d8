package events

import (
	"context"
	"fmt"

	"github.com/jhjames1/peerchat/pkg/models"
)

// SessionReader loads a session on behalf of an actor, failing when the
// actor may not see it. Implemented by services.SessionService.
type SessionReader interface {
	GetSession(ctx context.Context, actor models.Actor, id string) (*models.ChatSession, error)
}

// SessionAuthorizer allows specialists onto the global sessions channel and
// anyone who can read a session onto that session's channel.
type SessionAuthorizer struct {
	sessions SessionReader
}

// NewSessionAuthorizer creates a SessionAuthorizer.
func NewSessionAuthorizer(sessions SessionReader) *SessionAuthorizer {
	return &SessionAuthorizer{sessions: sessions}
}

// AuthorizeChannel implements ChannelAuthorizer.
func (a *SessionAuthorizer) AuthorizeChannel(ctx context.Context, actor models.Actor, channel string) error {
	if channel == GlobalSessionsChannel {
		if !actor.IsSpecialist() {
			return fmt.Errorf("%w: only specialists may watch the waiting list", ErrChannelDenied)
		}
		return nil
	}

	sessionID, ok := ParseSessionChannel(channel)
	if !ok {
		return fmt.Errorf("%w: unknown channel %q", ErrChannelDenied, channel)
	}
	if _, err := a.sessions.GetSession(ctx, actor, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelDenied, err)
	}
	return nil
}
