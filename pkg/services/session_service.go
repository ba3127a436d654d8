package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// startAttempts bounds the lookup-or-create loop when two starts for the
	// same user race on the one-open-session index.
	startAttempts = 3
)

// SessionPublisher broadcasts session row changes to realtime subscribers.
type SessionPublisher interface {
	PublishSessionChanged(ctx context.Context, eventType string, session, old *models.ChatSession) error
}

// SessionNotifier sends out-of-band notifications about session activity.
type SessionNotifier interface {
	NotifySessionWaiting(ctx context.Context, session *models.ChatSession)
	NotifySessionClaimed(ctx context.Context, session *models.ChatSession, specialist *models.Specialist)
}

// SpecialistLookup resolves specialist accounts.
type SpecialistLookup interface {
	GetSpecialist(ctx context.Context, id string) (*models.Specialist, error)
}

// SessionService manages chat session lifecycle
type SessionService struct {
	store       store.SessionStore
	specialists SpecialistLookup
	publisher   SessionPublisher
	notifier    SessionNotifier
	logger      *slog.Logger
}

// NewSessionService creates a new SessionService.
// publisher and notifier may be nil.
func NewSessionService(st store.SessionStore, specialists SpecialistLookup, publisher SessionPublisher, notifier SessionNotifier) *SessionService {
	return &SessionService{
		store:       st,
		specialists: specialists,
		publisher:   publisher,
		notifier:    notifier,
		logger:      slog.Default().With("component", "session-service"),
	}
}

// StartSession returns the caller's most recent non-ended session, creating
// a waiting one when none exists. created reports whether a row was inserted.
func (s *SessionService) StartSession(ctx context.Context, actor models.Actor) (session *models.ChatSession, created bool, err error) {
	if actor.Role != models.RoleUser {
		return nil, false, NewAuthorizationError("start session", "only users can start sessions")
	}
	if actor.ID == "" {
		return nil, false, NewValidationError("user_id", "required")
	}

	for attempt := 0; attempt < startAttempts; attempt++ {
		existing, err := s.store.FindOpenSession(ctx, actor.ID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: lookup: %w", ErrSessionCreate, err)
		}

		session, err = s.store.CreateSession(ctx, actor.ID)
		if errors.Is(err, store.ErrOpenSessionExists) {
			// A concurrent start won; loop to return its session.
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrSessionCreate, err)
		}

		s.logger.Info("Session created", "session_id", session.ID, "session_number", session.SessionNumber)
		s.publish(ctx, models.ChangeInsert, session, nil)
		if s.notifier != nil {
			s.notifier.NotifySessionWaiting(ctx, session)
		}
		return session, true, nil
	}
	return nil, false, fmt.Errorf("%w: open session kept changing", ErrSessionCreate)
}

// GetSession returns a session visible to the actor.
func (s *SessionService) GetSession(ctx context.Context, actor models.Actor, id string) (*models.ChatSession, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, session) {
		return nil, NewAuthorizationError("view session", "not a participant")
	}
	return session, nil
}

// ListSessions lists sessions. Users only ever see their own sessions.
func (s *SessionService) ListSessions(ctx context.Context, actor models.Actor, filter models.SessionFilter) ([]*models.ChatSession, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if actor.Role != models.RoleSpecialist {
		filter.UserID = actor.ID
		filter.SpecialistID = ""
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	sessions, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ClaimSession assigns a waiting session to the calling specialist in slot.
// Losing the race returns a ConflictError carrying the refreshed session.
func (s *SessionService) ClaimSession(ctx context.Context, actor models.Actor, id string, slot int) (*models.ChatSession, error) {
	if !actor.IsSpecialist() {
		return nil, NewAuthorizationError("claim session", "only specialists can claim sessions")
	}

	specialist, err := s.specialists.GetSpecialist(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthorizationError("claim session", "unknown specialist")
		}
		return nil, err
	}
	if !specialist.IsActive {
		return nil, NewAuthorizationError("claim session", "specialist account is inactive")
	}
	if slot < 0 || slot >= specialist.MaxSlots {
		return nil, NewValidationError("slot", fmt.Sprintf("must be between 0 and %d", specialist.MaxSlots-1))
	}

	claimed, err := s.store.ClaimSession(ctx, id, actor.ID, slot)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrClaimConflict):
		current, getErr := s.load(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		s.logger.Info("Claim lost", "session_id", id, "specialist_id", actor.ID, "status", current.Status)
		return nil, &ConflictError{Op: "claim", Current: string(current.Status), Session: current, Err: ErrClaimConflict}
	case errors.Is(err, store.ErrSlotTaken):
		return nil, &ConflictError{Op: "claim", Current: "slot occupied", Err: ErrConflict}
	case err != nil:
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}

	s.logger.Info("Session claimed", "session_id", claimed.ID, "specialist_id", actor.ID, "slot", slot)

	old := *claimed
	old.Status = models.SessionStatusWaiting
	old.SpecialistID = nil
	old.SlotNumber = nil
	old.ClaimedAt = nil
	s.publish(ctx, models.ChangeUpdate, claimed, &old)
	if s.notifier != nil {
		s.notifier.NotifySessionClaimed(ctx, claimed, specialist)
	}
	return claimed, nil
}

// EndSession ends a session for one of its participants. Ending an ended
// session returns it unchanged.
func (s *SessionService) EndSession(ctx context.Context, actor models.Actor, id, reason string) (*models.ChatSession, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsParticipant(actor) {
		return nil, NewAuthorizationError("end session", "not a participant")
	}
	if current.Status == models.SessionStatusEnded {
		return current, nil
	}

	ended, changed, err := s.store.EndSession(ctx, id, reason)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if changed {
		s.logger.Info("Session ended", "session_id", id, "reason", reason)
		s.publish(ctx, models.ChangeUpdate, ended, current)
	}
	return ended, nil
}

// TouchSession advances the session's last activity to now.
func (s *SessionService) TouchSession(ctx context.Context, actor models.Actor, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsParticipant(actor) {
		return NewAuthorizationError("touch session", "not a participant")
	}
	if err := s.store.TouchSession(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// SlotAvailability returns one entry per specialist slot, true when free.
func (s *SessionService) SlotAvailability(ctx context.Context, specialistID string) ([]bool, error) {
	specialist, err := s.specialists.GetSpecialist(ctx, specialistID)
	if err != nil {
		return nil, err
	}

	occupied, err := s.store.ActiveSlots(ctx, specialistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active slots: %w", err)
	}

	slots := make([]bool, specialist.MaxSlots)
	for i := range slots {
		slots[i] = true
	}
	for _, n := range occupied {
		if n >= 0 && n < len(slots) {
			slots[n] = false
		}
	}
	return slots, nil
}

func (s *SessionService) load(ctx context.Context, id string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// publish is best-effort: the row change is already committed, and
// subscribers reconcile with a refetch after reconnect.
func (s *SessionService) publish(ctx context.Context, eventType string, session, old *models.ChatSession) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSessionChanged(ctx, eventType, session, old); err != nil {
		s.logger.Warn("Failed to publish session change",
			"session_id", session.ID, "event_type", eventType, "error", err)
	}
}

// canView reports whether actor may read a session. Specialists may preview
// waiting sessions before claiming them.
func canView(actor models.Actor, session *models.ChatSession) bool {
	if session.IsParticipant(actor) {
		return true
	}
	return actor.IsSpecialist() && session.Status == models.SessionStatusWaiting
}
