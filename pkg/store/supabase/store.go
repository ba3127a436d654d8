// Package supabase implements the session store over a Supabase project's
// PostgREST API. The claim is a filtered PATCH that only matches a waiting,
// unassigned row, so the compare-and-set still happens inside PostgreSQL.
package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/store"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const (
	sessionsTable = "chat_sessions"
	messagesTable = "chat_messages"

	recomputeFunction = "recompute_specialist_statuses"
)

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
}

// Store implements store.SessionStore using Supabase PostgREST.
type Store struct {
	client *supabase.Client
	logger *slog.Logger
}

// New creates a new Supabase-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Store{
		client: client,
		logger: slog.Default().With("component", "supabase-store"),
	}, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []models.ChatSession
	_, err := s.client.From(sessionsTable).
		Insert(map[string]any{"user_id": userID}, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		if isUniqueViolation(err, "chat_sessions_user_open") {
			return nil, store.ErrOpenSessionExists
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert returned no session row")
	}
	return &rows[0], nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []models.ChatSession
	_, err := s.client.From(sessionsTable).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		if isInvalidText(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) FindOpenSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []models.ChatSession
	_, err := s.client.From(sessionsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Neq("status", string(models.SessionStatusEnded)).
		Order("started_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := s.client.From(sessionsTable).Select("*", "", false)
	if filter.Status != "" {
		query = query.Eq("status", string(filter.Status))
	}
	if filter.SpecialistID != "" {
		query = query.Eq("specialist_id", filter.SpecialistID)
	}
	if filter.UserID != "" {
		query = query.Eq("user_id", filter.UserID)
	}
	query = query.
		Order("started_at", &postgrest.OrderOpts{Ascending: filter.Ascending}).
		Order("session_number", &postgrest.OrderOpts{Ascending: filter.Ascending})
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit, "")
	}

	var rows []models.ChatSession
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*models.ChatSession, len(rows))
	for i := range rows {
		sessions[i] = &rows[i]
	}
	return sessions, nil
}

func (s *Store) ClaimSession(ctx context.Context, id, specialistID string, slot int) (*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var rows []models.ChatSession
	_, err := s.client.From(sessionsTable).
		Update(map[string]any{
			"status":        string(models.SessionStatusActive),
			"specialist_id": specialistID,
			"slot_number":   slot,
			"claimed_at":    now,
		}, "representation", "").
		Eq("id", id).
		Eq("status", string(models.SessionStatusWaiting)).
		Is("specialist_id", "null").
		ExecuteTo(&rows)
	if err != nil {
		if isUniqueViolation(err, "chat_sessions_specialist_slot_active") {
			return nil, store.ErrSlotTaken
		}
		if isInvalidText(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	if len(rows) > 0 {
		return s.withActivity(&rows[0], now), nil
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrClaimConflict
}

func (s *Store) EndSession(ctx context.Context, id, reason string) (*models.ChatSession, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	values := map[string]any{
		"status":   string(models.SessionStatusEnded),
		"ended_at": now,
	}
	if reason != "" {
		values["end_reason"] = reason
	}

	var rows []models.ChatSession
	_, err := s.client.From(sessionsTable).
		Update(values, "representation", "").
		Eq("id", id).
		Neq("status", string(models.SessionStatusEnded)).
		ExecuteTo(&rows)
	if err != nil {
		if isInvalidText(err) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, fmt.Errorf("failed to end session: %w", err)
	}
	if len(rows) > 0 {
		return s.withActivity(&rows[0], now), true, nil
	}

	existing, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// TouchSession only matches rows whose last_activity is older than at.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	row, err := s.advanceActivity(id, at)
	if err != nil {
		if isInvalidText(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if row == nil {
		_, err := s.GetSession(ctx, id)
		return err
	}
	return nil
}

// advanceActivity sets last_activity to at unless the stored value is
// already newer, so a lagging clock never moves it backwards. It returns
// nil when no row matched.
func (s *Store) advanceActivity(id string, at time.Time) (*models.ChatSession, error) {
	stamp := at.UTC().Format(time.RFC3339Nano)
	var rows []models.ChatSession
	_, err := s.client.From(sessionsTable).
		Update(map[string]any{"last_activity": stamp}, "representation", "").
		Eq("id", id).
		Lt("last_activity", stamp).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// withActivity advances the activity of a session whose transition just
// committed and returns the freshest row. The transition stands even if
// the follow-up update fails.
func (s *Store) withActivity(session *models.ChatSession, at time.Time) *models.ChatSession {
	row, err := s.advanceActivity(session.ID, at)
	if err != nil {
		s.logger.Warn("Failed to advance last_activity after transition",
			"session_id", session.ID, "error", err)
		return session
	}
	if row == nil {
		return session
	}
	return row
}

func (s *Store) ActiveSlots(ctx context.Context, specialistID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []struct {
		SlotNumber *int `json:"slot_number"`
	}
	_, err := s.client.From(sessionsTable).
		Select("slot_number", "", false).
		Eq("specialist_id", specialistID).
		Eq("status", string(models.SessionStatusActive)).
		Order("slot_number", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query active slots: %w", err)
	}

	slots := make([]int, 0, len(rows))
	for _, row := range rows {
		if row.SlotNumber != nil {
			slots = append(slots, *row.SlotNumber)
		}
	}
	return slots, nil
}

// InsertMessage checks the session and inserts in two requests. PostgREST
// offers no row lock across calls, so an end racing the insert may let one
// last message land; the message is still ordered before any later read.
func (s *Store) InsertMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	session, err := s.GetSession(ctx, msg.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusEnded {
		return nil, store.ErrSessionEnded
	}

	values := map[string]any{
		"session_id":   msg.SessionID,
		"sender_id":    msg.SenderID,
		"sender_type":  string(msg.SenderType),
		"message_type": string(msg.MessageType),
		"content":      msg.Content,
	}
	if len(msg.Metadata) > 0 {
		values["metadata"] = msg.Metadata
	}
	if msg.ClientID != "" {
		values["client_id"] = msg.ClientID
	}

	var rows []models.ChatMessage
	_, err = s.client.From(messagesTable).
		Insert(values, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		if isUniqueViolation(err, "chat_messages_client_id") {
			return s.messageByClientID(msg.SessionID, msg.ClientID)
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert returned no message row")
	}
	stored := &rows[0]

	if err := s.TouchSession(ctx, msg.SessionID, stored.CreatedAt); err != nil {
		s.logger.Warn("Failed to advance last_activity after message insert",
			"session_id", msg.SessionID, "error", err)
	}
	return stored, nil
}

func (s *Store) messageByClientID(sessionID, clientID string) (*models.ChatMessage, error) {
	var rows []models.ChatMessage
	_, err := s.client.From(messagesTable).
		Select("*", "", false).
		Eq("session_id", sessionID).
		Eq("client_id", clientID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to load message by client id: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []models.ChatMessage
	_, err := s.client.From(messagesTable).
		Select("*", "", false).
		Eq("session_id", sessionID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Order("seq", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		if isInvalidText(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]*models.ChatMessage, len(rows))
	for i := range rows {
		messages[i] = &rows[i]
	}
	return messages, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, sessionID string, readerType models.SenderType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rows []struct {
		ID string `json:"id"`
	}
	_, err := s.client.From(messagesTable).
		Update(map[string]any{"is_read": true}, "representation", "").
		Eq("session_id", sessionID).
		Neq("sender_type", string(readerType)).
		Eq("is_read", "false").
		ExecuteTo(&rows)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return len(rows), nil
}

// RecomputeStatuses invokes the recompute_specialist_statuses database
// function through PostgREST RPC and returns the number of rows changed.
func (s *Store) RecomputeStatuses(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// The RPC helper reports transport failures as an empty body.
	result := strings.TrimSpace(s.client.Rpc(recomputeFunction, "", map[string]any{}))
	if result == "" {
		return 0, fmt.Errorf("rpc %s returned no result", recomputeFunction)
	}
	changed, err := strconv.Atoi(result)
	if err != nil {
		return 0, fmt.Errorf("rpc %s returned unexpected body %q", recomputeFunction, result)
	}
	return changed, nil
}

// isUniqueViolation matches PostgREST errors reporting a unique violation
// (SQLSTATE 23505) of the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	msg := err.Error()
	if !strings.Contains(msg, constraint) {
		return false
	}
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// isInvalidText matches SQLSTATE 22P02, returned when an id is not a uuid.
func isInvalidText(err error) bool {
	return strings.Contains(err.Error(), "22P02")
}

var _ store.SessionStore = (*Store)(nil)
