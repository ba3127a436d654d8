package store

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jhjames1/peerchat/pkg/models"
)

const (
	sessionsTable = "chat_sessions"
	messagesTable = "chat_messages"

	openSessionIndex = "chat_sessions_user_open"
	activeSlotIndex  = "chat_sessions_specialist_slot_active"
	clientIDIndex    = "chat_messages_client_id"
)

// PostgresStore implements SessionStore on PostgreSQL.
type PostgresStore struct {
	db *stdsql.DB
}

// NewPostgresStore creates a PostgresStore over db.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewPostgresStore(db *stdsql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func builder() *sql.DialectBuilder {
	return sql.Dialect(dialect.Postgres)
}

// validID reports whether id can name a uuid row. Malformed ids are treated
// as missing rows rather than surfacing a driver cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	b := builder()
	query, args := b.Insert(sessionsTable).
		Columns("user_id").
		Values(userID).
		Returning(sessionColumns...).
		Query()

	session, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if uniqueViolationOn(err, openSessionIndex) {
			return nil, ErrOpenSessionExists
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return getSession(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *stdsql.Row
}

func getSession(ctx context.Context, q queryRower, id string) (*models.ChatSession, error) {
	b := builder()
	query, args := b.Select(sessionColumns...).
		From(b.Table(sessionsTable)).
		Where(sql.EQ("id", id)).
		Query()
	return scanSession(q.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) FindOpenSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	b := builder()
	query, args := b.Select(sessionColumns...).
		From(b.Table(sessionsTable)).
		Where(sql.And(
			sql.EQ("user_id", userID),
			sql.NEQ("status", string(models.SessionStatusEnded)),
		)).
		OrderBy(sql.Desc("started_at")).
		Limit(1).
		Query()
	return scanSession(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ChatSession, error) {
	b := builder()
	sel := b.Select(sessionColumns...).From(b.Table(sessionsTable))

	var preds []*sql.Predicate
	if filter.Status != "" {
		preds = append(preds, sql.EQ("status", string(filter.Status)))
	}
	if filter.SpecialistID != "" {
		if !validID(filter.SpecialistID) {
			return []*models.ChatSession{}, nil
		}
		preds = append(preds, sql.EQ("specialist_id", filter.SpecialistID))
	}
	if filter.UserID != "" {
		preds = append(preds, sql.EQ("user_id", filter.UserID))
	}
	if len(preds) > 0 {
		sel.Where(sql.And(preds...))
	}
	if filter.Ascending {
		sel.OrderBy(sql.Asc("started_at"), sql.Asc("session_number"))
	} else {
		sel.OrderBy(sql.Desc("started_at"), sql.Desc("session_number"))
	}
	if filter.Limit > 0 {
		sel.Limit(filter.Limit)
	}

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*models.ChatSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ClaimSession is a single conditional UPDATE. Zero rows affected means the
// race was lost (or the session does not exist).
func (s *PostgresStore) ClaimSession(ctx context.Context, id, specialistID string, slot int) (*models.ChatSession, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	now := time.Now()
	row := s.db.QueryRowContext(ctx,
		`UPDATE chat_sessions
		SET status = 'active', specialist_id = $1, slot_number = $2,
			claimed_at = $3, last_activity = GREATEST(last_activity, $3)
		WHERE id = $4 AND status = 'waiting' AND specialist_id IS NULL
		RETURNING `+strings.Join(sessionColumns, ", "),
		specialistID, slot, now, id,
	)

	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if uniqueViolationOn(err, activeSlotIndex) {
		return nil, ErrSlotTaken
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}

	// Nothing matched: distinguish a lost race from a missing row.
	if _, getErr := s.GetSession(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrClaimConflict
}

func (s *PostgresStore) EndSession(ctx context.Context, id, reason string) (*models.ChatSession, bool, error) {
	if !validID(id) {
		return nil, false, ErrNotFound
	}

	now := time.Now()
	row := s.db.QueryRowContext(ctx,
		`UPDATE chat_sessions
		SET status = 'ended', ended_at = $1, end_reason = $2,
			last_activity = GREATEST(last_activity, $1)
		WHERE id = $3 AND status <> 'ended'
		RETURNING `+strings.Join(sessionColumns, ", "),
		now, nullString(reason), id,
	)

	session, err := scanSession(row)
	if err == nil {
		return session, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to end session: %w", err)
	}

	existing, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET last_activity = GREATEST(last_activity, $1) WHERE id = $2`,
		at, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActiveSlots(ctx context.Context, specialistID string) ([]int, error) {
	if !validID(specialistID) {
		return []int{}, nil
	}
	b := builder()
	query, args := b.Select("slot_number").
		From(b.Table(sessionsTable)).
		Where(sql.And(
			sql.EQ("specialist_id", specialistID),
			sql.EQ("status", string(models.SessionStatusActive)),
			sql.NotNull("slot_number"),
		)).
		OrderBy(sql.Asc("slot_number")).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active slots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	slots := make([]int, 0)
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// InsertMessage holds a share lock on the session row for the duration of
// the insert, so a concurrent EndSession either precedes the check or waits
// for the message to commit.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	if !validID(msg.SessionID) {
		return nil, ErrNotFound
	}

	var metadata any
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = raw
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b := builder()
	query, args := b.Select("status").
		From(b.Table(sessionsTable)).
		Where(sql.EQ("id", msg.SessionID)).
		ForShare().
		Query()
	var status string
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&status); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if models.SessionStatus(status) == models.SessionStatusEnded {
		return nil, ErrSessionEnded
	}

	query, args = b.Insert(messagesTable).
		Columns("session_id", "sender_id", "sender_type", "message_type", "content", "metadata", "client_id").
		Values(msg.SessionID, msg.SenderID, string(msg.SenderType), string(msg.MessageType), msg.Content, metadata, nullString(msg.ClientID)).
		Returning(messageColumns...).
		Query()
	stored, err := scanMessage(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if uniqueViolationOn(err, clientIDIndex) {
			_ = tx.Rollback()
			return s.messageByClientID(ctx, msg.SessionID, msg.ClientID)
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET last_activity = GREATEST(last_activity, $1) WHERE id = $2`,
		stored.CreatedAt, msg.SessionID); err != nil {
		return nil, fmt.Errorf("failed to advance last_activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) messageByClientID(ctx context.Context, sessionID, clientID string) (*models.ChatMessage, error) {
	b := builder()
	query, args := b.Select(messageColumns...).
		From(b.Table(messagesTable)).
		Where(sql.And(sql.EQ("session_id", sessionID), sql.EQ("client_id", clientID))).
		Query()
	return scanMessage(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	if !validID(sessionID) {
		return nil, ErrNotFound
	}
	b := builder()
	query, args := b.Select(messageColumns...).
		From(b.Table(messagesTable)).
		Where(sql.EQ("session_id", sessionID)).
		OrderBy(sql.Asc("created_at"), sql.Asc("seq")).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*models.ChatMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) MarkMessagesRead(ctx context.Context, sessionID string, readerType models.SenderType) (int, error) {
	if !validID(sessionID) {
		return 0, ErrNotFound
	}
	b := builder()
	query, args := b.Update(messagesTable).
		Set("is_read", true).
		Where(sql.And(
			sql.EQ("session_id", sessionID),
			sql.NEQ("sender_type", string(readerType)),
			sql.EQ("is_read", false),
		)).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var _ SessionStore = (*PostgresStore)(nil)
