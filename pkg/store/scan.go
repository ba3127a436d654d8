package store

import (
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhjames1/peerchat/pkg/models"
)

const uniqueViolation = "23505"

var sessionColumns = []string{
	"id", "user_id", "specialist_id", "status", "slot_number", "session_number",
	"started_at", "claimed_at", "ended_at", "end_reason", "last_activity",
}

var messageColumns = []string{
	"id", "session_id", "sender_id", "sender_type", "message_type", "content",
	"metadata", "client_id", "is_read", "created_at", "seq",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.ChatSession, error) {
	var (
		s            models.ChatSession
		status       string
		specialistID stdsql.NullString
		slot         stdsql.NullInt32
		claimedAt    stdsql.NullTime
		endedAt      stdsql.NullTime
		endReason    stdsql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &specialistID, &status, &slot, &s.SessionNumber,
		&s.StartedAt, &claimedAt, &endedAt, &endReason, &s.LastActivity)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	if specialistID.Valid {
		s.SpecialistID = &specialistID.String
	}
	if slot.Valid {
		n := int(slot.Int32)
		s.SlotNumber = &n
	}
	if claimedAt.Valid {
		s.ClaimedAt = &claimedAt.Time
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	if endReason.Valid {
		s.EndReason = &endReason.String
	}
	return &s, nil
}

func scanMessage(row scanner) (*models.ChatMessage, error) {
	var (
		m           models.ChatMessage
		senderType  string
		messageType string
		metadata    []byte
		clientID    stdsql.NullString
	)
	err := row.Scan(&m.ID, &m.SessionID, &m.SenderID, &senderType, &messageType, &m.Content,
		&metadata, &clientID, &m.IsRead, &m.CreatedAt, &m.Seq)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.SenderType = models.SenderType(senderType)
	m.MessageType = models.MessageType(messageType)
	m.ClientID = clientID.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode message metadata: %w", err)
		}
	}
	return &m, nil
}

// uniqueViolationOn reports whether err is a unique violation of the named
// constraint or index.
func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
