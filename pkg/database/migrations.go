package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// CreatePartialUniqueIndexes creates the partial unique indexes that back the
// session invariants. They are idempotent so they can run on every startup.
func CreatePartialUniqueIndexes(ctx context.Context, db *stdsql.DB) error {
	// At most one non-ended session per help-seeker.
	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS chat_sessions_user_open
		ON chat_sessions (user_id)
		WHERE status <> 'ended'`)
	if err != nil {
		return fmt.Errorf("failed to create open-session index: %w", err)
	}

	// A specialist slot holds at most one active session.
	_, err = db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS chat_sessions_specialist_slot_active
		ON chat_sessions (specialist_id, slot_number)
		WHERE status = 'active'`)
	if err != nil {
		return fmt.Errorf("failed to create active-slot index: %w", err)
	}

	return nil
}
