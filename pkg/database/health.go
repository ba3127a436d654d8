package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HealthStatus reports connectivity, the applied migration and pool usage.
type HealthStatus struct {
	Status        string `json:"status"`
	LatencyMS     int64  `json:"latency_ms"`
	SchemaVersion uint   `json:"schema_version"`
	SchemaDirty   bool   `json:"schema_dirty,omitempty"`

	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	MaxOpenConns    int `json:"max_open_conns"`
}

// ErrSchemaDirty means a migration failed halfway and needs manual repair.
var ErrSchemaDirty = errors.New("database schema is dirty")

// Health pings the database and reads golang-migrate's bookkeeping row.
// A dirty schema is reported as unhealthy: the session tables may be in
// an intermediate state.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()
	st := &HealthStatus{Status: "unhealthy"}

	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).
		Scan(&st.SchemaVersion, &st.SchemaDirty)
	st.LatencyMS = time.Since(start).Milliseconds()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return st, fmt.Errorf("no migrations applied")
	case err != nil:
		return st, err
	case st.SchemaDirty:
		return st, fmt.Errorf("%w at version %d", ErrSchemaDirty, st.SchemaVersion)
	}

	stats := db.Stats()
	st.Status = "healthy"
	st.OpenConnections = stats.OpenConnections
	st.InUse = stats.InUse
	st.MaxOpenConns = stats.MaxOpenConnections
	return st, nil
}
