// Package util holds test helpers that provision PostgreSQL and Redis.
package util

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jhjames1/peerchat/pkg/database"
)

var (
	sharedPostgresURL string
	postgresOnce      sync.Once
	postgresErr       error

	nonIdent = regexp.MustCompile(`[^a-z0-9]+`)
)

// SetupTestDatabase returns a pool pinned to a fresh, migrated schema that
// is dropped when the test ends. Tests never share tables, so they may run
// in parallel against one server.
//   - CI: connects to CI_DATABASE_URL
//   - Local: uses a shared postgres testcontainer
func SetupTestDatabase(t *testing.T) *stdsql.DB {
	t.Helper()
	ctx := context.Background()

	base := GetBaseConnectionString(t)
	schema := schemaName(t)
	execOnce(t, base, "CREATE SCHEMA "+schema)

	// search_path on the URL applies to every pooled connection.
	db, err := stdsql.Open("pgx", withSearchPath(t, base, schema))
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	require.NoError(t, database.RunMigrations(ctx, db, "test"))

	t.Cleanup(func() {
		_ = db.Close()
		execOnce(t, base, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})
	return db
}

// GetBaseConnectionString returns the server URL without a search_path.
// LISTEN/NOTIFY is database-wide, so listeners connect with this.
func GetBaseConnectionString(t *testing.T) string {
	t.Helper()
	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		return ci
	}

	postgresOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx, "postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			postgresErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		sharedPostgresURL, postgresErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, postgresErr, "failed to start postgres container")
	return sharedPostgresURL
}

func execOnce(t *testing.T, connStr, stmt string) {
	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(context.Background(), stmt); err != nil {
		t.Logf("%s: %v", stmt, err)
	}
}

// schemaName is test_<name>_<hex>, within PostgreSQL's 63-byte limit.
func schemaName(t *testing.T) string {
	name := nonIdent.ReplaceAllString(strings.ToLower(t.Name()), "_")
	if len(name) > 40 {
		name = name[:40]
	}
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return "test_" + name + "_" + hex.EncodeToString(suffix)
}

func withSearchPath(t *testing.T, connStr, schema string) string {
	u, err := url.Parse(connStr)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}
