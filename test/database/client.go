// Package database provides database clients for tests.
package database

import (
	"testing"

	"github.com/jhjames1/peerchat/pkg/database"
	"github.com/jhjames1/peerchat/test/util"
)

// NewTestClient creates a database client on a freshly migrated test schema.
// In CI (when CI_DATABASE_URL is set) it connects to the external PostgreSQL
// service; locally it uses a shared testcontainer. Cleanup is automatic.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	return database.NewClientFromDB(util.SetupTestDatabase(t))
}
