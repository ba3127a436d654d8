package cmd

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhjames1/peerchat/pkg/config"
	"github.com/jhjames1/peerchat/pkg/database"
	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/store"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "watch"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-dir"))
	assert.NotNil(t, watchCmd.Flags().Lookup("server"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/.env", "PEERCHAT_TEST_FROM_ENV_FILE=yes\n"))
	// Setenv restores the variable afterwards; godotenv never overrides a
	// variable that is already present, so unset it.
	t.Setenv("PEERCHAT_TEST_FROM_ENV_FILE", "")
	require.NoError(t, os.Unsetenv("PEERCHAT_TEST_FROM_ENV_FILE"))

	loadEnvFile(dir)
	assert.Equal(t, "yes", getEnv("PEERCHAT_TEST_FROM_ENV_FILE", "no"))

	// A missing file is not an error.
	loadEnvFile(t.TempDir())
}

func TestPrintWaiting(t *testing.T) {
	var buf bytes.Buffer
	printWaiting(&buf, []*models.ChatSession{
		{ID: "s-1", SessionNumber: 7, StartedAt: time.Now().Add(-90 * time.Second)},
	})
	out := buf.String()
	assert.Contains(t, out, "1 waiting")
	assert.Contains(t, out, "#7  s-1")
}

func TestNewSessionStore(t *testing.T) {
	cfg := config.DefaultConfig()
	dbClient := database.NewClientFromDB(nil)

	st, recomputer, err := newSessionStore(cfg, dbClient)
	require.NoError(t, err)
	assert.IsType(t, &store.PostgresStore{}, st)
	assert.Nil(t, recomputer)

	cfg.Store.Driver = config.StoreDriverSupabase
	t.Setenv(cfg.Store.SupabaseURLEnv, "")
	_, _, err = newSessionStore(cfg, dbClient)
	assert.Error(t, err, "supabase without a URL must fail")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
