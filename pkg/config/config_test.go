package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigEnvAccessors(t *testing.T) {
	t.Setenv("TEST_SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("TEST_SUPABASE_KEY", "service-key")
	t.Setenv("TEST_JWT", "0123456789abcdef0123")
	t.Setenv("TEST_SLACK", "xoxb-test")
	t.Setenv("TEST_REDIS_PW", "hunter2")

	store := &StoreConfig{SupabaseURLEnv: "TEST_SUPABASE_URL", SupabaseKeyEnv: "TEST_SUPABASE_KEY"}
	assert.Equal(t, "https://example.supabase.co", store.SupabaseURL())
	assert.Equal(t, "service-key", store.SupabaseKey())

	assert.Equal(t, "0123456789abcdef0123", (&AuthConfig{JWTSecretEnv: "TEST_JWT"}).Secret())
	assert.Equal(t, "xoxb-test", (&SlackConfig{TokenEnv: "TEST_SLACK"}).Token())

	assert.Equal(t, "hunter2", (&AppStateConfig{RedisPasswordEnv: "TEST_REDIS_PW"}).RedisPassword())
	assert.Empty(t, (&AppStateConfig{}).RedisPassword())
}

func TestSchedulerIsEnabled(t *testing.T) {
	off := false
	on := true
	assert.True(t, (&SchedulerConfig{}).IsEnabled())
	assert.True(t, (&SchedulerConfig{Enabled: &on}).IsEnabled())
	assert.False(t, (&SchedulerConfig{Enabled: &off}).IsEnabled())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.StatusInterval)
	assert.Equal(t, 3, cfg.Sessions.DefaultMaxSlots)
	assert.Equal(t, AppStateDriverMemory, cfg.AppState.Driver)
	assert.False(t, cfg.Slack.Enabled)
	assert.Equal(t, "SLACK_BOT_TOKEN", cfg.Slack.TokenEnv)
	assert.Contains(t, cfg.Summary(), "store=postgres")
}
