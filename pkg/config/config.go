package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the resolved runtime configuration returned by Initialize.
// Every section is non-nil after loading.
type Config struct {
	configDir string

	Server    *ServerConfig
	Store     *StoreConfig
	Scheduler *SchedulerConfig
	Retention *RetentionConfig
	Auth      *AuthConfig
	Sessions  *SessionsConfig
	AppState  *AppStateConfig
	Slack     *SlackConfig
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	Port             string        `yaml:"port,omitempty"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins,omitempty"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout,omitempty"`
}

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSupabase = "supabase"
)

// StoreConfig selects the session store implementation.
type StoreConfig struct {
	Driver         string `yaml:"driver,omitempty"`
	SupabaseURLEnv string `yaml:"supabase_url_env,omitempty"`
	SupabaseKeyEnv string `yaml:"supabase_key_env,omitempty"`
}

// SupabaseURL returns the Supabase project URL from the environment.
func (s *StoreConfig) SupabaseURL() string {
	return os.Getenv(s.SupabaseURLEnv)
}

// SupabaseKey returns the Supabase service key from the environment.
func (s *StoreConfig) SupabaseKey() string {
	return os.Getenv(s.SupabaseKeyEnv)
}

// SchedulerConfig controls the specialist status recomputation loop.
type SchedulerConfig struct {
	Enabled        *bool         `yaml:"enabled,omitempty"`
	StatusInterval time.Duration `yaml:"status_interval,omitempty"`
}

// IsEnabled reports whether the scheduler should run. Defaults to true.
func (s *SchedulerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// AuthConfig controls bearer token issuance.
type AuthConfig struct {
	JWTSecretEnv string        `yaml:"jwt_secret_env,omitempty"`
	TokenTTL     time.Duration `yaml:"token_ttl,omitempty"`
	Issuer       string        `yaml:"issuer,omitempty"`
}

// Secret returns the signing secret from the environment.
func (a *AuthConfig) Secret() string {
	return os.Getenv(a.JWTSecretEnv)
}

// SessionsConfig holds chat session defaults.
type SessionsConfig struct {
	DefaultMaxSlots int `yaml:"default_max_slots,omitempty"`
}

// App state drivers.
const (
	AppStateDriverMemory = "memory"
	AppStateDriverRedis  = "redis"
)

// AppStateConfig selects where client app state is kept.
type AppStateConfig struct {
	Driver           string        `yaml:"driver,omitempty"`
	RedisAddr        string        `yaml:"redis_addr,omitempty"`
	RedisPasswordEnv string        `yaml:"redis_password_env,omitempty"`
	RedisDB          int           `yaml:"redis_db,omitempty"`
	KeyPrefix        string        `yaml:"key_prefix,omitempty"`
	TTL              time.Duration `yaml:"ttl,omitempty"`
}

// RedisPassword returns the redis password from the environment, if any.
func (a *AppStateConfig) RedisPassword() string {
	if a.RedisPasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.RedisPasswordEnv)
}

// SlackConfig holds Slack notification configuration.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`

	// DashboardURL is linked from notifications.
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// Token returns the Slack bot token from the environment.
func (s *SlackConfig) Token() string {
	return os.Getenv(s.TokenEnv)
}

// Summary is logged once at startup.
func (c *Config) Summary() string {
	return fmt.Sprintf("store=%s appstate=%s scheduler=%v/%s slack=%v",
		c.Store.Driver, c.AppState.Driver, c.Scheduler.IsEnabled(), c.Scheduler.StatusInterval, c.Slack.Enabled)
}
