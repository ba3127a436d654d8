package config

import "time"

// DefaultConfig returns the built-in configuration. User YAML is merged on
// top of it; non-zero user values win.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Port:           "8080",
			WSWriteTimeout: 10 * time.Second,
		},
		Store: &StoreConfig{
			Driver:         StoreDriverPostgres,
			SupabaseURLEnv: "SUPABASE_URL",
			SupabaseKeyEnv: "SUPABASE_SERVICE_KEY",
		},
		Scheduler: &SchedulerConfig{
			StatusInterval: 2 * time.Minute,
		},
		Retention: &RetentionConfig{
			EventTTL:        24 * time.Hour,
			CleanupInterval: 15 * time.Minute,
		},
		Auth: &AuthConfig{
			JWTSecretEnv: "PEERCHAT_JWT_SECRET",
			TokenTTL:     12 * time.Hour,
			Issuer:       "peerchat",
		},
		Sessions: &SessionsConfig{
			DefaultMaxSlots: 3,
		},
		AppState: &AppStateConfig{
			Driver:    AppStateDriverMemory,
			KeyPrefix: "peerchat:state:",
			TTL:       30 * 24 * time.Hour,
		},
		Slack: &SlackConfig{
			TokenEnv: "SLACK_BOT_TOKEN",
		},
	}
}
