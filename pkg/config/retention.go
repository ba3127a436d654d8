package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// EventTTL is the maximum age of realtime event rows kept for catch-up.
	EventTTL time.Duration `yaml:"event_ttl,omitempty"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
}
