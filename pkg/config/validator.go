package config

import (
	"fmt"
)

// ConfigValidator validates a resolved configuration (fail-fast).
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll validates every section and stops at the first error.
func (v *ConfigValidator) ValidateAll() error {
	checks := []func() error{
		v.validateServer,
		v.validateStore,
		v.validateScheduler,
		v.validateRetention,
		v.validateAuth,
		v.validateSessions,
		v.validateAppState,
		v.validateSlack,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port == "" {
		return NewValidationError("server", "port", ErrMissingRequiredField)
	}
	if s.WSWriteTimeout <= 0 {
		return NewValidationError("server", "ws_write_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateStore() error {
	s := v.cfg.Store
	switch s.Driver {
	case StoreDriverPostgres:
		return nil
	case StoreDriverSupabase:
		if s.SupabaseURL() == "" {
			return NewValidationError("store", "supabase_url_env",
				fmt.Errorf("%w: environment variable %s is not set", ErrMissingRequiredField, s.SupabaseURLEnv))
		}
		if s.SupabaseKey() == "" {
			return NewValidationError("store", "supabase_key_env",
				fmt.Errorf("%w: environment variable %s is not set", ErrMissingRequiredField, s.SupabaseKeyEnv))
		}
		return nil
	default:
		return NewValidationError("store", "driver", fmt.Errorf("%w: unknown driver %q", ErrInvalidValue, s.Driver))
	}
}

func (v *ConfigValidator) validateScheduler() error {
	if v.cfg.Scheduler.StatusInterval <= 0 {
		return NewValidationError("scheduler", "status_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r.EventTTL <= 0 {
		return NewValidationError("retention", "event_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "cleanup_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateAuth() error {
	a := v.cfg.Auth
	if len(a.Secret()) < 16 {
		return NewValidationError("auth", "jwt_secret_env",
			fmt.Errorf("%w: %s must hold a secret of at least 16 bytes", ErrMissingRequiredField, a.JWTSecretEnv))
	}
	if a.TokenTTL <= 0 {
		return NewValidationError("auth", "token_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if a.Issuer == "" {
		return NewValidationError("auth", "issuer", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateSessions() error {
	n := v.cfg.Sessions.DefaultMaxSlots
	if n < 1 || n > 10 {
		return NewValidationError("sessions", "default_max_slots", fmt.Errorf("%w: %d not in 1..10", ErrInvalidValue, n))
	}
	return nil
}

func (v *ConfigValidator) validateAppState() error {
	a := v.cfg.AppState
	switch a.Driver {
	case AppStateDriverMemory:
	case AppStateDriverRedis:
		if a.RedisAddr == "" {
			return NewValidationError("appstate", "redis_addr", ErrMissingRequiredField)
		}
	default:
		return NewValidationError("appstate", "driver", fmt.Errorf("%w: unknown driver %q", ErrInvalidValue, a.Driver))
	}
	if a.TTL < 0 {
		return NewValidationError("appstate", "ttl", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack
	if !s.Enabled {
		return nil
	}
	if s.Channel == "" {
		return NewValidationError("slack", "channel", ErrMissingRequiredField)
	}
	if s.TokenEnv == "" {
		return NewValidationError("slack", "token_env", ErrMissingRequiredField)
	}
	return nil
}
