package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the YAML file read from the configuration directory.
const ConfigFileName = "peerchat.yaml"

// PeerchatYAMLConfig represents the peerchat.yaml file structure.
type PeerchatYAMLConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Store     *StoreConfig     `yaml:"store"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	Retention *RetentionConfig `yaml:"retention"`
	Auth      *AuthConfig      `yaml:"auth"`
	Sessions  *SessionsConfig  `yaml:"sessions"`
	AppState  *AppStateConfig  `yaml:"appstate"`
	Slack     *SlackConfig     `yaml:"slack"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read peerchat.yaml from configDir (optional; defaults apply when absent)
//  2. Expand {{.VAR}} environment references
//  3. Parse YAML
//  4. Merge over built-in defaults
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully", "summary", cfg.Summary())
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	var user PeerchatYAMLConfig
	if err := loader.loadYAML(ConfigFileName, &user); err != nil {
		if !isNotFound(err) {
			return nil, NewLoadError(ConfigFileName, err)
		}
		slog.Info("No configuration file found, using defaults", "file", ConfigFileName)
	}

	cfg := DefaultConfig()
	cfg.configDir = configDir

	// Each section is merged on its own so an absent section keeps its
	// defaults and present fields override them.
	if err := errors.Join(
		mergeSection("server", cfg.Server, user.Server),
		mergeSection("store", cfg.Store, user.Store),
		mergeSection("scheduler", cfg.Scheduler, user.Scheduler),
		mergeSection("retention", cfg.Retention, user.Retention),
		mergeSection("auth", cfg.Auth, user.Auth),
		mergeSection("sessions", cfg.Sessions, user.Sessions),
		mergeSection("appstate", cfg.AppState, user.AppState),
		mergeSection("slack", cfg.Slack, user.Slack),
	); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSection copies the non-zero fields of src onto dst.
func mergeSection[T any](name string, dst, src *T) error {
	if src == nil {
		return nil
	}
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge %s config: %w", name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}
