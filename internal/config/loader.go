package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	// ConfigDir is the directory name under ~/.config
	ConfigDir = "workspace-runner"
	// ConfigFile is the config file name
	ConfigFile = "config.json"
)

// envOverrides maps environment variables to dotted config keys.
var envOverrides = map[string]string{
	"WORKSPACE_ROOT":                    "runner.workspace_root",
	"WORKSPACE_SANDBOX_PROFILE":         "runner.sandbox_profile",
	"WORKSPACE_PORT":                    "runner.port",
	"WORKSPACE_HEARTBEAT_TIMEOUT_MS":    "runner.heartbeat_timeout_ms",
	"WORKSPACE_MAX_CONCURRENT_COMMANDS": "runner.max_concurrent_commands",
	"WORKSPACE_IMAGE":                   "controller.image",
	"WORKSPACE_CONTAINER_NAME":          "controller.container_name",
	"WORKSPACE_HOST_PORT":               "controller.host_port",
	"WORKSPACE_HOST_DIR":                "controller.host_dir",
	"WORKSPACE_LOG_LEVEL":               "log.level",
	"WORKSPACE_LOG_JSON":                "log.json",
}

// FileSystem abstracts file operations for testability
type FileSystem interface {
	UserHomeDir() (string, error)
	ReadFile(path string) ([]byte, error)
}

// Environment abstracts environment variable lookup for testability
type Environment interface {
	LookupEnv(key string) (string, bool)
}

// ConfigFileReader implements FileSystem using the real OS for config loading
type ConfigFileReader struct{}

func (ConfigFileReader) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (ConfigFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// OSEnvironment reads the process environment.
type OSEnvironment struct{}

func (OSEnvironment) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// EnvOverrideError is returned when an environment variable cannot be
// converted into its config field.
type EnvOverrideError struct {
	Cause error
}

func (e *EnvOverrideError) Error() string {
	return fmt.Sprintf("invalid environment override: %v", e.Cause)
}
func (e *EnvOverrideError) Unwrap() error { return e.Cause }

// Loader handles configuration loading with injected dependencies
type Loader struct {
	fs  FileSystem
	env Environment
}

// NewLoader creates a production Loader using the real filesystem and environment
func NewLoader() *Loader {
	return &Loader{fs: ConfigFileReader{}, env: OSEnvironment{}}
}

// NewLoaderWithFS creates a Loader with a custom filesystem and environment (for testing)
func NewLoaderWithFS(fs FileSystem, env Environment) *Loader {
	return &Loader{fs: fs, env: env}
}

// Load reads ~/.config/workspace-runner/config.json over the defaults, applies
// WORKSPACE_* environment overrides, then validates the result.
// Returns default config if the dotfile doesn't exist.
//
// NOTE: JSON keys are unmarshalled directly over the default configuration,
// so explicit zero values in the file override defaults.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadFile(cfg); err != nil {
		return nil, err
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config) error {
	homeDir, err := l.fs.UserHomeDir()
	if err != nil {
		return nil // Use defaults if can't get home dir
	}

	configPath := filepath.Join(homeDir, ".config", ConfigDir, ConfigFile)

	data, err := l.fs.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, cfg)
}

// applyEnv builds a nested map from the set WORKSPACE_* variables and decodes
// it over cfg. Unset variables leave fields untouched.
func (l *Loader) applyEnv(cfg *Config) error {
	if l.env == nil {
		return nil
	}

	overrides := map[string]any{}
	for envKey, path := range envOverrides {
		value, ok := l.env.LookupEnv(envKey)
		if !ok {
			continue
		}
		section, field, _ := strings.Cut(path, ".")
		sub, ok := overrides[section].(map[string]any)
		if !ok {
			sub = map[string]any{}
			overrides[section] = sub
		}
		sub[field] = strings.TrimSpace(value)
	}
	if len(overrides) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return &EnvOverrideError{Cause: err}
	}
	if err := decoder.Decode(overrides); err != nil {
		return &EnvOverrideError{Cause: err}
	}
	return nil
}

// Load is a convenience function using the default loader
func Load() (*Config, error) {
	return NewLoader().Load()
}
