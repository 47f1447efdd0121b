// Package sandbox defines the policy the runner enforces on every command:
// whether shell execution is allowed and how large results may grow.
package sandbox

import (
	"strings"
	"time"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

// Limits bounds the size of what a single command may read, list or return.
// Field order is the order Validate checks them in.
type Limits struct {
	MaxFileSize         int64 `json:"maxFileSize" validate:"gt=0"`
	MaxDirectoryEntries int   `json:"maxDirectoryEntries" validate:"gt=0"`
	MaxSearchResults    int   `json:"maxSearchResults" validate:"gt=0"`
	MaxOutputSize       int64 `json:"maxOutputSize" validate:"gt=0"`
}

// Config is the immutable policy a runner is started with.
type Config struct {
	ShellAllowed                 bool   `json:"shellAllowed"`
	Limits                       Limits `json:"limits"`
	DefaultCommandTimeoutSeconds int    `json:"defaultCommandTimeoutSeconds" validate:"gt=0"`
}

// Permissive allows shell execution with generous limits.
func Permissive() Config {
	return Config{
		ShellAllowed: true,
		Limits: Limits{
			MaxFileSize:         10 * MiB,
			MaxDirectoryEntries: 10000,
			MaxSearchResults:    1000,
			MaxOutputSize:       1 * MiB,
		},
		DefaultCommandTimeoutSeconds: 30,
	}
}

// LockedDown disables shell execution and keeps every limit small.
func LockedDown() Config {
	return Config{
		ShellAllowed: false,
		Limits: Limits{
			MaxFileSize:         1 * MiB,
			MaxDirectoryEntries: 1000,
			MaxSearchResults:    100,
			MaxOutputSize:       64 * KiB,
		},
		DefaultCommandTimeoutSeconds: 10,
	}
}

// FromProfileName resolves a profile name, ignoring case and surrounding space.
// The empty name selects Permissive.
func FromProfileName(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "permissive":
		return Permissive(), nil
	case "locked", "locked-down":
		return LockedDown(), nil
	}
	return Config{}, &UnknownProfileError{Name: name}
}

// CommandTimeout returns the requested timeout when it is positive, otherwise
// the policy default.
func (c Config) CommandTimeout(requestedMs *int64) time.Duration {
	if requestedMs != nil && *requestedMs > 0 {
		return time.Duration(*requestedMs) * time.Millisecond
	}
	return time.Duration(c.DefaultCommandTimeoutSeconds) * time.Second
}
