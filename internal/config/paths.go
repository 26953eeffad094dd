package config

import (
	"os"
	"path/filepath"
)

// DefaultRingDepth is how many turns a session's ring buffer retains
// when neither a flag, an environment variable, nor clippy.yaml says
// otherwise.
const DefaultRingDepth = 32

// DefaultMaxTurnSize is the byte ceiling a stored turn is truncated to
// by default (4 MiB).
const DefaultMaxTurnSize = 4 * 1024 * 1024

// DefaultPattern is the turn-boundary detector preset used when none is
// given.
const DefaultPattern = "generic"

// GetUserConfigDir resolves clippy's config directory: $XDG_CONFIG_HOME/clippy,
// falling back to ~/.config/clippy.
func GetUserConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "clippy"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "clippy"), nil
}

// EnsureConfigDirs creates the user config directory if it doesn't
// already exist.
func EnsureConfigDirs(userConfigDir string) error {
	return os.MkdirAll(userConfigDir, 0755)
}
