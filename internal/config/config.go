// Package config loads clippy's tunables (ring depth, max turn size, the
// default detector pattern, and the broker socket path) under an
// explicit precedence: CLI flag > environment variable > clippy.yaml >
// built-in default.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is clippy's full tunable surface, as persisted in clippy.yaml.
type Config struct {
	RingDepth   int    `yaml:"ring_depth,omitempty"`
	MaxTurnSize int    `yaml:"max_turn_size,omitempty"`
	Pattern     string `yaml:"pattern,omitempty"`
	SocketPath  string `yaml:"socket_path,omitempty"`
}

// Overrides carries the values a caller read from CLI flags. A field is
// considered "set" by its corresponding non-nil/non-empty value; flags
// the user didn't pass should be left at their zero value (nil for the
// int pointers, "" for the strings).
type Overrides struct {
	RingDepth   *int
	MaxTurnSize *int
	Pattern     string
	SocketPath  string
}

// LoadFile reads clippy.yaml from path. A missing file is not an error —
// it yields a zero-value Config, so every field falls through to its
// environment/default value.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveFile writes cfg to path as clippy.yaml, creating its parent
// directory if needed.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve merges flags, environment variables, a loaded clippy.yaml, and
// built-in defaults into one Config, in that precedence order.
// RingDepth is floored at 1 regardless of source — a ring buffer of
// capacity 0 cannot exist, so silently accepting one from a flag,
// environment variable, or stale config file would only defer the
// failure to the first session registration.
func Resolve(flags Overrides, file *Config) *Config {
	if file == nil {
		file = &Config{}
	}
	ringDepth := resolveInt(flags.RingDepth, "CLIPPY_RING_DEPTH", file.RingDepth, DefaultRingDepth)
	if ringDepth < 1 {
		ringDepth = 1
	}
	return &Config{
		RingDepth:   ringDepth,
		MaxTurnSize: resolveInt(flags.MaxTurnSize, "CLIPPY_MAX_TURN_SIZE", file.MaxTurnSize, DefaultMaxTurnSize),
		Pattern:     resolveString(flags.Pattern, "CLIPPY_PATTERN", file.Pattern, DefaultPattern),
		SocketPath:  resolveString(flags.SocketPath, "CLIPPY_SOCKET_PATH", file.SocketPath, ""),
	}
}

func resolveInt(flag *int, envVar string, fileValue, defaultValue int) int {
	if flag != nil {
		return *flag
	}
	if env := os.Getenv(envVar); env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			return n
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

func resolveString(flag, envVar, fileValue, defaultValue string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(envVar); env != "" {
		return env
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}
