// Package config loads optional library settings from a YAML file.
//
// Settings come from, in order of precedence: programmatic configuration
// through the public façade, the file named by $SIDEKICK_CONFIG, and
// finally <user config dir>/sidekick/config.yaml. A missing file is not
// an error; everything has a default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sidekick-live/sidekick-go/internal/logging"
)

// EnvConfigPath names the environment variable overriding the settings
// file location.
const EnvConfigPath = "SIDEKICK_CONFIG"

// LogSettings mirrors logging.Config in file form.
type LogSettings struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`
	// File is an optional path for rotated file output.
	File string `yaml:"file,omitempty"`
	// JSON enables JSON log output.
	JSON bool `yaml:"json,omitempty"`
	// Components restricts logging to the named components.
	Components []string `yaml:"components,omitempty"`
}

// Settings is the on-disk configuration shape.
type Settings struct {
	// ServerURL overrides the endpoint list with a single ws:// or
	// wss:// URL.
	ServerURL string `yaml:"serverUrl,omitempty"`
	// ClearOnConnect controls the handshake's clear-all step.
	ClearOnConnect *bool `yaml:"clearOnConnect,omitempty"`
	// UIWaitTimeout bounds the wait for the Sidekick panel, as a Go
	// duration string (e.g. "3m").
	UIWaitTimeout string `yaml:"uiWaitTimeout,omitempty"`
	// Logging configures the library logger.
	Logging LogSettings `yaml:"logging,omitempty"`
}

// UIWait parses the configured UI wait timeout. Zero means "use the
// default".
func (s *Settings) UIWait() (time.Duration, error) {
	if s.UIWaitTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.UIWaitTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: invalid uiWaitTimeout %q: %w", s.UIWaitTimeout, err)
	}
	return d, nil
}

// DefaultPath returns the default settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "sidekick", "config.yaml"), nil
}

// Load reads settings from $SIDEKICK_CONFIG or the default location.
// A missing file yields empty settings.
func Load() (*Settings, error) {
	path := os.Getenv(EnvConfigPath)
	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			// No resolvable config dir; run on defaults.
			logging.ConfigLog().Debug("no user config dir", "error", err)
			return &Settings{}, nil
		}
	}

	s, err := LoadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, err
	}
	logging.ConfigLog().Debug("settings loaded", "path", path)
	return s, nil
}

// LoadFile reads and parses one settings file.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &s, nil
}
