// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/gtllm/internal/util"
)

// Settings is the persisted user configuration.
type Settings struct {
	// OpenRouterAPIKey is the bearer credential for the gateway.
	// Empty means not configured.
	OpenRouterAPIKey string `toml:"openrouter_api_key"`

	// Theme is the active theme identifier (see Theme.ID).
	Theme string `toml:"theme"`

	// ThemeMode is "dark" or "light".
	ThemeMode ThemeMode `toml:"theme_mode"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Theme:     ThemeDracula.ID(),
		ThemeMode: ModeDark,
	}
}

// ErrInvalid is returned when the settings file exists but cannot be parsed.
var ErrInvalid = errors.New("invalid settings file")

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the platform-specific gtllm config directory.
func Dir() (string, error) {
	switch runtime.GOOS {
	case "windows", "darwin":
		// %APPDATA%\gtllm or ~/Library/Application Support/gtllm
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		return filepath.Join(base, "gtllm"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(home, ".gtllm"), nil
	}
}

// Path returns the full path of the settings file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads settings from the default path. A missing file yields
// defaults, not an error; a corrupt file returns ErrInvalid.
func Load() (*Settings, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from a specific file path.
func LoadFrom(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	// Unknown keys are tolerated so older binaries can read newer files.
	if _, err := toml.Decode(string(data), s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.fillDefaults()
	return s, nil
}

// fillDefaults repairs missing or unknown values after a load.
func (s *Settings) fillDefaults() {
	if _, ok := ParseTheme(s.Theme); !ok {
		s.Theme = ThemeDracula.ID()
	}
	if s.ThemeMode != ModeDark && s.ThemeMode != ModeLight {
		s.ThemeMode = ModeDark
	}
}

// Save writes settings to the default path.
// SECURITY: The file carries the API key, so it is written 0600 via the
// atomic tmp-fsync-rename pattern.
func (s *Settings) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return s.SaveTo(path)
}

// SaveTo writes settings to a specific file path.
func (s *Settings) SaveTo(path string) error {
	var buf bytes.Buffer
	buf.WriteString("# gtllm settings\n\n")
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// HasAPIKey reports whether an API key is configured.
func (s *Settings) HasAPIKey() bool {
	return strings.TrimSpace(s.OpenRouterAPIKey) != ""
}

// APIKey returns the trimmed API key, or empty if unset.
func (s *Settings) APIKey() string {
	return strings.TrimSpace(s.OpenRouterAPIKey)
}

// SetAPIKey stores a new API key.
func (s *Settings) SetAPIKey(key string) {
	s.OpenRouterAPIKey = strings.TrimSpace(key)
}

// ClearAPIKey removes the stored API key.
func (s *Settings) ClearAPIKey() {
	s.OpenRouterAPIKey = ""
}

// ActiveTheme returns the parsed theme, falling back on the default.
func (s *Settings) ActiveTheme() Theme {
	t, _ := ParseTheme(s.Theme)
	return t
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalSettings *Settings
	globalOnce     sync.Once
	globalMu       sync.RWMutex
)

// Global returns the global settings instance, loaded on first access.
// Thread-safe.
func Global() *Settings {
	globalOnce.Do(func() {
		s, err := Load()
		if err != nil {
			// Fall back to defaults; the caller surfaces the notice.
			s = Default()
		}
		globalMu.Lock()
		globalSettings = s
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalSettings
}

// SetGlobal replaces the global settings instance. Thread-safe.
func SetGlobal(s *Settings) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSettings = s
}

// ResetGlobalForTesting resets the global settings state between tests.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSettings = nil
	globalOnce = sync.Once{}
}
