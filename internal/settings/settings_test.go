// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault(t *testing.T) {
	s := Default()
	if s.OpenRouterAPIKey != "" {
		t.Errorf("Default API key should be empty, got %q", s.OpenRouterAPIKey)
	}
	if s.Theme != "dracula" {
		t.Errorf("Default theme = %q, want dracula", s.Theme)
	}
	if s.ThemeMode != ModeDark {
		t.Errorf("Default mode = %q, want dark", s.ThemeMode)
	}
}

func TestLoadFrom_MissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed for missing file: %v", err)
	}
	if s.Theme != "dracula" || s.ThemeMode != ModeDark {
		t.Errorf("Expected defaults, got %+v", s)
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	s := Default()
	s.SetAPIKey("sk-or-test-key-123")
	s.Theme = "nord"
	s.ThemeMode = ModeLight

	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.APIKey() != "sk-or-test-key-123" {
		t.Errorf("API key = %q, want sk-or-test-key-123", loaded.APIKey())
	}
	if loaded.Theme != "nord" {
		t.Errorf("Theme = %q, want nord", loaded.Theme)
	}
	if loaded.ThemeMode != ModeLight {
		t.Errorf("ThemeMode = %q, want light", loaded.ThemeMode)
	}
}

func TestSaveTo_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions not applicable on Windows")
	}

	path := filepath.Join(t.TempDir(), "settings.toml")
	s := Default()
	s.SetAPIKey("sk-or-secret")

	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Permissions = %o, want 0600", perm)
	}
}

// =============================================================================
// ROBUSTNESS
// =============================================================================

func TestLoadFrom_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("theme = [not toml"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("Expected error for corrupt settings file")
	}
}

func TestLoadFrom_UnknownKeysTolerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	content := "theme = \"night\"\ntheme_mode = \"dark\"\nfuture_feature = true\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if s.Theme != "night" {
		t.Errorf("Theme = %q, want night", s.Theme)
	}
}

func TestLoadFrom_UnknownThemeFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	content := "theme = \"solarized\"\ntheme_mode = \"sepia\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if s.Theme != "dracula" {
		t.Errorf("Unknown theme should fall back to dracula, got %q", s.Theme)
	}
	if s.ThemeMode != ModeDark {
		t.Errorf("Unknown mode should fall back to dark, got %q", s.ThemeMode)
	}
}

func TestAPIKeyAccessors(t *testing.T) {
	s := Default()
	if s.HasAPIKey() {
		t.Error("New settings should not have an API key")
	}

	s.SetAPIKey("  sk-or-abc  ")
	if !s.HasAPIKey() {
		t.Error("HasAPIKey should be true after SetAPIKey")
	}
	if s.APIKey() != "sk-or-abc" {
		t.Errorf("APIKey = %q, want trimmed key", s.APIKey())
	}

	s.ClearAPIKey()
	if s.HasAPIKey() {
		t.Error("HasAPIKey should be false after ClearAPIKey")
	}
}

// =============================================================================
// THEMES
// =============================================================================

func TestThemeRoundTrip(t *testing.T) {
	for _, theme := range AllThemes() {
		parsed, ok := ParseTheme(theme.ID())
		if !ok {
			t.Errorf("ParseTheme(%q) failed", theme.ID())
		}
		if parsed != theme {
			t.Errorf("ParseTheme(%q) = %v, want %v", theme.ID(), parsed, theme)
		}
	}
}

func TestThemePartition(t *testing.T) {
	dark := ThemesForMode(ModeDark)
	light := ThemesForMode(ModeLight)

	if len(dark)+len(light) != len(AllThemes()) {
		t.Errorf("Partition sizes %d+%d != %d", len(dark), len(light), len(AllThemes()))
	}
	for _, theme := range dark {
		if !theme.IsDark() {
			t.Errorf("%s in dark set but IsDark is false", theme.Name())
		}
	}
	for _, theme := range light {
		if theme.IsDark() {
			t.Errorf("%s in light set but IsDark is true", theme.Name())
		}
	}
}

func TestParseTheme_Unknown(t *testing.T) {
	if _, ok := ParseTheme("solarized"); ok {
		t.Error("ParseTheme should reject unknown names")
	}
}
