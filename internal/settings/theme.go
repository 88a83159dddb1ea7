// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import "strings"

// Theme identifies one of the built-in color themes.
type Theme int

// Built-in themes. Winter, Black and Nord are light; the rest are dark.
const (
	ThemeWinter Theme = iota
	ThemeBlack
	ThemeNord
	ThemeDracula
	ThemeNight
	ThemeDim
)

// ThemeMode partitions themes into dark and light sets.
type ThemeMode string

const (
	ModeDark  ThemeMode = "dark"
	ModeLight ThemeMode = "light"
)

// AllThemes returns every built-in theme in display order.
func AllThemes() []Theme {
	return []Theme{ThemeWinter, ThemeBlack, ThemeNord, ThemeDracula, ThemeNight, ThemeDim}
}

// ParseTheme parses a theme identifier, case-insensitively.
// Returns false for unknown names.
func ParseTheme(s string) (Theme, bool) {
	switch strings.ToLower(s) {
	case "winter":
		return ThemeWinter, true
	case "black":
		return ThemeBlack, true
	case "nord":
		return ThemeNord, true
	case "dracula":
		return ThemeDracula, true
	case "night":
		return ThemeNight, true
	case "dim":
		return ThemeDim, true
	}
	return ThemeDracula, false
}

// ID returns the lowercase identifier used on disk.
func (t Theme) ID() string {
	switch t {
	case ThemeWinter:
		return "winter"
	case ThemeBlack:
		return "black"
	case ThemeNord:
		return "nord"
	case ThemeDracula:
		return "dracula"
	case ThemeNight:
		return "night"
	case ThemeDim:
		return "dim"
	}
	return "dracula"
}

// Name returns the human-readable theme name.
func (t Theme) Name() string {
	switch t {
	case ThemeWinter:
		return "Winter"
	case ThemeBlack:
		return "Black"
	case ThemeNord:
		return "Nord"
	case ThemeDracula:
		return "Dracula"
	case ThemeNight:
		return "Night"
	case ThemeDim:
		return "Dim"
	}
	return "Dracula"
}

// IsDark reports whether the theme belongs to the dark set.
func (t Theme) IsDark() bool {
	switch t {
	case ThemeDracula, ThemeNight, ThemeDim:
		return true
	}
	return false
}

// Mode returns the theme mode the theme belongs to.
func (t Theme) Mode() ThemeMode {
	if t.IsDark() {
		return ModeDark
	}
	return ModeLight
}

// ThemesForMode returns the themes belonging to the given mode.
func ThemesForMode(mode ThemeMode) []Theme {
	var out []Theme
	for _, t := range AllThemes() {
		if t.Mode() == mode {
			out = append(out, t)
		}
	}
	return out
}
