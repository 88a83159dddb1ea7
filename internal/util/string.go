// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the gtllm core.
package util

import (
	"strings"
	"unicode/utf8"
)

// UNICODE: Rune-aware truncation preserves multi-byte characters.

// TruncateAtWord truncates a string to at most maxBytes bytes, cutting at
// the last space before the limit so words are never split. Newlines are
// collapsed to spaces first. If the string is truncated, "..." is appended
// (the ellipsis is not counted against maxBytes).
func TruncateAtWord(s string, maxBytes int) string {
	s = CollapseSpaces(s)
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}

	cut := maxBytes
	// Never split a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if idx := strings.LastIndexByte(s[:cut], ' '); idx > 0 {
		cut = idx
	}
	return strings.TrimRight(s[:cut], " ") + "..."
}

// CollapseSpaces replaces newlines and runs of whitespace with single
// spaces and trims the ends.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
