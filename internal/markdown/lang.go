// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// NormalizeLanguage resolves a code-fence info string to a canonical
// language name using the chroma lexer registry, so aliases like "golang",
// "py", or "js" map to the names highlighters expect. Unknown languages
// are returned lowercased as-is; an empty info string stays empty.
func NormalizeLanguage(info string) string {
	info = strings.ToLower(strings.TrimSpace(info))
	if info == "" {
		return ""
	}
	lexer := lexers.Get(info)
	if lexer == nil {
		return info
	}
	return strings.ToLower(lexer.Config().Name)
}

// KnownLanguage reports whether the info string resolves to a registered
// lexer.
func KnownLanguage(info string) bool {
	info = strings.TrimSpace(info)
	if info == "" {
		return false
	}
	return lexers.Get(info) != nil
}
