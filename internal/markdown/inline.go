// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
)

// InlineKind classifies an inline span.
type InlineKind int

const (
	// InlinePlain is unstyled text.
	InlinePlain InlineKind = iota
	// InlineBold is **bold** or __bold__ text.
	InlineBold
	// InlineItalic is *italic* or _italic_ text.
	InlineItalic
	// InlineLink is a [text](url) link.
	InlineLink
	// InlineCode is a `backtick` code span.
	InlineCode
)

// Inline is one styled span within a text segment.
type Inline struct {
	Kind InlineKind
	Text string
	URL  string
}

// ParseInline splits text into styled spans. Recognition order per span:
// links, then bold, then italic, then inline code; the earliest match in
// the remaining text wins within each rule. Unterminated markers are left
// as literal text.
func ParseInline(text string) []Inline {
	var spans []Inline
	remaining := text

	emitPlain := func(s string) {
		if s != "" {
			spans = append(spans, Inline{Kind: InlinePlain, Text: s})
		}
	}

	for remaining != "" {
		if prefix, linkText, url, end, ok := matchLink(remaining); ok {
			emitPlain(prefix)
			spans = append(spans, Inline{Kind: InlineLink, Text: linkText, URL: url})
			remaining = remaining[end:]
			continue
		}
		if prefix, bold, end, ok := matchDelimited(remaining, "**", "__"); ok {
			emitPlain(prefix)
			spans = append(spans, Inline{Kind: InlineBold, Text: bold})
			remaining = remaining[end:]
			continue
		}
		if prefix, italic, end, ok := matchItalic(remaining); ok {
			emitPlain(prefix)
			spans = append(spans, Inline{Kind: InlineItalic, Text: italic})
			remaining = remaining[end:]
			continue
		}
		if prefix, code, end, ok := matchDelimited(remaining, "`"); ok {
			emitPlain(prefix)
			spans = append(spans, Inline{Kind: InlineCode, Text: code})
			remaining = remaining[end:]
			continue
		}
		emitPlain(remaining)
		break
	}

	return spans
}

// SplitInlineCode promotes `backtick` spans inside a text segment to
// KindInlineCode segments, leaving every other inline marker as literal
// text. Renderers use this to give code spans their own styling without
// resolving emphasis.
func SplitInlineCode(text string) []Segment {
	var segments []Segment
	remaining := text

	for remaining != "" {
		prefix, code, end, ok := matchDelimited(remaining, "`")
		if !ok {
			segments = append(segments, Segment{Kind: KindText, Text: remaining})
			break
		}
		if prefix != "" {
			segments = append(segments, Segment{Kind: KindText, Text: prefix})
		}
		segments = append(segments, Segment{Kind: KindInlineCode, Text: code})
		remaining = remaining[end:]
	}

	return segments
}

// matchLink finds the first [text](url) in s.
func matchLink(s string) (prefix, text, url string, end int, ok bool) {
	for open := strings.IndexByte(s, '['); open >= 0; {
		closeBracket := strings.IndexByte(s[open:], ']')
		if closeBracket < 0 {
			return "", "", "", 0, false
		}
		closeBracket += open
		if closeBracket == open+1 || closeBracket+1 >= len(s) || s[closeBracket+1] != '(' {
			next := strings.IndexByte(s[open+1:], '[')
			if next < 0 {
				return "", "", "", 0, false
			}
			open += 1 + next
			continue
		}
		closeParen := strings.IndexByte(s[closeBracket+2:], ')')
		if closeParen < 0 {
			return "", "", "", 0, false
		}
		closeParen += closeBracket + 2
		if closeParen == closeBracket+2 {
			return "", "", "", 0, false
		}
		return s[:open], s[open+1 : closeBracket], s[closeBracket+2 : closeParen], closeParen + 1, true
	}
	return "", "", "", 0, false
}

// matchDelimited finds the first non-empty span wrapped by any of the given
// markers, e.g. **bold**, __bold__, or `code`.
func matchDelimited(s string, markers ...string) (prefix, text string, end int, ok bool) {
	bestOpen := -1
	var bestMarker string
	for _, marker := range markers {
		open := strings.Index(s, marker)
		if open < 0 {
			continue
		}
		if bestOpen < 0 || open < bestOpen {
			bestOpen = open
			bestMarker = marker
		}
	}
	if bestOpen < 0 {
		return "", "", 0, false
	}

	contentStart := bestOpen + len(bestMarker)
	closing := strings.Index(s[contentStart:], bestMarker)
	if closing <= 0 {
		// Unterminated or empty span: try again past this marker.
		rest := s[contentStart:]
		p, t, e, found := matchDelimited(rest, markers...)
		if !found {
			return "", "", 0, false
		}
		return s[:contentStart] + p, t, contentStart + e, true
	}

	return s[:bestOpen], s[contentStart : contentStart+closing], contentStart + closing + len(bestMarker), true
}

// matchItalic finds *italic* or _italic_ spans, refusing to treat the
// halves of a ** or __ pair as italic markers.
func matchItalic(s string) (prefix, text string, end int, ok bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '*' && c != '_' {
			continue
		}
		// Skip double markers; those belong to bold.
		if i+1 < len(s) && s[i+1] == c {
			i++
			continue
		}
		closing := -1
		for j := i + 1; j < len(s); j++ {
			if s[j] == '\n' {
				break
			}
			if s[j] != c {
				continue
			}
			if j+1 < len(s) && s[j+1] == c {
				j++
				continue
			}
			closing = j
			break
		}
		if closing < 0 || closing == i+1 {
			continue
		}
		return s[:i], s[i+1 : closing], closing + 1, true
	}
	return "", "", 0, false
}
