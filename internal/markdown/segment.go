// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
)

// =============================================================================
// SEGMENT TYPES
// =============================================================================

// SegmentKind classifies a block-level segment.
type SegmentKind int

const (
	// KindText is a plain paragraph of text.
	KindText SegmentKind = iota
	// KindInlineCode is a backtick code span promoted to its own segment.
	KindInlineCode
	// KindCodeBlock is a fenced code block.
	KindCodeBlock
	// KindHeader is an ATX heading, level 1..6.
	KindHeader
	// KindListItem is a single bullet or ordered list item.
	KindListItem
	// KindBlockquote is a "> quoted" line.
	KindBlockquote
	// KindHorizontalRule is a thematic break.
	KindHorizontalRule
	// KindList is a run of list items produced by Group.
	KindList
)

// String returns the kind name for logging and test output.
func (k SegmentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInlineCode:
		return "inline-code"
	case KindCodeBlock:
		return "code-block"
	case KindHeader:
		return "header"
	case KindListItem:
		return "list-item"
	case KindBlockquote:
		return "blockquote"
	case KindHorizontalRule:
		return "horizontal-rule"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Segment is one block-level piece of a message. Fields are populated
// according to Kind: Text for text, code spans, headers, list items and
// blockquotes; Language for code blocks; Level for headers; Items for
// grouped lists.
type Segment struct {
	Kind     SegmentKind
	Text     string
	Language string
	Level    int
	Items    []string
}

// =============================================================================
// BLOCK PARSER
// =============================================================================

// Parse splits raw message text into ordered block segments. Fenced code
// blocks take priority over everything else; an unterminated fence runs to
// the end of input. Parse is deterministic and allocation-bounded by the
// input size.
func Parse(source string) []Segment {
	var segments []Segment
	remaining := source

	for remaining != "" {
		block, ok := extractCodeBlock(remaining)
		if !ok {
			segments = append(segments, parseLines(remaining)...)
			break
		}
		if block.prefix != "" {
			segments = append(segments, parseLines(block.prefix)...)
		}
		segments = append(segments, Segment{
			Kind:     KindCodeBlock,
			Language: NormalizeLanguage(block.language),
			Text:     block.code,
		})
		remaining = remaining[block.end:]
	}

	return segments
}

// parseLines handles everything except fenced code blocks.
func parseLines(text string) []Segment {
	var segments []Segment
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if isHorizontalRule(trimmed) {
			segments = append(segments, Segment{Kind: KindHorizontalRule})
			continue
		}
		if level, headerText, ok := extractHeader(trimmed); ok {
			segments = append(segments, Segment{Kind: KindHeader, Level: level, Text: headerText})
			continue
		}
		if quote, ok := strings.CutPrefix(trimmed, ">"); ok {
			quote = strings.TrimSpace(quote)
			if quote != "" {
				segments = append(segments, Segment{Kind: KindBlockquote, Text: quote})
			}
			continue
		}
		if item, ok := extractListItem(trimmed); ok {
			segments = append(segments, Segment{Kind: KindListItem, Text: item})
			continue
		}

		if line == "" {
			// Paragraph break. Preserved as its own segment so renderers
			// keep vertical spacing, never merged with neighbours.
			segments = append(segments, Segment{Kind: KindText, Text: "\n"})
			continue
		}

		// Consecutive text lines join into one paragraph.
		if n := len(segments); n > 0 && segments[n-1].Kind == KindText && segments[n-1].Text != "\n" {
			segments[n-1].Text += " " + line
		} else {
			segments = append(segments, Segment{Kind: KindText, Text: line})
		}
	}

	return segments
}

func isHorizontalRule(trimmed string) bool {
	return trimmed == "---" || trimmed == "***" || trimmed == "___"
}

// extractHeader matches "# ".."###### " headings. Seven or more hashes,
// or a hash run without trailing text, is not a heading.
func extractHeader(trimmed string) (level int, text string, ok bool) {
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i == len(trimmed) || trimmed[i] != ' ' {
		return 0, "", false
	}
	text = strings.TrimSpace(trimmed[i:])
	if text == "" {
		return 0, "", false
	}
	return i, text, true
}

// extractListItem matches "- ", "* ", "+ " bullets and "1. " ordered items.
func extractListItem(trimmed string) (string, bool) {
	if len(trimmed) >= 2 && (trimmed[0] == '-' || trimmed[0] == '*' || trimmed[0] == '+') && trimmed[1] == ' ' {
		if text := strings.TrimSpace(trimmed[2:]); text != "" {
			return text, true
		}
		return "", false
	}

	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(trimmed) && trimmed[i] == '.' && trimmed[i+1] == ' ' {
		if text := strings.TrimSpace(trimmed[i+2:]); text != "" {
			return text, true
		}
	}
	return "", false
}

// codeBlockMatch is one fenced block found in the input.
type codeBlockMatch struct {
	prefix   string
	language string
	code     string
	end      int
}

// extractCodeBlock finds the first ``` fence. A missing closing fence
// consumes the rest of the input; streamed messages routinely arrive with
// the fence still open.
func extractCodeBlock(text string) (codeBlockMatch, bool) {
	open := strings.Index(text, "```")
	if open < 0 {
		return codeBlockMatch{}, false
	}
	prefix := text[:open]
	rest := text[open+3:]

	language := ""
	codeStart := 0
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		language = strings.TrimSpace(rest[:nl])
		codeStart = nl + 1
	} else {
		// Fence with no newline at all: everything after it is the info
		// string of an empty, unterminated block.
		language = strings.TrimSpace(rest)
		codeStart = len(rest)
	}
	// Info strings are a single token; anything with spaces is code.
	if strings.ContainsAny(language, " \t`") {
		language = ""
		codeStart = 0
	}

	body := rest[codeStart:]
	closing := strings.Index(body, "```")
	if closing < 0 {
		code := strings.Trim(body, "\n")
		return codeBlockMatch{prefix: prefix, language: language, code: code, end: len(text)}, true
	}

	code := strings.Trim(body[:closing], "\n")
	end := open + 3 + codeStart + closing + 3
	return codeBlockMatch{prefix: prefix, language: language, code: code, end: end}, true
}

// =============================================================================
// GROUPING
// =============================================================================

// Group coalesces runs of consecutive KindListItem segments into single
// KindList segments. Blank text segments between items of the same run are
// absorbed; any other segment ends the run. All other segments pass through
// unchanged.
func Group(segments []Segment) []Segment {
	var out []Segment
	var items []string

	flush := func() {
		if len(items) > 0 {
			out = append(out, Segment{Kind: KindList, Items: items})
			items = nil
		}
	}

	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		switch {
		case seg.Kind == KindListItem:
			items = append(items, seg.Text)
		case len(items) > 0 && seg.Kind == KindText && seg.Text == "\n" && nextIsListItem(segments, i):
			// Blank line inside a list run; swallow it.
		default:
			flush()
			out = append(out, seg)
		}
	}
	flush()
	return out
}

func nextIsListItem(segments []Segment, i int) bool {
	for j := i + 1; j < len(segments); j++ {
		switch segments[j].Kind {
		case KindListItem:
			return true
		case KindText:
			if segments[j].Text == "\n" {
				continue
			}
			return false
		default:
			return false
		}
	}
	return false
}
