// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown segments streamed model output into typed blocks for
// incremental rendering.
//
// Parse is a pure function from raw text to an ordered list of segments:
// fenced code blocks, headers, horizontal rules, blockquotes, list items,
// and plain text. Group then coalesces consecutive list items into logical
// lists. Inline emphasis, links, and code spans are resolved separately by
// ParseInline so renderers can style them per-theme.
//
// Repeated parses of the same source (common while a message streams in)
// are served from a process-global LRU cache via SegmentCached.
package markdown
