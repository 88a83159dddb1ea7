// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - plain-terminal rendering of model output.
package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/gtllm/internal/markdown"
)

// printModelHeading prints a section heading for one model's output.
func printModelHeading(label string) {
	fmt.Printf("\n--- %s ---\n", label)
}

// printMarkdown renders model output through the markdown segmenter:
// fenced code blocks are indented with a language tag, lists get bullets,
// and blockquotes keep their marker. Inline markers are left as typed.
func printMarkdown(content string) {
	for _, seg := range markdown.SegmentCached(content) {
		switch seg.Kind {
		case markdown.KindCodeBlock:
			if seg.Language != "" {
				fmt.Printf("  [%s]\n", seg.Language)
			}
			for _, line := range strings.Split(seg.Text, "\n") {
				fmt.Printf("    %s\n", line)
			}
		case markdown.KindHeader:
			fmt.Printf("%s %s\n", strings.Repeat("#", seg.Level), seg.Text)
		case markdown.KindList:
			for _, item := range seg.Items {
				fmt.Printf("  - %s\n", item)
			}
		case markdown.KindListItem:
			fmt.Printf("  - %s\n", seg.Text)
		case markdown.KindBlockquote:
			fmt.Printf("  > %s\n", seg.Text)
		case markdown.KindHorizontalRule:
			fmt.Println(strings.Repeat("-", 40))
		default:
			fmt.Println(seg.Text)
		}
	}
}
