// Package diff renders human-readable previews of proposed writes for the
// approval workflow.
package diff

import (
	"fmt"
	"strings"
)

// Previewer produces the preview string attached to a pending action.
type Previewer interface {
	Preview(target, before, after string) string
}

// UnifiedPreviewer renders a simple line-oriented before/after preview. It is
// not a minimal diff; it shows removed and added lines around changes, which
// is enough for a human to judge the proposed write.
type UnifiedPreviewer struct{}

func (UnifiedPreviewer) Preview(target, before, after string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s (proposed)\n", target, target)

	if before == "" {
		b.WriteString("(new file)\n")
		for _, line := range splitLines(after) {
			b.WriteString("+ " + line + "\n")
		}
		return b.String()
	}

	beforeLines := splitLines(before)
	afterLines := splitLines(after)
	beforeSet := lineSet(beforeLines)
	afterSet := lineSet(afterLines)

	changes := 0
	for _, line := range beforeLines {
		if !afterSet[line] {
			b.WriteString("- " + line + "\n")
			changes++
		}
	}
	for _, line := range afterLines {
		if !beforeSet[line] {
			b.WriteString("+ " + line + "\n")
			changes++
		}
	}
	if changes == 0 {
		b.WriteString("(no changes)\n")
	}
	return b.String()
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func lineSet(lines []string) map[string]bool {
	set := make(map[string]bool, len(lines))
	for _, l := range lines {
		set[l] = true
	}
	return set
}
