package context

import (
	"strconv"
	"strings"
)

// Tool results are truncated before they enter working memory: the
// model usually needs the start of an output (the command echo, the
// headers) and the end (the final state, the error), far more than the
// middle. Truncation keeps the leading 60% and trailing 20% of the
// token budget with an omission marker between.

// DefaultToolResultTokens is the per-result budget T when the caller
// does not configure one. Zero passed to TruncateToolResult disables
// truncation entirely.
const DefaultToolResultTokens = 2000

// headFraction and tailFraction split the budget between the kept
// leading and trailing slices.
const (
	headFraction = 0.6
	tailFraction = 0.2
)

// TruncateToolResult reduces content to roughly maxTokens, keeping the
// head and tail and marking the omission. maxTokens <= 0 disables
// truncation. The size estimate is the same chars-per-token heuristic
// the rest of the window math uses, so the result composes with
// compaction.
func TruncateToolResult(content string, maxTokens int) string {
	if maxTokens <= 0 {
		return content
	}
	if EstimateTokens(content) <= maxTokens {
		return content
	}

	budgetChars := float64(maxTokens) / TokensPerChar
	headChars := int(budgetChars * headFraction)
	tailChars := int(budgetChars * tailFraction)
	if headChars+tailChars >= len(content) {
		return content
	}

	head := content[:headChars]
	tail := content[len(content)-tailChars:]

	// Prefer cutting at a line boundary when one is nearby, so the
	// omission marker does not land mid-line.
	if idx := strings.LastIndexByte(head, '\n'); idx > headChars/2 {
		head = head[:idx]
	}
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)/2 {
		tail = tail[idx+1:]
	}

	omitted := len(content) - len(head) - len(tail)
	var b strings.Builder
	b.Grow(len(head) + len(tail) + 64)
	b.WriteString(head)
	b.WriteString("\n[... ")
	b.WriteString(strconv.Itoa(omitted))
	b.WriteString(" characters omitted ...]\n")
	b.WriteString(tail)
	return b.String()
}
