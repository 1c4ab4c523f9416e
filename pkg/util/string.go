package util

import (
	"strings"
)

// Truncate shortens s to at most max runes, appending an ellipsis when
// anything was cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// CleanTitle collapses whitespace runs in scraped titles.
func CleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
