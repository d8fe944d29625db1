// Package util provides shared string helpers for command output.
package util

import (
	"strconv"
	"strings"
)

// TruncateString truncates s to maxLen runes, ending with "..." when
// anything was cut. Multi-byte characters are never split.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}

// QuoteArgs renders argv as a single line, quoting arguments that are empty
// or contain whitespace, quotes, backslashes or shell expansions.
func QuoteArgs(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n\"'\\$`") {
			parts[i] = strconv.Quote(a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}
