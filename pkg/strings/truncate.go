// Package strings holds small text helpers shared by the CLI renderers.
package strings

import (
	"strings"
)

// Ellipsis is appended to shortened strings.
const Ellipsis = "..."

// Truncate collapses all whitespace runs to single spaces and shortens the
// result to at most maxLen runes, ending in Ellipsis when it was cut.
// A maxLen too small to hold one rune plus the ellipsis is raised to fit.
func Truncate(s string, maxLen int) string {
	if floor := len(Ellipsis) + 1; maxLen < floor {
		maxLen = floor
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-len(Ellipsis)]) + Ellipsis
}
