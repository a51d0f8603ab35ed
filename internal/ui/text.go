package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PadRight pads s with spaces to width display cells.
func PadRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// TruncateWithEllipsis shortens s to at most width runes, ending in "...".
func TruncateWithEllipsis(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:max(width, 0)])
	}
	return string(r[:width-3]) + "..."
}

// WordWrap breaks text on spaces so no line exceeds width, except single
// words longer than width. A non-positive width returns text unchanged.
func WordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	lineLen := 0
	for i, w := range words {
		wl := len([]rune(w))
		switch {
		case i == 0:
		case lineLen+1+wl > width:
			b.WriteString("\n")
			lineLen = 0
		default:
			b.WriteString(" ")
			lineLen++
		}
		b.WriteString(w)
		lineLen += wl
	}
	return b.String()
}
