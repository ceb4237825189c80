package cli

import (
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

var (
	// Color scheme for run output
	headerStyle  = color.New(color.FgCyan, color.Bold)
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgYellow, color.Bold)
	stepStyle    = color.New(color.FgMagenta, color.Bold)
	outputStyle  = color.New(color.FgGreen)
	mutedStyle   = color.New(color.FgHiBlack)
)

const (
	bullet    = "•"
	arrow     = "→"
	checkmark = "✓"
	xmark     = "✗"
)

// padCell pads text to the given display width, accounting for wide
// characters.
func padCell(text string, width int) string {
	w := runewidth.StringWidth(text)
	if w >= width {
		return text
	}
	return text + strings.Repeat(" ", width-w)
}
