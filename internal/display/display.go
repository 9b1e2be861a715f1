// Package display provides unified output formatting for the cascade CLI,
// adapted from the teacher's terminal renderer: the same boxed-banner and
// single-line status primitives, trimmed down from ralph's Claude-output
// streaming/iteration-loop rendering (cascade's agents run headless inside
// the orchestrator, not as an interactive foreground loop the CLI narrates)
// and repurposed to render task status and scheduler progress instead.
package display

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Display handles all CLI output with visual hierarchy.
type Display struct {
	theme     *Theme
	termWidth int
	noColor   bool
}

// New creates a new Display instance.
func New() *Display {
	return NewWithOptions(false)
}

// NewWithOptions creates a Display with configuration.
func NewWithOptions(noColor bool) *Display {
	d := &Display{
		termWidth: getTerminalWidth(),
		noColor:   noColor,
	}
	if noColor {
		d.theme = NoColorTheme()
	} else {
		d.theme = DefaultTheme()
	}
	return d
}

// getTerminalWidth returns the terminal width, defaulting to 80.
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 40 {
		return 80
	}
	if width > 120 {
		return 120
	}
	return width
}

// Box prints a boxed message titled "CASCADE".
func (d *Display) Box(lines ...string) {
	d.TitledBox("CASCADE", lines...)
}

// TitledBox prints a boxed message with a custom title.
func (d *Display) TitledBox(title string, lines ...string) {
	if len(lines) == 0 {
		return
	}

	width := d.termWidth - 2
	titleLen := len(title) + 4
	remainingWidth := width - titleLen
	if remainingWidth < 0 {
		remainingWidth = 0
	}

	topLine := BoxTopLeft + BoxHorizontal + " " + title + " " + strings.Repeat(BoxHorizontal, remainingWidth) + BoxTopRight
	fmt.Println(d.theme.CascadeBorder(topLine))

	for _, line := range lines {
		paddedLine := d.padRight(line, width-2)
		fmt.Println(d.theme.CascadeBorder(BoxVertical) + " " + d.theme.CascadeText(paddedLine) + " " + d.theme.CascadeBorder(BoxVertical))
	}

	bottomLine := BoxBottomLeft + strings.Repeat(BoxHorizontal, width) + BoxBottomRight
	fmt.Println(d.theme.CascadeBorder(bottomLine))
}

// Status prints a single-line status message (no box).
func (d *Display) Status(symbol, message string) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("%s %s %s\n",
		d.theme.CascadeBorder(timestamp),
		symbol,
		d.theme.CascadeText(message))
}

// Success prints a success message with a green checkmark.
func (d *Display) Success(message string) {
	d.Status(d.theme.Success(SymbolSuccess), message)
}

// Error prints an error message with a red X.
func (d *Display) Error(message string) {
	d.Status(d.theme.Error(SymbolError), message)
}

// Warning prints a warning message with a yellow triangle.
func (d *Display) Warning(message string) {
	d.Status(d.theme.Warning(SymbolWarning), message)
}

// Info prints an info message with a cyan label.
func (d *Display) Info(label, message string) {
	d.Status(d.theme.Info(label+":"), message)
}

// SectionBreak prints a horizontal separator between task blocks.
func (d *Display) SectionBreak() {
	fmt.Println(d.theme.Separator(strings.Repeat(SectionBreak, d.termWidth)))
}

// Duration prints an elapsed-time line.
func (d *Display) Duration(dur time.Duration) {
	fmt.Printf("   Duration: %s\n", dur.Round(time.Second))
}

// Theme returns the current theme for external use.
func (d *Display) Theme() *Theme {
	return d.theme
}

func (d *Display) padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Truncate truncates text to max length with ellipsis.
func Truncate(s string, max int) string {
	s = CleanText(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// CleanText removes newlines and collapses spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
