package display

import "github.com/fatih/color"

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
	SectionBreak   = "━"
)

// Status symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolPending = "○"
	SymbolPartial = "◐"
)

// Theme holds all color functions for consistent CLI styling.
type Theme struct {
	// Cascade orchestration banners (prominent)
	CascadeBorder func(a ...interface{}) string
	CascadeLabel  func(a ...interface{}) string
	CascadeText   func(a ...interface{}) string

	// Status indicators
	Success func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Info    func(a ...interface{}) string

	// Structural elements
	Bold      func(a ...interface{}) string
	Dim       func(a ...interface{}) string
	Separator func(a ...interface{}) string
}

// DefaultTheme creates the default color theme.
func DefaultTheme() *Theme {
	return &Theme{
		CascadeBorder: color.New(color.FgCyan).SprintFunc(),
		CascadeLabel:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		CascadeText:   color.New(color.FgWhite).SprintFunc(),

		Success: color.New(color.FgGreen).SprintFunc(),
		Error:   color.New(color.FgRed).SprintFunc(),
		Warning: color.New(color.FgYellow).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),

		Bold:      color.New(color.Bold).SprintFunc(),
		Dim:       color.New(color.FgHiBlack).SprintFunc(),
		Separator: color.New(color.FgCyan).SprintFunc(),
	}
}

// NoColorTheme creates a theme without colors (for non-TTY output).
func NoColorTheme() *Theme {
	identity := func(a ...interface{}) string {
		if len(a) == 0 {
			return ""
		}
		return a[0].(string)
	}
	return &Theme{
		CascadeBorder: identity,
		CascadeLabel:  identity,
		CascadeText:   identity,
		Success:       identity,
		Error:         identity,
		Warning:       identity,
		Info:          identity,
		Bold:          identity,
		Dim:           identity,
		Separator:     identity,
	}
}
