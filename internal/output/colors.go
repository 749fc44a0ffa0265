package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements of the report
type ColorScheme struct {
	Title       *color.Color
	Rule        *color.Color
	Label       *color.Color
	Value       *color.Color
	Phase       *color.Color
	StatusOK    *color.Color
	StatusWarn  *color.Color
	StatusError *color.Color
	Latency     *color.Color
	Success     *color.Color
	Error       *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:       color.New(color.Bold),
		Rule:        color.New(color.FgCyan),
		Label:       color.New(color.Bold),
		Value:       color.New(color.FgCyan),
		Phase:       color.New(color.FgMagenta, color.Bold),
		StatusOK:    color.New(color.FgGreen, color.Bold),
		StatusWarn:  color.New(color.FgYellow, color.Bold),
		StatusError: color.New(color.FgRed, color.Bold),
		Latency:     color.New(color.FgBlue),
		Success:     color.New(color.FgGreen),
		Error:       color.New(color.FgRed),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForcedColorScheme returns the default scheme with colors enabled even when
// the output is not a terminal
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value, s.Phase,
		s.StatusOK, s.StatusWarn, s.StatusError,
		s.Latency, s.Success, s.Error,
	}
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}

// rateColor picks the color for an error ratio between 0 and 1.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.StatusError
	case rate > 0.01:
		return s.StatusWarn
	default:
		return s.StatusOK
	}
}
