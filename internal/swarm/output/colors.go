package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the parts of the console output.
type ColorScheme struct {
	Title  *color.Color
	Label  *color.Color
	Value  *color.Color
	Rate   *color.Color
	Dim    *color.Color
	Good   *color.Color
	Warn   *color.Color
	Bad    *color.Color
	Accent *color.Color
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Label, s.Value, s.Rate, s.Dim, s.Good, s.Warn, s.Bad, s.Accent}
}

// DefaultColorScheme returns the colored scheme. Colors are forced on,
// whatever fatih/color detected for the process stdout.
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Title:  color.New(color.FgWhite, color.Bold),
		Label:  color.New(color.Bold),
		Value:  color.New(color.FgCyan),
		Rate:   color.New(color.FgGreen),
		Dim:    color.New(color.Faint),
		Good:   color.New(color.FgGreen, color.Bold),
		Warn:   color.New(color.FgYellow, color.Bold),
		Bad:    color.New(color.FgRed, color.Bold),
		Accent: color.New(color.FgMagenta),
	}
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// rateColor picks green, yellow or red for a failure ratio.
func (s *ColorScheme) rateColor(failureRate float64) *color.Color {
	switch {
	case failureRate > 0.05:
		return s.Bad
	case failureRate > 0.01:
		return s.Warn
	default:
		return s.Good
	}
}
