package report

import "github.com/charmbracelet/lipgloss"

// Semantic colors for terminal output.
var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#8a94a6")
)

// Styles holds the lipgloss styles used by summaries and tables.
type Styles struct {
	Title lipgloss.Style
	Body  lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style

	Passed  lipgloss.Style
	Failed  lipgloss.Style
	Skipped lipgloss.Style
	Info    lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(Info),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Bold:    lipgloss.NewStyle().Bold(true),
		Passed:  lipgloss.NewStyle().Bold(true).Foreground(Success),
		Failed:  lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Skipped: lipgloss.NewStyle().Foreground(Warning),
		Info:    lipgloss.NewStyle().Foreground(Info),
	}
}

// PlainStyles renders without any colour or emphasis, for logs and tests.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Title: s, Body: s, Muted: s, Bold: s, Passed: s, Failed: s, Skipped: s, Info: s}
}

// Status returns the style for a step or run status.
func (s Styles) Status(st Status) lipgloss.Style {
	switch st {
	case StatusPassed:
		return s.Passed
	case StatusFailed:
		return s.Failed
	default:
		return s.Skipped
	}
}
