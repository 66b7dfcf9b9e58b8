// Package tui provides the Bubble Tea live view for sluice extract.
//
// The watch view is opt-in (--watch) and read-only: it consumes the same
// event stream the JSON output would, it never alters delivery.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for the watch view.
var (
	// TitleStyle for the session header.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// HeaderStyle for table column headers.
	HeaderStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	// StreamingStyle marks the currently open component.
	StreamingStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// CompleteStyle marks closed components.
	CompleteStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// ErrorStyle for error events and incomplete compounds.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// BoxStyle for the surrounding container.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)
)

// stateStyle maps a component state label to its style.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "streaming":
		return StreamingStyle
	case "complete":
		return CompleteStyle
	case "incomplete":
		return ErrorStyle
	default:
		return HelpStyle
	}
}
