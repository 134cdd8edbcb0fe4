package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/branches/pkg/convo"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A78BFA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F9FAFB")).
			Background(lipgloss.Color("#4C1D95"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#A78BFA")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171"))
)

var statusMarks = map[convo.Status]string{
	convo.StatusPending:   "○",
	convo.StatusStreaming: "◐",
	convo.StatusCompleted: "●",
	convo.StatusFailed:    "✗",
}
