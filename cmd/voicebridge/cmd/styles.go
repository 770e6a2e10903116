package cmd

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#8B5CF6")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
)

var (
	titleStyle = lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true).
		MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorMuted).
		Padding(0, 2).
		MarginBottom(1)

	headerStyle = lipgloss.NewStyle().Bold(true)

	labelStyle = lipgloss.NewStyle().
		Foreground(colorMuted).
		Width(20)

	okStyle   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)
