package tui

import "github.com/charmbracelet/lipgloss"

var (
	Cyan   = lipgloss.Color("86")
	Yellow = lipgloss.Color("214")
	Red    = lipgloss.Color("196")
	Gray   = lipgloss.Color("245")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Yellow).
			MarginBottom(1)

	BodyStyle = lipgloss.NewStyle().
			Foreground(Gray)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	DangerStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Gray).
			MarginTop(1)
)
