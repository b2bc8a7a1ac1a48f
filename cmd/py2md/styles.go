package main

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.AdaptiveColor{Light: "#00875F", Dark: "#5FD787"}
	warningColor = lipgloss.AdaptiveColor{Light: "#AF5F00", Dark: "#FFAF5F"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#8A8A8A"}

	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	itemStyle    = lipgloss.NewStyle().PaddingLeft(2)
)
