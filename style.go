package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	deckHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EE6FF8")).Render
	episodeID   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Width(8).Render
	faint       = lipgloss.NewStyle().Faint(true).Render
)
