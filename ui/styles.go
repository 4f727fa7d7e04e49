package ui

import (
	"github.com/charmbracelet/lipgloss"
	te "github.com/muesli/termenv"
)

const ellipsis = "…"

var (
	green    = lipgloss.AdaptiveColor{Light: "#00A86B", Dark: "#04B575"}
	yellow   = lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#ECFD65"}
	blue     = lipgloss.AdaptiveColor{Light: "#0077CC", Dark: "#00AAFF"}
	red      = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF4672"}
	gray     = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#888888"}
	darkGray = lipgloss.AdaptiveColor{Light: "#DDDADA", Dark: "#3C3C3C"}
	fuchsia  = lipgloss.Color("#EE6FF8")

	grayFg  = lipgloss.NewStyle().Foreground(gray).Render
	errorFg = lipgloss.NewStyle().Foreground(red).Render

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(fuchsia)
	deckStyle  = lipgloss.NewStyle().Foreground(gray).Italic(true)
	alexStyle  = lipgloss.NewStyle().Bold(true).Foreground(blue)
	samStyle   = lipgloss.NewStyle().Bold(true).Foreground(green)
	lineStyle  = lipgloss.NewStyle()
	pastStyle  = lipgloss.NewStyle().Foreground(gray)
	noteStyle  = lipgloss.NewStyle().Foreground(yellow)
	frameStyle = lipgloss.NewStyle().Padding(1, 2)
)

// plainTerminal reports whether the terminal shows no colors at all, in
// which case glyph-heavy output is replaced with ASCII.
func plainTerminal() bool {
	return te.EnvColorProfile() == te.Ascii
}
