package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	cyan   = lipgloss.Color("39")
	pink   = lipgloss.Color("212")
	green  = lipgloss.Color("82")
	orange = lipgloss.Color("214")
	red    = lipgloss.Color("196")
	gray   = lipgloss.Color("245")
	yellow = lipgloss.Color("226")
)

var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(gray)
	Highlight = lipgloss.NewStyle().Foreground(yellow)
	Header    = lipgloss.NewStyle().Foreground(cyan).Bold(true)

	Success = lipgloss.NewStyle().Foreground(green)
	Warning = lipgloss.NewStyle().Foreground(orange)
	Error   = lipgloss.NewStyle().Foreground(red)

	// FilePath renders stored file names, LineNum the chunk position.
	FilePath = lipgloss.NewStyle().Foreground(cyan)
	LineNum  = lipgloss.NewStyle().Foreground(gray)

	SectionTitle = lipgloss.NewStyle().Foreground(pink).Bold(true).MarginTop(1)
)

// statusStyles colors the vectorization states of a stored file.
var statusStyles = map[string]lipgloss.Style{
	"succeeded":   Success,
	"failed":      Error,
	"in_progress": Highlight,
}

// Status renders a vectorization status; unknown states are dimmed.
func Status(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return Dim.Render(status)
}

// FormatScore renders a similarity score as a match percentage.
func FormatScore(score float64) string {
	return Success.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}
