package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"batch-transcriber/internal/domain"
)

var (
	colorPrimary = lipgloss.Color("#8B5CF6")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorInfo    = lipgloss.Color("#06B6D4")
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(colorInfo)
)

// statusWidth fits the longest status name.
const statusWidth = 13

// statusStyle colors an item or bootstrap status.
func statusStyle(status domain.ItemStatus) lipgloss.Style {
	switch status {
	case domain.StatusDone, domain.StatusReady:
		return successStyle
	case domain.StatusError, domain.StatusFailed:
		return errorStyle
	case domain.StatusCanceled, domain.StatusMissing:
		return warningStyle
	case domain.StatusQueued:
		return mutedStyle
	default:
		return activeStyle
	}
}

func renderStatus(status domain.ItemStatus) string {
	return statusStyle(status).Render(fmt.Sprintf("%-*s", statusWidth, status))
}

func diagnosticStyle(status domain.DiagnosticStatus) lipgloss.Style {
	switch status {
	case domain.DiagnosticStatusPass:
		return successStyle
	case domain.DiagnosticStatusWarn:
		return warningStyle
	default:
		return errorStyle
	}
}

func printHeader(title string) {
	fmt.Println(headerStyle.Render(title))
}
