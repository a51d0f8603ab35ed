package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kyleking/gh-actionboard/internal/github"
)

// Colors used throughout the UI.
var (
	PrimaryColor   = lipgloss.Color("62")
	SecondaryColor = lipgloss.Color("240")
	AccentColor    = lipgloss.Color("212")
	MutedColor     = lipgloss.Color("241")
	SoftMutedColor = lipgloss.Color("246")
	TextColor      = lipgloss.Color("252")
	SuccessColor   = lipgloss.Color("42")
	FailureColor   = lipgloss.Color("196")
	WarningColor   = lipgloss.Color("214")
	RunningColor   = lipgloss.Color("39")
)

// Styles for the application.
var (
	BorderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(SecondaryColor)

	FocusedBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(PrimaryColor)

	ModalStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(AccentColor).
			Padding(1, 2)

	HelpStyle          = lipgloss.NewStyle().Foreground(SoftMutedColor)
	NormalStyle        = lipgloss.NewStyle().Foreground(TextColor)
	SelectedStyle      = lipgloss.NewStyle().Bold(true).Foreground(AccentColor)
	SubtitleStyle      = lipgloss.NewStyle().Foreground(SoftMutedColor)
	TableDimmedStyle   = lipgloss.NewStyle().Foreground(MutedColor)
	TableHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(SecondaryColor)
	TableRowStyle      = lipgloss.NewStyle().Foreground(TextColor)
	TableSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(AccentColor)
	TitleStyle         = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)

	ErrorStyle   = lipgloss.NewStyle().Foreground(FailureColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	RunningStyle = lipgloss.NewStyle().Foreground(RunningColor)
)

// PaneStyle returns a style for a pane with optional focus.
func PaneStyle(width, height int, focused bool) lipgloss.Style {
	style := BorderStyle
	if focused {
		style = FocusedBorderStyle
	}
	return style.Width(max(width-2, 0)).Height(max(height-2, 0))
}

// StatusIcon returns a one-character marker for a run or job state.
func StatusIcon(status, conclusion string) string {
	switch status {
	case github.StatusQueued, github.StatusPending:
		return "o"
	case github.StatusInProgress:
		return "*"
	}
	switch conclusion {
	case github.ConclusionSuccess:
		return "+"
	case github.ConclusionFailure:
		return "x"
	case github.ConclusionCancelled:
		return "-"
	case github.ConclusionSkipped:
		return "~"
	default:
		return "?"
	}
}

// StatusStyle colors a run or job by its state.
func StatusStyle(status, conclusion string) lipgloss.Style {
	switch status {
	case github.StatusQueued, github.StatusPending:
		return TableDimmedStyle
	case github.StatusInProgress:
		return RunningStyle
	}
	switch conclusion {
	case github.ConclusionSuccess:
		return SuccessStyle
	case github.ConclusionFailure:
		return ErrorStyle
	case github.ConclusionCancelled:
		return WarningStyle
	default:
		return TableDimmedStyle
	}
}
