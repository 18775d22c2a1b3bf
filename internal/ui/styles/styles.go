// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#1E1E2E", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BBBBBB"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#9CA0B0", Dark: "#696969"}

	// Borders
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#45475A"}
	BorderFocusedColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}

	// Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#FF8787"}

	// Selection indicator color (used for ">" prefix in lists)
	SelectionIndicatorColor = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}

	TitleStyle              = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)
	TabStyle                = lipgloss.NewStyle().Padding(0, 1).Foreground(TextSecondaryColor)
	TabActiveStyle          = lipgloss.NewStyle().Padding(0, 1).Bold(true).Underline(true).Foreground(BorderFocusedColor)
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)
	MutedStyle              = lipgloss.NewStyle().Foreground(TextMutedColor)
	WarningStyle            = lipgloss.NewStyle().Foreground(StatusWarningColor)
	ErrorStyle              = lipgloss.NewStyle().Foreground(StatusErrorColor)
	SuccessStyle            = lipgloss.NewStyle().Foreground(StatusSuccessColor)
)
