// Package styles provides shared lipgloss styles for the TUI.
package styles

import "github.com/charmbracelet/lipgloss"

// CurrentPalette holds the active theme palette.
var CurrentPalette Palette

// Exported color aliases for convenience.
var (
	ColorPrimary    lipgloss.Color
	ColorSecondary  lipgloss.Color
	ColorForeground lipgloss.Color
	ColorMuted      lipgloss.Color
	ColorBackground lipgloss.Color
	ColorSurface    lipgloss.Color
	ColorSuccess    lipgloss.Color
	ColorWarning    lipgloss.Color
	ColorError      lipgloss.Color
)

// Style exports.
var (
	TitleStyle    lipgloss.Style
	SubtitleStyle lipgloss.Style
	HelpStyle     lipgloss.Style
	DividerStyle  lipgloss.Style

	SelectedRowStyle lipgloss.Style
	NormalRowStyle   lipgloss.Style
	CursorStyle      lipgloss.Style

	SeverityLowStyle    lipgloss.Style
	SeverityMediumStyle lipgloss.Style
	SeverityHighStyle   lipgloss.Style
	HintBadgeStyle      lipgloss.Style
	CategoryStyle       lipgloss.Style
	FileRefStyle        lipgloss.Style

	TaskPendingStyle   lipgloss.Style
	TaskRunningStyle   lipgloss.Style
	TaskCompletedStyle lipgloss.Style
	TaskFailedStyle    lipgloss.Style

	CheckPassedStyle  lipgloss.Style
	CheckFailedStyle  lipgloss.Style
	CheckSkippedStyle lipgloss.Style
	CheckPendingStyle lipgloss.Style

	ErrorBannerStyle lipgloss.Style
	SuccessStyle     lipgloss.Style
	ActivityStyle    lipgloss.Style

	PromptButtonStyle         lipgloss.Style
	PromptButtonSelectedStyle lipgloss.Style
)

// SetTheme sets the active palette and rebuilds all global styles.
func SetTheme(p Palette) {
	CurrentPalette = p

	ColorPrimary = p.Primary
	ColorSecondary = p.Secondary
	ColorForeground = p.Foreground
	ColorMuted = p.Muted
	ColorBackground = p.Background
	ColorSurface = p.Surface
	ColorSuccess = p.Success
	ColorWarning = p.Warning
	ColorError = p.Error

	TitleStyle = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true)
	SubtitleStyle = lipgloss.NewStyle().
		Foreground(ColorSecondary)
	HelpStyle = lipgloss.NewStyle().
		Foreground(ColorMuted).
		MarginTop(1)
	DividerStyle = lipgloss.NewStyle().
		Foreground(ColorSurface)

	SelectedRowStyle = lipgloss.NewStyle().
		Foreground(ColorForeground).
		Background(ColorSurface)
	NormalRowStyle = lipgloss.NewStyle().
		Foreground(ColorForeground)
	CursorStyle = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true)

	SeverityLowStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)
	SeverityMediumStyle = lipgloss.NewStyle().
		Foreground(ColorWarning)
	SeverityHighStyle = lipgloss.NewStyle().
		Foreground(ColorError).
		Bold(true)
	HintBadgeStyle = lipgloss.NewStyle().
		Foreground(ColorSecondary).
		Italic(true)
	CategoryStyle = lipgloss.NewStyle().
		Foreground(ColorSecondary)
	FileRefStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)

	TaskPendingStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	TaskRunningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	TaskCompletedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	TaskFailedStyle = lipgloss.NewStyle().Foreground(ColorError)

	CheckPassedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	CheckFailedStyle = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	CheckSkippedStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	CheckPendingStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	ErrorBannerStyle = lipgloss.NewStyle().
		Foreground(ColorError).
		Bold(true)
	SuccessStyle = lipgloss.NewStyle().
		Foreground(ColorSuccess).
		Bold(true)
	ActivityStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)

	PromptButtonStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Background(ColorSurface).
		Foreground(ColorMuted)
	PromptButtonSelectedStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Background(ColorPrimary).
		Foreground(ColorBackground).
		Bold(true)
}

// nolint:gochecknoinits // bootstrap default theme before any style is accessed.
func init() {
	SetTheme(themes[DefaultTheme])
}
