package style

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var palette = DefaultPalette()

// Header styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Background(palette.Background).
			Foreground(palette.Primary).
			Bold(true).
			Padding(0, 2).
			Margin(0, 0, 1, 0)

	TitleStyle = lipgloss.NewStyle().
			Foreground(palette.Secondary).
			Bold(true)
)

// Layout styles
var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted).
			Padding(0, 1).
			Margin(0, 1, 0, 0)

	CounterStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1, 0, 0).
			Align(lipgloss.Center)
)

// Text styles
var (
	MutedStyle   = lipgloss.NewStyle().Foreground(palette.TextMuted)
	ErrorStyle   = lipgloss.NewStyle().Foreground(palette.Error).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(palette.Success)
	WarningStyle = lipgloss.NewStyle().Foreground(palette.Warning)
)

// Counter renders one status count box.
func Counter(label string, n int64, color lipgloss.Color) string {
	body := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(color).Bold(true).Render(label),
		lipgloss.NewStyle().Foreground(palette.Text).Render(strconv.FormatInt(n, 10)),
	)
	return CounterStyle.BorderForeground(color).Render(body)
}
