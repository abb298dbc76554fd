package viewer

import (
	"github.com/charmbracelet/lipgloss"
)

// MinChannelsWidth is the minimum character width for the channel pane.
const MinChannelsWidth = 24

// mutedText dims inactive channel rows.
var mutedText = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})

// ChannelSwatch returns a colored block for a channel's hex color
// (e.g. "00FF00"). Unknown colors render a plain block.
func ChannelSwatch(hexColor string) string {
	if len(hexColor) != 6 {
		return "■"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#" + hexColor)).
		Render("■")
}

// FocusedBorder returns a lipgloss style with an accent-colored rounded border.
func FocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})
}

// UnfocusedBorder returns a lipgloss style with a dim rounded border.
func UnfocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "240", Dark: "240"})
}

// PaneWidths calculates the canvas and channel pane widths from a total
// width. The channel pane gets 1/3 (minimum MinChannelsWidth), the canvas
// the rest.
func PaneWidths(totalWidth int) (canvas, channels int) {
	if totalWidth <= 0 {
		return 0, 0
	}
	channels = totalWidth / 3
	if channels < MinChannelsWidth {
		channels = MinChannelsWidth
	}
	canvas = totalWidth - channels
	if canvas < 0 {
		canvas = 0
	}
	return canvas, channels
}
