package viewer

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/slidescope/internal/source"
)

// CursorMarker is the prefix shown on the selected channel row.
const CursorMarker = "▸ "

// channelState manages the channel toggle list for the channel pane.
type channelState struct {
	channels []source.Channel
	cursor   int
}

// newChannelState returns a channelState over a copy of the given channels.
func newChannelState(channels []source.Channel) channelState {
	return channelState{channels: append([]source.Channel(nil), channels...)}
}

// Update processes key messages for the channel pane.
func (ch channelState) Update(msg tea.Msg) (channelState, bool) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return ch, false
	}

	switch key.String() {
	case "up", "k":
		if len(ch.channels) > 0 {
			ch.cursor--
			if ch.cursor < 0 {
				ch.cursor = len(ch.channels) - 1
			}
		}
		return ch, false

	case "down", "j":
		if len(ch.channels) > 0 {
			ch.cursor++
			if ch.cursor >= len(ch.channels) {
				ch.cursor = 0
			}
		}
		return ch, false

	case "enter", " ":
		if len(ch.channels) > 0 && ch.cursor < len(ch.channels) {
			ch.channels[ch.cursor].Active = !ch.channels[ch.cursor].Active
			return ch, true
		}
		return ch, false
	}

	return ch, false
}

// Toggle flips the active flag of the channel at index. Reports whether
// the index named a real channel.
func (ch channelState) Toggle(index int) (channelState, bool) {
	if index < 0 || index >= len(ch.channels) {
		return ch, false
	}
	ch.channels[index].Active = !ch.channels[index].Active
	return ch, true
}

// SetActive overwrites the active flags from a channel index list.
func (ch channelState) SetActive(active []int) channelState {
	on := make(map[int]bool, len(active))
	for _, idx := range active {
		on[idx] = true
	}
	for i := range ch.channels {
		ch.channels[i].Active = on[i]
	}
	return ch
}

// Active returns the indices of active channels in ascending order.
func (ch channelState) Active() []int {
	var active []int
	for _, c := range ch.channels {
		if c.Active {
			active = append(active, c.Index)
		}
	}
	return active
}

// Labels returns channel labels keyed by index for readout formatting.
func (ch channelState) Labels() map[int]string {
	labels := make(map[int]string, len(ch.channels))
	for _, c := range ch.channels {
		labels[c.Index] = c.Label
	}
	return labels
}

// View renders the channel list with swatches and toggle markers.
func (ch channelState) View() string {
	if len(ch.channels) == 0 {
		return "No channels"
	}

	var b strings.Builder
	for i, c := range ch.channels {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i == ch.cursor {
			b.WriteString(CursorMarker)
		} else {
			b.WriteString("  ")
		}

		label := c.Label
		if label == "" {
			label = fmt.Sprintf("channel %d", c.Index)
		}
		line := fmt.Sprintf("%s %d %s", ChannelSwatch(c.Color), c.Index, label)
		if c.Active {
			line += " [on]"
			b.WriteString(line)
		} else {
			line += " [off]"
			b.WriteString(mutedText.Render(line))
		}
	}
	return b.String()
}
