package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/slidescope/internal/intensity"
)

// ReadoutMsg reports the cursor position while querying is off or a fetch
// has not settled yet.
type ReadoutMsg struct {
	Pixel intensity.PixelKey
}

// QueryingMsg reports that an intensity fetch is in flight for a pixel.
type QueryingMsg struct {
	Pixel intensity.PixelKey
	Plane intensity.PlaneKey
}

// IntensityMsg carries resolved channel values for a pixel.
type IntensityMsg struct {
	Pixel  intensity.PixelKey
	Plane  intensity.PlaneKey
	Values intensity.ChannelValues
	Cached bool
}

// QueryErrorMsg reports a failed intensity fetch. The probe keeps running;
// the error is shown and cleared by the next event.
type QueryErrorMsg struct {
	Err error
}

// DoneMsg signals that the probe session is over.
type DoneMsg struct{}

// Model is the Bubble Tea model for the single-line probe readout.
type Model struct {
	labels   map[int]string
	spinner  spinner.Model
	line     string
	querying bool
	done     bool
}

// NewModel creates a probe Model. labels maps channel indices to display
// names; unlabeled channels render by index.
func NewModel(labels map[int]string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		labels:  labels,
		spinner: s,
	}
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ReadoutMsg:
		m.querying = false
		m.line = fmt.Sprintf("(%d, %d)", msg.Pixel.X, msg.Pixel.Y)
		return m, nil

	case QueryingMsg:
		m.querying = true
		m.line = fmt.Sprintf("(%d, %d) z%d t%d", msg.Pixel.X, msg.Pixel.Y, msg.Plane.Z, msg.Plane.T)
		return m, nil

	case IntensityMsg:
		m.querying = false
		m.line = fmt.Sprintf("(%d, %d) z%d t%d  %s",
			msg.Pixel.X, msg.Pixel.Y, msg.Plane.Z, msg.Plane.T,
			formatValues(msg.Values, m.labels))
		return m, nil

	case QueryErrorMsg:
		m.querying = false
		m.line = fmt.Sprintf("error: %s", msg.Err)
		return m, nil

	case DoneMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the readout line, prefixed by the spinner while a fetch is
// in flight.
func (m Model) View() string {
	if m.done {
		return ""
	}
	indicator := " "
	if m.querying {
		indicator = m.spinner.View()
	}
	return fmt.Sprintf("  %s %s\n", indicator, m.line)
}

// formatValues renders channel values in ascending channel order.
func formatValues(values intensity.ChannelValues, labels map[int]string) string {
	if len(values) == 0 {
		return "no channels"
	}

	chans := make([]int, 0, len(values))
	for ch := range values {
		chans = append(chans, ch)
	}
	sort.Ints(chans)

	parts := make([]string, 0, len(chans))
	for _, ch := range chans {
		name := labels[ch]
		if name == "" {
			name = fmt.Sprintf("ch%d", ch)
		}
		parts = append(parts, fmt.Sprintf("%s=%.4g", name, values[ch]))
	}
	return strings.Join(parts, "  ")
}

// timestamp formats the current time for plain text output.
func timestamp() string {
	return time.Now().Format("15:04:05")
}
