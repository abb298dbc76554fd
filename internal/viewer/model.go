package viewer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/slidescope/internal/hover"
	"github.com/smileynet/slidescope/internal/intensity"
	"github.com/smileynet/slidescope/internal/source"
)

// helpBarHeight is the number of lines reserved for the help bar at the bottom.
const helpBarHeight = 1

// statusBarHeight is the number of lines reserved for the readout line.
const statusBarHeight = 1

// borderChrome is the number of cells consumed by a pane's borders.
const borderChrome = 2

// DefaultMouseThrottle is the minimum gap between processed motion events.
const DefaultMouseThrottle = 16 * time.Millisecond

// restoreState carries saved viewing state to reapply once the image loads.
type restoreState struct {
	z, t     int
	active   []int
	querying bool
}

// Model is the root Bubble Tea model for the viewer TUI.
// It manages a two-pane layout: the canvas on the left, channels on the right.
type Model struct {
	focus   Focus
	width   int
	height  int
	help    help.Model
	spinner spinner.Model
	keys    viewerKeys

	canvas   canvasState
	channels channelState

	tracker *hover.Tracker
	loader  ImageLoader
	fetcher IntensityFetcher
	saver   SessionSaver

	imageID int
	data    source.ImageData
	loaded  bool
	loading bool
	loadErr error

	status   string
	fetching bool

	throttle  time.Duration
	lastMouse time.Time

	restore *restoreState
}

// ModelOption configures a viewer Model.
type ModelOption func(*Model)

// WithMouseThrottle sets the minimum gap between processed motion events.
// Zero disables throttling.
func WithMouseThrottle(d time.Duration) ModelOption {
	return func(m *Model) {
		if d >= 0 {
			m.throttle = d
		}
	}
}

// WithSessionSaver sets the sink for viewing state on quit.
func WithSessionSaver(s SessionSaver) ModelOption {
	return func(m *Model) { m.saver = s }
}

// WithRestore reapplies saved viewing state once the image loads.
func WithRestore(z, t int, active []int, querying bool) ModelOption {
	return func(m *Model) {
		m.restore = &restoreState{z: z, t: t, active: append([]int(nil), active...), querying: querying}
	}
}

// WithTracker replaces the hover tracker, letting callers configure the
// settle delay and cache limit in one place.
func WithTracker(t *hover.Tracker) ModelOption {
	return func(m *Model) {
		if t != nil {
			m.tracker = t
		}
	}
}

// NewModel creates a viewer Model that loads imageID on Init.
func NewModel(imageID int, loader ImageLoader, fetcher IntensityFetcher, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		focus:    PaneCanvas,
		help:     help.New(),
		spinner:  s,
		keys:     ViewerKeyMap(),
		tracker:  hover.NewTracker(),
		loader:   loader,
		fetcher:  fetcher,
		imageID:  imageID,
		loading:  true,
		throttle: DefaultMouseThrottle,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner and kicks off the image load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadImage(m.loader, m.imageID))
}

// loadImage returns a tea.Cmd that calls loader.Load() asynchronously and
// wraps the result in an ImageDataMsg.
func loadImage(loader ImageLoader, imageID int) tea.Cmd {
	return func() tea.Msg {
		data, err := loader.Load(imageID)
		return ImageDataMsg{Data: data, Err: err}
	}
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		canvasWidth, _ := PaneWidths(msg.Width)
		m.canvas = m.canvas.SetSize(canvasWidth-borderChrome, m.contentHeight())
		return m, nil

	case ImageDataMsg:
		return m.applyImageData(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case SettleMsg:
		return m.handleSettle(msg)

	case IntensityResultMsg:
		return m.handleResult(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applyImageData installs loaded metadata and configures the tracker.
// Saved session state, if any, wins over the image defaults.
func (m Model) applyImageData(msg ImageDataMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.Err != nil {
		m.loadErr = msg.Err
		m.loaded = false
		return m, nil
	}

	m.loadErr = nil
	m.data = msg.Data
	m.loaded = true
	m.canvas = m.canvas.SetImage(msg.Data.Width, msg.Data.Height)
	m.channels = newChannelState(msg.Data.Channels)

	plane := intensity.PlaneKey{Z: msg.Data.DefaultZ, T: msg.Data.DefaultT}
	querying := true
	if m.restore != nil {
		plane = intensity.PlaneKey{Z: m.restore.z, T: m.restore.t}
		m.channels = m.channels.SetActive(m.restore.active)
		querying = m.restore.querying
	}
	plane = m.clampPlane(plane)

	m.tracker.SetBounds(msg.Data.Width, msg.Data.Height)
	m.tracker.SetPlane(plane)
	m.tracker.SetChannels(m.channels.Active())
	if querying {
		m.tracker.Enable()
	} else {
		m.tracker.Disable()
	}
	m.status = ""
	return m, nil
}

// handleMouse processes pointer motion: throttle, project, consult the
// tracker, and arm the settle timer when it schedules a lookup.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !m.loaded || msg.Action != tea.MouseActionMotion {
		return m, nil
	}

	now := time.Now()
	if m.throttle > 0 && now.Sub(m.lastMouse) < m.throttle {
		return m, nil
	}
	m.lastMouse = now

	// Mouse coordinates are terminal cells; the canvas interior starts
	// one cell in from the pane border.
	px, ok := m.canvas.PixelAt(msg.X-1, msg.Y-1)
	if !ok {
		px = intensity.PixelKey{X: -1, Y: -1}
	}
	dragging := msg.Button != tea.MouseButtonNone

	d := m.tracker.Move(hover.PointerEvent{Pixel: px, Dragging: dragging})
	switch d.Kind {
	case hover.DecisionOutOfBounds:
		m.canvas = m.canvas.ClearCursor()
		m.status = ""

	case hover.DecisionReadout:
		m.canvas = m.canvas.SetCursor(px)
		m.status = m.canvas.CursorLabel()

	case hover.DecisionCached:
		m.canvas = m.canvas.SetCursor(px)
		m.status = m.canvas.CursorLabel() + "  " + formatValues(d.Values, m.channels.Labels())

	case hover.DecisionSchedule:
		m.canvas = m.canvas.SetCursor(px)
		m.status = m.canvas.CursorLabel()
		ticket := d.Ticket
		return m, tea.Tick(d.Delay, func(time.Time) tea.Msg {
			return SettleMsg{Ticket: ticket}
		})
	}
	return m, nil
}

// handleSettle asks the tracker whether the rested lookup is still wanted
// and dispatches the fetch if so.
func (m Model) handleSettle(msg SettleMsg) (tea.Model, tea.Cmd) {
	req, ok := m.tracker.Fire(msg.Ticket)
	if !ok {
		return m, nil
	}

	m.fetching = true
	fetcher := m.fetcher
	imageID := m.imageID
	return m, func() tea.Msg {
		payload, err := fetcher.Fetch(source.IntensityRequest{
			ImageID:  imageID,
			Plane:    req.Plane,
			Pixel:    req.Pixel,
			Channels: req.Channels,
		})
		return IntensityResultMsg{Request: req, Payload: payload, Err: err}
	}
}

// handleResult merges a fetch result into the cache and updates the readout
// when the cursor is still on the fetched pixel.
func (m Model) handleResult(msg IntensityResultMsg) (tea.Model, tea.Cmd) {
	m.fetching = false
	if msg.Err != nil {
		m.status = fmt.Sprintf("error: %s", msg.Err)
		return m, nil
	}

	values, deliver := m.tracker.Resolve(msg.Request, msg.Payload)
	if deliver {
		m.status = m.canvas.CursorLabel() + "  " + formatValues(values, m.channels.Labels())
	}
	return m, nil
}

// handleKey processes key messages with global and pane-specific routing.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch s := msg.String(); s {
	case "q", "ctrl+c":
		m.saveSession()
		return m, tea.Quit

	case "tab":
		if m.focus == PaneCanvas {
			m.focus = PaneChannels
		} else {
			m.focus = PaneCanvas
		}
		return m, nil

	case "i":
		if !m.loaded {
			return m, nil
		}
		if m.tracker.Enabled() {
			m.tracker.Disable()
			m.status = "querying off"
		} else {
			m.tracker.Enable()
			m.status = "querying on"
		}
		return m, nil

	case "r":
		m.loading = true
		m.loadErr = nil
		m.status = ""
		return m, loadImage(m.loader, m.imageID)

	case "z":
		return m.stepPlane(-1, 0), nil
	case "Z":
		return m.stepPlane(1, 0), nil
	case "t":
		return m.stepPlane(0, -1), nil
	case "T":
		return m.stepPlane(0, 1), nil

	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if !m.loaded {
			return m, nil
		}
		idx := int(s[0] - '0')
		var toggled bool
		m.channels, toggled = m.channels.Toggle(idx)
		if toggled {
			m.tracker.SetChannels(m.channels.Active())
		}
		return m, nil
	}

	if m.focus == PaneChannels && m.loaded {
		var toggled bool
		m.channels, toggled = m.channels.Update(msg)
		if toggled {
			m.tracker.SetChannels(m.channels.Active())
		}
	}
	return m, nil
}

// stepPlane moves the focal plane or time point, clamped to the image.
func (m Model) stepPlane(dz, dt int) Model {
	if !m.loaded {
		return m
	}
	plane := m.tracker.Plane()
	plane.Z += dz
	plane.T += dt
	plane = m.clampPlane(plane)
	if plane != m.tracker.Plane() {
		m.tracker.SetPlane(plane)
	}
	m.status = fmt.Sprintf("z%d/%d t%d/%d", plane.Z+1, m.data.Planes, plane.T+1, m.data.TimePoints)
	return m
}

// clampPlane bounds a plane to the loaded image's dimensions.
func (m Model) clampPlane(plane intensity.PlaneKey) intensity.PlaneKey {
	plane.Z = clamp(plane.Z, 0, m.data.Planes-1)
	plane.T = clamp(plane.T, 0, m.data.TimePoints-1)
	return plane
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// saveSession hands the current viewing state to the saver, if any.
func (m Model) saveSession() {
	if m.saver == nil || !m.loaded {
		return
	}
	plane := m.tracker.Plane()
	_ = m.saver.Save(m.imageID, plane.Z, plane.T, m.channels.Active(), m.tracker.Enabled())
}

// contentHeight returns the usable height for pane content,
// accounting for border chrome, the readout line, and the help bar.
func (m Model) contentHeight() int {
	h := m.height - borderChrome - statusBarHeight - helpBarHeight
	if h < 1 {
		return 1
	}
	return h
}

// View renders the two-pane layout with the readout line and help bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.loadErr != nil {
		return fmt.Sprintf("Error: %s\n\nPress r to retry, q to quit\n", m.loadErr)
	}

	canvasWidth, channelsWidth := PaneWidths(m.width)
	contentHeight := m.contentHeight()

	var canvasStyle, channelsStyle lipgloss.Style
	if m.focus == PaneCanvas {
		canvasStyle = FocusedBorder()
		channelsStyle = UnfocusedBorder()
	} else {
		canvasStyle = UnfocusedBorder()
		channelsStyle = FocusedBorder()
	}

	canvasStyle = canvasStyle.
		Width(canvasWidth - borderChrome).
		Height(contentHeight)
	channelsStyle = channelsStyle.
		Width(channelsWidth - borderChrome).
		Height(contentHeight)

	canvasPane := canvasStyle.Render(m.viewCanvas())
	channelsPane := channelsStyle.Render(m.viewChannels())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, canvasPane, channelsPane)
	helpView := m.help.View(m.keys)

	return lipgloss.JoinVertical(lipgloss.Left, panes, m.statusLine(), helpView)
}

// viewCanvas renders the canvas pane content.
func (m Model) viewCanvas() string {
	if m.loading {
		return fmt.Sprintf("%s Loading image %d...", m.spinner.View(), m.imageID)
	}
	return m.canvas.View()
}

// viewChannels renders the channel pane content.
func (m Model) viewChannels() string {
	if m.loading {
		return ""
	}
	return m.channels.View()
}

// statusLine renders the readout line under the panes.
func (m Model) statusLine() string {
	indicator := " "
	if m.fetching {
		indicator = m.spinner.View()
	}
	name := m.data.Name
	if name != "" {
		name += "  "
	}
	return fmt.Sprintf("  %s %s%s", indicator, name, m.status)
}

// formatValues renders channel values in ascending channel order using
// channel labels where available.
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
