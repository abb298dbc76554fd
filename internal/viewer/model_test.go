package viewer

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/slidescope/internal/hover"
	"github.com/smileynet/slidescope/internal/intensity"
	"github.com/smileynet/slidescope/internal/source"
)

// --- fakes ---

type fakeLoader struct {
	data  source.ImageData
	err   error
	calls int
}

func (l *fakeLoader) Load(int) (source.ImageData, error) {
	l.calls++
	return l.data, l.err
}

type fakeFetcher struct {
	requests []source.IntensityRequest
	err      error
}

func (f *fakeFetcher) Fetch(req source.IntensityRequest) (intensity.Payload, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return intensity.Payload{}, f.err
	}
	vals := make(intensity.ChannelValues, len(req.Channels))
	for _, ch := range req.Channels {
		vals[ch] = 42
	}
	return intensity.NewPayload(map[intensity.PixelKey]intensity.ChannelValues{req.Pixel: vals}), nil
}

type fakeSaver struct {
	saved    bool
	imageID  int
	z, t     int
	active   []int
	querying bool
}

func (s *fakeSaver) Save(imageID, z, t int, active []int, querying bool) error {
	s.saved = true
	s.imageID = imageID
	s.z = z
	s.t = t
	s.active = active
	s.querying = querying
	return nil
}

// --- helpers ---

func testImageData() source.ImageData {
	return source.ImageData{
		ID: 1, Name: "kidney.svs", Width: 100, Height: 100,
		Planes: 3, TimePoints: 2,
		Channels: testChannels(),
	}
}

// newLoadedModel returns a Model with the image applied, sized to a
// 120x24 terminal (canvas interior 78x20), throttle off, 1ms settle.
func newLoadedModel(t *testing.T, opts ...ModelOption) (Model, *fakeFetcher) {
	t.Helper()
	loader := &fakeLoader{data: testImageData()}
	fetcher := &fakeFetcher{}

	base := []ModelOption{
		WithMouseThrottle(0),
		WithTracker(hover.NewTracker(hover.WithSettleDelay(time.Millisecond))),
	}
	m := NewModel(1, loader, fetcher, append(base, opts...)...)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 24})
	next, _ = next.Update(ImageDataMsg{Data: loader.data})
	return next.(Model), fetcher
}

// motion builds a mouse motion message at terminal cell (x, y).
func motion(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionMotion, Button: tea.MouseButtonNone}
}

func TestModel_Init_LoadsImage(t *testing.T) {
	loader := &fakeLoader{data: testImageData()}
	m := NewModel(1, loader, &fakeFetcher{})

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Init() should return a command")
	}
}

func TestModel_ImageDataMsg_AppliesMetadata(t *testing.T) {
	m, _ := newLoadedModel(t)

	if !m.loaded {
		t.Fatal("model should be loaded")
	}
	if !m.tracker.Enabled() {
		t.Error("querying should default to on")
	}
	if got := m.channels.Active(); len(got) != 2 {
		t.Errorf("active channels = %v, want the image's two active channels", got)
	}
}

func TestModel_ImageDataMsg_Error(t *testing.T) {
	loader := &fakeLoader{err: errors.New("no such image")}
	m := NewModel(1, loader, &fakeFetcher{})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 24})
	next, _ = next.(Model).Update(ImageDataMsg{Err: loader.err})
	updated := next.(Model)

	if updated.loaded {
		t.Error("model should not be loaded after an error")
	}
	if !strings.Contains(updated.View(), "no such image") {
		t.Error("view should show the load error")
	}
}

func TestModel_Restore_OverridesDefaults(t *testing.T) {
	m, _ := newLoadedModel(t, WithRestore(2, 1, []int{1}, false))

	if plane := m.tracker.Plane(); plane.Z != 2 || plane.T != 1 {
		t.Errorf("plane = %+v, want z2 t1", plane)
	}
	if m.tracker.Enabled() {
		t.Error("restored querying=false should leave the tracker disabled")
	}
	if got := m.channels.Active(); len(got) != 1 || got[0] != 1 {
		t.Errorf("active channels = %v, want [1]", got)
	}
}

func TestModel_HoverFetchFlow(t *testing.T) {
	m, fetcher := newLoadedModel(t)

	// Motion over the canvas schedules a settle timer.
	next, cmd := m.Update(motion(40, 11))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("motion should arm a settle timer")
	}

	// The timer fires; the tracker still wants the lookup.
	settle := cmd()
	next, cmd = m.Update(settle)
	m = next.(Model)
	if cmd == nil {
		t.Fatal("settle should dispatch a fetch")
	}
	if !m.fetching {
		t.Error("model should be fetching")
	}

	// The fetch resolves; values land in the readout.
	result := cmd()
	next, _ = m.Update(result)
	m = next.(Model)

	if m.fetching {
		t.Error("fetch result should clear fetching")
	}
	if !strings.Contains(m.statusLine(), "DAPI=42") {
		t.Errorf("readout should show fetched values, got %q", m.statusLine())
	}
	if len(fetcher.requests) != 1 {
		t.Fatalf("got %d fetches, want 1", len(fetcher.requests))
	}
	req := fetcher.requests[0]
	if req.ImageID != 1 {
		t.Errorf("request image = %d, want 1", req.ImageID)
	}
	if len(req.Channels) != 2 {
		t.Errorf("request channels = %v, want both active channels", req.Channels)
	}
}

func TestModel_StaleSettleSuppressed(t *testing.T) {
	m, fetcher := newLoadedModel(t)

	// First motion arms a timer, second motion before it fires moves on.
	next, first := m.Update(motion(40, 11))
	next, second := next.(Model).Update(motion(50, 11))
	m = next.(Model)

	// The first ticket is stale; only the second may fetch.
	if _, cmd := m.Update(first()); cmd != nil {
		t.Error("stale settle should not dispatch a fetch")
	}
	next, cmd := m.Update(second())
	if cmd == nil {
		t.Fatal("fresh settle should dispatch a fetch")
	}
	_ = cmd()
	_ = next

	if len(fetcher.requests) != 1 {
		t.Errorf("got %d fetches, want 1", len(fetcher.requests))
	}
}

func TestModel_CachedHitSkipsFetch(t *testing.T) {
	m, fetcher := newLoadedModel(t)

	// Complete one fetch for a pixel.
	next, cmd := m.Update(motion(40, 11))
	next, cmd = next.(Model).Update(cmd())
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)

	// Leave and come back; the cache satisfies the second visit.
	next, _ = m.Update(motion(50, 11))
	next, cmd = next.(Model).Update(motion(40, 11))
	m = next.(Model)

	if cmd != nil {
		t.Error("cached hit should not arm a timer")
	}
	if !strings.Contains(m.statusLine(), "DAPI=42") {
		t.Errorf("readout should show cached values, got %q", m.statusLine())
	}
	if len(fetcher.requests) != 1 {
		t.Errorf("got %d fetches, want 1", len(fetcher.requests))
	}
}

func TestModel_DraggingIsReadoutOnly(t *testing.T) {
	m, _ := newLoadedModel(t)

	drag := tea.MouseMsg{X: 40, Y: 11, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft}
	next, cmd := m.Update(drag)
	m = next.(Model)

	if cmd != nil {
		t.Error("dragging should not arm a timer")
	}
	if !strings.Contains(m.statusLine(), "(") {
		t.Error("dragging should still update the coordinate readout")
	}
}

func TestModel_FetchError_ShownAndRecovers(t *testing.T) {
	m, fetcher := newLoadedModel(t)
	fetcher.err = errors.New("server unreachable")

	next, cmd := m.Update(motion(40, 11))
	next, cmd = next.(Model).Update(cmd())
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)

	if !strings.Contains(m.statusLine(), "server unreachable") {
		t.Errorf("readout should show the fetch error, got %q", m.statusLine())
	}
	if m.fetching {
		t.Error("error should clear fetching")
	}
}

func TestModel_ToggleQuerying(t *testing.T) {
	m, _ := newLoadedModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
	m = next.(Model)
	if m.tracker.Enabled() {
		t.Fatal("i should disable querying")
	}

	// While disabled, motion is readout only.
	next, cmd := m.Update(motion(40, 11))
	m = next.(Model)
	if cmd != nil {
		t.Error("disabled querying should not arm a timer")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
	m = next.(Model)
	if !m.tracker.Enabled() {
		t.Error("i should re-enable querying")
	}
}

func TestModel_DigitTogglesChannel(t *testing.T) {
	m, _ := newLoadedModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	m = next.(Model)

	if got := m.channels.Active(); len(got) != 3 {
		t.Errorf("active = %v, want all three channels", got)
	}

	// Unknown digit is a no-op.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'9'}})
	m = next.(Model)
	if got := m.channels.Active(); len(got) != 3 {
		t.Errorf("active = %v, want unchanged", got)
	}
}

func TestModel_PlaneStepping(t *testing.T) {
	m, _ := newLoadedModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'Z'}})
	m = next.(Model)
	if plane := m.tracker.Plane(); plane.Z != 1 {
		t.Errorf("plane z = %d, want 1", plane.Z)
	}

	// Clamp at the top: planes = 3, so z stops at 2.
	for i := 0; i < 5; i++ {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'Z'}})
		m = next.(Model)
	}
	if plane := m.tracker.Plane(); plane.Z != 2 {
		t.Errorf("plane z = %d, want clamp at 2", plane.Z)
	}

	// And at the bottom.
	for i := 0; i < 5; i++ {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'z'}})
		m = next.(Model)
	}
	if plane := m.tracker.Plane(); plane.Z != 0 {
		t.Errorf("plane z = %d, want clamp at 0", plane.Z)
	}
}

func TestModel_TabSwitchesFocus(t *testing.T) {
	m, _ := newLoadedModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.focus != PaneChannels {
		t.Errorf("focus = %v, want channel pane", m.focus)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.focus != PaneCanvas {
		t.Errorf("focus = %v, want canvas pane", m.focus)
	}
}

func TestModel_ChannelPaneKeysToggleViaTracker(t *testing.T) {
	m, _ := newLoadedModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	// Enter toggled channel 0 off; a hover now misses channel 0.
	if got := m.channels.Active(); len(got) != 1 || got[0] != 1 {
		t.Errorf("active = %v, want [1]", got)
	}
}

func TestModel_QuitSavesSession(t *testing.T) {
	saver := &fakeSaver{}
	m, _ := newLoadedModel(t, WithSessionSaver(saver))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'Z'}})
	next, cmd := next.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	_ = next

	if cmd == nil {
		t.Fatal("q should produce a quit Cmd")
	}
	if !saver.saved {
		t.Fatal("q should save the session")
	}
	if saver.imageID != 1 || saver.z != 1 {
		t.Errorf("saved image=%d z=%d, want image=1 z=1", saver.imageID, saver.z)
	}
	if !saver.querying {
		t.Error("saved querying should be true")
	}
}

func TestModel_Refresh_Reloads(t *testing.T) {
	loader := &fakeLoader{data: testImageData()}
	m := NewModel(1, loader, &fakeFetcher{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 24})
	next, _ = next.(Model).Update(ImageDataMsg{Data: loader.data})

	next, cmd := next.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	updated := next.(Model)

	if !updated.loading {
		t.Error("r should put the model back into loading")
	}
	if cmd == nil {
		t.Fatal("r should return a load command")
	}
	if msg := cmd(); msg.(ImageDataMsg).Err != nil {
		t.Error("reload should succeed")
	}
	if loader.calls != 1 {
		t.Errorf("loader calls = %d, want 1", loader.calls)
	}
}

func TestModel_View_BeforeSize(t *testing.T) {
	m := NewModel(1, &fakeLoader{}, &fakeFetcher{})

	if got := m.View(); got != "Initializing..." {
		t.Errorf("view = %q, want Initializing...", got)
	}
}

func TestModel_View_TwoPanes(t *testing.T) {
	m, _ := newLoadedModel(t)

	view := m.View()
	if !strings.Contains(view, "DAPI") {
		t.Error("view should contain the channel pane")
	}
	if !strings.Contains(view, "·") {
		t.Error("view should contain the canvas field")
	}
	if !strings.Contains(view, "kidney.svs") {
		t.Error("view should contain the image name in the readout line")
	}
}

func TestModel_MouseThrottle_DropsRapidMotion(t *testing.T) {
	m, _ := newLoadedModel(t, WithMouseThrottle(time.Hour))

	next, cmd := m.Update(motion(40, 11))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("first motion should pass the throttle")
	}

	next, cmd = m.Update(motion(50, 11))
	if cmd != nil {
		t.Error("rapid second motion should be throttled")
	}
	_ = next
}
