// Package viewer implements a two-pane TUI for inspecting a slide image:
// a canvas pane that tracks the mouse and a channel pane for toggling
// which channels hover queries fetch. Separate from internal/tui which
// handles the one-line probe display.
package viewer

import (
	"github.com/smileynet/slidescope/internal/hover"
	"github.com/smileynet/slidescope/internal/intensity"
	"github.com/smileynet/slidescope/internal/source"
)

// Focus represents which pane has keyboard focus.
type Focus int

const (
	PaneCanvas   Focus = iota // Canvas pane (mouse field) has focus.
	PaneChannels              // Channel pane (toggle list) has focus.
)

// --- Consumer-side interfaces ---

// ImageLoader fetches metadata for the viewed image.
type ImageLoader interface {
	Load(imageID int) (source.ImageData, error)
}

// IntensityFetcher resolves one settled hover lookup.
type IntensityFetcher interface {
	Fetch(req source.IntensityRequest) (intensity.Payload, error)
}

// SessionSaver persists the viewing state when the viewer quits.
type SessionSaver interface {
	Save(imageID, z, t int, activeChannels []int, querying bool) error
}

// --- tea.Msg types ---

// ImageDataMsg carries the result of an ImageLoader.Load() call.
type ImageDataMsg struct {
	Data source.ImageData
	Err  error
}

// SettleMsg fires when the cursor has rested long enough for a scheduled
// lookup. The ticket identifies which movement armed the timer; the
// tracker rejects it if the cursor has moved since.
type SettleMsg struct {
	Ticket hover.Ticket
}

// IntensityResultMsg carries the result of an IntensityFetcher.Fetch() call
// together with the request it answers.
type IntensityResultMsg struct {
	Request hover.Request
	Payload intensity.Payload
	Err     error
}
