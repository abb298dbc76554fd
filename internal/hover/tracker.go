// Package hover implements the pointer-move debouncer and request coalescer
// behind the intensity readout. The Tracker is a host-agnostic state machine:
// the viewer drives it from the Bubble Tea update loop, probe mode drives it
// from a plain select loop. Hosts own the actual timers; the Tracker owns the
// single pending-request slot and the staleness checks.
//
// It is not safe for concurrent use; confine access to a single goroutine.
package hover

import (
	"time"

	"github.com/smileynet/slidescope/internal/intensity"
)

// DefaultSettleDelay is the wait after the last pointer movement before a
// network lookup is issued.
const DefaultSettleDelay = 500 * time.Millisecond

// PointerEvent is one pointer movement in image coordinates. The host has
// already projected screen position to image space; Dragging reports whether
// a button was held during the motion.
type PointerEvent struct {
	Pixel    intensity.PixelKey
	Dragging bool
}

// DecisionKind classifies what the host should do after a Move.
type DecisionKind int

const (
	// DecisionOutOfBounds: clear the coordinate readout, nothing else.
	DecisionOutOfBounds DecisionKind = iota
	// DecisionReadout: update the coordinate readout only.
	DecisionReadout
	// DecisionCached: the cache already satisfies the request; deliver
	// Values immediately, no network access, no delay.
	DecisionCached
	// DecisionSchedule: update the readout and arm a settle timer that
	// fires the Ticket after Delay.
	DecisionSchedule
)

// Decision is the Tracker's verdict for one pointer movement.
type Decision struct {
	Kind   DecisionKind
	Values intensity.ChannelValues // set for DecisionCached
	Ticket Ticket                  // set for DecisionSchedule
	Delay  time.Duration           // set for DecisionSchedule
}

// Ticket stamps a scheduled lookup with the move sequence and pixel it was
// scheduled for. A ticket is stale once either no longer matches.
type Ticket struct {
	Seq   uint64
	Pixel intensity.PixelKey
}

// Request is a lookup the host should dispatch to the image source.
type Request struct {
	Plane    intensity.PlaneKey
	Pixel    intensity.PixelKey
	Channels []int
}

// Tracker coalesces pointer movement into at most one outstanding scheduled
// lookup, short-circuiting through its cache when possible.
type Tracker struct {
	cache      *intensity.Cache
	cacheLimit int
	delay      time.Duration

	width  int
	height int

	plane    intensity.PlaneKey
	channels []int
	enabled  bool

	seq     uint64
	last    intensity.PixelKey
	hasLast bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSettleDelay sets the debounce delay before a lookup fires.
func WithSettleDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.delay = d
		}
	}
}

// WithCacheLimit sets the intensity cache budget in channel values.
func WithCacheLimit(n int) Option {
	return func(t *Tracker) { t.cacheLimit = n }
}

// NewTracker creates a Tracker with querying disabled and no cache.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{delay: DefaultSettleDelay}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetBounds sets the image dimensions used for the out-of-bounds check.
func (t *Tracker) SetBounds(width, height int) {
	t.width = width
	t.height = height
}

// SetPlane selects the current focal plane and time point. The cache is
// kept; buckets for other planes become eviction candidates.
func (t *Tracker) SetPlane(plane intensity.PlaneKey) {
	t.plane = plane
}

// Plane returns the current focal plane and time point.
func (t *Tracker) Plane() intensity.PlaneKey {
	return t.plane
}

// SetChannels sets the active channel indices queried on hover.
func (t *Tracker) SetChannels(channels []int) {
	t.channels = append([]int(nil), channels...)
}

// Enabled reports whether intensity querying is on.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Enable turns intensity querying on, creating a fresh cache.
// Enabling an already-enabled tracker keeps the existing cache.
func (t *Tracker) Enable() {
	if t.enabled {
		return
	}
	t.enabled = true
	t.cache = intensity.New(t.cacheLimit)
}

// Disable turns intensity querying off and discards the cache. Any pending
// ticket and any in-flight response become stale.
func (t *Tracker) Disable() {
	t.enabled = false
	t.cache = nil
	t.seq++
}

// Move records a pointer movement and decides what the host should do.
// Every move invalidates any previously scheduled ticket.
func (t *Tracker) Move(ev PointerEvent) Decision {
	t.seq++

	px := ev.Pixel
	if px.X < 0 || px.Y < 0 || px.X >= t.width || px.Y >= t.height {
		t.hasLast = false
		return Decision{Kind: DecisionOutOfBounds}
	}
	t.last = px
	t.hasLast = true

	if !t.enabled || ev.Dragging || len(t.channels) == 0 {
		return Decision{Kind: DecisionReadout}
	}

	if missing := t.cache.Missing(t.plane, px, t.channels); len(missing) == 0 {
		return Decision{Kind: DecisionCached, Values: t.valuesAt(t.plane, px)}
	}

	return Decision{
		Kind:   DecisionSchedule,
		Ticket: Ticket{Seq: t.seq, Pixel: px},
		Delay:  t.delay,
	}
}

// Fire validates a settle-timer ticket. It returns false for stale tickets:
// the cursor moved (or left the image) since scheduling, querying was
// disabled, or the missing channels were filled by an in-flight response in
// the meantime. Otherwise it returns the lookup to dispatch, restricted to
// the channels still missing.
func (t *Tracker) Fire(tk Ticket) (Request, bool) {
	if !t.enabled || tk.Seq != t.seq || !t.hasLast || tk.Pixel != t.last {
		return Request{}, false
	}
	missing := t.cache.Missing(t.plane, tk.Pixel, t.channels)
	if len(missing) == 0 {
		return Request{}, false
	}
	return Request{Plane: t.plane, Pixel: tk.Pixel, Channels: missing}, true
}

// Resolve merges a fetched payload into the cache and returns the now
// complete values for the requested pixel, filtered to the active channels.
// The bool reports whether the cursor is still on the requested pixel and
// plane; hosts should skip the display update when it is false (the merge
// itself is always kept).
func (t *Tracker) Resolve(req Request, p intensity.Payload) (intensity.ChannelValues, bool) {
	if !t.enabled {
		return nil, false
	}
	t.cache.Merge(req.Plane, p)
	vals := t.valuesAt(req.Plane, req.Pixel)
	current := t.hasLast && t.last == req.Pixel && req.Plane == t.plane
	return vals, current
}

// Cache exposes the owned cache for display counters; nil while disabled.
func (t *Tracker) Cache() *intensity.Cache {
	return t.cache
}

// valuesAt returns the cached values at px on the given plane, filtered to
// the active channel set.
func (t *Tracker) valuesAt(plane intensity.PlaneKey, px intensity.PixelKey) intensity.ChannelValues {
	cv, ok := t.cache.Lookup(plane, px)
	if !ok {
		return nil
	}
	out := make(intensity.ChannelValues, len(t.channels))
	for _, ch := range t.channels {
		if v, ok := cv[ch]; ok {
			out[ch] = v
		}
	}
	return out
}
