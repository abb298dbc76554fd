// Package tui renders probe readouts either as a live terminal line or as
// plain timestamped text.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// DisplayEvent is an event sent to a Display via the update channel.
// Implemented by ReadoutMsg, QueryingMsg, IntensityMsg, QueryErrorMsg,
// and DoneMsg.
type DisplayEvent interface {
	isDisplayEvent()
}

func (ReadoutMsg) isDisplayEvent()    {}
func (QueryingMsg) isDisplayEvent()   {}
func (IntensityMsg) isDisplayEvent()  {}
func (QueryErrorMsg) isDisplayEvent() {}
func (DoneMsg) isDisplayEvent()       {}

// Verify at compile time that message types implement DisplayEvent.
var (
	_ DisplayEvent = ReadoutMsg{}
	_ DisplayEvent = QueryingMsg{}
	_ DisplayEvent = IntensityMsg{}
	_ DisplayEvent = QueryErrorMsg{}
	_ DisplayEvent = DoneMsg{}
)

// Display renders probe readout events.
type Display interface {
	Run(ctx context.Context, events <-chan DisplayEvent) error
}

// DisplayOptions configures display creation.
type DisplayOptions struct {
	Writer     io.Writer      // Output destination (default: os.Stdout).
	ForcePlain bool           // Force plain text even if TTY.
	Labels     map[int]string // Channel labels for TUI initialization.
}

// NewDisplay returns a TUI display when stdout is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func NewDisplay(opts DisplayOptions) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer, labels: opts.Labels}
	}

	return &TUIDisplay{labels: opts.Labels, w: opts.Writer}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between a probe producer and a Display consumer.
type Bridge struct {
	ch chan DisplayEvent
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan DisplayEvent, 16)}
}

// Events returns the read-only channel for Display.Run() to consume.
func (b *Bridge) Events() <-chan DisplayEvent {
	return b.ch
}

// Send delivers an event to the display.
// It blocks if the channel buffer (16) is full.
func (b *Bridge) Send(ev DisplayEvent) {
	b.ch <- ev
}

// Done signals the end of the probe session and closes the channel.
func (b *Bridge) Done() {
	b.ch <- DoneMsg{}
	close(b.ch)
}

// PlainDisplay renders readout events as timestamped text lines.
type PlainDisplay struct {
	w      io.Writer
	labels map[int]string
}

// Run loops over events, printing each as a text line. Query errors are
// reported and the loop keeps going; only DoneMsg or channel close ends it.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case ReadoutMsg:
				_, _ = fmt.Fprintf(d.w, "[%s] (%d, %d)\n", timestamp(), msg.Pixel.X, msg.Pixel.Y)
			case QueryingMsg:
				// Transient state is TUI-only; ignored in plain text mode.
			case IntensityMsg:
				origin := "fetched"
				if msg.Cached {
					origin = "cached"
				}
				_, _ = fmt.Fprintf(d.w, "[%s] (%d, %d) z%d t%d  %s  (%s)\n",
					timestamp(), msg.Pixel.X, msg.Pixel.Y, msg.Plane.Z, msg.Plane.T,
					formatValues(msg.Values, d.labels), origin)
			case QueryErrorMsg:
				_, _ = fmt.Fprintf(d.w, "[%s] warning: %s\n", timestamp(), msg.Err)
			case DoneMsg:
				return nil
			}
		}
	}
}

// TUIDisplay renders readout events using a Bubble Tea terminal UI.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	labels map[int]string
	w      io.Writer
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	model := NewModel(d.labels)
	p := tea.NewProgram(model, tea.WithOutput(d.w))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan DisplayEvent, 16)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	_, err := p.Run()
	if err != nil {
		close(stop)
		// Fall back to plain text for remaining events from the original channel.
		plain := &PlainDisplay{w: d.w, labels: d.labels}
		return plain.Run(ctx, events)
	}

	return nil
}
