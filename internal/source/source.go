// Package source abstracts image servers behind a common interface.
package source

import (
	"context"
	"fmt"

	"github.com/smileynet/slidescope/internal/intensity"
)

// Channel describes one imaging channel of an image.
type Channel struct {
	Index  int
	Label  string
	Color  string // hex color without '#', e.g. "FF0000"
	Active bool
}

// ImageData is the metadata for one image: dimensions, plane/time extents,
// and channel descriptions.
type ImageData struct {
	ID         int
	Name       string
	Width      int
	Height     int
	Planes     int // number of focal planes (Z sections)
	TimePoints int // number of time points
	DefaultZ   int
	DefaultT   int
	Channels   []Channel
}

// ActiveChannels returns the indices of channels marked active.
func (d ImageData) ActiveChannels() []int {
	var active []int
	for _, ch := range d.Channels {
		if ch.Active {
			active = append(active, ch.Index)
		}
	}
	return active
}

// IntensityRequest asks for per-channel intensities at one pixel of one
// plane/time of an image.
type IntensityRequest struct {
	ImageID  int
	Plane    intensity.PlaneKey
	Pixel    intensity.PixelKey
	Channels []int
}

// Source is the minimal interface an image backend must satisfy.
type Source interface {
	Name() string
	ImageData(ctx context.Context, imageID int) (ImageData, error)
	Intensity(ctx context.Context, req IntensityRequest) (intensity.Payload, error)
}

// TransportError indicates a fetch-level failure against a source.
type TransportError struct {
	Source string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("source: %s: %s", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError indicates a response body that could not be decoded into the
// expected shape. The cache is never touched when a ParseError occurs.
type ParseError struct {
	Source string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("source: %s: parse: %s", e.Source, e.Reason)
}

// ImageNotFoundError indicates the source has no image with the given ID.
type ImageNotFoundError struct {
	Source  string
	ImageID int
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("source: %s: image %d not found", e.Source, e.ImageID)
}
