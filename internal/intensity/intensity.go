// Package intensity implements the bounded two-level cache for per-pixel
// channel intensity values fetched from an image server.
package intensity

// PlaneKey identifies a 2D slice of an image: a focal plane (Z) at a
// time point (T).
type PlaneKey struct {
	Z int
	T int
}

// PixelKey identifies a pixel position in image coordinates.
type PixelKey struct {
	X int
	Y int
}

// ChannelValues maps a channel index to its intensity at one pixel.
type ChannelValues map[int]float64

// Payload is a parsed intensity response for a single plane/time: a set of
// pixels with per-channel values, plus the total number of channel values
// carried. Count is always derived from Pixels by the parser, never taken
// from the wire.
type Payload struct {
	Count  int
	Pixels map[PixelKey]ChannelValues
}

// NewPayload builds a Payload from a pixel map, deriving Count.
func NewPayload(pixels map[PixelKey]ChannelValues) Payload {
	count := 0
	for _, cv := range pixels {
		count += len(cv)
	}
	return Payload{Count: count, Pixels: pixels}
}
