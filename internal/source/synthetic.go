package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smileynet/slidescope/internal/intensity"
)

// Verify SyntheticSource satisfies Source at compile time.
var _ Source = (*SyntheticSource)(nil)

// Scene describes a procedural image for the synthetic source. Channel
// intensities are computed from the pattern function, so hovering works
// offline and tests get deterministic values.
type Scene struct {
	Name       string         `yaml:"name"`
	Width      int            `yaml:"width"`
	Height     int            `yaml:"height"`
	Planes     int            `yaml:"planes"`
	TimePoints int            `yaml:"timepoints"`
	Channels   []SceneChannel `yaml:"channels"`
}

// SceneChannel is one procedural channel of a scene.
type SceneChannel struct {
	Label   string  `yaml:"label"`
	Color   string  `yaml:"color"`
	Active  bool    `yaml:"active"`
	Pattern string  `yaml:"pattern"` // gradient-x | gradient-y | radial | checker | constant
	Scale   float64 `yaml:"scale"`
}

// validPatterns lists the supported procedural patterns.
var validPatterns = map[string]bool{
	"gradient-x": true,
	"gradient-y": true,
	"radial":     true,
	"checker":    true,
	"constant":   true,
}

// Validate checks a scene is renderable.
func (s Scene) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scene: name cannot be empty")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("scene %q: width and height must be positive", s.Name)
	}
	if len(s.Channels) == 0 {
		return fmt.Errorf("scene %q: needs at least one channel", s.Name)
	}
	for i, ch := range s.Channels {
		if !validPatterns[ch.Pattern] {
			return fmt.Errorf("scene %q: channel %d: unknown pattern %q", s.Name, i, ch.Pattern)
		}
		if ch.Scale <= 0 {
			return fmt.Errorf("scene %q: channel %d: scale must be positive", s.Name, i)
		}
	}
	return nil
}

// SyntheticSource serves procedural scenes loaded from YAML files. Image IDs
// are 1-based positions in file-name order, so embedded scene sets produce
// stable IDs.
type SyntheticSource struct {
	scenes []Scene
}

// NewSyntheticSource loads every .yaml scene under fsys.
func NewSyntheticSource(fsys fs.FS) (*SyntheticSource, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("source: synthetic: reading scenes: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("source: synthetic: no scenes found")
	}

	src := &SyntheticSource{}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("source: synthetic: reading %s: %w", name, err)
		}
		var scene Scene
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&scene); err != nil {
			return nil, fmt.Errorf("source: synthetic: parsing %s: %w", name, err)
		}
		if err := scene.Validate(); err != nil {
			return nil, fmt.Errorf("source: synthetic: %s: %w", name, err)
		}
		src.scenes = append(src.scenes, scene)
	}
	return src, nil
}

// Name returns the source name.
func (s *SyntheticSource) Name() string { return "synthetic" }

// Scenes returns the loaded scenes in ID order.
func (s *SyntheticSource) Scenes() []Scene {
	return s.scenes
}

// ImageData returns metadata for the scene with the given 1-based ID.
func (s *SyntheticSource) ImageData(_ context.Context, imageID int) (ImageData, error) {
	scene, err := s.scene(imageID)
	if err != nil {
		return ImageData{}, err
	}

	data := ImageData{
		ID:         imageID,
		Name:       scene.Name,
		Width:      scene.Width,
		Height:     scene.Height,
		Planes:     max(scene.Planes, 1),
		TimePoints: max(scene.TimePoints, 1),
	}
	for i, ch := range scene.Channels {
		data.Channels = append(data.Channels, Channel{
			Index:  i,
			Label:  ch.Label,
			Color:  ch.Color,
			Active: ch.Active,
		})
	}
	return data, nil
}

// Intensity computes the requested channel values at the requested pixel.
func (s *SyntheticSource) Intensity(_ context.Context, req IntensityRequest) (intensity.Payload, error) {
	scene, err := s.scene(req.ImageID)
	if err != nil {
		return intensity.Payload{}, err
	}

	px := req.Pixel
	if px.X < 0 || px.Y < 0 || px.X >= scene.Width || px.Y >= scene.Height {
		return intensity.Payload{}, &TransportError{
			Source: s.Name(),
			Err:    fmt.Errorf("pixel (%d, %d) outside %dx%d", px.X, px.Y, scene.Width, scene.Height),
		}
	}

	vals := make(intensity.ChannelValues, len(req.Channels))
	for _, ch := range req.Channels {
		if ch < 0 || ch >= len(scene.Channels) {
			continue
		}
		vals[ch] = scene.value(ch, req.Plane, px)
	}
	return intensity.NewPayload(map[intensity.PixelKey]intensity.ChannelValues{px: vals}), nil
}

// scene resolves a 1-based image ID.
func (s *SyntheticSource) scene(imageID int) (Scene, error) {
	if imageID < 1 || imageID > len(s.scenes) {
		return Scene{}, &ImageNotFoundError{Source: s.Name(), ImageID: imageID}
	}
	return s.scenes[imageID-1], nil
}

// value computes the deterministic intensity for one channel at one pixel.
// The base pattern is modulated by plane and time so stepping z/t visibly
// changes values.
func (scene Scene) value(ch int, plane intensity.PlaneKey, px intensity.PixelKey) float64 {
	c := scene.Channels[ch]

	var base float64
	switch c.Pattern {
	case "gradient-x":
		base = float64(px.X) / float64(max(scene.Width-1, 1))
	case "gradient-y":
		base = float64(px.Y) / float64(max(scene.Height-1, 1))
	case "radial":
		cx := float64(scene.Width-1) / 2
		cy := float64(scene.Height-1) / 2
		dist := math.Hypot(float64(px.X)-cx, float64(px.Y)-cy)
		maxDist := math.Hypot(cx, cy)
		if maxDist > 0 {
			base = 1 - dist/maxDist
		} else {
			base = 1
		}
	case "checker":
		if (px.X/8+px.Y/8)%2 == 0 {
			base = 1
		}
	case "constant":
		base = 1
	}

	modulation := 1 + 0.1*float64(plane.Z) + 0.05*float64(plane.T)
	return math.Round(base*c.Scale*modulation*100) / 100
}
