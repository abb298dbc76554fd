package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smileynet/slidescope/internal/intensity"
)

// defaultTimeout is used when no timeout option is provided.
const defaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20 // 8 MiB

// Verify HTTPSource satisfies Source at compile time.
var _ Source = (*HTTPSource)(nil)

// HTTPSource queries an OMERO-style image server over HTTP. Intensity
// lookups hit `get_intensity/` and metadata hits `imgData/<id>/` under the
// configured base URL.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient sets the underlying HTTP client (used by tests and by
// callers that need custom transports).
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPSource creates an HTTPSource for the given base URL
// (e.g. "http://localhost:8080/webgateway").
func NewHTTPSource(baseURL string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source name.
func (s *HTTPSource) Name() string { return "http" }

// ImageData fetches image metadata from `imgData/<id>/`.
func (s *HTTPSource) ImageData(ctx context.Context, imageID int) (ImageData, error) {
	body, err := s.get(ctx, fmt.Sprintf("%s/imgData/%d/", s.baseURL, imageID))
	if err != nil {
		return ImageData{}, err
	}
	return parseImageData(imageID, body)
}

// Intensity fetches per-channel intensities for one pixel via
// `get_intensity/?image=<id>&z=<z>&t=<t>&x=<x>&y=<y>&c=<channels>`.
func (s *HTTPSource) Intensity(ctx context.Context, req IntensityRequest) (intensity.Payload, error) {
	q := url.Values{}
	q.Set("image", strconv.Itoa(req.ImageID))
	q.Set("z", strconv.Itoa(req.Plane.Z))
	q.Set("t", strconv.Itoa(req.Plane.T))
	q.Set("x", strconv.Itoa(req.Pixel.X))
	q.Set("y", strconv.Itoa(req.Pixel.Y))
	q.Set("c", joinInts(req.Channels))

	body, err := s.get(ctx, s.baseURL+"/get_intensity/?"+q.Encode())
	if err != nil {
		return intensity.Payload{}, err
	}
	return parseIntensity(body)
}

// get performs a GET with the configured timeout and returns the body.
// All fetch-level failures come back as *TransportError.
func (s *HTTPSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{Source: s.Name(), Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Source: s.Name(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Source: s.Name(),
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Source: s.Name(), Err: err}
	}
	return body, nil
}

// rawIntensity mirrors the wire shape of a get_intensity response:
// {"count": N, "pixels": {"x-y": {"channel": value}}}.
type rawIntensity struct {
	Count  int                           `json:"count"`
	Pixels map[string]map[string]float64 `json:"pixels"`
}

// parseIntensity decodes an intensity body into a typed payload. The wire
// count is ignored; the payload count is derived from the pixel map so the
// cache invariants hold against a miscounting server.
func parseIntensity(body []byte) (intensity.Payload, error) {
	var raw rawIntensity
	if err := json.Unmarshal(body, &raw); err != nil {
		return intensity.Payload{}, &ParseError{Source: "http", Reason: err.Error()}
	}
	if raw.Pixels == nil {
		return intensity.Payload{}, &ParseError{Source: "http", Reason: "missing pixels field"}
	}

	pixels := make(map[intensity.PixelKey]intensity.ChannelValues, len(raw.Pixels))
	for key, chans := range raw.Pixels {
		px, err := parsePixelKey(key)
		if err != nil {
			return intensity.Payload{}, &ParseError{Source: "http", Reason: err.Error()}
		}
		vals := make(intensity.ChannelValues, len(chans))
		for chStr, v := range chans {
			ch, err := strconv.Atoi(chStr)
			if err != nil {
				return intensity.Payload{}, &ParseError{
					Source: "http",
					Reason: fmt.Sprintf("invalid channel index %q", chStr),
				}
			}
			vals[ch] = v
		}
		pixels[px] = vals
	}
	return intensity.NewPayload(pixels), nil
}

// parsePixelKey parses the wire's "x-y" pixel key.
func parsePixelKey(key string) (intensity.PixelKey, error) {
	xs, ys, ok := strings.Cut(key, "-")
	if !ok {
		return intensity.PixelKey{}, fmt.Errorf("invalid pixel key %q", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return intensity.PixelKey{}, fmt.Errorf("invalid pixel key %q", key)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return intensity.PixelKey{}, fmt.Errorf("invalid pixel key %q", key)
	}
	return intensity.PixelKey{X: x, Y: y}, nil
}

// rawImageData mirrors the imgData response subset slidescope needs.
type rawImageData struct {
	Meta struct {
		ImageName string `json:"imageName"`
	} `json:"meta"`
	Size struct {
		Width  int `json:"width"`
		Height int `json:"height"`
		Z      int `json:"z"`
		T      int `json:"t"`
		C      int `json:"c"`
	} `json:"size"`
	Channels []struct {
		Label  string `json:"label"`
		Color  string `json:"color"`
		Active bool   `json:"active"`
	} `json:"channels"`
	Rdefs struct {
		DefaultZ int `json:"defaultZ"`
		DefaultT int `json:"defaultT"`
	} `json:"rdefs"`
}

// parseImageData decodes an imgData body into ImageData.
func parseImageData(imageID int, body []byte) (ImageData, error) {
	var raw rawImageData
	if err := json.Unmarshal(body, &raw); err != nil {
		return ImageData{}, &ParseError{Source: "http", Reason: err.Error()}
	}
	if raw.Size.Width <= 0 || raw.Size.Height <= 0 {
		return ImageData{}, &ParseError{Source: "http", Reason: "missing image size"}
	}

	data := ImageData{
		ID:         imageID,
		Name:       raw.Meta.ImageName,
		Width:      raw.Size.Width,
		Height:     raw.Size.Height,
		Planes:     max(raw.Size.Z, 1),
		TimePoints: max(raw.Size.T, 1),
		DefaultZ:   raw.Rdefs.DefaultZ,
		DefaultT:   raw.Rdefs.DefaultT,
	}
	for i, ch := range raw.Channels {
		data.Channels = append(data.Channels, Channel{
			Index:  i,
			Label:  ch.Label,
			Color:  ch.Color,
			Active: ch.Active,
		})
	}
	return data, nil
}

// joinInts renders channel indices as the wire's comma-separated list.
func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
