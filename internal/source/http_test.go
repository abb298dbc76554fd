package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smileynet/slidescope/internal/intensity"
)

func TestHTTPSource_IntensityBuildsQuery(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"path":  r.URL.Path,
			"image": q.Get("image"),
			"z":     q.Get("z"),
			"t":     q.Get("t"),
			"x":     q.Get("x"),
			"y":     q.Get("y"),
			"c":     q.Get("c"),
		}
		_, _ = w.Write([]byte(`{"count":2,"pixels":{"5-5":{"0":12.5,"1":7.0}}}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL)
	p, err := s.Intensity(context.Background(), IntensityRequest{
		ImageID:  42,
		Plane:    intensity.PlaneKey{Z: 3, T: 1},
		Pixel:    intensity.PixelKey{X: 5, Y: 5},
		Channels: []int{0, 1},
	})
	if err != nil {
		t.Fatalf("Intensity() error: %v", err)
	}

	want := map[string]string{
		"path": "/get_intensity/", "image": "42", "z": "3", "t": "1",
		"x": "5", "y": "5", "c": "0,1",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("%s = %q, want %q", k, gotQuery[k], v)
		}
	}

	if p.Count != 2 {
		t.Errorf("count = %d, want 2", p.Count)
	}
	got := p.Pixels[intensity.PixelKey{X: 5, Y: 5}]
	if got[0] != 12.5 || got[1] != 7.0 {
		t.Errorf("values = %v, want {0:12.5 1:7.0}", got)
	}
}

func TestHTTPSource_IntensityCountDerivedNotTrusted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Server miscounts: says 99 but carries 2 values.
		_, _ = w.Write([]byte(`{"count":99,"pixels":{"5-5":{"0":1.0,"1":2.0}}}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL)
	p, err := s.Intensity(context.Background(), IntensityRequest{ImageID: 1, Channels: []int{0, 1}})
	if err != nil {
		t.Fatalf("Intensity() error: %v", err)
	}
	if p.Count != 2 {
		t.Errorf("count = %d, want derived 2", p.Count)
	}
}

func TestHTTPSource_IntensityParseFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>login</html>`},
		{"missing pixels", `{"count":2}`},
		{"bad pixel key", `{"count":1,"pixels":{"nope":{"0":1.0}}}`},
		{"bad channel index", `{"count":1,"pixels":{"5-5":{"zero":1.0}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := NewHTTPSource(srv.URL)
			_, err := s.Intensity(context.Background(), IntensityRequest{ImageID: 1, Channels: []int{0}})

			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
		})
	}
}

func TestHTTPSource_IntensityTransportFailures(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		s := NewHTTPSource(srv.URL)
		_, err := s.Intensity(context.Background(), IntensityRequest{ImageID: 1, Channels: []int{0}})

		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("error = %v, want *TransportError", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close() // dead endpoint

		s := NewHTTPSource(srv.URL)
		_, err := s.Intensity(context.Background(), IntensityRequest{ImageID: 1, Channels: []int{0}})

		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("error = %v, want *TransportError", err)
		}
	})
}

func TestHTTPSource_ImageData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/imgData/7/" {
			t.Errorf("path = %q, want /imgData/7/", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"meta": {"imageName": "kidney.svs"},
			"size": {"width": 2048, "height": 1024, "z": 5, "t": 3, "c": 2},
			"channels": [
				{"label": "DAPI", "color": "0000FF", "active": true},
				{"label": "GFP", "color": "00FF00", "active": false}
			],
			"rdefs": {"defaultZ": 2, "defaultT": 1}
		}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL)
	data, err := s.ImageData(context.Background(), 7)
	if err != nil {
		t.Fatalf("ImageData() error: %v", err)
	}

	if data.Name != "kidney.svs" {
		t.Errorf("name = %q, want kidney.svs", data.Name)
	}
	if data.Width != 2048 || data.Height != 1024 {
		t.Errorf("size = %dx%d, want 2048x1024", data.Width, data.Height)
	}
	if data.Planes != 5 || data.TimePoints != 3 {
		t.Errorf("planes/timepoints = %d/%d, want 5/3", data.Planes, data.TimePoints)
	}
	if data.DefaultZ != 2 || data.DefaultT != 1 {
		t.Errorf("defaults = %d/%d, want 2/1", data.DefaultZ, data.DefaultT)
	}
	if len(data.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(data.Channels))
	}
	if data.Channels[0].Label != "DAPI" || !data.Channels[0].Active {
		t.Errorf("channel 0 = %+v, want active DAPI", data.Channels[0])
	}
	if got := data.ActiveChannels(); len(got) != 1 || got[0] != 0 {
		t.Errorf("active channels = %v, want [0]", got)
	}
}

func TestHTTPSource_ImageDataMissingSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"imageName":"x"}}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL)
	_, err := s.ImageData(context.Background(), 1)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestJoinInts(t *testing.T) {
	if got := joinInts([]int{0, 2, 5}); got != "0,2,5" {
		t.Errorf("joinInts = %q, want 0,2,5", got)
	}
	if got := joinInts(nil); got != "" {
		t.Errorf("joinInts(nil) = %q, want empty", got)
	}
}
