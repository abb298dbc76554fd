package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/slidescope"
	"github.com/smileynet/slidescope/internal/config"
	"github.com/smileynet/slidescope/internal/hover"
	"github.com/smileynet/slidescope/internal/intensity"
	"github.com/smileynet/slidescope/internal/session"
	"github.com/smileynet/slidescope/internal/source"
	"github.com/smileynet/slidescope/internal/tui"
	"github.com/smileynet/slidescope/internal/viewer"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// localSceneDir overrides the embedded scenes when present on disk.
const localSceneDir = ".slidescope/scenes"

// CLI is the top-level command structure for slidescope.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`
	View    ViewCmd          `cmd:"" help:"Open the interactive viewer TUI."`
	Probe   ProbeCmd         `cmd:"" help:"Probe channel intensities at a pixel."`
	Info    InfoCmd          `cmd:"" help:"Show image metadata."`
	Init    InitCmd          `cmd:"" help:"Write a starter config file."`
}

// sourceFlags are the CLI overrides shared by commands that hit an image source.
type sourceFlags struct {
	Source string `help:"Image source (http or synthetic)."`
	Server string `help:"Base URL for the http source."`
}

// loadConfig loads layered config from user and project paths with env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/slidescope/config.yaml"),
		".slidescope/config.yaml",
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overlays source CLI flags onto the config.
func (f sourceFlags) applyFlags(cfg *config.Config) {
	if f.Source != "" {
		cfg.Server.Source = f.Source
	}
	if f.Server != "" {
		cfg.Server.BaseURL = f.Server
	}
}

// newSource builds the configured image source via the registry.
func newSource(cfg *config.Config) (source.Source, error) {
	reg := source.NewRegistry()
	reg.Register("http", func() (source.Source, error) {
		return source.NewHTTPSource(cfg.Server.BaseURL, source.WithTimeout(cfg.Server.Timeout)), nil
	})
	reg.Register("synthetic", func() (source.Source, error) {
		fsys := fs.FS(slidescope.Scenes)
		if info, err := os.Stat(localSceneDir); err == nil && info.IsDir() {
			fsys = os.DirFS(localSceneDir)
		}
		return source.NewSyntheticSource(fsys)
	})
	return reg.NewSource(cfg.Server.Source)
}

// --- View command ---

// ViewCmd opens the interactive viewer TUI.
type ViewCmd struct {
	ImageID int `arg:"" help:"Image ID to view."`
	sourceFlags
	NoRestore bool `help:"Ignore any saved session for this image."`
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// Run builds real dependencies and launches the viewer TUI.
func (v *ViewCmd) Run() error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("view: requires a terminal (TTY)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}
	v.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("view: %w", err)
	}

	src, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}

	store := session.NewFileStore(cfg.Session.BaseDir)
	tracker := hover.NewTracker(
		hover.WithSettleDelay(cfg.Viewer.SettleDelay),
		hover.WithCacheLimit(cfg.Viewer.CacheLimit),
	)

	opts := []viewer.ModelOption{
		viewer.WithTracker(tracker),
		viewer.WithMouseThrottle(cfg.Viewer.MouseThrottle),
		viewer.WithSessionSaver(&sessionSaverAdapter{store: store}),
	}
	if cfg.Session.Restore && !v.NoRestore {
		if sess, found, err := store.Load(v.ImageID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: session load failed: %v\n", err)
		} else if found {
			opts = append(opts, viewer.WithRestore(sess.Z, sess.T, sess.ActiveChannels, sess.Querying))
		}
	}

	m := viewer.NewModel(v.ImageID,
		&sourceLoaderAdapter{src: src},
		&sourceFetcherAdapter{src: src},
		opts...,
	)

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())
	return v.run(true, prog)
}

// run executes the tea program, enabling testable wiring.
func (v *ViewCmd) run(isTTY bool, prog teaRunner) error {
	if !isTTY {
		return fmt.Errorf("view: requires a terminal (TTY)")
	}
	_, err := prog.Run()
	return err
}

// --- Probe command ---

// ProbeCmd fetches channel intensities for one pixel, or follows "x y"
// pairs from stdin with the same settle behavior the viewer uses.
type ProbeCmd struct {
	ImageID int `arg:"" help:"Image ID to probe."`
	X       int `arg:"" optional:"" help:"Pixel x coordinate."`
	Y       int `arg:"" optional:"" help:"Pixel y coordinate."`
	sourceFlags
	Z        int   `help:"Focal plane (default: image's default)." default:"-1"`
	T        int   `help:"Time point (default: image's default)." default:"-1"`
	Channels []int `help:"Channel indices (default: image's active channels)."`
	Follow   bool  `help:"Read \"x y\" pairs from stdin and probe each settled position."`
	NoTUI    bool  `help:"Force plain text output even if stdout is a TTY."`
}

// Run executes the probe command.
func (p *ProbeCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	p.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	src, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	data, err := src.ImageData(ctx, p.ImageID)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	plane := intensity.PlaneKey{Z: data.DefaultZ, T: data.DefaultT}
	if p.Z >= 0 {
		plane.Z = p.Z
	}
	if p.T >= 0 {
		plane.T = p.T
	}
	channels := p.Channels
	if len(channels) == 0 {
		channels = data.ActiveChannels()
	}

	bridge := tui.NewBridge()
	display := tui.NewDisplay(tui.DisplayOptions{
		Writer:     os.Stdout,
		ForcePlain: p.NoTUI,
		Labels:     channelLabels(data),
	})

	displayDone := make(chan error, 1)
	go func() {
		displayDone <- display.Run(context.Background(), bridge.Events())
	}()

	var probeErr error
	if p.Follow {
		probeErr = p.follow(ctx, os.Stdin, src, cfg, data, plane, channels, bridge)
	} else {
		probeErr = p.probeOnce(ctx, src, plane, channels, bridge)
	}

	bridge.Done()
	<-displayDone
	return probeErr
}

// probeOnce fetches one pixel and reports it through the bridge.
func (p *ProbeCmd) probeOnce(ctx context.Context, src source.Source, plane intensity.PlaneKey, channels []int, bridge *tui.Bridge) error {
	px := intensity.PixelKey{X: p.X, Y: p.Y}
	payload, err := src.Intensity(ctx, source.IntensityRequest{
		ImageID:  p.ImageID,
		Plane:    plane,
		Pixel:    px,
		Channels: channels,
	})
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	bridge.Send(tui.IntensityMsg{
		Pixel:  px,
		Plane:  plane,
		Values: payload.Pixels[px],
	})
	return nil
}

// follow reads "x y" pairs from r and drives the hover tracker the same
// way the viewer does: each position must settle before it is fetched,
// and positions answered by the cache never hit the source.
func (p *ProbeCmd) follow(ctx context.Context, r io.Reader, src source.Source, cfg *config.Config, data source.ImageData, plane intensity.PlaneKey, channels []int, bridge *tui.Bridge) error {
	tracker := hover.NewTracker(
		hover.WithSettleDelay(cfg.Viewer.SettleDelay),
		hover.WithCacheLimit(cfg.Viewer.CacheLimit),
	)
	tracker.SetBounds(data.Width, data.Height)
	tracker.SetPlane(plane)
	tracker.SetChannels(channels)
	tracker.Enable()

	lines := make(chan intensity.PixelKey)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			px, ok := parsePixelLine(sc.Text())
			if !ok {
				continue
			}
			select {
			case lines <- px:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	// The tracker is confined to this loop; the settle timer only posts
	// tickets back through the channel.
	settled := make(chan hover.Ticket, 1)
	var timer *time.Timer
	pending := false
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case px, ok := <-lines:
			if !ok {
				// Input ended; let an armed settle timer finish so the
				// final position still gets reported.
				if pending {
					select {
					case ticket := <-settled:
						p.fireAndReport(ctx, tracker, ticket, src, bridge)
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			d := tracker.Move(hover.PointerEvent{Pixel: px})
			switch d.Kind {
			case hover.DecisionOutOfBounds:
				bridge.Send(tui.QueryErrorMsg{Err: fmt.Errorf("pixel (%d, %d) out of bounds", px.X, px.Y)})
			case hover.DecisionReadout:
				bridge.Send(tui.ReadoutMsg{Pixel: px})
			case hover.DecisionCached:
				bridge.Send(tui.IntensityMsg{Pixel: px, Plane: plane, Values: d.Values, Cached: true})
			case hover.DecisionSchedule:
				bridge.Send(tui.QueryingMsg{Pixel: px, Plane: plane})
				if timer != nil {
					timer.Stop()
				}
				ticket := d.Ticket
				pending = true
				timer = time.AfterFunc(d.Delay, func() {
					select {
					case settled <- ticket:
					default:
					}
				})
			}

		case ticket := <-settled:
			pending = false
			p.fireAndReport(ctx, tracker, ticket, src, bridge)
		}
	}
}

// fireAndReport turns a settled ticket into a fetch and reports the result.
// Stale tickets (the cursor moved on) are dropped by the tracker.
func (p *ProbeCmd) fireAndReport(ctx context.Context, tracker *hover.Tracker, ticket hover.Ticket, src source.Source, bridge *tui.Bridge) {
	req, ok := tracker.Fire(ticket)
	if !ok {
		return
	}
	payload, err := src.Intensity(ctx, source.IntensityRequest{
		ImageID:  p.ImageID,
		Plane:    req.Plane,
		Pixel:    req.Pixel,
		Channels: req.Channels,
	})
	if err != nil {
		bridge.Send(tui.QueryErrorMsg{Err: err})
		return
	}
	values, deliver := tracker.Resolve(req, payload)
	if deliver {
		bridge.Send(tui.IntensityMsg{Pixel: req.Pixel, Plane: req.Plane, Values: values})
	}
}

// parsePixelLine parses an "x y" line; comma separators are accepted.
func parsePixelLine(line string) (intensity.PixelKey, bool) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) != 2 {
		return intensity.PixelKey{}, false
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return intensity.PixelKey{}, false
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return intensity.PixelKey{}, false
	}
	return intensity.PixelKey{X: x, Y: y}, true
}

// --- Info command ---

// InfoCmd prints image metadata.
type InfoCmd struct {
	ImageID int `arg:"" help:"Image ID to describe."`
	sourceFlags
}

// Run executes the info command.
func (c *InfoCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	c.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("info: %w", err)
	}

	src, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	data, err := src.ImageData(ctx, c.ImageID)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	return c.run(os.Stdout, src.Name(), data)
}

// run prints the metadata report, enabling testable wiring.
func (c *InfoCmd) run(w io.Writer, sourceName string, data source.ImageData) error {
	_, _ = fmt.Fprintf(w, "%s (image %d, source %s)\n", data.Name, data.ID, sourceName)
	_, _ = fmt.Fprintf(w, "  size: %dx%d  planes: %d  timepoints: %d\n",
		data.Width, data.Height, data.Planes, data.TimePoints)
	_, _ = fmt.Fprintf(w, "  defaults: z%d t%d\n", data.DefaultZ, data.DefaultT)
	for _, ch := range data.Channels {
		marker := "off"
		if ch.Active {
			marker = "on"
		}
		_, _ = fmt.Fprintf(w, "  channel %d: %s #%s [%s]\n", ch.Index, ch.Label, ch.Color, marker)
	}
	return nil
}

// --- Init command ---

// InitCmd writes a starter project config from the embedded template.
type InitCmd struct {
	Force bool `help:"Overwrite an existing config file."`
}

// Run executes the init command.
func (c *InitCmd) Run() error {
	return c.run(os.Stdout, ".slidescope")
}

// run writes the config template into dir, enabling testable wiring.
// Local template overrides under dir/templates win over the embedded copy.
func (c *InitCmd) run(w io.Writer, dir string) error {
	target := dir + "/config.yaml"
	if !c.Force {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("init: %s already exists (use --force to overwrite)", target)
		}
	}

	tmpl := slidescope.OverlayFS(dir+"/templates", slidescope.Templates)
	data, err := fs.ReadFile(tmpl, "config.yaml.template")
	if err != nil {
		return fmt.Errorf("init: reading config template: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	_, _ = fmt.Fprintf(w, "Wrote %s\n", target)
	return nil
}

// --- Adapters ---

// sourceLoaderAdapter wraps a source.Source to implement viewer.ImageLoader.
type sourceLoaderAdapter struct {
	src source.Source
}

func (a *sourceLoaderAdapter) Load(imageID int) (source.ImageData, error) {
	return a.src.ImageData(context.Background(), imageID)
}

// sourceFetcherAdapter wraps a source.Source to implement viewer.IntensityFetcher.
type sourceFetcherAdapter struct {
	src source.Source
}

func (a *sourceFetcherAdapter) Fetch(req source.IntensityRequest) (intensity.Payload, error) {
	return a.src.Intensity(context.Background(), req)
}

// sessionSaverAdapter wraps a session.FileStore to implement viewer.SessionSaver.
type sessionSaverAdapter struct {
	store *session.FileStore
}

func (a *sessionSaverAdapter) Save(imageID, z, t int, active []int, querying bool) error {
	return a.store.Save(session.Session{
		ImageID:        imageID,
		Z:              z,
		T:              t,
		ActiveChannels: active,
		Querying:       querying,
	})
}

// channelLabels maps channel indices to display labels.
func channelLabels(data source.ImageData) map[int]string {
	labels := make(map[int]string, len(data.Channels))
	for _, ch := range data.Channels {
		labels[ch.Index] = ch.Label
	}
	return labels
}

// Exit codes.
const (
	exitSuccess = 0
	exitRuntime = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var te *source.TransportError
	var pe *source.ParseError
	var nf *source.ImageNotFoundError
	if errors.As(err, &te) || errors.As(err, &pe) || errors.As(err, &nf) {
		return exitRuntime
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Vars{"version": version + " " + commit + " " + date})
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
