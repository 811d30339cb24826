// Package showreel plays a deck of 3D slides in the terminal.
//
// A Show is a bubbletea model. It owns the run loop, the scene graph and
// the presentation controller, turns key presses into navigation and
// drives the loop from frame ticks:
//
//	d, _ := deck.Load("talk.yaml")
//	show, err := showreel.New(d, showreel.Options{})
//	if err != nil {
//		return err
//	}
//	_, err = tea.NewProgram(show, tea.WithAltScreen()).Run()
//
// Every export runs on its own goroutine and reaches the show through the
// loop, so the program keeps animating while frames are written.
package showreel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/operators"
	"github.com/teranos/showreel/presenter"
	"github.com/teranos/showreel/runloop"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/slides"
	"github.com/teranos/showreel/trip"
)

// Defaults of Options.
const (
	DefaultFrame            = time.Second / 30
	DefaultAutoplayInterval = 5 * time.Second
)

// Options configures a Show. Zero values pick the defaults.
type Options struct {
	// Start is the slide shown first.
	Start int
	// Autoplay starts autoplay at this interval when positive.
	Autoplay time.Duration
	// AutoplayInterval is used when autoplay is toggled by key.
	AutoplayInterval time.Duration
	// Frame is the animation frame interval. Negative disables frame ticks;
	// the loop then only moves when a driver sends frames.
	Frame time.Duration
	// ExportDir is where exports are written, one subdirectory per run.
	ExportDir string
	// ImageFormat is the still format of the image export key.
	ImageFormat operators.Format
	// ExportPause is the wait between two captured steps.
	ExportPause   time.Duration
	Width, Height int
	Registry      *presenter.Registry
	Logger        *slog.Logger
	// Now is the clock the loop starts from and wake-ups advance to.
	Now func() time.Time
}

// Show is the terminal slide show.
type Show struct {
	opts  Options
	log   *slog.Logger
	trips *trip.Handler
	reg   *presenter.Registry
	deck  *deck.Deck

	loop   *runloop.Loop
	g      *scene.Graph
	ctl    *presenter.Controller
	screen *Screen

	exporter *operators.Exporter
	status   string
	quitting bool
}

type (
	frameMsg time.Time
	wakeMsg  struct{}
)

// New compiles d and builds a show positioned on opts.Start. Compile errors
// are returned as *deck.ConfigError.
func New(d *deck.Deck, opts Options) (*Show, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Frame == 0 {
		opts.Frame = DefaultFrame
	}
	if opts.AutoplayInterval <= 0 {
		opts.AutoplayInterval = DefaultAutoplayInterval
	}
	if opts.ImageFormat == "" {
		opts.ImageFormat = operators.FormatPNG
	}
	if opts.ExportPause == 0 {
		opts.ExportPause = operators.DefaultPause
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 80, 24
	}
	if opts.Registry == nil {
		opts.Registry = slides.NewRegistry()
	}

	descs, err := opts.Registry.Compile(d.Entries)
	if err != nil {
		return nil, err
	}

	s := &Show{
		opts:  opts,
		log:   opts.Logger,
		trips: trip.NewHandler("show", opts.Logger, trip.DefaultPolicy()),
		reg:   opts.Registry,
		deck:  d,
		loop:  runloop.New(opts.Now()),
	}
	s.g = scene.New(s.loop.Now)
	s.screen = NewScreen(opts.Width, opts.Height, filepath.Dir(d.Path))
	s.ctl = presenter.New(s.g, s.loop, presenter.NewStage(s.g), descs, presenter.Options{
		Logger:   opts.Logger,
		Trips:    s.trips,
		Renderer: s.screen,
	})

	start := min(max(opts.Start, 0), len(descs)-1)
	s.ctl.GoToSlide(start)
	if opts.Autoplay > 0 {
		s.opts.AutoplayInterval = opts.Autoplay
		s.ctl.ToggleAutoplay(opts.Autoplay)
	}
	return s, nil
}

// Loop returns the run loop. Other goroutines reach the show through its
// Post and Sync.
func (s *Show) Loop() *runloop.Loop { return s.loop }

// Controller returns the presentation controller. Loop goroutine only.
func (s *Show) Controller() *presenter.Controller { return s.ctl }

// Trips returns the handler runtime failures are recorded on.
func (s *Show) Trips() *trip.Handler { return s.trips }

// Logger returns the show's logger.
func (s *Show) Logger() *slog.Logger { return s.log }

// FrameMsg is the message that advances a show's clock to t. Shows built
// with a negative Options.Frame only move when sent one.
func FrameMsg(t time.Time) tea.Msg { return frameMsg(t) }

func (s *Show) Init() tea.Cmd {
	return tea.Batch(s.frame(), s.waitWake())
}

func (s *Show) frame() tea.Cmd {
	if s.opts.Frame < 0 {
		return nil
	}
	return tea.Tick(s.opts.Frame, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (s *Show) waitWake() tea.Cmd {
	wake := s.loop.Wake()
	return func() tea.Msg {
		<-wake
		return wakeMsg{}
	}
}

func (s *Show) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.screen.Resize(msg.Width, msg.Height)
		return s, nil

	case frameMsg:
		s.loop.Advance(time.Time(msg))
		return s, s.frame()

	case wakeMsg:
		s.loop.Advance(s.opts.Now())
		return s, s.waitWake()

	case tea.KeyMsg:
		return s, s.handleKey(msg)
	}
	return s, nil
}

func (s *Show) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		if s.exporter != nil {
			s.exporter.Cancel()
		}
		s.quitting = true
		return tea.Quit
	case "right", " ", "enter", "n", "pgdown":
		s.ctl.AdvanceStep()
	case "left", "p", "pgup":
		s.ctl.PreviousSlide()
	case "r", "home":
		s.ctl.Restart()
	case "end":
		s.ctl.GoToSlide(s.ctl.SlideCount() - 1)
	case "a":
		if s.ctl.ToggleAutoplay(s.opts.AutoplayInterval) {
			s.status = "autoplay every " + s.opts.AutoplayInterval.String()
		} else {
			s.status = "autoplay off"
		}
	case "e":
		s.Export(s.opts.ImageFormat)
	case "x":
		s.Export(operators.FormatArchive)
	case "esc":
		if s.exporter != nil && s.exporter.Running() {
			s.exporter.Cancel()
			s.status = "cancelling export"
		}
	default:
		// 1-9 jump to a slide
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= 9 {
			s.ctl.GoToSlide(n - 1)
		}
	}
	return nil
}

// Export starts exporting every step in format on a background goroutine.
// It reports false when an export is already running. Loop goroutine only.
func (s *Show) Export(format operators.Format) bool {
	if s.exporter != nil && s.exporter.Running() {
		s.status = "export already running"
		return false
	}
	s.exporter = s.newExporter(format)
	s.status = "exporting"
	return s.exporter.Start(context.Background(), func(res *operators.Result, err error) {
		s.loop.Post(func() {
			switch {
			case err != nil:
				s.status = "export failed: " + err.Error()
			case res.Cancelled:
				s.status = fmt.Sprintf("export cancelled after %d steps", len(res.Shots))
			default:
				s.status = fmt.Sprintf("exported %d steps to %s", len(res.Shots), res.Dir)
			}
		})
	})
}

// ExportAndWait exports every step in format and returns when done. It is
// called off the loop while something else drives it, as the headless
// export does with Loop().Run.
func (s *Show) ExportAndWait(ctx context.Context, format operators.Format) (*operators.Result, error) {
	var e *operators.Exporter
	s.loop.Sync(func() {
		e = s.newExporter(format)
		s.exporter = e
	})
	return e.Run(ctx)
}

func (s *Show) newExporter(format operators.Format) *operators.Exporter {
	name := "showreel"
	if s.deck.Path != "" {
		name = strings.TrimSuffix(filepath.Base(s.deck.Path), filepath.Ext(s.deck.Path))
	}
	dir := filepath.Join(s.opts.ExportDir, fmt.Sprintf("%s-%s-%s", name, format, s.opts.Now().Format("20060102-150405")))
	w, h := s.screen.Size()
	frame := operators.DefaultFrameConfig()
	frame.Width, frame.Height = w, h
	return operators.NewExporter(s.loop, s.ctl, s.Render, operators.Config{
		Format: format,
		Dir:    dir,
		Title:  s.title(),
		Index:  s.opts.ExportDir,
		Pause:  s.opts.ExportPause,
		Frame:  frame,
		Logger: s.log,
		Trips:  s.trips,
	})
}

// Exporting reports whether an export is running.
func (s *Show) Exporting() bool {
	return s.exporter != nil && s.exporter.Running()
}

// Reload compiles d and swaps it in on the loop. Safe to call from any
// goroutine; a deck that fails to compile is rejected and the show keeps
// playing the old one.
func (s *Show) Reload(d *deck.Deck, loadErr error) {
	if loadErr == nil {
		descs, err := s.reg.Compile(d.Entries)
		if err == nil {
			s.loop.Post(func() {
				s.deck = d
				s.ctl.Replace(descs)
				s.status = "deck reloaded"
			})
			return
		}
		loadErr = err
	}
	s.trips.Record(trip.New(trip.KindDeck, "reload deck", loadErr))
	s.loop.Post(func() {
		s.status = "reload failed: " + loadErr.Error()
	})
}

// Close stops a running export and keeps the loop turning until it has
// wound down or ctx is done. Call it after the program has exited.
func (s *Show) Close(ctx context.Context) error {
	exp := s.exporter
	if exp == nil || !exp.Running() {
		return nil
	}
	exp.Cancel()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for exp.Running() && ctx.Err() == nil {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()
	err := s.loop.Run(ctx, 10*time.Millisecond)
	if !exp.Running() {
		return nil
	}
	return err
}

func (s *Show) title() string {
	if s.deck.Title != "" {
		return s.deck.Title
	}
	return "Showreel"
}

func (s *Show) View() string {
	if s.quitting {
		return ""
	}
	return s.Render()
}

// Render draws the current frame. Loop goroutine only.
func (s *Show) Render() string {
	return s.screen.Render(s.ctl, s.StatusLine())
}

// StatusLine is the bottom row of the frame. Loop goroutine only.
func (s *Show) StatusLine() string {
	slide, step := s.ctl.State()
	parts := []string{s.title()}
	if slide >= 0 {
		kind := ""
		if d, ok := s.ctl.Descriptor(slide); ok {
			kind = d.Entry.Type
		}
		parts = append(parts,
			fmt.Sprintf("slide %d/%d", slide+1, s.ctl.SlideCount()),
			fmt.Sprintf("step %d/%d", step+1, s.ctl.StepCount(slide)),
			kind)
	}
	if s.ctl.Autoplaying() {
		parts = append(parts, "autoplay")
	}
	if s.status != "" {
		parts = append(parts, s.status)
	}
	return " " + strings.Join(parts, " · ")
}
