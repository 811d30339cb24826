// Package operators exports a show step by step: every (slide, step) pair
// becomes a still frame or a scene archive, and an HTML contact sheet ties
// the export together.
package operators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/teranos/showreel/presenter"
	"github.com/teranos/showreel/runloop"
	"github.com/teranos/showreel/trip"
)

// DefaultPause is the wait between two captures.
const DefaultPause = 100 * time.Millisecond

// ErrBusy is returned when an export is already running.
var ErrBusy = errors.New("export already running")

// Config configures an Exporter.
type Config struct {
	Format Format
	Dir    string
	Title  string // contact sheet heading
	// Index, when set, is the directory whose index.html lists every run.
	// It is rewritten after each export.
	Index  string
	Pause  time.Duration
	Frame  FrameConfig
	Logger *slog.Logger
	// Trips receives capture failures. Nil uses the controller's handler.
	Trips *trip.Handler
}

// Result describes a finished export.
type Result struct {
	Dir       string
	Format    Format
	Started   time.Time
	Duration  time.Duration
	Shots     []Shot
	Cancelled bool
	Problems  []string
}

// Exporter walks a show from the first step to the last off the loop
// goroutine, hopping onto the loop for every navigation and capture.
type Exporter struct {
	loop   *runloop.Loop
	ctl    *presenter.Controller
	view   func() string
	cfg    Config
	log    *slog.Logger
	trips  *trip.Handler
	frames *FrameStage

	cancel  atomic.Bool
	running atomic.Bool
}

// NewExporter prepares an export of ctl. view renders the terminal view and
// is called on the loop; it may be nil for archive exports.
func NewExporter(loop *runloop.Loop, ctl *presenter.Controller, view func() string, cfg Config) *Exporter {
	if cfg.Format == "" {
		cfg.Format = FormatPNG
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.Frame.Width == 0 {
		cfg.Frame = DefaultFrameConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trips := cfg.Trips
	if trips == nil {
		trips = ctl.Trips()
	}
	return &Exporter{
		loop:   loop,
		ctl:    ctl,
		view:   view,
		cfg:    cfg,
		log:    logger.With("component", "export"),
		trips:  trips,
		frames: NewFrameStage(cfg.Frame),
	}
}

// Running reports whether an export is in progress.
func (e *Exporter) Running() bool {
	return e.running.Load()
}

// Cancel asks a running export to stop after the current capture.
func (e *Exporter) Cancel() {
	e.cancel.Store(true)
}

// Start runs the export on a new goroutine and calls done with the result.
// It reports false when an export is already running.
func (e *Exporter) Start(ctx context.Context, done func(*Result, error)) bool {
	if !e.running.CompareAndSwap(false, true) {
		return false
	}
	e.cancel.Store(false)
	go func() {
		defer e.running.Store(false)
		res, err := e.run(ctx)
		if done != nil {
			done(res, err)
		}
	}()
	return true
}

// Run exports synchronously. It must not be called from the loop.
func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)
	e.cancel.Store(false)
	return e.run(ctx)
}

func (e *Exporter) run(ctx context.Context) (*Result, error) {
	res := &Result{Dir: e.cfg.Dir, Format: e.cfg.Format, Started: time.Now()}
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		t := trip.NewFall(trip.KindExport, "create export directory", err).With("dir", e.cfg.Dir)
		e.trips.Record(t)
		return res, t
	}
	e.log.Info("export started", "dir", e.cfg.Dir, "format", e.cfg.Format)

	var slides int
	e.loop.Sync(func() { slides = e.ctl.SlideCount() })

walk:
	for slide := 0; slide < slides; slide++ {
		var steps int
		var kind string
		e.loop.Sync(func() {
			steps = e.ctl.StepCount(slide)
			if d, ok := e.ctl.Descriptor(slide); ok {
				kind = d.Entry.Type
			}
		})
		if steps == 0 {
			e.fail(res, trip.NewStumble(trip.KindExport, "slide could not be instantiated, skipping", nil).At(slide, 0))
			continue
		}
		for step := 0; step < steps; step++ {
			if !e.trips.ShouldContinue() {
				e.log.Warn("export stopped by trip policy", "summary", e.trips.Summary())
				break walk
			}
			if e.stopped(ctx) {
				res.Cancelled = true
				break walk
			}
			shot, ok := e.capture(slide, step, res)
			if !ok {
				// the slide did not come up; its later steps cannot either
				break
			}
			shot.Type = kind
			res.Shots = append(res.Shots, shot)
			e.pause(ctx)
		}
	}

	res.Duration = time.Since(res.Started)
	if err := WriteSheet(e.cfg.Dir, e.cfg.Title, res); err != nil {
		e.fail(res, trip.New(trip.KindExport, "write contact sheet", err))
	}
	if e.cfg.Index != "" {
		if err := WriteIndex(e.cfg.Index); err != nil {
			e.fail(res, trip.NewStumble(trip.KindExport, "write export index", err))
		}
	}
	e.log.Info("export finished",
		"dir", e.cfg.Dir, "shots", len(res.Shots), "cancelled", res.Cancelled,
		"problems", len(res.Problems), "duration", res.Duration)
	return res, nil
}

// capture navigates to (slide, step), settles the scene and writes one
// file. It reports false when the show did not reach the step.
func (e *Exporter) capture(slide, step int, res *Result) (Shot, bool) {
	shot := Shot{Slide: slide, Step: step, File: fmt.Sprintf("slide_%02d_step_%02d.%s", slide, step, e.cfg.Format.Ext())}

	var (
		reached bool
		archive bytes.Buffer
		err     error
	)
	e.loop.Sync(func() {
		if step == 0 {
			e.ctl.GoToSlide(slide)
		} else {
			e.ctl.AdvanceStep()
		}
		e.ctl.Settle()
		cur, curStep := e.ctl.State()
		if reached = cur == slide && curStep == step; !reached {
			return
		}
		if e.view != nil {
			shot.View = e.view()
		}
		if e.cfg.Format == FormatArchive {
			g := e.ctl.Graph()
			err = g.WriteArchive(&archive, g.Root(), fmt.Sprintf("slide %d step %d", slide, step))
		}
	})
	if !reached {
		e.fail(res, trip.NewStumble(trip.KindExport, "step not reached, skipping slide", nil).At(slide, step))
		return shot, false
	}

	path := filepath.Join(e.cfg.Dir, shot.File)
	if e.cfg.Format == FormatArchive {
		if err == nil {
			err = os.WriteFile(path, archive.Bytes(), 0o644)
		}
	} else {
		err = e.frames.CaptureFrame(shot.View, path, e.cfg.Format)
	}
	if err != nil {
		e.fail(res, trip.New(trip.KindExport, "write "+shot.File, err).At(slide, step))
		// keep walking; the sheet still lists the view
	}
	e.log.Debug("captured", "slide", slide, "step", step, "file", shot.File)
	return shot, true
}

func (e *Exporter) fail(res *Result, t *trip.Trip) {
	e.trips.Record(t)
	res.Problems = append(res.Problems, t.Error())
}

func (e *Exporter) stopped(ctx context.Context) bool {
	return e.cancel.Load() || ctx.Err() != nil
}

// pause waits between captures so the loop keeps serving frames.
func (e *Exporter) pause(ctx context.Context) {
	if e.cfg.Pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.Pause):
	}
}
