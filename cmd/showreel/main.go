// Command showreel plays a slide deck in the terminal.
//
//	showreel -deck talk.yaml
//	showreel -deck talk.yaml -watch -log showreel.log
//	showreel -deck talk.yaml -export png -out ./frames
//	showreel -deck talk.yaml -export png -out ./frames -baseline ./frames/talk-png-20260301-193000
//
// In the show, arrows and space navigate, a toggles autoplay, e exports
// stills, x exports scene archives and q quits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchellh/go-homedir"

	"github.com/teranos/showreel"
	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/operators"
)

type flags struct {
	deck     string
	start    int
	export   string
	image    string
	out      string
	baseline string
	autoplay time.Duration
	watch    bool
	logPath  string
	debug    bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("showreel", flag.ContinueOnError)
	fs.StringVar(&f.deck, "deck", "", "deck file (.yaml, .yml or .toml)")
	fs.IntVar(&f.start, "start", 1, "first slide to show, counting from 1")
	fs.StringVar(&f.export, "export", "", "export every step as png, webp or archive and exit")
	fs.StringVar(&f.image, "image", "png", "still format of the export key, png or webp")
	fs.StringVar(&f.out, "out", "~/Showreel", "export directory")
	fs.StringVar(&f.baseline, "baseline", "", "after -export, compare the stills against this earlier export")
	fs.DurationVar(&f.autoplay, "autoplay", 0, "advance one step every interval")
	fs.BoolVar(&f.watch, "watch", false, "reload the deck when its file changes")
	fs.StringVar(&f.logPath, "log", "", "write logs to this file")
	fs.BoolVar(&f.debug, "debug", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.deck == "" && fs.NArg() > 0 {
		f.deck = fs.Arg(0)
	}
	if f.deck == "" {
		return f, fmt.Errorf("no deck given")
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "showreel:", err)
		os.Exit(2)
	}
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "showreel:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	logger, closeLog, err := newLogger(f)
	if err != nil {
		return err
	}
	defer closeLog()

	out, err := homedir.Expand(f.out)
	if err != nil {
		return fmt.Errorf("export directory: %w", err)
	}
	image, err := operators.ParseFormat(f.image)
	if err != nil {
		return err
	}

	d, err := deck.Load(f.deck)
	if err != nil {
		return err
	}

	opts := showreel.Options{
		Start:       f.start - 1,
		Autoplay:    f.autoplay,
		ExportDir:   out,
		ImageFormat: image,
		Logger:      logger,
	}
	if f.export != "" {
		format, err := operators.ParseFormat(f.export)
		if err != nil {
			return err
		}
		return exportDeck(d, opts, format, f.baseline)
	}

	show, err := showreel.New(d, opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if f.watch {
		if err := deck.Watch(ctx, f.deck, logger, show.Reload); err != nil {
			return err
		}
	}

	_, runErr := tea.NewProgram(show, tea.WithAltScreen()).Run()

	closeCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := show.Close(closeCtx); err != nil {
		logger.Warn("export did not stop in time", "error", err)
	}
	if len(show.Trips().Trips()) > 0 {
		fmt.Fprintln(os.Stderr, show.Trips().Summary())
	}
	return runErr
}

// exportDeck renders every step without a terminal, driving the loop in
// real time until the export is done or interrupted.
func exportDeck(d *deck.Deck, opts showreel.Options, format operators.Format, baseline string) error {
	opts.Frame = -1
	show, err := showreel.New(d, opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = show.Loop().Run(loopCtx, showreel.DefaultFrame)
	}()
	res, err := show.ExportAndWait(ctx, format)
	stopLoop()
	<-loopDone
	if err != nil {
		return err
	}

	fmt.Printf("exported %d steps to %s\n", len(res.Shots), res.Dir)
	for _, p := range res.Problems {
		fmt.Fprintln(os.Stderr, "  ", p)
	}
	if res.Cancelled {
		return fmt.Errorf("export interrupted")
	}
	if baseline == "" || format == operators.FormatArchive {
		return nil
	}
	cmp, err := operators.Compare(baseline, res.Dir, 0)
	if err != nil {
		return err
	}
	changed := cmp.Changed()
	for _, c := range changed {
		fmt.Printf("  changed %s: %.1f%% of pixels\n", c.File, c.Difference*100)
	}
	if len(changed) > 0 {
		return fmt.Errorf("%d of %d steps differ from %s", len(changed), len(cmp.Steps), baseline)
	}
	return nil
}

// newLogger logs to the -log file. Without one, logs are discarded since
// the terminal belongs to the show.
func newLogger(f flags) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if f.debug {
		level = slog.LevelDebug
	}
	if f.logPath == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := tea.LogToFile(f.logPath, "showreel")
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
	return logger, func() { file.Close() }, nil
}
