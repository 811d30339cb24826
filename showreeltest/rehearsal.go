// Package showreeltest drives a showreel.Show headlessly from tests.
package showreeltest

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/showreel"
	"github.com/teranos/showreel/operators"
	"github.com/teranos/showreel/trip"
)

// Action records one thing a rehearsal did.
type Action struct {
	Timestamp time.Time
	Type      string // "key", "advance", "settle", "expect"
	Details   string
}

// RehearsalResult sums up a rehearsal.
type RehearsalResult struct {
	Actions    []Action
	Success    bool
	Duration   time.Duration
	TripReport string
}

// Rehearsal runs a Show inside a headless bubbletea program and drives it
// with key presses and a manual clock. Failed expectations are recorded as
// trips and reported to t instead of stopping the rehearsal.
//
//	result := showreeltest.NewRehearsal(t, show).
//		Start().
//		Press("right").
//		Advance(2 * time.Second).
//		ExpectSlide(1, 0).
//		ExpectViewContains("Chapter 1").
//		Stop()
type Rehearsal struct {
	t       *testing.T
	show    *showreel.Show
	program *tea.Program
	done    chan struct{}

	now     time.Time
	timeout time.Duration
	started time.Time
	actions []Action
	trips   *trip.Handler
	failed  bool
}

// NewRehearsal prepares a rehearsal of show. The show should be built with
// a negative Options.Frame so only the rehearsal moves the clock.
func NewRehearsal(t *testing.T, show *showreel.Show) *Rehearsal {
	return &Rehearsal{
		t:       t,
		show:    show,
		now:     show.Loop().Now(),
		timeout: 5 * time.Second,
		trips:   trip.NewHandler("rehearsal", show.Logger(), trip.DefaultPolicy()),
	}
}

// WithTimeout bounds how long any single hop onto the program may take.
func (r *Rehearsal) WithTimeout(d time.Duration) *Rehearsal {
	r.timeout = d
	return r
}

// Start runs the program on its own goroutine.
func (r *Rehearsal) Start() *Rehearsal {
	if r.program != nil {
		return r
	}
	r.started = time.Now()
	r.program = tea.NewProgram(r.show,
		tea.WithoutRenderer(),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		if _, err := r.program.Run(); err != nil {
			r.record(trip.NewFall(trip.KindRehearsal, "program stopped", err))
		}
	}()
	r.sync(func() {})
	return r
}

// sync runs fn on the show's loop, failing the rehearsal when the program
// does not get to it within the timeout.
func (r *Rehearsal) sync(fn func()) bool {
	done := make(chan struct{})
	go func() {
		r.show.Loop().Sync(fn)
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(r.timeout):
		r.record(trip.NewFall(trip.KindRehearsal, "loop did not respond", nil).With("timeout", r.timeout))
		return false
	}
}

var namedKeys = map[string]tea.KeyType{
	"right":  tea.KeyRight,
	"left":   tea.KeyLeft,
	"enter":  tea.KeyEnter,
	"space":  tea.KeySpace,
	"home":   tea.KeyHome,
	"end":    tea.KeyEnd,
	"esc":    tea.KeyEsc,
	"pgup":   tea.KeyPgUp,
	"pgdown": tea.KeyPgDown,
}

// Press sends each key and waits until the show has handled it. Keys are
// named ("right", "space") or single characters ("a", "3").
func (r *Rehearsal) Press(keys ...string) *Rehearsal {
	for _, k := range keys {
		msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		if kt, ok := namedKeys[k]; ok {
			msg = tea.KeyMsg{Type: kt}
		}
		r.program.Send(msg)
		// Send returns once the program took the message; the hop onto the
		// loop queues behind its update
		r.sync(func() {})
		r.action("key", k)
	}
	return r
}

// Advance moves the show's clock forward by d in one frame.
func (r *Rehearsal) Advance(d time.Duration) *Rehearsal {
	r.now = r.now.Add(d)
	r.program.Send(showreel.FrameMsg(r.now))
	r.sync(func() {})
	r.action("advance", d.String())
	return r
}

// Settle finishes every running animation.
func (r *Rehearsal) Settle() *Rehearsal {
	r.sync(func() { r.show.Controller().Settle() })
	r.action("settle", "")
	return r
}

// State returns the controller's slide and step.
func (r *Rehearsal) State() (slide, step int) {
	r.sync(func() { slide, step = r.show.Controller().State() })
	return slide, step
}

// View returns the current frame without escape sequences.
func (r *Rehearsal) View() string {
	var v string
	r.sync(func() { v = r.show.Render() })
	return operators.StripANSI(v)
}

// ExpectSlide checks the controller is on slide, step.
func (r *Rehearsal) ExpectSlide(slide, step int) *Rehearsal {
	gotSlide, gotStep := r.State()
	if gotSlide != slide || gotStep != step {
		r.record(trip.New(trip.KindRehearsal, fmt.Sprintf("want slide %d step %d, at slide %d step %d", slide, step, gotSlide, gotStep), nil))
		return r
	}
	r.action("expect", fmt.Sprintf("slide=%d step=%d", slide, step))
	return r
}

// ExpectViewContains checks the frame shows text.
func (r *Rehearsal) ExpectViewContains(text string) *Rehearsal {
	view := r.View()
	if !strings.Contains(view, text) {
		r.record(trip.New(trip.KindRehearsal, fmt.Sprintf("view does not contain %q", text), nil).With("view", view))
		return r
	}
	r.action("expect", "contains="+text)
	return r
}

// ExpectStatus checks the status line shows text.
func (r *Rehearsal) ExpectStatus(text string) *Rehearsal {
	var status string
	r.sync(func() { status = r.show.StatusLine() })
	if !strings.Contains(status, text) {
		r.record(trip.New(trip.KindRehearsal, fmt.Sprintf("status %q does not contain %q", status, text), nil))
		return r
	}
	r.action("expect", "status="+text)
	return r
}

// WaitFor polls cond on the loop until it holds or the timeout passes.
func (r *Rehearsal) WaitFor(what string, cond func(*showreel.Show) bool) *Rehearsal {
	deadline := time.Now().Add(r.timeout)
	for time.Now().Before(deadline) {
		var ok bool
		if !r.sync(func() { ok = cond(r.show) }) {
			return r
		}
		if ok {
			r.action("wait", what)
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.record(trip.New(trip.KindRehearsal, "timed out waiting for "+what, nil))
	return r
}

// Stop quits the program and returns the result.
func (r *Rehearsal) Stop() *RehearsalResult {
	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(r.timeout):
			r.record(trip.NewFall(trip.KindRehearsal, "program did not quit", nil))
		}
	}
	return &RehearsalResult{
		Actions:    r.actions,
		Success:    !r.failed && r.trips.ShouldContinue(),
		Duration:   time.Since(r.started),
		TripReport: r.trips.DetailedReport(),
	}
}

func (r *Rehearsal) action(kind, details string) {
	r.actions = append(r.actions, Action{Timestamp: time.Now(), Type: kind, Details: details})
}

func (r *Rehearsal) record(t *trip.Trip) {
	r.trips.Record(t)
	r.failed = true
	if r.t != nil {
		r.t.Helper()
		r.t.Error(t.DetailedString())
	}
}
