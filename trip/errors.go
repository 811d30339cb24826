// Package trip records the non-fatal failures of a running show.
//
// A slide that panics during setup, a preload that cannot warm a texture, an
// export frame that cannot be written: none of these stop the show. They
// "trip it up". Each failure becomes a Trip, is logged, and is kept on a
// Handler so the CLI and the export report can list what went wrong.
package trip

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kinds of trips recorded by the show.
const (
	KindSlide   = "slide"   // slide instantiation or setup
	KindPreload = "preload" // warm-up of the next slide
	KindExport  = "export"  // frame or archive capture
	KindDeck    = "deck"    // deck reload

	KindRehearsal = "rehearsal" // headless run of the terminal show
)

// Trip is one recorded failure.
//
//	t := trip.New(trip.KindExport, "write frame", err).
//	    At(3, 1).
//	    With("path", path)
type Trip struct {
	Kind      string
	Message   string
	Err       error
	Slide     int // -1 when not tied to a slide
	Step      int
	Context   Context
	Timestamp time.Time
	Severity  Severity
}

// Context carries extra key/value detail for a trip.
type Context map[string]any

// Severity indicates how serious a trip is.
type Severity int

const (
	// Stumble is a cosmetic failure: a frame not captured, a warm-up skipped.
	Stumble Severity = iota

	// Error is a failure the audience can see, such as a slide that did not
	// appear.
	Error

	// Fall leaves the show unable to continue, for example a deck with no
	// playable slides.
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

func (s Severity) level() slog.Level {
	switch s {
	case Stumble:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// New creates an Error-severity trip not tied to any slide.
func New(kind, message string, err error) *Trip {
	return &Trip{
		Kind:      kind,
		Message:   message,
		Err:       err,
		Slide:     -1,
		Timestamp: time.Now(),
		Severity:  Error,
	}
}

// NewStumble creates a Stumble-severity trip.
func NewStumble(kind, message string, err error) *Trip {
	return New(kind, message, err).WithSeverity(Stumble)
}

// NewFall creates a Fall-severity trip.
func NewFall(kind, message string, err error) *Trip {
	return New(kind, message, err).WithSeverity(Fall)
}

// At ties the trip to a slide and step.
func (t *Trip) At(slide, step int) *Trip {
	t.Slide = slide
	t.Step = step
	return t
}

// With adds a context value.
func (t *Trip) With(key string, value any) *Trip {
	if t.Context == nil {
		t.Context = Context{}
	}
	t.Context[key] = value
	return t
}

// WithSeverity sets the severity.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

func (t *Trip) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", t.Kind, t.Severity, t.Message)
	if t.Slide >= 0 {
		fmt.Fprintf(&b, " (slide %d step %d)", t.Slide, t.Step)
	}
	if t.Err != nil {
		fmt.Fprintf(&b, ": %v", t.Err)
	}
	return b.String()
}

func (t *Trip) Unwrap() error {
	return t.Err
}

// IsFall reports whether the show cannot go on after this trip.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// DetailedString describes the trip with its timestamp and sorted context.
func (t *Trip) DetailedString() string {
	var details strings.Builder
	details.WriteString(t.Error())
	fmt.Fprintf(&details, "\n  Time: %s", t.Timestamp.Format("15:04:05.000"))
	if len(t.Context) > 0 {
		keys := make([]string, 0, len(t.Context))
		for k := range t.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		details.WriteString("\n  Context:")
		for _, k := range keys {
			fmt.Fprintf(&details, "\n    %s: %v", k, t.Context[k])
		}
	}
	return details.String()
}

func (t *Trip) attrs() []any {
	attrs := []any{"kind", t.Kind, "severity", t.Severity.String()}
	if t.Slide >= 0 {
		attrs = append(attrs, "slide", t.Slide, "step", t.Step)
	}
	if t.Err != nil {
		attrs = append(attrs, "error", t.Err)
	}
	for k, v := range t.Context {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// Handler collects trips for one component. It is safe for concurrent use:
// the exporter records from its own goroutine while the show records from
// the loop.
type Handler struct {
	component string
	logger    *slog.Logger
	policy    Policy

	mu       sync.Mutex
	trips    []*Trip
	stumbles []*Trip
}

// Policy decides when accumulated trips should stop a batch job.
type Policy struct {
	// StopOnFall stops as soon as a Fall is recorded.
	StopOnFall bool
	// MaxStumbles stops once more stumbles than this were recorded. Zero
	// means no limit.
	MaxStumbles int
}

// DefaultPolicy stops on falls and tolerates any number of stumbles.
func DefaultPolicy() Policy {
	return Policy{StopOnFall: true}
}

// NewHandler creates a handler that logs every recorded trip to logger.
func NewHandler(component string, logger *slog.Logger, policy Policy) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		component: component,
		logger:    logger.With("component", component),
		policy:    policy,
	}
}

// Record logs the trip and keeps it. A nil trip is ignored.
func (h *Handler) Record(t *Trip) {
	if h == nil || t == nil {
		return
	}
	h.logger.Log(context.Background(), t.Severity.level(), t.Message, t.attrs()...)

	h.mu.Lock()
	defer h.mu.Unlock()
	if t.Severity == Stumble {
		h.stumbles = append(h.stumbles, t)
	} else {
		h.trips = append(h.trips, t)
	}
}

// ShouldContinue reports whether a batch job should go on under the policy.
func (h *Handler) ShouldContinue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.policy.StopOnFall {
		for _, t := range h.trips {
			if t.IsFall() {
				return false
			}
		}
	}
	return h.policy.MaxStumbles == 0 || len(h.stumbles) <= h.policy.MaxStumbles
}

// Trips returns the recorded Error and Fall trips in order.
func (h *Handler) Trips() []*Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Trip(nil), h.trips...)
}

// Stumbles returns the recorded stumbles in order.
func (h *Handler) Stumbles() []*Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Trip(nil), h.stumbles...)
}

// Count returns the number of trips and stumbles recorded.
func (h *Handler) Count() (trips, stumbles int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trips), len(h.stumbles)
}

// Summary is a one-line overview.
func (h *Handler) Summary() string {
	trips, stumbles := h.Count()
	if trips == 0 && stumbles == 0 {
		return fmt.Sprintf("[%s] no issues", h.component)
	}
	return fmt.Sprintf("[%s] %d trips, %d stumbles", h.component, trips, stumbles)
}

// DetailedReport lists every trip and stumble.
func (h *Handler) DetailedReport() string {
	var report strings.Builder
	fmt.Fprintf(&report, "=== %s ===\n", h.component)
	report.WriteString(h.Summary() + "\n")

	if trips := h.Trips(); len(trips) > 0 {
		report.WriteString("\nTrips:\n")
		for i, t := range trips {
			fmt.Fprintf(&report, "%d. %s\n", i+1, t.DetailedString())
		}
	}
	if stumbles := h.Stumbles(); len(stumbles) > 0 {
		report.WriteString("\nStumbles:\n")
		for i, t := range stumbles {
			fmt.Fprintf(&report, "%d. %s\n", i+1, t.DetailedString())
		}
	}
	return report.String()
}
