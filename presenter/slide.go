// Package presenter sequences a deck of slides through their steps.
//
// The Controller owns the current (slide, step) position, instantiates
// slides lazily from a Registry, moves the camera rig between slides inside
// one scene transaction, preloads the next slide on the run loop and fades
// out and evicts slides that fall behind.
package presenter

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/runloop"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
)

// Slide is one unit of the talk. Setup builds its static content once;
// Present applies one step. WillOrderOut and DidOrderIn bracket the
// transitions away from and onto the slide.
type Slide interface {
	StepCount() int
	Setup(ctx *Context)
	Present(step int, ctx *Context)
	WillOrderOut(ctx *Context)
	DidOrderIn(ctx *Context)
}

// Context is what a slide sees of the show: its own nodes and text layout,
// plus the shared stage it can light and move.
type Context struct {
	Index int
	Entry deck.Entry

	Graph  *scene.Graph
	Loop   *runloop.Loop
	Stage  *Stage
	Logger *slog.Logger

	// Content is the slide's root node. Ground holds slide geometry and
	// TextRoot the text containers; both are placed in the camera frame
	// the slide was shown from.
	Content  scene.NodeID
	Ground   scene.NodeID
	TextRoot scene.NodeID
	Text     *textlayout.Manager
}

// Constructor builds a slide from its deck entry. It decodes and validates
// the entry's parameters and must not touch the scene.
type Constructor func(e deck.Entry) (Slide, error)

// Registry maps slide type tags to constructors.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: map[string]Constructor{}}
}

// Register binds tag to ctor, replacing any earlier binding.
func (r *Registry) Register(tag string, ctor Constructor) {
	r.ctors[tag] = ctor
}

// Tags lists the registered tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Descriptor is a validated deck entry ready to be instantiated.
type Descriptor struct {
	Entry deck.Entry
	ctor  Constructor
}

// New builds a fresh slide for the descriptor.
func (d Descriptor) New() (Slide, error) {
	if d.ctor == nil {
		return nil, fmt.Errorf("slide %d: no constructor", d.Entry.Index)
	}
	s, err := d.ctor(d.Entry)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("slide %d: constructor returned nil", d.Entry.Index)
	}
	return s, nil
}

// Compile resolves every entry against the registry and checks that its
// parameters decode. The first failure is returned as a *deck.ConfigError.
func (r *Registry) Compile(entries []deck.Entry) ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		ctor, ok := r.ctors[e.Type]
		if !ok {
			return nil, &deck.ConfigError{Index: e.Index, Type: e.Type, Field: "type", Err: deck.ErrUnknownType}
		}
		d := Descriptor{Entry: e, ctor: ctor}
		if _, err := d.New(); err != nil {
			return nil, asConfigError(e, err)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

func asConfigError(e deck.Entry, err error) error {
	var ce *deck.ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &deck.ConfigError{Index: e.Index, Type: e.Type, Field: "params", Err: err}
}
