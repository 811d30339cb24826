// Package slides is the catalogue of slide types a deck can name.
//
// Every slide is a Script: a step count and a handful of closures. The
// constructors here decode a deck entry's params into a typed struct and
// return the Script that plays it.
package slides

import (
	"gopkg.in/yaml.v3"

	"github.com/teranos/showreel/presenter"
)

// Script is a Slide assembled from closures. Nil hooks do nothing.
type Script struct {
	Steps      int
	OnSetup    func(ctx *presenter.Context)
	OnPresent  func(step int, ctx *presenter.Context)
	OnOrderOut func(ctx *presenter.Context)
	OnOrderIn  func(ctx *presenter.Context)
}

var _ presenter.Slide = (*Script)(nil)

func (s *Script) StepCount() int {
	if s.Steps < 1 {
		return 1
	}
	return s.Steps
}

func (s *Script) Setup(ctx *presenter.Context) {
	if s.OnSetup != nil {
		s.OnSetup(ctx)
	}
}

func (s *Script) Present(step int, ctx *presenter.Context) {
	if s.OnPresent != nil {
		s.OnPresent(step, ctx)
	}
}

func (s *Script) WillOrderOut(ctx *presenter.Context) {
	if s.OnOrderOut != nil {
		s.OnOrderOut(ctx)
	}
}

func (s *Script) DidOrderIn(ctx *presenter.Context) {
	if s.OnOrderIn != nil {
		s.OnOrderIn(ctx)
	}
}

// Line is one line of text at an indent level. In a deck it is either a
// plain string or a {text, level} table.
type Line struct {
	Text  string `yaml:"text"`
	Level int    `yaml:"level"`
}

func (l *Line) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*l = Line{Text: n.Value}
		return nil
	}
	type plain Line
	return n.Decode((*plain)(l))
}
