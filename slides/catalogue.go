package slides

import (
	"errors"
	"fmt"
	"time"

	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/presenter"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
)

const highlightDuration = 300 * time.Millisecond

// Register adds every slide type to reg. Diagram slides build from the
// given builder.
func Register(reg *presenter.Registry, diagram *DiagramBuilder) {
	if diagram == nil {
		diagram = NewDiagramBuilder()
	}
	reg.Register("title", Title)
	reg.Register("chapter", Chapter)
	reg.Register("bullets", Bullets)
	reg.Register("code", Code)
	reg.Register("diagram", DiagramSlide(diagram))
	reg.Register("tour", Tour)
	reg.Register("ending", Ending)
}

// NewRegistry returns a registry holding the whole catalogue.
func NewRegistry() *presenter.Registry {
	reg := presenter.NewRegistry()
	Register(reg, NewDiagramBuilder())
	return reg
}

// addHeading writes the title, subtitle and the "new" badge every text
// slide may carry.
func addHeading(ctx *presenter.Context, title, subtitle string) {
	if title != "" {
		ctx.Text.AddLine(title, textlayout.Title, 0)
	}
	if subtitle != "" {
		ctx.Text.AddLine(subtitle, textlayout.Subtitle, 0)
	}
	if ctx.Entry.New {
		badge := ctx.Graph.NewChild(ctx.Ground, "new-badge", scene.KindShape)
		ctx.Graph.SetText(badge, "NEW")
		ctx.Graph.SetColor(badge, textlayout.Orange)
		ctx.Graph.SetPosition(badge, scene.V3(12, textlayout.TitleBaseline, 0))
	}
}

type titleParams struct {
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
	Footer   string `yaml:"footer"`
}

// Title is the opening slide: a title, an optional subtitle and footer.
func Title(e deck.Entry) (presenter.Slide, error) {
	var p titleParams
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	if p.Title == "" {
		return nil, errors.New("title is required")
	}
	return &Script{
		Steps: 1,
		OnSetup: func(ctx *presenter.Context) {
			addHeading(ctx, p.Title, p.Subtitle)
			if p.Footer != "" {
				ctx.Text.AddLine(p.Footer, textlayout.Footer, 0)
			}
		},
	}, nil
}

type chapterParams struct {
	Number int    `yaml:"number"`
	Title  string `yaml:"title"`
}

// Chapter announces a new part of the talk. Its title turns in once the
// camera has arrived.
func Chapter(e deck.Entry) (presenter.Slide, error) {
	var p chapterParams
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	if p.Title == "" {
		return nil, errors.New("title is required")
	}
	return &Script{
		Steps: 1,
		OnSetup: func(ctx *presenter.Context) {
			if p.Number > 0 {
				ctx.Text.AddLine(fmt.Sprintf("Chapter %d", p.Number), textlayout.Chapter, 0)
			}
			ctx.Text.AddLine(p.Title, textlayout.Subtitle, 0)
		},
		OnOrderIn: func(ctx *presenter.Context) {
			ctx.Text.FlipIn(textlayout.Subtitle)
		},
	}, nil
}

// Bullet slide modes.
const (
	ModeAll       = "all"       // every bullet shown at once
	ModeReveal    = "reveal"    // one more bullet per step
	ModeHighlight = "highlight" // all shown, one lit per step
	ModeReplace   = "replace"   // one bullet per step, replacing the last
)

type bulletParams struct {
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
	Mode     string `yaml:"mode"`
	Bullets  []Line `yaml:"bullets"`
	Footer   string `yaml:"footer"`
}

// Bullets shows a list of points in one of the bullet modes.
func Bullets(e deck.Entry) (presenter.Slide, error) {
	p := bulletParams{Mode: ModeAll}
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	if len(p.Bullets) == 0 {
		return nil, errors.New("bullets must not be empty")
	}
	addBullet := func(ctx *presenter.Context, i int) {
		b := p.Bullets[i]
		ctx.Text.AddLine(b.Text, textlayout.Bullet, b.Level)
	}

	s := &Script{
		OnSetup: func(ctx *presenter.Context) {
			addHeading(ctx, p.Title, p.Subtitle)
			if p.Footer != "" {
				ctx.Text.AddLine(p.Footer, textlayout.Footer, 0)
			}
			if p.Mode == ModeAll || p.Mode == ModeHighlight {
				for i := range p.Bullets {
					addBullet(ctx, i)
				}
			}
		},
	}
	switch p.Mode {
	case ModeAll:
		s.Steps = 1
	case ModeReveal:
		s.Steps = len(p.Bullets) + 1
		s.OnPresent = func(step int, ctx *presenter.Context) {
			if step > 0 {
				addBullet(ctx, step-1)
			}
		}
	case ModeHighlight:
		s.Steps = len(p.Bullets) + 2
		s.OnPresent = func(step int, ctx *presenter.Context) {
			if step > 0 && step <= len(p.Bullets) {
				ctx.Text.HighlightBullet(step - 1)
				return
			}
			ctx.Text.HighlightBullet(textlayout.NoHighlight)
		}
	case ModeReplace:
		s.Steps = len(p.Bullets)
		s.OnPresent = func(step int, ctx *presenter.Context) {
			ctx.Text.RemoveCategory(textlayout.Bullet)
			addBullet(ctx, step)
			ctx.Text.FlipIn(textlayout.Bullet)
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", p.Mode)
	}
	return s, nil
}

type codeParams struct {
	Title  string  `yaml:"title"`
	Lines  []Line  `yaml:"lines"`
	Chunks [][]int `yaml:"chunks"`
	Flip   bool    `yaml:"flip"`
}

// Code shows a listing and walks through highlighted chunks of it, one
// chunk per step.
func Code(e deck.Entry) (presenter.Slide, error) {
	var p codeParams
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	if len(p.Lines) == 0 {
		return nil, errors.New("lines must not be empty")
	}
	for i, chunk := range p.Chunks {
		for _, line := range chunk {
			if line < 0 || line >= len(p.Lines) {
				return nil, fmt.Errorf("chunk %d: line %d out of range", i, line)
			}
		}
	}
	return &Script{
		Steps: len(p.Chunks) + 1,
		OnSetup: func(ctx *presenter.Context) {
			addHeading(ctx, p.Title, "")
			for _, l := range p.Lines {
				ctx.Text.AddLine(l.Text, textlayout.Code, l.Level)
			}
		},
		OnPresent: func(step int, ctx *presenter.Context) {
			if step == 0 {
				ctx.Text.HighlightCodeChunks(textlayout.NoHighlight)
				return
			}
			ctx.Text.HighlightCodeChunks(p.Chunks[step-1]...)
		},
		OnOrderIn: func(ctx *presenter.Context) {
			if p.Flip {
				ctx.Text.FlipIn(textlayout.Code)
			}
		},
		OnOrderOut: func(ctx *presenter.Context) {
			ctx.Text.HighlightCodeChunks(textlayout.NoHighlight)
		},
	}, nil
}

type diagramParams struct {
	Title     string     `yaml:"title"`
	Highlight [][]string `yaml:"highlight"`
}

// DiagramSlide returns the constructor of slides that show the builder's
// tree and light one group of boxes per step.
func DiagramSlide(builder *DiagramBuilder) presenter.Constructor {
	return func(e deck.Entry) (presenter.Slide, error) {
		return diagramSlide(e, builder)
	}
}

func diagramSlide(e deck.Entry, builder *DiagramBuilder) (presenter.Slide, error) {
	var p diagramParams
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	for i, group := range p.Highlight {
		for _, label := range group {
			if !builder.Has(label) {
				return nil, fmt.Errorf("highlight %d: no box labelled %q", i, label)
			}
		}
	}
	var d *Diagram
	return &Script{
		Steps: len(p.Highlight) + 1,
		OnSetup: func(ctx *presenter.Context) {
			addHeading(ctx, p.Title, "")
			d = builder.Build(ctx.Graph, ctx.Ground)
		},
		OnPresent: func(step int, ctx *presenter.Context) {
			if step == 0 {
				d.Highlight(ctx.Graph, highlightDuration)
				return
			}
			d.Highlight(ctx.Graph, highlightDuration, p.Highlight[step-1]...)
		},
	}, nil
}

// Stop is one camera pose of a tour.
type Stop struct {
	Caption  string  `yaml:"caption"`
	Altitude float32 `yaml:"altitude"`
	Pitch    float32 `yaml:"pitch"`
	Spot     float32 `yaml:"spot"`
	Duration float32 `yaml:"duration"`
}

type tourParams struct {
	Title string `yaml:"title"`
	Stops []Stop `yaml:"stops"`
}

// Tour moves the camera through a list of stops, one per step. The next
// slide's transition brings the camera back to its own pose.
func Tour(e deck.Entry) (presenter.Slide, error) {
	var p tourParams
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	if len(p.Stops) == 0 {
		return nil, errors.New("stops must not be empty")
	}
	caption := func(ctx *presenter.Context, text string) {
		ctx.Text.FlipOut(textlayout.Body)
		if text != "" {
			ctx.Text.AddLine(text, textlayout.Body, 0)
		}
	}
	return &Script{
		Steps: len(p.Stops) + 1,
		OnSetup: func(ctx *presenter.Context) {
			addHeading(ctx, p.Title, "")
		},
		OnPresent: func(step int, ctx *presenter.Context) {
			if step == 0 {
				caption(ctx, "")
				return
			}
			stop := p.Stops[step-1]
			d := time.Duration(float64(stop.Duration) * float64(time.Second))
			if d <= 0 {
				d = time.Second
			}
			ctx.Graph.Transaction(d, func() {
				ctx.Stage.SetCamera(deck.Camera{Altitude: stop.Altitude, Pitch: stop.Pitch})
				lights := ctx.Entry.Lights
				lights.Spot = stop.Spot
				ctx.Stage.SetLights(lights)
			}, nil)
			caption(ctx, stop.Caption)
		},
		OnOrderOut: func(ctx *presenter.Context) {
			ctx.Text.RemoveCategory(textlayout.Body)
		},
	}, nil
}

type endingParams struct {
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
}

// Ending closes the talk.
func Ending(e deck.Entry) (presenter.Slide, error) {
	p := endingParams{Title: "Thank you"}
	if err := e.DecodeParams(&p); err != nil {
		return nil, err
	}
	return &Script{
		Steps: 1,
		OnSetup: func(ctx *presenter.Context) {
			addHeading(ctx, p.Title, p.Subtitle)
		},
		OnOrderIn: func(ctx *presenter.Context) {
			ctx.Text.FlipIn(textlayout.Title)
		},
	}, nil
}
