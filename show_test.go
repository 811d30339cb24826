package showreel

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/operators"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
	"github.com/teranos/showreel/trip"
)

const rehearsalDeck = `
title: Rehearsal
slides:
  - type: title
    params: {title: Opening Night, footer: Showreel}
  - type: chapter
    transition: {offset_x: 40, duration: 1}
    params: {number: 1, title: Nodes}
  - type: bullets
    params: {title: Points, mode: reveal, bullets: [first, second]}
  - type: ending
`

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func parseDeck(t *testing.T, doc string) *deck.Deck {
	t.Helper()
	d, err := deck.Parse([]byte(doc), deck.YAML)
	require.NoError(t, err)
	return d
}

func newShow(t *testing.T, doc string, opts Options) *Show {
	t.Helper()
	opts.Frame = -1
	opts.Logger = quiet
	if opts.Now == nil {
		start := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
		opts.Now = func() time.Time { return start }
	}
	s, err := New(parseDeck(t, doc), opts)
	require.NoError(t, err)
	return s
}

func lineOf(view, text string) int {
	for i, line := range strings.Split(view, "\n") {
		if strings.Contains(line, text) {
			return i
		}
	}
	return -1
}

func TestNew_RejectsBadDeck(t *testing.T) {
	_, err := New(parseDeck(t, "slides: [{type: fireworks}]"), Options{Logger: quiet})
	var ce *deck.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, deck.ErrUnknownType)
}

func TestNew_StartsOnRequestedSlide(t *testing.T) {
	s := newShow(t, rehearsalDeck, Options{Start: 2})
	slide, step := s.Controller().State()
	assert.Equal(t, 2, slide)
	assert.Equal(t, 0, step)

	s = newShow(t, rehearsalDeck, Options{Start: 99})
	slide, _ = s.Controller().State()
	assert.Equal(t, 3, slide, "clamped to the last slide")
}

func TestShow_Reload(t *testing.T) {
	s := newShow(t, rehearsalDeck, Options{})
	s.Controller().GoToSlide(2)
	s.Controller().AdvanceStep()

	s.Reload(parseDeck(t, `
slides:
  - type: title
    params: {title: Rewritten}
  - type: bullets
    params: {mode: reveal, bullets: [x, y, z]}
`), nil)
	s.Loop().Advance(s.Loop().Now())

	assert.Equal(t, 2, s.Controller().SlideCount())
	slide, step := s.Controller().State()
	assert.Equal(t, 1, slide, "clamped to the new last slide")
	assert.Equal(t, 1, step, "replayed to the old step")
	assert.Contains(t, s.StatusLine(), "deck reloaded")
}

func TestShow_ReloadFailureKeepsDeck(t *testing.T) {
	s := newShow(t, rehearsalDeck, Options{})

	s.Reload(nil, errors.New("yaml: line 3: bad indentation"))
	s.Loop().Advance(s.Loop().Now())
	assert.Contains(t, s.StatusLine(), "reload failed: yaml: line 3")

	s.Reload(parseDeck(t, "slides: [{type: fireworks}]"), nil)
	s.Loop().Advance(s.Loop().Now())
	assert.Equal(t, 4, s.Controller().SlideCount())
	assert.Contains(t, s.StatusLine(), "unknown slide type")

	trips := s.Trips().Trips()
	require.Len(t, trips, 2)
	assert.Equal(t, trip.KindDeck, trips[0].Kind)
}

func TestShow_CloseWithoutExport(t *testing.T) {
	s := newShow(t, rehearsalDeck, Options{})
	assert.NoError(t, s.Close(context.Background()))
}

func TestScreen_LaysOutTitleAboveFooter(t *testing.T) {
	s := newShow(t, rehearsalDeck, Options{})
	view := operators.StripANSI(s.Render())
	lines := strings.Split(view, "\n")
	require.Len(t, lines, 24)

	title, footer := lineOf(view, "Opening Night"), lineOf(view, "Showreel")
	require.GreaterOrEqual(t, title, 0)
	require.GreaterOrEqual(t, footer, 0)
	assert.Less(t, title, footer)
	assert.Equal(t, 5, strings.Index(lines[title], "Opening Night"), "left margin")
	assert.Contains(t, lines[23], "Rehearsal · slide 1/4")
	assert.Contains(t, lines[footer+1], "─", "floor below the footer")
}

func TestScreen_FollowsTheRig(t *testing.T) {
	s := newShow(t, rehearsalDeck, Options{})
	s.Controller().AdvanceStep()
	s.Controller().Settle()

	assert.Equal(t, float32(40), s.Controller().Stage().RigPosition().X)
	view := s.Render()
	assert.GreaterOrEqual(t, lineOf(view, "Chapter 1"), 0)
	assert.Equal(t, -1, lineOf(view, "Opening Night"), "the old slide is out of frame")
}

func TestScreen_ZoomsWithAltitude(t *testing.T) {
	s := newShow(t, `
slides:
  - type: title
    params: {title: Near}
  - type: title
    camera: {altitude: 10}
    params: {title: Far}
`, Options{})
	near := lineOf(s.Render(), "Near")
	s.Controller().AdvanceStep()
	s.Controller().Settle()
	far := lineOf(s.Render(), "Far")
	assert.Greater(t, far, near, "higher camera, smaller and closer to the centre")
}

func TestScreen_Prepare(t *testing.T) {
	g := scene.New(nil)
	ok := g.NewChild(g.Root(), "ok", scene.KindText)
	g.SetText(ok, "one line")
	screen := NewScreen(80, 24, "")
	assert.NoError(t, screen.Prepare(g, g.Root()))

	bad := g.NewChild(g.Root(), "bad", scene.KindText)
	g.SetText(bad, "two\nlines")
	assert.ErrorContains(t, screen.Prepare(g, g.Root()), `node "bad"`)
}

func writeTexture(t *testing.T, dir, name string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestScreen_PrepareTexture(t *testing.T) {
	dir := t.TempDir()
	writeTexture(t, dir, "red.png", color.RGBA{255, 0, 0, 255})
	screen := NewScreen(80, 24, dir)

	m, err := screen.PrepareTexture("red.png")
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", m.Tint.Hex())
	again, err := screen.PrepareTexture("red.png")
	require.NoError(t, err)
	assert.Same(t, m, again)

	_, err = screen.PrepareTexture("missing.png")
	assert.Error(t, err)
}

func TestShow_PreloadTintsTheFloor(t *testing.T) {
	dir := t.TempDir()
	writeTexture(t, dir, "green.png", color.RGBA{0, 255, 0, 255})
	d := parseDeck(t, `
slides:
  - type: title
    params: {title: One}
  - type: title
    floor: {texture: green.png, reflectivity: 0.8}
    params: {title: Two}
`)
	d.Path = filepath.Join(dir, "talk.yaml")
	start := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
	s, err := New(d, Options{Frame: -1, Logger: quiet, Now: func() time.Time { return start }})
	require.NoError(t, err)

	s.Loop().Advance(start.Add(2 * time.Second))
	inst, ok := s.Controller().Instance(1)
	require.True(t, ok, "next slide preloaded")
	require.NotNil(t, inst.Material)
	assert.Equal(t, "#00ff00", inst.Material.Tint.Hex())
	assert.Empty(t, s.Trips().Stumbles())
}

func TestKeyFor(t *testing.T) {
	n := scene.Node{Color: textlayout.White, FontSize: 56}
	assert.Equal(t, styleKey{color: "#ffffff"}, keyFor(n, 1))

	n.Emission = textlayout.Dimmed
	assert.True(t, keyFor(n, 1).faint)
	n.Emission = textlayout.Highlighted
	assert.True(t, keyFor(n, 1).bold)

	n.Emission = textlayout.Unlit
	assert.True(t, keyFor(n, 0.3).faint)
	n.FontSize = textlayout.FontSize(textlayout.Title, 0)
	assert.True(t, keyFor(n, 1).bold)
}
