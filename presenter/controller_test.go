package presenter

import (
	"errors"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/runloop"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
	"github.com/teranos/showreel/trip"
)

type fakeSlide struct {
	steps      int
	panicSetup bool
	calls      []string
}

func (s *fakeSlide) StepCount() int { return s.steps }

func (s *fakeSlide) Setup(ctx *Context) {
	if s.panicSetup {
		panic("no font")
	}
	s.calls = append(s.calls, "setup")
	ctx.Text.AddLine("Title", textlayout.Title, 0)
	ctx.Graph.NewChild(ctx.Ground, "box", scene.KindShape)
}

func (s *fakeSlide) Present(step int, ctx *Context) {
	s.calls = append(s.calls, "present")
}

func (s *fakeSlide) WillOrderOut(ctx *Context) { s.calls = append(s.calls, "will-order-out") }
func (s *fakeSlide) DidOrderIn(ctx *Context)   { s.calls = append(s.calls, "did-order-in") }

type fakeRenderer struct {
	prepared []scene.NodeID
	textures []string
	failTex  bool
}

func (r *fakeRenderer) Prepare(g *scene.Graph, root scene.NodeID) error {
	r.prepared = append(r.prepared, root)
	return nil
}

func (r *fakeRenderer) PrepareTexture(path string) (*Material, error) {
	r.textures = append(r.textures, path)
	if r.failTex {
		return nil, errors.New("missing texture")
	}
	return &Material{Texture: path, Tint: scene.RGB(0.5, 0.5, 0.5)}, nil
}

type harness struct {
	t      *testing.T
	now    time.Time
	loop   *runloop.Loop
	g      *scene.Graph
	c      *Controller
	slides map[int]*fakeSlide
	render *fakeRenderer
}

type fakeParams struct {
	Steps      int  `yaml:"steps"`
	PanicSetup bool `yaml:"panic_setup"`
	Fail       bool `yaml:"fail"`
}

// newHarness builds a controller over entries of type "fake". Every
// instantiation is remembered by index, the latest one winning.
func newHarness(t *testing.T, entries ...deck.Entry) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		slides: map[int]*fakeSlide{},
		render: &fakeRenderer{},
	}
	h.loop = runloop.New(h.now)
	h.g = scene.New(h.loop.Now)

	reg := NewRegistry()
	reg.Register("fake", func(e deck.Entry) (Slide, error) {
		var p fakeParams
		if err := e.DecodeParams(&p); err != nil {
			return nil, err
		}
		if p.Fail {
			return nil, errors.New("cannot build")
		}
		s := &fakeSlide{steps: p.Steps, panicSetup: p.PanicSetup}
		h.slides[e.Index] = s
		return s, nil
	})
	for i := range entries {
		entries[i].Index = i
		if entries[i].Type == "" {
			entries[i].Type = "fake"
		}
	}
	descs, err := reg.Compile(entries)
	require.NoError(t, err)

	h.c = New(h.g, h.loop, NewStage(h.g), descs, Options{Renderer: h.render})
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.loop.Advance(h.now)
}

func (h *harness) state() [2]int {
	s, st := h.c.State()
	return [2]int{s, st}
}

func slide(steps int) deck.Entry {
	e := deck.Defaults()
	e.Params = map[string]any{"steps": steps}
	return e
}

func moving(steps int, x, z, rotation float32) deck.Entry {
	e := slide(steps)
	e.Transition.OffsetX, e.Transition.OffsetZ, e.Transition.Rotation = x, z, rotation
	return e
}

func TestGoToSlide_OutOfRangeIsNoOp(t *testing.T) {
	h := newHarness(t, slide(2), slide(2))
	h.c.GoToSlide(-1)
	assert.True(t, h.c.Idle())

	h.c.GoToSlide(1)
	h.c.AdvanceStep()
	require.Equal(t, [2]int{1, 1}, h.state())

	for _, i := range []int{-5, -1, 2, 99} {
		h.c.GoToSlide(i)
		assert.Equal(t, [2]int{1, 1}, h.state(), "GoToSlide(%d)", i)
	}
}

func TestAdvanceStep_RollsOverToNextSlide(t *testing.T) {
	h := newHarness(t, slide(1), slide(2), slide(3), slide(1))

	h.c.GoToSlide(2)
	require.Equal(t, [2]int{2, 0}, h.state())

	var seen [][2]int
	for i := 0; i < 3; i++ {
		h.c.AdvanceStep()
		seen = append(seen, h.state())
	}
	assert.Equal(t, [][2]int{{2, 1}, {2, 2}, {3, 0}}, seen)

	// the last step of the last slide stays put
	h.c.AdvanceStep()
	assert.Equal(t, [2]int{3, 0}, h.state())
}

func TestAdvanceStep_FromIdleShowsFirstSlide(t *testing.T) {
	h := newHarness(t, slide(1), slide(1))
	h.c.AdvanceStep()
	assert.Equal(t, [2]int{0, 0}, h.state())
	assert.Equal(t, []string{"setup", "present"}, h.slides[0].calls)
}

func TestPreviousSlide(t *testing.T) {
	h := newHarness(t, slide(3), slide(1))
	h.c.GoToSlide(0)
	h.c.AdvanceStep()
	h.c.PreviousSlide()
	assert.Equal(t, [2]int{0, 1}, h.state(), "no slide before the first")

	h.c.GoToSlide(1)
	h.c.PreviousSlide()
	assert.Equal(t, [2]int{0, 0}, h.state())
	assert.Equal(t, -1, h.c.Direction())
}

func TestRestart(t *testing.T) {
	h := newHarness(t, slide(1), slide(1), slide(1))
	h.c.GoToSlide(2)
	h.c.Restart()
	assert.Equal(t, [2]int{0, 0}, h.state())
}

func TestRestart_OnFirstSlideStartsItOver(t *testing.T) {
	h := newHarness(t, slide(3), slide(1))
	h.c.GoToSlide(0)
	h.c.AdvanceStep()
	h.c.AdvanceStep()
	old, _ := h.c.Instance(0)
	stale := h.slides[0]

	h.c.Restart()
	assert.Equal(t, [2]int{0, 0}, h.state())
	assert.False(t, h.g.Valid(old.Ctx.Content), "stepped content is gone at once")
	assert.Nil(t, old.Material)

	fresh, ok := h.c.Instance(0)
	require.True(t, ok)
	assert.NotSame(t, old, fresh)
	assert.True(t, h.g.IsAttached(fresh.Ctx.Content))
	assert.NotSame(t, stale, h.slides[0])
	assert.Equal(t, []string{"setup", "present"}, h.slides[0].calls)

	h.c.AdvanceStep()
	assert.Equal(t, [2]int{0, 1}, h.state())
}

func TestGoToSlide_CurrentSlideKeepsOldInstanceWhenRebuildFails(t *testing.T) {
	h := newHarness(t, slide(2))
	h.c.GoToSlide(0)
	h.c.AdvanceStep()
	old, _ := h.c.Instance(0)
	h.c.descs[0].ctor = func(deck.Entry) (Slide, error) { return nil, errors.New("cannot build") }

	h.c.GoToSlide(0)
	assert.Equal(t, [2]int{0, 1}, h.state())
	inst, ok := h.c.Instance(0)
	require.True(t, ok)
	assert.Same(t, old, inst)
	assert.True(t, h.g.Valid(old.Ctx.Content))
}

func TestGoToSlide_StartupHasNoTransition(t *testing.T) {
	h := newHarness(t, moving(1, 20, 0, 30))
	h.c.GoToSlide(0)

	inst, ok := h.c.Instance(0)
	require.True(t, ok)
	assert.False(t, h.g.Animating())
	assert.Equal(t, float32(1), h.g.Presented(inst.Ctx.Content).Opacity)
	assert.Equal(t, scene.Vec3{}, h.c.Stage().RigPosition())

	h.advance(0)
	assert.Contains(t, h.slides[0].calls, "did-order-in")
}

func TestGoToSlide_MovesRigByIncomingOffset(t *testing.T) {
	h := newHarness(t, slide(1), moving(1, 20, 0, 0))
	h.c.GoToSlide(0)
	h.c.GoToSlide(1)

	stage := h.c.Stage()
	assert.Equal(t, scene.V3(20, 0, 0), stage.RigPosition())
	assert.True(t, h.g.Animating())

	h.advance(500 * time.Millisecond)
	mid := h.g.Presented(stage.Rig).Position.X
	assert.Greater(t, mid, float32(0))
	assert.Less(t, mid, float32(20))
	assert.NotContains(t, h.slides[1].calls, "did-order-in")

	h.advance(500 * time.Millisecond)
	assert.Equal(t, scene.V3(20, 0, 0), h.g.Presented(stage.Rig).Position)
	assert.Contains(t, h.slides[1].calls, "did-order-in")

	// text and ground were placed in the final frame right away
	inst, _ := h.c.Instance(1)
	assert.Equal(t, scene.V3(20, 0, 0), h.g.Get(inst.Ctx.TextRoot).Position)
	assert.Equal(t, scene.V3(20, 0, 0), h.g.Get(inst.Ctx.Ground).Position)
}

func TestGoToSlide_OffsetFollowsRigYaw(t *testing.T) {
	h := newHarness(t, slide(1), moving(1, 10, 0, 0))
	h.c.GoToSlide(0)
	yaw := float32(math32.Pi / 2)
	h.g.Transaction(0, func() { h.c.Stage().MoveRig(scene.Vec3{}, yaw) }, nil)

	h.c.GoToSlide(1)
	want := scene.V3(10, 0, 0).RotateY(-yaw)
	got := h.c.Stage().RigPosition()
	assert.InDelta(t, want.X, got.X, 1e-5)
	assert.InDelta(t, 10, got.Z, 1e-5)
}

func TestGoToSlide_BackwardUndoesOutgoingGeometry(t *testing.T) {
	t.Run("offset", func(t *testing.T) {
		h := newHarness(t, slide(1), moving(1, 10, -4, 0))
		h.c.GoToSlide(0)
		h.c.GoToSlide(1)
		require.Equal(t, scene.V3(10, 0, -4), h.c.Stage().RigPosition())

		h.c.PreviousSlide()
		assert.Equal(t, scene.Vec3{}, h.c.Stage().RigPosition())
	})

	t.Run("rotation", func(t *testing.T) {
		h := newHarness(t, slide(1), moving(1, 0, 0, 45))
		h.c.GoToSlide(0)
		h.c.GoToSlide(1)
		require.InDelta(t, scene.Radians(45), h.c.Stage().RigYaw(), 1e-5)

		h.c.PreviousSlide()
		assert.InDelta(t, 0, h.c.Stage().RigYaw(), 1e-5)
	})
}

func TestGoToSlide_FadeOnlyWithoutGeometry(t *testing.T) {
	h := newHarness(t, slide(1), slide(1))
	h.c.GoToSlide(0)
	h.c.GoToSlide(1)

	assert.Equal(t, scene.Vec3{}, h.g.Presented(h.c.Stage().Rig).Position)
	inst, _ := h.c.Instance(1)
	h.advance(500 * time.Millisecond)
	o := h.g.Presented(inst.Ctx.Content).Opacity
	assert.Greater(t, o, float32(0))
	assert.Less(t, o, float32(1))
}

func TestGoToSlide_AppliesCameraLightsAndFloor(t *testing.T) {
	e := slide(1)
	e.Camera = deck.Camera{Altitude: 8, Pitch: -10}
	e.Lights = deck.Lights{Main: 0.4, Spot: 1, Ambient: 0.1}
	e.Floor = deck.Floor{Reflectivity: 0.9, Falloff: 5, Texture: "floor.png"}
	h := newHarness(t, slide(1), e)
	h.c.GoToSlide(0)
	h.c.GoToSlide(1)
	h.c.Settle()

	st := h.c.Stage()
	assert.Equal(t, float32(8), h.g.Get(st.Camera).Position.Y)
	assert.InDelta(t, scene.Radians(-10), h.g.Get(st.Camera).Rotation.X, 1e-6)
	assert.Equal(t, float32(1), h.g.Get(st.Spot).Intensity)
	assert.Equal(t, float32(0.9), h.g.Get(st.Floor).Value("reflectivity"))
	assert.Equal(t, "floor.png", h.g.Get(st.Floor).Text)
}

func TestGoToSlide_OrdersOutPreviousSlide(t *testing.T) {
	h := newHarness(t, slide(1), slide(1))
	h.c.GoToSlide(0)
	first, _ := h.c.Instance(0)
	h.c.GoToSlide(1)

	assert.Contains(t, h.slides[0].calls, "will-order-out")
	assert.True(t, h.g.Valid(first.Ctx.Content), "content stays while fading")

	h.advance(DefaultOrderOutDuration)
	assert.False(t, h.g.Valid(first.Ctx.Content))
	_, cached := h.c.Instance(0)
	assert.False(t, cached)
}

func TestGoToSlide_ReturningWhileFadingKeepsInstance(t *testing.T) {
	h := newHarness(t, slide(1), slide(1))
	h.c.GoToSlide(0)
	first, _ := h.c.Instance(0)
	h.c.GoToSlide(1)
	h.advance(300 * time.Millisecond)
	h.c.GoToSlide(0)
	h.advance(2 * time.Second)

	again, ok := h.c.Instance(0)
	require.True(t, ok)
	assert.Same(t, first, again)
	assert.True(t, h.g.Valid(first.Ctx.Content))
	assert.Equal(t, float32(1), h.g.Presented(first.Ctx.Content).Opacity)
}

func TestGoToSlide_EvictsSlidesLeftBehind(t *testing.T) {
	h := newHarness(t, slide(1), slide(1), slide(1), slide(1))
	h.c.GoToSlide(0)
	h.advance(DefaultPreloadDelay)
	next, ok := h.c.Instance(1)
	require.True(t, ok, "next slide preloaded")
	first, _ := h.c.Instance(0)

	h.c.GoToSlide(2)
	_, ok = h.c.Instance(1)
	assert.False(t, ok)
	assert.False(t, h.g.Valid(next.Ctx.Content))

	h.advance(DefaultOrderOutDuration)
	_, ok = h.c.Instance(0)
	assert.False(t, ok)
	assert.False(t, h.g.Valid(first.Ctx.Content))
	assert.False(t, h.g.IsAttached(first.Ctx.Content))
}

func TestPreload_WarmsNextSlideAfterDelay(t *testing.T) {
	e := slide(1)
	e.Floor.Texture = "grid.png"
	h := newHarness(t, slide(1), e)
	h.c.GoToSlide(0)

	h.advance(DefaultPreloadDelay - time.Millisecond)
	assert.Empty(t, h.render.prepared)

	h.advance(time.Millisecond)
	inst, ok := h.c.Instance(1)
	require.True(t, ok)
	assert.Equal(t, []scene.NodeID{inst.Ctx.Content}, h.render.prepared)
	assert.Equal(t, []string{"grid.png"}, h.render.textures)
	require.NotNil(t, inst.Material)
	assert.Equal(t, "grid.png", inst.Material.Texture)
	assert.False(t, h.g.IsAttached(inst.Ctx.Content), "preloaded content is not on stage yet")
}

func TestPreload_CancelledByNavigation(t *testing.T) {
	h := newHarness(t, slide(1), slide(1), slide(1), slide(1))
	h.c.GoToSlide(0)
	h.advance(time.Second)
	h.c.GoToSlide(2)
	h.advance(600 * time.Millisecond)
	assert.Empty(t, h.render.prepared, "first preload was cancelled")

	h.advance(time.Second)
	inst, ok := h.c.Instance(3)
	require.True(t, ok)
	assert.Equal(t, []scene.NodeID{inst.Ctx.Content}, h.render.prepared)
}

func TestPreload_TextureFailureIsAStumble(t *testing.T) {
	e := slide(1)
	e.Floor.Texture = "missing.png"
	h := newHarness(t, slide(1), e)
	h.render.failTex = true
	h.c.GoToSlide(0)
	h.advance(DefaultPreloadDelay)

	_, stumbles := h.c.Trips().Count()
	assert.Equal(t, 1, stumbles)
	inst, ok := h.c.Instance(1)
	require.True(t, ok)
	assert.Nil(t, inst.Material)
}

func TestGoToSlide_InstantiationFailureIsNoOp(t *testing.T) {
	bad := slide(1)
	bad.Params["panic_setup"] = true
	h := newHarness(t, slide(2), bad)
	h.c.GoToSlide(0)
	h.c.AdvanceStep()
	before := h.g.Len()

	h.c.AdvanceStep()
	assert.Equal(t, [2]int{0, 1}, h.state())
	assert.Equal(t, before, h.g.Len(), "partial content was freed")

	trips := h.c.Trips().Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, trip.KindSlide, trips[0].Kind)
	assert.Equal(t, 1, trips[0].Slide)

	h.c.GoToSlide(1)
	assert.Equal(t, [2]int{0, 1}, h.state())
}

func TestGoToSlide_ConstructorFailureIsNoOp(t *testing.T) {
	h := newHarness(t, slide(1))
	h.c.descs = append(h.c.descs, Descriptor{
		Entry: deck.Entry{Index: 1, Type: "broken"},
		ctor:  func(deck.Entry) (Slide, error) { return nil, errors.New("cannot build") },
	})
	h.c.GoToSlide(0)
	h.c.GoToSlide(1)
	assert.Equal(t, [2]int{0, 0}, h.state())
	assert.Equal(t, 0, h.c.StepCount(1))
}

func TestAutoplay(t *testing.T) {
	h := newHarness(t, slide(2), slide(1))
	assert.True(t, h.c.ToggleAutoplay(2*time.Second))
	assert.True(t, h.c.Autoplaying())

	h.advance(2 * time.Second)
	assert.Equal(t, [2]int{0, 0}, h.state())
	h.advance(2 * time.Second)
	assert.Equal(t, [2]int{0, 1}, h.state())

	assert.False(t, h.c.ToggleAutoplay(2*time.Second))
	h.advance(10 * time.Second)
	assert.Equal(t, [2]int{0, 1}, h.state())
}

func TestReplace_RebuildsCurrentSlide(t *testing.T) {
	h := newHarness(t, slide(1), slide(3), slide(1))
	h.c.GoToSlide(1)
	h.c.AdvanceStep()
	h.c.AdvanceStep()
	old, _ := h.c.Instance(1)

	reg := NewRegistry()
	var built []*fakeSlide
	reg.Register("fake", func(e deck.Entry) (Slide, error) {
		s := &fakeSlide{steps: 2}
		built = append(built, s)
		return s, nil
	})
	descs, err := reg.Compile([]deck.Entry{{Index: 0, Type: "fake"}, {Index: 1, Type: "fake"}})
	require.NoError(t, err)

	h.c.Replace(descs)
	assert.Equal(t, [2]int{1, 1}, h.state(), "step clamped to the new step count")
	assert.False(t, h.g.Valid(old.Ctx.Content))
	inst, ok := h.c.Instance(1)
	require.True(t, ok)
	assert.True(t, h.g.IsAttached(inst.Ctx.Content))
}

func TestReplace_ClampsSlideIndex(t *testing.T) {
	h := newHarness(t, slide(1), slide(1), slide(1))
	h.c.GoToSlide(2)
	descs := h.c.descs[:1]
	h.c.Replace(descs)
	assert.Equal(t, [2]int{0, 0}, h.state())
}

func TestCompile_RejectsUnknownTypeAndBadParams(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fake", func(e deck.Entry) (Slide, error) {
		var p fakeParams
		if err := e.DecodeParams(&p); err != nil {
			return nil, err
		}
		if p.Fail {
			return nil, errors.New("bad combination")
		}
		return &fakeSlide{}, nil
	})
	assert.Equal(t, []string{"fake"}, reg.Tags())

	_, err := reg.Compile([]deck.Entry{{Index: 0, Type: "fake"}, {Index: 1, Type: "hologram"}})
	var ce *deck.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Index)
	assert.ErrorIs(t, err, deck.ErrUnknownType)

	_, err = reg.Compile([]deck.Entry{{Index: 0, Type: "fake", Params: map[string]any{"colour": "red"}}})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "params", ce.Field)

	_, err = reg.Compile([]deck.Entry{{Index: 0, Type: "fake", Params: map[string]any{"fail": true}}})
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "bad combination")
}
