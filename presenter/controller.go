package presenter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teranos/showreel/runloop"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
	"github.com/teranos/showreel/trip"
)

// Timings of the sequencer.
const (
	DefaultPreloadDelay     = 1500 * time.Millisecond
	DefaultOrderOutDuration = time.Second
)

// Options configures a Controller. Zero values pick the defaults.
type Options struct {
	Logger           *slog.Logger
	Trips            *trip.Handler
	Renderer         Renderer
	PreloadDelay     time.Duration
	OrderOutDuration time.Duration
}

// Instance is one instantiated slide, cached by index.
type Instance struct {
	Slide    Slide
	Ctx      *Context
	Material *Material
}

// Controller walks a deck of slides step by step. All methods must run on
// the loop.
type Controller struct {
	g      *scene.Graph
	loop   *runloop.Loop
	stage  *Stage
	descs  []Descriptor
	log    *slog.Logger
	trips  *trip.Handler
	render Renderer

	preloadDelay time.Duration
	orderOut     time.Duration

	index     int
	step      int
	direction int
	// generation changes on every slide change so stale completions can
	// tell they lost the race.
	generation uint64

	cache    map[int]*Instance
	fading   map[*Instance]bool
	preload  *runloop.Token
	autoplay *runloop.Token
}

// New creates an Idle controller over descs. It registers the graph's
// animation tick on the loop.
func New(g *scene.Graph, loop *runloop.Loop, stage *Stage, descs []Descriptor, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Trips == nil {
		opts.Trips = trip.NewHandler("presenter", opts.Logger, trip.DefaultPolicy())
	}
	if opts.PreloadDelay <= 0 {
		opts.PreloadDelay = DefaultPreloadDelay
	}
	if opts.OrderOutDuration <= 0 {
		opts.OrderOutDuration = DefaultOrderOutDuration
	}
	c := &Controller{
		g:            g,
		loop:         loop,
		stage:        stage,
		descs:        descs,
		log:          opts.Logger,
		trips:        opts.Trips,
		render:       opts.Renderer,
		preloadDelay: opts.PreloadDelay,
		orderOut:     opts.OrderOutDuration,
		index:        -1,
		direction:    1,
		cache:        map[int]*Instance{},
		fading:       map[*Instance]bool{},
	}
	loop.OnTick(g.Tick)
	return c
}

// State returns the current slide and step. Slide is -1 while Idle.
func (c *Controller) State() (slide, step int) {
	return c.index, c.step
}

// Idle reports whether no slide has been shown yet.
func (c *Controller) Idle() bool {
	return c.index < 0
}

// Direction is +1 or -1 for the last slide change.
func (c *Controller) Direction() int {
	return c.direction
}

// SlideCount is the number of slides in the deck.
func (c *Controller) SlideCount() int {
	return len(c.descs)
}

// StepCount is the step count of slide i, instantiating it if needed. It
// returns 0 for slides that cannot be instantiated.
func (c *Controller) StepCount(i int) int {
	inst, ok := c.instance(i)
	if !ok {
		return 0
	}
	return stepCount(inst)
}

// Descriptor returns the descriptor of slide i.
func (c *Controller) Descriptor(i int) (Descriptor, bool) {
	if i < 0 || i >= len(c.descs) {
		return Descriptor{}, false
	}
	return c.descs[i], true
}

// Instance returns the cached instance of slide i without creating it.
func (c *Controller) Instance(i int) (*Instance, bool) {
	inst, ok := c.cache[i]
	return inst, ok
}

// Cached lists the indices with a cached instance.
func (c *Controller) Cached() []int {
	out := make([]int, 0, len(c.cache))
	for i := range c.cache {
		out = append(out, i)
	}
	return out
}

// Stage returns the shared stage.
func (c *Controller) Stage() *Stage {
	return c.stage
}

// Graph returns the scene graph.
func (c *Controller) Graph() *scene.Graph {
	return c.g
}

// Trips returns the handler non-fatal failures are recorded on.
func (c *Controller) Trips() *trip.Handler {
	return c.trips
}

func stepCount(inst *Instance) int {
	if n := inst.Slide.StepCount(); n > 0 {
		return n
	}
	return 1
}

// AdvanceStep shows the next step, rolling over to the next slide after the
// last step. From Idle it shows the first slide.
func (c *Controller) AdvanceStep() {
	if c.index < 0 {
		c.GoToSlide(0)
		return
	}
	inst, ok := c.cache[c.index]
	if ok && c.step+1 < stepCount(inst) {
		c.step++
		c.present(inst, c.step)
		return
	}
	c.GoToSlide(c.index + 1)
}

// PreviousSlide goes back one slide. It does nothing on the first slide.
func (c *Controller) PreviousSlide() {
	if c.index >= 1 {
		c.GoToSlide(c.index - 1)
	}
}

// Restart goes back to the first slide.
func (c *Controller) Restart() {
	c.GoToSlide(0)
}

// GoToSlide shows step 0 of slide i. Out-of-range indices and slides that
// fail to instantiate leave the state unchanged.
func (c *Controller) GoToSlide(i int) {
	c.goToSlide(i, c.index < 0)
}

// goToSlide does the work of GoToSlide. With instant set the camera stays
// where it is and nothing animates.
func (c *Controller) goToSlide(i int, instant bool) {
	if i < 0 || i >= len(c.descs) {
		return
	}
	// returning to the current slide starts it over from a fresh instance
	stale, again := c.cache[i]
	if again && i == c.index {
		delete(c.cache, i)
	} else {
		stale = nil
	}
	inst, ok := c.instance(i)
	if !ok {
		if stale != nil {
			c.cache[i] = stale
		}
		return
	}
	if stale != nil {
		delete(c.fading, stale)
		c.evict(i, stale)
	}

	prevIndex := c.index
	prev := c.cache[prevIndex]
	if prevIndex == i {
		prev = nil
	}
	direction := 1
	if i < prevIndex {
		direction = -1
	}

	// forward transitions use the incoming slide's geometry, backward ones
	// undo the outgoing slide's
	geometry := inst.Ctx.Entry.Transition
	if direction < 0 && prev != nil {
		geometry = prev.Ctx.Entry.Transition
	}
	dir := float32(direction)
	yaw := c.stage.RigYaw()
	offset := scene.V3(geometry.OffsetX, 0, geometry.OffsetZ).RotateY(-yaw).Scale(dir)
	rotation := scene.Radians(geometry.Rotation) * dir
	duration := seconds(inst.Ctx.Entry.Transition.Duration)
	switch {
	case instant:
		offset, rotation, duration = scene.Vec3{}, 0, 0
	case prevIndex == i:
		// already in this slide's frame
		offset, rotation = scene.Vec3{}, 0
	}
	fadeOnly := offset.IsZero() && rotation == 0

	c.index, c.step, c.direction = i, 0, direction
	c.generation++
	gen := c.generation
	delete(c.fading, inst)

	rigPos := c.stage.RigPosition().Add(offset)
	rigYaw := yaw + rotation
	entry := inst.Ctx.Entry

	c.log.Debug("go to slide",
		"index", i, "type", entry.Type, "direction", direction,
		"duration", duration, "fade_only", fadeOnly)

	c.g.AddChild(c.stage.Slides, inst.Ctx.Content)

	c.g.Begin(duration)
	c.g.SetCompletion(func() {
		if c.generation == gen {
			c.orderIn(inst)
		}
	})
	if !fadeOnly {
		c.stage.MoveRig(rigPos, rigYaw)
	}
	c.stage.SetCamera(entry.Camera)
	c.stage.SetLights(entry.Lights)
	c.stage.SetFloor(entry.Floor)

	c.g.Transaction(0, func() {
		c.g.SetOpacity(inst.Ctx.Content, 0)
	}, nil)
	c.g.Transaction(duration, func() {
		c.g.SetOpacity(inst.Ctx.Content, 1)
	}, nil)
	c.g.Commit()

	// layout below works in the camera frame the transition ends in
	c.g.Transaction(0, func() {
		for _, id := range []scene.NodeID{inst.Ctx.TextRoot, inst.Ctx.Ground} {
			c.g.SetPosition(id, rigPos)
			c.g.SetRotation(id, scene.V3(0, rigYaw, 0))
		}
	}, nil)

	c.present(inst, 0)

	c.preload.Cancel()
	c.preload = c.loop.After(c.preloadDelay, func() {
		if c.generation == gen {
			c.preloadSlide(i + 1)
		}
	})

	if prev != nil {
		c.orderOutSlide(prevIndex, prev)
	}
	c.evictStale()
}

func (c *Controller) present(inst *Instance, step int) {
	defer c.recoverSlide(inst.Ctx.Index, step, "present")
	inst.Slide.Present(step, inst.Ctx)
}

func (c *Controller) orderIn(inst *Instance) {
	defer c.recoverSlide(inst.Ctx.Index, c.step, "order in")
	inst.Slide.DidOrderIn(inst.Ctx)
}

func (c *Controller) orderOutSlide(index int, inst *Instance) {
	func() {
		defer c.recoverSlide(index, 0, "order out")
		inst.Slide.WillOrderOut(inst.Ctx)
	}()
	c.fading[inst] = true
	c.g.Transaction(c.orderOut, func() {
		c.g.SetOpacity(inst.Ctx.Content, 0)
	}, func() {
		if !c.fading[inst] {
			// shown again while fading
			return
		}
		delete(c.fading, inst)
		c.evict(index, inst)
	})
}

// evictStale drops every cached instance that is not the current slide,
// the next one, or still fading out.
func (c *Controller) evictStale() {
	for i, inst := range c.cache {
		if i == c.index || i == c.index+1 || c.fading[inst] {
			continue
		}
		c.evict(i, inst)
	}
}

func (c *Controller) evict(i int, inst *Instance) {
	if c.cache[i] == inst {
		delete(c.cache, i)
	}
	c.g.Destroy(inst.Ctx.Content)
	inst.Material = nil
	c.log.Debug("evicted slide", "index", i)
}

// instance returns the cached instance of slide i, creating and setting it
// up on first use. Failures are recorded and reported as !ok.
func (c *Controller) instance(i int) (*Instance, bool) {
	if i < 0 || i >= len(c.descs) {
		return nil, false
	}
	if inst, ok := c.cache[i]; ok {
		return inst, true
	}
	desc := c.descs[i]
	slide, err := desc.New()
	if err != nil {
		c.trips.Record(trip.New(trip.KindSlide, "instantiate slide", err).At(i, 0).With("type", desc.Entry.Type))
		return nil, false
	}

	content := c.g.NewNode(fmt.Sprintf("slide-%02d", i), scene.KindGroup)
	ground := c.g.NewChild(content, "ground", scene.KindGroup)
	textRoot := c.g.NewChild(content, "text", scene.KindGroup)
	ctx := &Context{
		Index:    i,
		Entry:    desc.Entry,
		Graph:    c.g,
		Loop:     c.loop,
		Stage:    c.stage,
		Logger:   c.log.With("slide", i, "type", desc.Entry.Type),
		Content:  content,
		Ground:   ground,
		TextRoot: textRoot,
		Text:     textlayout.New(c.g, textRoot),
	}
	inst := &Instance{Slide: slide, Ctx: ctx}

	if err := c.setup(inst); err != nil {
		c.g.Destroy(content)
		c.trips.Record(trip.New(trip.KindSlide, "set up slide", err).At(i, 0).With("type", desc.Entry.Type))
		return nil, false
	}
	c.cache[i] = inst
	return inst, true
}

func (c *Controller) setup(inst *Instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.g.Flush()
			err = fmt.Errorf("setup panicked: %v", r)
		}
	}()
	c.g.Transaction(0, func() {
		inst.Slide.Setup(inst.Ctx)
	}, nil)
	return nil
}

// preloadSlide instantiates slide i ahead of time and lets the renderer
// warm its nodes and floor texture.
func (c *Controller) preloadSlide(i int) {
	if i >= len(c.descs) {
		return
	}
	c.g.Flush()
	inst, ok := c.instance(i)
	if !ok || c.render == nil {
		return
	}
	if err := c.render.Prepare(c.g, inst.Ctx.Content); err != nil {
		c.trips.Record(trip.NewStumble(trip.KindPreload, "prepare slide", err).At(i, 0))
	}
	if tex := inst.Ctx.Entry.Floor.Texture; tex != "" {
		m, err := c.render.PrepareTexture(tex)
		if err != nil {
			c.trips.Record(trip.NewStumble(trip.KindPreload, "prepare floor texture", err).At(i, 0).With("texture", tex))
			return
		}
		inst.Material = m
	}
	c.log.Debug("preloaded slide", "index", i)
}

func (c *Controller) recoverSlide(index, step int, hook string) {
	if r := recover(); r != nil {
		// hooks run with no transaction of ours open; close what the slide
		// left behind
		c.g.Flush()
		c.trips.Record(trip.New(trip.KindSlide, hook+" panicked", fmt.Errorf("%v", r)).At(index, step))
	}
}

// ToggleAutoplay starts or stops advancing one step every interval. It
// reports whether autoplay is now on.
func (c *Controller) ToggleAutoplay(interval time.Duration) bool {
	if c.autoplay != nil {
		c.autoplay.Cancel()
		c.autoplay = nil
		c.log.Info("autoplay off")
		return false
	}
	c.autoplay = c.loop.Every(interval, c.AdvanceStep)
	c.log.Info("autoplay on", "interval", interval)
	return true
}

// Autoplaying reports whether autoplay is on.
func (c *Controller) Autoplaying() bool {
	return c.autoplay != nil
}

// Settle finishes every running animation and fires the completions. Used
// before capturing a step.
func (c *Controller) Settle() {
	c.g.Settle()
}

// Replace swaps in a new deck, rebuilding the slide that is on screen and
// replaying it to the step it was at.
func (c *Controller) Replace(descs []Descriptor) {
	c.preload.Cancel()
	c.preload = nil
	for i, inst := range c.cache {
		c.evict(i, inst)
	}
	for inst := range c.fading {
		c.g.Destroy(inst.Ctx.Content)
	}
	c.fading = map[*Instance]bool{}
	c.descs = descs

	index, step := c.index, c.step
	c.index, c.step = -1, 0
	if index < 0 || len(descs) == 0 {
		return
	}
	if index >= len(descs) {
		index = len(descs) - 1
	}
	c.goToSlide(index, true)
	for c.index == index && c.step < step && c.step+1 < c.StepCount(index) {
		c.AdvanceStep()
	}
}

func seconds(s float32) time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}
