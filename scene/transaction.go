package scene

import (
	"time"
)

type property uint8

const (
	propPosition property = iota
	propRotation
	propScale
	propOpacity
	propColor
	propEmission
	propIntensity
	propValue
)

// scope is one open or committed transaction.
type scope struct {
	duration   time.Duration
	completion []func()
	pending    int
	committed  bool
	fired      bool
}

type animation struct {
	node  NodeID
	prop  property
	key   string
	from  Node
	to    Node
	start time.Time
	dur   time.Duration
	owner *scope
}

// Begin opens a transaction. Property changes made until the matching Commit
// animate over d; a zero d applies them instantly. Transactions nest, and a
// change always uses the innermost open transaction.
func (g *Graph) Begin(d time.Duration) {
	if d < 0 {
		d = 0
	}
	g.scopes = append(g.scopes, &scope{duration: d})
}

// SetCompletion registers fn to run on the loop once every animation started
// by the innermost open transaction has finished. It runs on the next Tick
// even when nothing animated.
func (g *Graph) SetCompletion(fn func()) {
	if len(g.scopes) == 0 || fn == nil {
		return
	}
	s := g.scopes[len(g.scopes)-1]
	s.completion = append(s.completion, fn)
}

// Commit closes the innermost transaction.
func (g *Graph) Commit() {
	k := len(g.scopes)
	if k == 0 {
		return
	}
	s := g.scopes[k-1]
	g.scopes = g.scopes[:k-1]
	s.committed = true
	g.maybeReady(s)
}

// Transaction runs body inside Begin(d)/Commit and registers done as the
// completion.
func (g *Graph) Transaction(d time.Duration, body func(), done func()) {
	g.Begin(d)
	g.SetCompletion(done)
	body()
	g.Commit()
}

// Flush commits every open transaction.
func (g *Graph) Flush() {
	for len(g.scopes) > 0 {
		g.Commit()
	}
}

// Animating reports whether any animation is still running.
func (g *Graph) Animating() bool {
	return len(g.anims) > 0
}

// Tick retires animations that finished by now and runs the completions of
// transactions with nothing left to animate. It returns the number of
// completions run.
func (g *Graph) Tick(now time.Time) int {
	kept := g.anims[:0]
	var finished []*animation
	for _, a := range g.anims {
		if now.Sub(a.start) >= a.dur {
			finished = append(finished, a)
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(g.anims); i++ {
		g.anims[i] = nil
	}
	g.anims = kept
	for _, a := range finished {
		g.release(a.owner)
	}
	return g.fireReady()
}

// Settle jumps every running animation to its end and runs the resulting
// completions. Batch exports use it to capture the resting state of a step.
func (g *Graph) Settle() int {
	total := 0
	for i := 0; i < 16; i++ {
		g.Flush()
		pending := g.anims
		g.anims = nil
		for _, a := range pending {
			g.release(a.owner)
		}
		n := g.fireReady()
		total += n
		if n == 0 && len(g.anims) == 0 {
			break
		}
	}
	return total
}

func (g *Graph) fireReady() int {
	ready := g.ready
	g.ready = nil
	n := 0
	for _, s := range ready {
		for _, fn := range s.completion {
			fn()
			n++
		}
	}
	return n
}

func (g *Graph) release(s *scope) {
	if s == nil {
		return
	}
	s.pending--
	g.maybeReady(s)
}

func (g *Graph) maybeReady(s *scope) {
	if s.committed && s.pending <= 0 && !s.fired {
		s.fired = true
		if len(s.completion) > 0 {
			g.ready = append(g.ready, s)
		}
	}
}

// set applies a model change and, inside an animated transaction, starts an
// animation from the presented value to the new one.
func (g *Graph) set(id NodeID, p property, key string, apply func(*Node)) {
	n := g.lookup(id)
	if n == nil {
		return
	}
	from := g.Presented(id)
	g.cancelAnimation(id, p, key)
	apply(n)

	var cur *scope
	if k := len(g.scopes); k > 0 {
		cur = g.scopes[k-1]
	}
	if cur == nil || cur.duration <= 0 {
		return
	}
	to := *n
	cur.pending++
	g.anims = append(g.anims, &animation{
		node:  id,
		prop:  p,
		key:   key,
		from:  from,
		to:    to,
		start: g.now(),
		dur:   cur.duration,
		owner: cur,
	})
}

func (g *Graph) cancelAnimation(id NodeID, p property, key string) {
	kept := g.anims[:0]
	var dropped []*animation
	for _, a := range g.anims {
		if a.node == id && a.prop == p && a.key == key {
			dropped = append(dropped, a)
			continue
		}
		kept = append(kept, a)
	}
	g.anims = kept
	for _, a := range dropped {
		g.release(a.owner)
	}
}

func (g *Graph) dropAnimations(id NodeID) {
	kept := g.anims[:0]
	var dropped []*animation
	for _, a := range g.anims {
		if a.node == id {
			dropped = append(dropped, a)
			continue
		}
		kept = append(kept, a)
	}
	g.anims = kept
	for _, a := range dropped {
		g.release(a.owner)
	}
}

// Presented returns the node as the renderer should show it right now:
// model values with running animations interpolated.
func (g *Graph) Presented(id NodeID) Node {
	if !g.Valid(id) {
		return Node{}
	}
	n := g.Get(id)
	now := g.now()
	for _, a := range g.anims {
		if a.node != id {
			continue
		}
		t := float32(1)
		if a.dur > 0 {
			t = float32(now.Sub(a.start)) / float32(a.dur)
		}
		t = easeInOut(t)
		switch a.prop {
		case propPosition:
			n.Position = a.from.Position.Lerp(a.to.Position, t)
		case propRotation:
			n.Rotation = a.from.Rotation.Lerp(a.to.Rotation, t)
		case propScale:
			n.Scale = lerp(a.from.Scale, a.to.Scale, t)
		case propOpacity:
			n.Opacity = lerp(a.from.Opacity, a.to.Opacity, t)
		case propColor:
			n.Color = a.from.Color.Lerp(a.to.Color, t)
		case propEmission:
			n.Emission = a.from.Emission.Lerp(a.to.Emission, t)
		case propIntensity:
			n.Intensity = lerp(a.from.Intensity, a.to.Intensity, t)
		case propValue:
			v := make(map[string]float32, len(n.Values))
			for k, val := range n.Values {
				v[k] = val
			}
			v[a.key] = lerp(a.from.Value(a.key), a.to.Value(a.key), t)
			n.Values = v
		}
	}
	return n
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
