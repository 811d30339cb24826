// Package scene is the node arena the show draws from.
//
// Nodes live in a slice owned by Graph and are addressed by NodeID handles;
// a node stores its parent as a handle and its children as a list of
// handles. Freed slots are recycled with a generation counter so a stale
// handle never aliases a new node.
//
// Property setters write the model value immediately. When called inside an
// animated transaction (see Begin) they also start an animation from the
// currently presented value, so layout code can rely on model values while
// the renderer shows the interpolation.
package scene

import (
	"time"
)

// NodeID is a generation-tagged handle into a Graph. The zero value is "no
// node".
type NodeID uint64

const None NodeID = 0

func makeID(slot uint32, gen uint32) NodeID {
	return NodeID(uint64(gen)<<32 | uint64(slot+1))
}

func (id NodeID) slot() int { return int(uint32(id)) - 1 }

func (id NodeID) gen() uint32 { return uint32(uint64(id) >> 32) }

// Kind tags what a node stands for; the renderer draws text and reads the
// rest as parameters.
type Kind uint8

const (
	KindGroup Kind = iota
	KindText
	KindShape
	KindLight
	KindCamera
	KindFloor
)

var kindNames = [...]string{"group", "text", "shape", "light", "camera", "floor"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node holds the model values of one scene node.
type Node struct {
	Name     string
	Kind     Kind
	Parent   NodeID
	Children []NodeID

	Position  Vec3
	Rotation  Vec3 // Euler angles, radians
	Scale     float32
	Opacity   float32
	Hidden    bool
	Text      string
	FontSize  float32
	Color     Color
	Emission  Color
	Intensity float32
	// Values holds named scalar parameters (floor reflectivity, level...).
	Values map[string]float32
}

// Value returns a named scalar parameter, or 0.
func (n Node) Value(key string) float32 {
	return n.Values[key]
}

type slot struct {
	gen  uint32
	live bool
	node Node
}

// Graph owns every node of a show.
type Graph struct {
	slots []slot
	free  []uint32
	root  NodeID
	now   func() time.Time

	scopes []*scope
	anims  []*animation
	ready  []*scope
}

// New creates a graph with an empty root group. now supplies the clock that
// animations start from; it is normally the run loop's Now.
func New(now func() time.Time) *Graph {
	if now == nil {
		now = time.Now
	}
	g := &Graph{now: now}
	g.root = g.NewNode("root", KindGroup)
	return g
}

// Root returns the handle of the scene root.
func (g *Graph) Root() NodeID {
	return g.root
}

// NewNode allocates a detached node.
func (g *Graph) NewNode(name string, kind Kind) NodeID {
	n := Node{
		Name:    name,
		Kind:    kind,
		Scale:   1,
		Opacity: 1,
		Color:   RGB(1, 1, 1),
	}
	if k := len(g.free); k > 0 {
		idx := g.free[k-1]
		g.free = g.free[:k-1]
		s := &g.slots[idx]
		s.gen++
		s.live = true
		s.node = n
		return makeID(idx, s.gen)
	}
	g.slots = append(g.slots, slot{gen: 1, live: true, node: n})
	return makeID(uint32(len(g.slots)-1), 1)
}

// NewChild allocates a node and attaches it under parent.
func (g *Graph) NewChild(parent NodeID, name string, kind Kind) NodeID {
	id := g.NewNode(name, kind)
	g.AddChild(parent, id)
	return id
}

// Valid reports whether id refers to a live node.
func (g *Graph) Valid(id NodeID) bool {
	return g.lookup(id) != nil
}

func (g *Graph) lookup(id NodeID) *Node {
	if id == None {
		return nil
	}
	i := id.slot()
	if i < 0 || i >= len(g.slots) {
		return nil
	}
	s := &g.slots[i]
	if !s.live || s.gen != id.gen() {
		return nil
	}
	return &s.node
}

// Get returns a copy of the node's model values. The zero Node is returned
// for invalid handles.
func (g *Graph) Get(id NodeID) Node {
	n := g.lookup(id)
	if n == nil {
		return Node{}
	}
	cp := *n
	cp.Children = append([]NodeID(nil), n.Children...)
	return cp
}

// Parent returns the parent handle or None.
func (g *Graph) Parent(id NodeID) NodeID {
	if n := g.lookup(id); n != nil {
		return n.Parent
	}
	return None
}

// Children returns a copy of the child handles in order.
func (g *Graph) Children(id NodeID) []NodeID {
	if n := g.lookup(id); n != nil {
		return append([]NodeID(nil), n.Children...)
	}
	return nil
}

// IsAttached reports whether id is reachable from the root.
func (g *Graph) IsAttached(id NodeID) bool {
	for cur := id; cur != None; cur = g.Parent(cur) {
		if cur == g.root {
			return true
		}
	}
	return false
}

// AddChild re-parents child under parent, appending it last. A node cannot
// become its own ancestor.
func (g *Graph) AddChild(parent, child NodeID) {
	p, c := g.lookup(parent), g.lookup(child)
	if p == nil || c == nil || parent == child {
		return
	}
	for cur := parent; cur != None; cur = g.Parent(cur) {
		if cur == child {
			return
		}
	}
	g.RemoveFromParent(child)
	p = g.lookup(parent)
	c = g.lookup(child)
	p.Children = append(p.Children, child)
	c.Parent = parent
}

// RemoveFromParent detaches id; it stays allocated.
func (g *Graph) RemoveFromParent(id NodeID) {
	n := g.lookup(id)
	if n == nil || n.Parent == None {
		return
	}
	if p := g.lookup(n.Parent); p != nil {
		for i, ch := range p.Children {
			if ch == id {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
	}
	n.Parent = None
}

// Destroy detaches id and frees it together with its whole subtree.
// Animations on freed nodes are dropped.
func (g *Graph) Destroy(id NodeID) {
	if g.lookup(id) == nil || id == g.root {
		return
	}
	g.RemoveFromParent(id)
	var doomed []NodeID
	g.Walk(id, func(n NodeID, _ int) bool {
		doomed = append(doomed, n)
		return true
	})
	for _, n := range doomed {
		g.dropAnimations(n)
		i := n.slot()
		g.slots[i].live = false
		g.slots[i].node = Node{}
		g.free = append(g.free, uint32(i))
	}
}

// Walk visits id and its descendants depth first. Returning false from fn
// skips the node's children.
func (g *Graph) Walk(id NodeID, fn func(id NodeID, depth int) bool) {
	g.walk(id, 0, fn)
}

func (g *Graph) walk(id NodeID, depth int, fn func(NodeID, int) bool) {
	n := g.lookup(id)
	if n == nil {
		return
	}
	if !fn(id, depth) {
		return
	}
	for _, ch := range g.Children(id) {
		g.walk(ch, depth+1, fn)
	}
}

// Find returns the first descendant of id (including id) with the name.
func (g *Graph) Find(id NodeID, name string) NodeID {
	found := None
	g.Walk(id, func(n NodeID, _ int) bool {
		if found != None {
			return false
		}
		if g.lookup(n).Name == name {
			found = n
			return false
		}
		return true
	})
	return found
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	return len(g.slots) - len(g.free)
}

// SetName renames a node; names are not animated.
func (g *Graph) SetName(id NodeID, name string) {
	if n := g.lookup(id); n != nil {
		n.Name = name
	}
}

// SetText changes a text node's string; text is not animated.
func (g *Graph) SetText(id NodeID, text string) {
	if n := g.lookup(id); n != nil {
		n.Text = text
	}
}

// SetFontSize changes a text node's point size; not animated.
func (g *Graph) SetFontSize(id NodeID, size float32) {
	if n := g.lookup(id); n != nil {
		n.FontSize = size
	}
}

// SetHidden toggles visibility; not animated.
func (g *Graph) SetHidden(id NodeID, hidden bool) {
	if n := g.lookup(id); n != nil {
		n.Hidden = hidden
	}
}

func (g *Graph) SetPosition(id NodeID, v Vec3) {
	g.set(id, propPosition, "", func(n *Node) { n.Position = v })
}

func (g *Graph) SetRotation(id NodeID, v Vec3) {
	g.set(id, propRotation, "", func(n *Node) { n.Rotation = v })
}

func (g *Graph) SetScale(id NodeID, s float32) {
	g.set(id, propScale, "", func(n *Node) { n.Scale = s })
}

func (g *Graph) SetOpacity(id NodeID, o float32) {
	g.set(id, propOpacity, "", func(n *Node) { n.Opacity = o })
}

func (g *Graph) SetColor(id NodeID, c Color) {
	g.set(id, propColor, "", func(n *Node) { n.Color = c })
}

func (g *Graph) SetEmission(id NodeID, c Color) {
	g.set(id, propEmission, "", func(n *Node) { n.Emission = c })
}

func (g *Graph) SetIntensity(id NodeID, v float32) {
	g.set(id, propIntensity, "", func(n *Node) { n.Intensity = v })
}

// SetValue sets a named scalar parameter.
func (g *Graph) SetValue(id NodeID, key string, v float32) {
	g.set(id, propValue, key, func(n *Node) {
		// copy on write: animations keep the map they captured
		values := make(map[string]float32, len(n.Values)+1)
		for k, val := range n.Values {
			values[k] = val
		}
		values[key] = v
		n.Values = values
	})
}

// WorldPosition composes model positions and yaw up to the root.
func (g *Graph) WorldPosition(id NodeID) Vec3 {
	pos, _, _ := g.world(id, g.Get)
	return pos
}

// PresentedWorld composes presented values up to the root and returns the
// world position, accumulated yaw and effective opacity of id.
func (g *Graph) PresentedWorld(id NodeID) (Vec3, float32, float32) {
	return g.world(id, g.Presented)
}

func (g *Graph) world(id NodeID, get func(NodeID) Node) (Vec3, float32, float32) {
	var chain []Node
	for cur := id; cur != None; {
		n := get(cur)
		chain = append(chain, n)
		cur = n.Parent
	}
	var pos Vec3
	var yaw float32
	opacity := float32(1)
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		pos = pos.Add(n.Position.RotateY(yaw))
		yaw += n.Rotation.Y
		opacity *= n.Opacity
		if n.Hidden {
			opacity = 0
		}
	}
	return pos, yaw, opacity
}
