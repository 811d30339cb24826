package slides

import (
	"time"

	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
)

// DiagramNode is one box of a tree diagram.
type DiagramNode struct {
	Label    string        `yaml:"label"`
	Children []DiagramNode `yaml:"children"`
}

// DiagramBuilder lays out a tree of labelled boxes. It holds only the
// layout; every Build makes an independent subtree, so slides sharing a
// builder never see each other's highlights.
type DiagramBuilder struct {
	Tree        DiagramNode
	Spacing     float32 // horizontal distance between leaves
	LevelHeight float32
	Top         float32
}

// NewDiagramBuilder returns a builder for the scene graph diagram used by
// the default deck.
func NewDiagramBuilder() *DiagramBuilder {
	return &DiagramBuilder{
		Tree: DiagramNode{Label: "Scene", Children: []DiagramNode{
			{Label: "Root", Children: []DiagramNode{
				{Label: "Camera"},
				{Label: "Light"},
				{Label: "Geometry", Children: []DiagramNode{
					{Label: "Box"},
					{Label: "Text"},
				}},
			}},
		}},
		Spacing:     5,
		LevelHeight: 3,
		Top:         6,
	}
}

// Has reports whether the tree has a box labelled label.
func (b *DiagramBuilder) Has(label string) bool {
	var find func(n DiagramNode) bool
	find = func(n DiagramNode) bool {
		if n.Label == label {
			return true
		}
		for _, c := range n.Children {
			if find(c) {
				return true
			}
		}
		return false
	}
	return find(b.Tree)
}

// Diagram is one built copy of the tree.
type Diagram struct {
	Root  scene.NodeID
	boxes map[string]scene.NodeID
	order []string
}

// Build adds a fresh copy of the diagram under parent.
func (b *DiagramBuilder) Build(g *scene.Graph, parent scene.NodeID) *Diagram {
	d := &Diagram{boxes: map[string]scene.NodeID{}}
	d.Root = g.NewChild(parent, "diagram", scene.KindGroup)

	var leaf float32
	var place func(n DiagramNode, depth int) float32
	place = func(n DiagramNode, depth int) float32 {
		var x float32
		if len(n.Children) == 0 {
			x = leaf * b.Spacing
			leaf++
		} else {
			var sum float32
			for _, c := range n.Children {
				sum += place(c, depth+1)
			}
			x = sum / float32(len(n.Children))
		}
		box := g.NewChild(d.Root, "box", scene.KindShape)
		g.Transaction(0, func() {
			g.SetText(box, n.Label)
			g.SetPosition(box, scene.V3(x, b.Top-float32(depth)*b.LevelHeight, 0))
			g.SetColor(box, textlayout.Blue)
			g.SetValue(box, "depth", float32(depth))
		}, nil)
		d.boxes[n.Label] = box
		d.order = append(d.order, n.Label)
		return x
	}
	place(b.Tree, 0)

	// centre the tree on the slide
	width := (leaf - 1) * b.Spacing
	g.Transaction(0, func() {
		g.SetPosition(d.Root, scene.V3(-width/2, 0, 0))
	}, nil)
	return d
}

// Box returns the node of the box labelled label.
func (d *Diagram) Box(label string) (scene.NodeID, bool) {
	id, ok := d.boxes[label]
	return id, ok
}

// Labels lists the box labels in build order (children before parents).
func (d *Diagram) Labels() []string {
	return d.order
}

// Highlight lights the named boxes and dims the rest over duration. No
// labels clears the highlight.
func (d *Diagram) Highlight(g *scene.Graph, duration time.Duration, labels ...string) {
	lit := make(map[string]bool, len(labels))
	for _, l := range labels {
		lit[l] = true
	}
	g.Transaction(duration, func() {
		for label, id := range d.boxes {
			switch {
			case len(labels) == 0:
				g.SetEmission(id, textlayout.Unlit)
			case lit[label]:
				g.SetEmission(id, textlayout.Highlighted)
			default:
				g.SetEmission(id, textlayout.Dimmed)
			}
		}
	}, nil)
}
