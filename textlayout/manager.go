// Package textlayout stacks slide text in the scene without overlap.
//
// A Manager keeps one baseline cursor per slide and one container node per
// text category. Lines are appended below the cursor; switching category
// resets the cursor by fixed rules, and removing a category gives back the
// space it used, never more.
package textlayout

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/teranos/showreel/scene"
)

// NoHighlight clears bullet or code highlighting.
const NoHighlight = -1

// Transition timings for category show/hide.
const (
	FadeOutDuration = 500 * time.Millisecond
	FlipInDuration  = 500 * time.Millisecond
)

type slot struct {
	container scene.NodeID
	baseline  float32
}

// Manager is the per-slide text layout state.
type Manager struct {
	g        *scene.Graph
	root     scene.NodeID
	slots    [categoryCount]slot
	baseline float32
	previous Category
}

// New returns a manager that places text under root.
func New(g *scene.Graph, root scene.NodeID) *Manager {
	return &Manager{
		g:        g,
		root:     root,
		baseline: TitleBaseline,
		previous: None,
	}
}

// Root is the node every category container hangs from.
func (m *Manager) Root() scene.NodeID {
	return m.root
}

// Baseline returns the current vertical cursor.
func (m *Manager) Baseline() float32 {
	return m.baseline
}

// Previous returns the category of the last line added, or None.
func (m *Manager) Previous() Category {
	return m.previous
}

// Container returns the node lines of c are added to, creating it on first
// use. The cursor position at creation is remembered as the category's
// restore point. Chapter text goes straight into the root.
func (m *Manager) Container(c Category) scene.NodeID {
	if c == Chapter {
		return m.root
	}
	if c < 0 || int(c) >= categoryCount {
		return scene.None
	}
	s := &m.slots[c]
	if s.container != scene.None && m.g.Valid(s.container) {
		return s.container
	}
	s.container = m.g.NewChild(m.root, c.String(), scene.KindGroup)
	s.baseline = m.baseline
	return s.container
}

// Existing returns the category's container without creating it.
func (m *Manager) Existing(c Category) (scene.NodeID, bool) {
	if c == Chapter {
		return m.root, true
	}
	if c < 0 || int(c) >= categoryCount {
		return scene.None, false
	}
	id := m.slots[c].container
	return id, id != scene.None && m.g.Valid(id)
}

// AddLine places one line of text of category c at indent level and returns
// its node.
func (m *Manager) AddLine(text string, c Category, level int) scene.NodeID {
	if level < 0 {
		level = 0
	}
	parent := m.Container(c)
	if parent == scene.None {
		return scene.None
	}

	x := LeftMargin + float32(level)*IndentWidth
	y := FooterY
	if c != Footer {
		if c != m.previous {
			m.switchCategory(c)
		}
		m.baseline -= LineHeight(c, level)
		m.previous = c
		y = m.baseline
	}

	line := m.g.NewNode(c.String()+"-line", scene.KindText)
	size := FontSize(c, level)
	// a fresh line never animates into place, whatever transaction the
	// caller has open
	m.g.Transaction(0, func() {
		m.g.SetText(line, text)
		m.g.SetFontSize(line, size)
		m.g.SetScale(line, size*TextScale)
		m.g.SetColor(line, TextColor(c, level))
		m.g.SetValue(line, "level", float32(level))
		m.g.SetPosition(line, scene.V3(x, y, 0))
	}, nil)
	m.g.AddChild(parent, line)
	return line
}

// AddLines adds several lines of one category at the same level.
func (m *Manager) AddLines(c Category, level int, lines ...string) []scene.NodeID {
	ids := make([]scene.NodeID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, m.AddLine(l, c, level))
	}
	return ids
}

// switchCategory moves the cursor for the first line of next. Headings
// always start at their own baseline. Content after a heading starts at the
// content baseline, after other content one gap lower, and with nothing
// before it (a fresh slide, or just after a removal) right at the cursor.
func (m *Manager) switchCategory(next Category) {
	switch {
	case next == Title:
		m.baseline = TitleBaseline
	case next == Subtitle:
		m.baseline = SubtitleBaseline
	case next == Chapter:
		m.baseline = ChapterBaseline
	case m.previous == None:
	case m.previous == Title || m.previous == Subtitle || m.previous == Chapter:
		m.baseline = ContentBaseline
	default:
		m.baseline -= CategoryGap
	}
}

// RemoveCategory fades and tilts the category's container out, detaching it
// when the animation ends. The layout forgets the category immediately.
func (m *Manager) RemoveCategory(c Category) {
	id, ok := m.detachSlot(c)
	if !ok {
		return
	}
	m.g.Transaction(FadeOutDuration, func() {
		m.g.SetOpacity(id, 0)
		m.g.SetRotation(id, scene.V3(-math32.Pi/2, 0, 0))
	}, func() {
		m.g.Destroy(id)
	})
}

// FlipOut removes the category's container without animating.
func (m *Manager) FlipOut(c Category) {
	id, ok := m.detachSlot(c)
	if !ok {
		return
	}
	m.g.Destroy(id)
}

func (m *Manager) detachSlot(c Category) (scene.NodeID, bool) {
	if c == Chapter || c < 0 || int(c) >= categoryCount {
		return scene.None, false
	}
	s := &m.slots[c]
	id := s.container
	if id == scene.None || !m.g.Valid(id) {
		s.container = scene.None
		return scene.None, false
	}
	s.container = scene.None
	m.previous = None
	m.baseline = math32.Max(m.baseline, s.baseline)
	return id, true
}

// FlipIn turns the category's container in from a hidden pose. Nothing
// happens if the category has no container.
func (m *Manager) FlipIn(c Category) {
	id, ok := m.Existing(c)
	if !ok || c == Chapter {
		return
	}
	m.g.Transaction(0, func() {
		m.g.SetRotation(id, scene.V3(-math32.Pi/2, 0, 0))
		m.g.SetOpacity(id, 0)
	}, nil)
	m.g.Transaction(FlipInDuration, func() {
		m.g.SetRotation(id, scene.Vec3{})
		m.g.SetOpacity(id, 1)
	}, nil)
}

// HighlightBullet lights the bullet at index and dims the others.
// NoHighlight restores uniform lighting.
func (m *Manager) HighlightBullet(index int) {
	if index == NoHighlight {
		m.highlight(Bullet, nil)
		return
	}
	m.highlight(Bullet, map[int]bool{index: true})
}

// HighlightCodeChunks lights the code lines at indices and dims the rest.
// No indices, or NoHighlight, restores uniform lighting.
func (m *Manager) HighlightCodeChunks(indices ...int) {
	if len(indices) == 0 || (len(indices) == 1 && indices[0] == NoHighlight) {
		m.highlight(Code, nil)
		return
	}
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	m.highlight(Code, set)
}

func (m *Manager) highlight(c Category, lit map[int]bool) {
	id, ok := m.Existing(c)
	if !ok {
		return
	}
	for i, child := range m.g.Children(id) {
		switch {
		case lit == nil:
			m.g.SetEmission(child, Unlit)
		case lit[i]:
			m.g.SetEmission(child, Highlighted)
		default:
			m.g.SetEmission(child, Dimmed)
		}
	}
}
