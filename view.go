package showreel

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chewxy/math32"
	_ "golang.org/x/image/webp"

	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/presenter"
	"github.com/teranos/showreel/scene"
	"github.com/teranos/showreel/textlayout"
)

// Projection of scene units onto the character grid. The visible window
// spans viewWidth units across and viewHeight units up, centred on
// viewCentreY, at the default camera altitude.
const (
	viewWidth   float32 = 32
	viewHeight  float32 = 21
	viewCentreY float32 = 6
	// nodes further than this in front of or behind the camera are not drawn
	depthCutoff float32 = 12
	floorY      float32 = textlayout.FooterY - 1
)

type styleKey struct {
	color       string
	bold, faint bool
}

// Screen draws the scene as a camera hovering over the floor would see it,
// one character cell per grid position. It also serves as the controller's
// renderer, warming styles and floor textures ahead of time.
type Screen struct {
	width, height int
	baseDir       string

	styles   map[styleKey]lipgloss.Style
	bar      lipgloss.Style
	textures map[string]*presenter.Material
}

var _ presenter.Renderer = (*Screen)(nil)

// NewScreen creates a screen of width x height cells. Relative texture paths
// resolve against baseDir.
func NewScreen(width, height int, baseDir string) *Screen {
	s := &Screen{
		baseDir:  baseDir,
		styles:   map[styleKey]lipgloss.Style{},
		textures: map[string]*presenter.Material{},
		bar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d0d0d0")).
			Background(lipgloss.Color("#303030")),
	}
	s.Resize(width, height)
	return s
}

// Resize changes the grid size. Sizes below 10x3 are raised to it.
func (s *Screen) Resize(width, height int) {
	s.width, s.height = max(width, 10), max(height, 3)
}

// Size returns the grid size in cells.
func (s *Screen) Size() (int, int) {
	return s.width, s.height
}

func (s *Screen) style(k styleKey) lipgloss.Style {
	if st, ok := s.styles[k]; ok {
		return st
	}
	st := lipgloss.NewStyle().Foreground(lipgloss.Color(k.color)).Bold(k.bold).Faint(k.faint)
	s.styles[k] = st
	return st
}

// Prepare checks that every drawable node under root fits on one line and
// builds the styles it will be drawn with.
func (s *Screen) Prepare(g *scene.Graph, root scene.NodeID) error {
	var err error
	g.Walk(root, func(id scene.NodeID, _ int) bool {
		n := g.Get(id)
		if n.Kind != scene.KindText && n.Kind != scene.KindShape {
			return true
		}
		if strings.ContainsAny(n.Text, "\n\r\t") && err == nil {
			err = fmt.Errorf("node %q: text must be a single line", n.Name)
		}
		s.style(keyFor(n, 1))
		return true
	})
	return err
}

// PrepareTexture decodes a PNG or WebP floor texture and keeps its average
// colour as the floor tint.
func (s *Screen) PrepareTexture(path string) (*presenter.Material, error) {
	if !filepath.IsAbs(path) && s.baseDir != "" {
		path = filepath.Join(s.baseDir, path)
	}
	if m, ok := s.textures[path]; ok {
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	m := &presenter.Material{Texture: path, Tint: averageColor(img)}
	s.textures[path] = m
	return m, nil
}

func averageColor(img image.Image) scene.Color {
	b := img.Bounds()
	// sample at most 64x64 points
	stepX, stepY := max(1, b.Dx()/64), max(1, b.Dy()/64)
	var r, g, bl, n float32
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float32(cr) / 0xffff
			g += float32(cg) / 0xffff
			bl += float32(cb) / 0xffff
			n++
		}
	}
	if n == 0 {
		return textlayout.Gray
	}
	return scene.RGB(r/n, g/n, bl/n)
}

func keyFor(n scene.Node, opacity float32) styleKey {
	k := styleKey{color: n.Color.Hex()}
	if !n.Emission.IsBlack() {
		if luminance(n.Emission) < 0.5 {
			k.faint = true
		} else {
			k.bold = true
		}
	}
	if n.FontSize >= textlayout.FontSize(textlayout.Title, 0) {
		k.bold = true
	}
	if opacity < 0.6 {
		k.faint = true
	}
	return k
}

func luminance(c scene.Color) float32 {
	return 0.2126*c.R + 0.7152*c.G + 0.0722*c.B
}

type cell struct {
	r     rune
	style int // index into grid.styles, -1 for unstyled
}

type grid struct {
	cells  [][]cell
	styles []styleKey
	index  map[styleKey]int
}

func newGrid(w, h int) *grid {
	gr := &grid{cells: make([][]cell, h), index: map[styleKey]int{}}
	for y := range gr.cells {
		gr.cells[y] = make([]cell, w)
		for x := range gr.cells[y] {
			gr.cells[y][x] = cell{r: ' ', style: -1}
		}
	}
	return gr
}

func (gr *grid) put(x, y int, text string, k styleKey) {
	if y < 0 || y >= len(gr.cells) {
		return
	}
	idx, ok := gr.index[k]
	if !ok {
		idx = len(gr.styles)
		gr.styles = append(gr.styles, k)
		gr.index[k] = idx
	}
	row := gr.cells[y]
	for _, r := range text {
		if x >= len(row) {
			return
		}
		if x >= 0 {
			row[x] = cell{r: r, style: idx}
		}
		x++
	}
}

// Render draws the slides as seen from the camera, followed by one status
// line.
func (s *Screen) Render(ctl *presenter.Controller, status string) string {
	g := ctl.Graph()
	st := ctl.Stage()
	rows := s.height - 1
	gr := newGrid(s.width, rows)

	rigPos, rigYaw, _ := g.PresentedWorld(st.Rig)
	altitude := g.Presented(st.Camera).Position.Y
	zoom := deck.Defaults().Camera.Altitude / math32.Max(altitude, 0.5)
	colsPerUnit := float32(s.width) / viewWidth
	rowsPerUnit := float32(rows) / viewHeight

	project := func(world scene.Vec3) (int, int, bool) {
		rel := world.Sub(rigPos).RotateY(-rigYaw)
		if math32.Abs(rel.Z) > depthCutoff {
			return 0, 0, false
		}
		col := float32(s.width)/2 + rel.X*zoom*colsPerUnit
		row := float32(rows)/2 - (rel.Y-viewCentreY)*zoom*rowsPerUnit
		return int(math32.Round(col)), int(math32.Round(row)), true
	}

	s.drawFloor(ctl, gr, project)

	g.Walk(st.Slides, func(id scene.NodeID, _ int) bool {
		n := g.Presented(id)
		if n.Hidden {
			return false
		}
		if n.Kind != scene.KindText && n.Kind != scene.KindShape {
			return true
		}
		pos, _, opacity := g.PresentedWorld(id)
		if opacity < 0.05 || n.Text == "" {
			return true
		}
		x, y, ok := project(pos)
		if !ok {
			return true
		}
		text := n.Text
		if n.Kind == scene.KindShape {
			text = "[" + text + "]"
			// shapes are placed by their centre
			x -= len([]rune(text)) / 2
		}
		gr.put(x, y, text, keyFor(n, opacity))
		return true
	})

	var b strings.Builder
	for y, row := range gr.cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		start := 0
		for x := 1; x <= len(row); x++ {
			if x < len(row) && row[x].style == row[start].style {
				continue
			}
			run := make([]rune, x-start)
			for i := range run {
				run[i] = row[start+i].r
			}
			if idx := row[start].style; idx >= 0 {
				b.WriteString(s.style(gr.styles[idx]).Render(string(run)))
			} else {
				b.WriteString(string(run))
			}
			start = x
		}
	}
	b.WriteByte('\n')
	b.WriteString(s.bar.Width(s.width).MaxWidth(s.width).Render(status))
	return b.String()
}

// drawFloor draws the floor as a horizontal rule below the footer, tinted
// by the current slide's texture and faded by its reflectivity.
func (s *Screen) drawFloor(ctl *presenter.Controller, gr *grid, project func(scene.Vec3) (int, int, bool)) {
	g := ctl.Graph()
	st := ctl.Stage()
	floor := g.Presented(st.Floor)
	reflectivity := floor.Value("reflectivity")
	if reflectivity <= 0 {
		return
	}
	rigPos, _, _ := g.PresentedWorld(st.Rig)
	_, y, ok := project(scene.V3(rigPos.X, floorY, rigPos.Z))
	if !ok {
		return
	}
	tint := textlayout.Gray
	if slide, _ := ctl.State(); slide >= 0 {
		if inst, ok := ctl.Instance(slide); ok && inst.Material != nil {
			tint = inst.Material.Tint
		}
	}
	k := styleKey{color: tint.Hex(), faint: reflectivity < 0.5}
	gr.put(0, y, strings.Repeat("─", s.width), k)
}
