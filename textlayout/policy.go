package textlayout

import (
	"github.com/teranos/showreel/scene"
)

// Category is the kind of text a line belongs to. Each category stacks in
// its own container and follows its own sizing rules.
type Category int

const (
	None Category = iota - 1
	Title
	Subtitle
	Body
	Bullet
	Code
	Footer
	Chapter

	categoryCount = int(Chapter) + 1
)

var categoryNames = [...]string{"title", "subtitle", "body", "bullet", "code", "footer", "chapter"}

func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "none"
}

// ParseCategory maps a category name back to its value.
func ParseCategory(s string) (Category, bool) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), true
		}
	}
	return None, false
}

// Vertical placement constants. Baselines are in scene units; the text
// container is placed at the camera rig, so these are rig-relative.
const (
	TitleBaseline    float32 = 15
	SubtitleBaseline float32 = 12.5
	ContentBaseline  float32 = 10
	// ChapterBaseline sits one chapter line above the subtitle baseline, so
	// a chapter heading and the subtitle under it never share a row.
	ChapterBaseline float32 = SubtitleBaseline + 3.5
	// CategoryGap is how far the cursor steps back when switching between
	// two content categories.
	CategoryGap float32 = 1
	// FooterY is the fixed height of footer text.
	FooterY float32 = -3

	LeftMargin  float32 = -14
	IndentWidth float32 = 1.5
	// TextScale converts a point size into scene units.
	TextScale float32 = 0.02
)

// FontSize returns the point size for a category at an indent level.
func FontSize(c Category, level int) float32 {
	switch c {
	case Title:
		return 88
	case Chapter:
		return 94
	case Subtitle:
		return 64
	case Body:
		if level > 0 {
			return 40
		}
		return 50
	case Code:
		return 36
	case Footer:
		return 34
	default:
		return 56
	}
}

// LineHeight returns how far the baseline moves down for one line. Footer
// text does not use the baseline and reports 0.
func LineHeight(c Category, level int) float32 {
	switch c {
	case Title:
		return 2.26
	case Chapter:
		return 3.0
	case Subtitle:
		return 1.8
	case Body:
		if level > 0 {
			return 1.0
		}
		return 1.2
	case Code:
		return 1.22
	case Footer:
		return 0
	default:
		return 1.65
	}
}

var (
	White  = scene.RGB(1, 1, 1)
	Gray   = scene.RGB(0.56, 0.56, 0.56)
	Orange = scene.RGB(1, 0.58, 0.18)
	Blue   = scene.RGB(0.2, 0.55, 1)

	// Highlighted and Dimmed are the emission colours used by the bullet and
	// code highlighters; Unlit clears the highlight.
	Highlighted = scene.RGB(0.9, 0.9, 0.9)
	Dimmed      = scene.RGB(0.15, 0.15, 0.15)
	Unlit       = scene.Color{}
)

// TextColor returns the diffuse colour for a category at an indent level.
// The level-2 body override is a content rule kept as is.
func TextColor(c Category, level int) scene.Color {
	switch {
	case c == Footer || c == Subtitle:
		return Gray
	case c == Code && level > 0:
		return Orange
	case c == Code:
		return White
	case c == Body && level == 2:
		return Blue
	default:
		return White
	}
}
