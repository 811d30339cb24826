package operators

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"
)

// DefaultTolerance is the share of pixels two stills may differ in before
// the step counts as changed.
const DefaultTolerance = 0.05

// StepDiff is the comparison of one still against its baseline.
type StepDiff struct {
	File string
	// Difference is the share of differing pixels, 1 when the sizes differ
	// or the still is missing from the new export.
	Difference float64
	DiffFile   string // highlight image, written for changed steps
	Missing    bool
}

// Changed reports whether the step differs beyond tolerance.
func (d StepDiff) Changed(tolerance float64) bool {
	return d.Missing || d.Difference > tolerance
}

// Comparison is the outcome of comparing an export against a baseline.
type Comparison struct {
	Tolerance float64
	Steps     []StepDiff
}

// Changed returns the steps that differ beyond tolerance.
func (c *Comparison) Changed() []StepDiff {
	var out []StepDiff
	for _, d := range c.Steps {
		if d.Changed(c.Tolerance) {
			out = append(out, d)
		}
	}
	return out
}

// Compare checks every still in baselineDir against the still of the same
// name in currentDir. For each changed step a "<name>_diff.png" is written
// to currentDir with differing pixels in red and the rest dimmed. A
// tolerance <= 0 uses DefaultTolerance.
func Compare(baselineDir, currentDir string, tolerance float64) (*Comparison, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	entries, err := os.ReadDir(baselineDir)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.TrimPrefix(filepath.Ext(e.Name()), ".")
		if e.IsDir() || strings.HasSuffix(e.Name(), "_diff.png") {
			continue
		}
		if ext == FormatPNG.Ext() || ext == FormatWebP.Ext() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	c := &Comparison{Tolerance: tolerance}
	for _, name := range names {
		d := StepDiff{File: name}
		base, err := loadImage(filepath.Join(baselineDir, name))
		if err != nil {
			return nil, fmt.Errorf("load baseline: %w", err)
		}
		cur, err := loadImage(filepath.Join(currentDir, name))
		if os.IsNotExist(err) {
			d.Missing, d.Difference = true, 1
			c.Steps = append(c.Steps, d)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load current: %w", err)
		}
		d.Difference = difference(base, cur)
		if d.Difference > tolerance {
			d.DiffFile = strings.TrimSuffix(name, filepath.Ext(name)) + "_diff.png"
			if err := writeDiff(base, cur, filepath.Join(currentDir, d.DiffFile)); err != nil {
				return nil, err
			}
		}
		c.Steps = append(c.Steps, d)
	}
	return c, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func difference(a, b image.Image) float64 {
	ba, bb := a.Bounds(), b.Bounds()
	if ba.Size() != bb.Size() {
		return 1
	}
	total := ba.Dx() * ba.Dy()
	if total == 0 {
		return 0
	}
	differing := 0
	for y := 0; y < ba.Dy(); y++ {
		for x := 0; x < ba.Dx(); x++ {
			if !sameColor(a.At(ba.Min.X+x, ba.Min.Y+y), b.At(bb.Min.X+x, bb.Min.Y+y)) {
				differing++
			}
		}
	}
	return float64(differing) / float64(total)
}

func writeDiff(base, cur image.Image, path string) error {
	bounds := base.Bounds()
	diff := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	cb := cur.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			bc := base.At(bounds.Min.X+x, bounds.Min.Y+y)
			if x >= cb.Dx() || y >= cb.Dy() || !sameColor(bc, cur.At(cb.Min.X+x, cb.Min.Y+y)) {
				diff.SetRGBA(x, y, color.RGBA{255, 0, 0, 255})
				continue
			}
			r, g, b, _ := bc.RGBA()
			diff.SetRGBA(x, y, color.RGBA{uint8(r >> 9), uint8(g >> 9), uint8(b >> 9), 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write diff: %w", err)
	}
	if err := png.Encode(f, diff); err != nil {
		f.Close()
		return fmt.Errorf("write diff: %w", err)
	}
	return f.Close()
}
