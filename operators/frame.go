package operators

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"unicode/utf8"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Format selects what the exporter writes for each step.
type Format string

const (
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatArchive Format = "archive"
)

// ParseFormat accepts the names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatPNG, FormatWebP, FormatArchive:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want png, webp or archive)", s)
}

// Ext is the file extension of the format.
func (f Format) Ext() string {
	if f == FormatArchive {
		return "yaml"
	}
	return string(f)
}

// FrameConfig sets the size and default colours of a rasterised view.
type FrameConfig struct {
	Width      int // terminal columns
	Height     int // terminal rows
	Background color.RGBA
	Foreground color.RGBA
}

// DefaultFrameConfig is an 80x24 terminal, light text on black.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		Width:      80,
		Height:     24,
		Background: color.RGBA{0, 0, 0, 255},
		Foreground: color.RGBA{229, 229, 229, 255},
	}
}

// FrameStage turns a terminal view into a still image, one fixed cell per
// rune, honouring the SGR colours of the view.
type FrameStage struct {
	config     FrameConfig
	buffer     [][]rune
	fgMap      [][]color.RGBA
	bgMap      [][]color.RGBA
	charWidth  int
	charHeight int
	face       font.Face
}

// NewFrameStage allocates a stage for views of the configured size.
func NewFrameStage(config FrameConfig) *FrameStage {
	if config.Width <= 0 || config.Height <= 0 {
		d := DefaultFrameConfig()
		config.Width, config.Height = d.Width, d.Height
	}
	fs := &FrameStage{
		config:     config,
		buffer:     make([][]rune, config.Height),
		fgMap:      make([][]color.RGBA, config.Height),
		bgMap:      make([][]color.RGBA, config.Height),
		charWidth:  8,
		charHeight: 16,
		face:       basicfont.Face7x13,
	}
	for i := range fs.buffer {
		fs.buffer[i] = make([]rune, config.Width)
		fs.fgMap[i] = make([]color.RGBA, config.Width)
		fs.bgMap[i] = make([]color.RGBA, config.Width)
	}
	return fs
}

// Size returns the image size in pixels.
func (fs *FrameStage) Size() (int, int) {
	return fs.config.Width * fs.charWidth, fs.config.Height * fs.charHeight
}

// RenderText replaces the buffer with view. Text beyond the configured
// size is cut off.
func (fs *FrameStage) RenderText(view string) {
	for y := range fs.buffer {
		for x := range fs.buffer[y] {
			fs.buffer[y][x] = ' '
			fs.fgMap[y][x] = fs.config.Foreground
			fs.bgMap[y][x] = fs.config.Background
		}
	}
	for y, line := range ParseANSI(view) {
		if y >= fs.config.Height {
			break
		}
		x := 0
		for _, sp := range line {
			fg, bg := fs.resolve(sp.Style)
			for _, r := range sp.Text {
				if x >= fs.config.Width {
					break
				}
				if r == utf8.RuneError {
					r = '?'
				}
				fs.buffer[y][x] = r
				fs.fgMap[y][x] = fg
				fs.bgMap[y][x] = bg
				x++
			}
		}
	}
}

func (fs *FrameStage) resolve(st Style) (fg, bg color.RGBA) {
	fg, bg = fs.config.Foreground, fs.config.Background
	if st.HasFG {
		fg = st.FG
	}
	if st.HasBG {
		bg = st.BG
	}
	if st.Faint {
		fg = mix(fg, bg, 0.5)
	}
	return fg, bg
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	ch := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.RGBA{ch(a.R, b.R), ch(a.G, b.G), ch(a.B, b.B), 255}
}

// Text returns the buffer as plain text, trailing blanks included.
func (fs *FrameStage) Text() []string {
	out := make([]string, len(fs.buffer))
	for i, row := range fs.buffer {
		out[i] = string(row)
	}
	return out
}

// Image rasterises the buffer.
func (fs *FrameStage) Image() *image.RGBA {
	w, h := fs.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(fs.config.Background), image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: img, Face: fs.face}
	for y, row := range fs.buffer {
		for x, r := range row {
			cell := image.Rect(x*fs.charWidth, y*fs.charHeight, (x+1)*fs.charWidth, (y+1)*fs.charHeight)
			if bg := fs.bgMap[y][x]; bg != fs.config.Background {
				draw.Draw(img, cell, image.NewUniform(bg), image.Point{}, draw.Src)
			}
			if r == ' ' || r == 0 {
				continue
			}
			drawer.Src = image.NewUniform(fs.fgMap[y][x])
			// basicfont's ascent is 11 of its 13 pixels; keep the glyph
			// inside the 16 pixel cell.
			drawer.Dot = fixed.P(cell.Min.X, cell.Max.Y-4)
			drawer.DrawString(string(r))
		}
	}
	return img
}

// Encode writes the rasterised buffer as PNG or WebP.
func (fs *FrameStage) Encode(w io.Writer, f Format) error {
	img := fs.Image()
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatWebP:
		return nativewebp.Encode(w, img, nil)
	}
	return fmt.Errorf("frame: cannot encode %q as an image", f)
}

// CaptureFrame renders view and writes it to path.
func (fs *FrameStage) CaptureFrame(view, path string, f Format) (err error) {
	fs.RenderText(view)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return fs.Encode(file, f)
}
