package operators

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallFrame() FrameConfig {
	cfg := DefaultFrameConfig()
	cfg.Width, cfg.Height = 20, 4
	return cfg
}

func TestFrameStage_RenderText(t *testing.T) {
	fs := NewFrameStage(smallFrame())
	fs.RenderText("\x1b[31mred\x1b[0m plain\nsecond line that is far too long\n3\n4\n5")

	text := fs.Text()
	require.Len(t, text, 4)
	assert.Equal(t, "red plain", strings.TrimRight(text[0], " "))
	assert.Equal(t, "second line that is ", text[1], "cut at the width")
	assert.Equal(t, "4", strings.TrimRight(text[3], " "), "rows past the height are dropped")

	assert.Equal(t, standardColors[1], fs.fgMap[0][0])
	assert.Equal(t, fs.config.Foreground, fs.fgMap[0][4])
}

func TestFrameStage_FaintBlendsTowardsBackground(t *testing.T) {
	cfg := smallFrame()
	cfg.Foreground = color.RGBA{200, 200, 200, 255}
	fs := NewFrameStage(cfg)
	fs.RenderText("\x1b[2mx")
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, fs.fgMap[0][0])
}

func TestFrameStage_RenderTextClearsPreviousView(t *testing.T) {
	fs := NewFrameStage(smallFrame())
	fs.RenderText("\x1b[41mlong first view")
	fs.RenderText("hi")
	assert.Equal(t, "hi", strings.TrimRight(fs.Text()[0], " "))
	assert.Equal(t, fs.config.Background, fs.bgMap[0][5])
}

func TestFrameStage_EncodePNG(t *testing.T) {
	fs := NewFrameStage(smallFrame())
	fs.RenderText("\x1b[44m \x1b[0mframe")

	var buf bytes.Buffer
	require.NoError(t, fs.Encode(&buf, FormatPNG))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())

	r, g, b, _ := img.At(4, 8).RGBA()
	blue := standardColors[4]
	assert.Equal(t, []uint32{uint32(blue.R), uint32(blue.G), uint32(blue.B)}, []uint32{r >> 8, g >> 8, b >> 8})
}

func TestFrameStage_CaptureWebP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.webp")
	fs := NewFrameStage(smallFrame())
	require.NoError(t, fs.CaptureFrame("webp", path, FormatWebP))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WEBP", string(data[8:12]))
}

func TestFrameStage_RejectsArchiveFormat(t *testing.T) {
	fs := NewFrameStage(smallFrame())
	assert.Error(t, fs.Encode(&bytes.Buffer{}, FormatArchive))
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"png", "webp", "archive"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(f))
	}
	_, err := ParseFormat("gif")
	assert.Error(t, err)
	assert.Equal(t, "yaml", FormatArchive.Ext())
	assert.Equal(t, "webp", FormatWebP.Ext())
}
