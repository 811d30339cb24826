package operators

import (
	"fmt"
	"html"
	"html/template"
	"image/color"
	"strconv"
	"strings"
)

// Style is the SGR state a run of characters was printed with.
type Style struct {
	FG, BG       color.RGBA
	HasFG, HasBG bool
	Bold, Faint  bool
	Underline    bool
}

// Span is a run of text sharing one style.
type Span struct {
	Text  string
	Style Style
}

// ParseANSI splits terminal output into lines of styled spans. Only SGR
// sequences change the style; every other escape sequence is dropped.
func ParseANSI(s string) [][]Span {
	var (
		lines [][]Span
		line  []Span
		st    Style
		text  strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			line = append(line, Span{Text: text.String(), Style: st})
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\r':
		case c == '\n':
			flush()
			lines = append(lines, line)
			line = nil
		case c == '\x1b' && i+1 < len(s) && s[i+1] == '[':
			j := i + 2
			for j < len(s) && !isFinal(s[j]) {
				j++
			}
			if j >= len(s) {
				i = len(s)
				break
			}
			if s[j] == 'm' {
				flush()
				applySGR(&st, s[i+2:j])
			}
			i = j
		default:
			text.WriteByte(c)
		}
	}
	flush()
	return append(lines, line)
}

func isFinal(c byte) bool {
	return c >= 0x40 && c <= 0x7e
}

// applySGR updates st with one "ESC [ params m" sequence.
func applySGR(st *Style, params string) {
	if params == "" {
		*st = Style{}
		return
	}
	codes := strings.Split(params, ";")
	for i := 0; i < len(codes); i++ {
		n, err := strconv.Atoi(codes[i])
		if err != nil {
			continue
		}
		switch {
		case n == 0:
			*st = Style{}
		case n == 1:
			st.Bold = true
		case n == 2:
			st.Faint = true
		case n == 4:
			st.Underline = true
		case n == 22:
			st.Bold, st.Faint = false, false
		case n == 24:
			st.Underline = false
		case n >= 30 && n <= 37:
			st.FG, st.HasFG = palette(n-30), true
		case n >= 90 && n <= 97:
			st.FG, st.HasFG = palette(n-90+8), true
		case n == 39:
			st.HasFG = false
		case n >= 40 && n <= 47:
			st.BG, st.HasBG = palette(n-40), true
		case n >= 100 && n <= 107:
			st.BG, st.HasBG = palette(n-100+8), true
		case n == 49:
			st.HasBG = false
		case n == 38 || n == 48:
			c, used, ok := extendedColor(codes[i+1:])
			i += used
			if !ok {
				continue
			}
			if n == 38 {
				st.FG, st.HasFG = c, true
			} else {
				st.BG, st.HasBG = c, true
			}
		}
	}
}

// extendedColor decodes the arguments of a 38/48 code: either "5;n" or
// "2;r;g;b". It returns how many codes it consumed.
func extendedColor(args []string) (color.RGBA, int, bool) {
	if len(args) == 0 {
		return color.RGBA{}, 0, false
	}
	num := func(s string) int {
		v, _ := strconv.Atoi(s)
		return max(0, min(255, v))
	}
	switch args[0] {
	case "5":
		if len(args) < 2 {
			return color.RGBA{}, len(args), false
		}
		return palette(num(args[1])), 2, true
	case "2":
		if len(args) < 4 {
			return color.RGBA{}, len(args), false
		}
		return color.RGBA{uint8(num(args[1])), uint8(num(args[2])), uint8(num(args[3])), 255}, 4, true
	}
	return color.RGBA{}, 1, false
}

var standardColors = [16]color.RGBA{
	{0, 0, 0, 255}, {205, 49, 49, 255}, {13, 188, 121, 255}, {229, 229, 16, 255},
	{36, 114, 200, 255}, {188, 63, 188, 255}, {17, 168, 205, 255}, {229, 229, 229, 255},
	{102, 102, 102, 255}, {241, 76, 76, 255}, {35, 209, 139, 255}, {245, 245, 67, 255},
	{59, 142, 234, 255}, {214, 112, 214, 255}, {41, 184, 219, 255}, {255, 255, 255, 255},
}

// palette maps an xterm 256-colour index to RGB.
func palette(n int) color.RGBA {
	switch {
	case n < 16:
		return standardColors[n]
	case n < 232:
		n -= 16
		level := func(v int) uint8 {
			if v == 0 {
				return 0
			}
			return uint8(55 + v*40)
		}
		return color.RGBA{level(n / 36), level(n / 6 % 6), level(n % 6), 255}
	default:
		v := uint8(8 + (n-232)*10)
		return color.RGBA{v, v, v, 255}
	}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ANSIToHTML converts terminal output into HTML suitable for a <pre>
// block. Text is escaped; styles become inline spans.
func ANSIToHTML(s string) template.HTML {
	var b strings.Builder
	for i, line := range ParseANSI(s) {
		if i > 0 {
			b.WriteString("<br>")
		}
		for _, sp := range line {
			css := spanCSS(sp.Style)
			if css == "" {
				b.WriteString(html.EscapeString(sp.Text))
				continue
			}
			fmt.Fprintf(&b, `<span style="%s">%s</span>`, css, html.EscapeString(sp.Text))
		}
	}
	return template.HTML(b.String())
}

func spanCSS(st Style) string {
	var parts []string
	if st.HasFG {
		parts = append(parts, "color:"+hexColor(st.FG))
	}
	if st.HasBG {
		parts = append(parts, "background-color:"+hexColor(st.BG))
	}
	if st.Bold {
		parts = append(parts, "font-weight:bold")
	}
	if st.Faint {
		parts = append(parts, "opacity:0.6")
	}
	if st.Underline {
		parts = append(parts, "text-decoration:underline")
	}
	return strings.Join(parts, ";")
}

// StripANSI returns s without escape sequences.
func StripANSI(s string) string {
	var b strings.Builder
	for i, line := range ParseANSI(s) {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, sp := range line {
			b.WriteString(sp.Text)
		}
	}
	return b.String()
}
