// Package deck loads the slide table a show is played from.
//
// A deck file is YAML or TOML (chosen by extension) holding an ordered list
// of slides. Each slide names a registered slide type, an optional
// parameter map decoded later into that type's own struct, and the staging
// values every slide shares (camera, floor, lights, transition):
//
//	slides:
//	  - type: title
//	    params: {title: "Scene Graphs", subtitle: "in the terminal"}
//	    transition: {offset_x: 20, duration: 1.2}
package deck

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Camera holds the camera pose a slide asks for.
type Camera struct {
	Altitude float32 `yaml:"altitude"`
	Pitch    float32 `yaml:"pitch"` // degrees
}

// Floor holds the reflective floor parameters of a slide.
type Floor struct {
	Reflectivity float32 `yaml:"reflectivity"`
	Falloff      float32 `yaml:"falloff"`
	Texture      string  `yaml:"texture"`
}

// Lights holds light intensities of a slide.
type Lights struct {
	Main    float32 `yaml:"main"`
	Spot    float32 `yaml:"spot"`
	Ambient float32 `yaml:"ambient"`
}

// Transition describes how the camera travels onto a slide.
type Transition struct {
	OffsetX  float32 `yaml:"offset_x"`
	OffsetZ  float32 `yaml:"offset_z"`
	Rotation float32 `yaml:"rotation"` // degrees
	Duration float32 `yaml:"duration"` // seconds
}

// Entry describes one slide of the deck.
type Entry struct {
	Index      int            `yaml:"-"`
	Type       string         `yaml:"type"`
	Params     map[string]any `yaml:"params"`
	Camera     Camera         `yaml:"camera"`
	Floor      Floor          `yaml:"floor"`
	Lights     Lights         `yaml:"lights"`
	Transition Transition     `yaml:"transition"`
	New        bool           `yaml:"new"`
}

// Deck is a loaded slide table.
type Deck struct {
	Path    string
	Title   string
	Entries []Entry
}

// Defaults returns the staging values a slide gets for every key it leaves
// out.
func Defaults() Entry {
	return Entry{
		Camera:     Camera{Altitude: 5, Pitch: 0},
		Floor:      Floor{Reflectivity: 0.25, Falloff: 3},
		Lights:     Lights{Main: 1, Spot: 0, Ambient: 0.3},
		Transition: Transition{Duration: 1},
	}
}

// Load reads a deck from a .yaml/.yml or .toml file.
func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deck: read %s: %w", path, err)
	}
	format := Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	d, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	d.Path = path
	return d, nil
}

// Format names a deck encoding.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

// Parse decodes a deck. Both encodings go through the same strict decoder,
// so unknown keys and bad values are reported the same way.
func Parse(data []byte, format Format) (*Deck, error) {
	var raw map[string]any
	switch format {
	case YAML, "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ConfigError{Index: -1, Field: "deck", Err: err}
		}
	case TOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, &ConfigError{Index: -1, Field: "deck", Err: err}
		}
	default:
		return nil, &ConfigError{Index: -1, Field: "deck", Err: fmt.Errorf("unsupported format %q", format)}
	}

	d := &Deck{}
	for key, v := range raw {
		switch key {
		case "title":
			s, ok := v.(string)
			if !ok {
				return nil, &ConfigError{Index: -1, Field: "title", Err: errors.New("must be a string")}
			}
			d.Title = s
		case "slides":
		default:
			return nil, &ConfigError{Index: -1, Field: key, Err: ErrUnknownKey}
		}
	}

	slides, ok := raw["slides"].([]any)
	if !ok || len(slides) == 0 {
		return nil, &ConfigError{Index: -1, Field: "slides", Err: ErrEmptyDeck}
	}
	for i, s := range slides {
		e, err := decodeEntry(i, s)
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, e)
	}
	return d, nil
}

func decodeEntry(i int, v any) (Entry, error) {
	if _, ok := v.(map[string]any); !ok {
		return Entry{}, &ConfigError{Index: i, Field: "slide", Err: errors.New("must be a table")}
	}
	e := Defaults()
	if err := strictDecode(v, &e); err != nil {
		return Entry{}, &ConfigError{Index: i, Field: "slide", Err: err}
	}
	e.Index = i
	if err := e.validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (e Entry) validate() error {
	fail := func(field, format string, args ...any) error {
		return &ConfigError{Index: e.Index, Type: e.Type, Field: field, Err: fmt.Errorf(format, args...)}
	}
	switch {
	case strings.TrimSpace(e.Type) == "":
		return fail("type", "missing slide type")
	case e.Transition.Duration < 0:
		return fail("transition.duration", "negative duration %v", e.Transition.Duration)
	case e.Floor.Reflectivity < 0 || e.Floor.Reflectivity > 1:
		return fail("floor.reflectivity", "%v outside [0, 1]", e.Floor.Reflectivity)
	case e.Floor.Falloff < 0:
		return fail("floor.falloff", "negative falloff %v", e.Floor.Falloff)
	case e.Lights.Main < 0 || e.Lights.Spot < 0 || e.Lights.Ambient < 0:
		return fail("lights", "negative intensity")
	}
	return nil
}

// DecodeParams decodes the entry's params into dst, a pointer to the slide
// type's parameter struct. Keys dst does not declare are rejected.
func (e Entry) DecodeParams(dst any) error {
	if len(e.Params) == 0 {
		return nil
	}
	if err := strictDecode(e.Params, dst); err != nil {
		return &ConfigError{Index: e.Index, Type: e.Type, Field: "params", Err: err}
	}
	return nil
}

// strictDecode round-trips a generic value through YAML into dst with
// unknown fields disallowed. Values already in dst survive when the source
// leaves them out.
func strictDecode(src any, dst any) error {
	data, err := yaml.Marshal(src)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(dst)
}
