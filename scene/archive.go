package scene

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// ArchiveNode is the serialised form of a node and its subtree, as the
// renderer would show it at the moment of the snapshot.
type ArchiveNode struct {
	Name      string             `yaml:"name"`
	Kind      string             `yaml:"kind"`
	Text      string             `yaml:"text,omitempty"`
	FontSize  float32            `yaml:"font_size,omitempty"`
	Position  [3]float32         `yaml:"position,flow"`
	Rotation  [3]float32         `yaml:"rotation,flow,omitempty"`
	Scale     float32            `yaml:"scale"`
	Opacity   float32            `yaml:"opacity"`
	Hidden    bool               `yaml:"hidden,omitempty"`
	Color     string             `yaml:"color,omitempty"`
	Emission  string             `yaml:"emission,omitempty"`
	Intensity float32            `yaml:"intensity,omitempty"`
	Values    map[string]float32 `yaml:"values,omitempty"`
	Children  []ArchiveNode      `yaml:"children,omitempty"`
}

// Archive is a point-in-time dump of a subtree.
type Archive struct {
	Version int         `yaml:"version"`
	Label   string      `yaml:"label,omitempty"`
	Root    ArchiveNode `yaml:"root"`
}

// Snapshot captures the presented state of id and its descendants.
func (g *Graph) Snapshot(id NodeID) (ArchiveNode, error) {
	if !g.Valid(id) {
		return ArchiveNode{}, fmt.Errorf("scene: snapshot of invalid node %d", id)
	}
	return g.snapshot(id), nil
}

func (g *Graph) snapshot(id NodeID) ArchiveNode {
	n := g.Presented(id)
	a := ArchiveNode{
		Name:      n.Name,
		Kind:      n.Kind.String(),
		Text:      n.Text,
		FontSize:  n.FontSize,
		Position:  [3]float32{n.Position.X, n.Position.Y, n.Position.Z},
		Rotation:  [3]float32{n.Rotation.X, n.Rotation.Y, n.Rotation.Z},
		Scale:     n.Scale,
		Opacity:   n.Opacity,
		Hidden:    n.Hidden,
		Intensity: n.Intensity,
	}
	if n.Kind == KindText || n.Kind == KindShape {
		a.Color = n.Color.Hex()
	}
	if !n.Emission.IsBlack() {
		a.Emission = n.Emission.Hex()
	}
	if len(n.Values) > 0 {
		a.Values = make(map[string]float32, len(n.Values))
		keys := make([]string, 0, len(n.Values))
		for k := range n.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a.Values[k] = n.Values[k]
		}
	}
	for _, ch := range n.Children {
		a.Children = append(a.Children, g.snapshot(ch))
	}
	return a
}

// WriteArchive encodes the presented subtree under id as YAML.
func (g *Graph) WriteArchive(w io.Writer, id NodeID, label string) error {
	root, err := g.Snapshot(id)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Archive{Version: 1, Label: label, Root: root}); err != nil {
		return fmt.Errorf("scene: encode archive: %w", err)
	}
	return enc.Close()
}

// ReadArchive decodes an archive written by WriteArchive.
func ReadArchive(r io.Reader) (Archive, error) {
	var a Archive
	if err := yaml.NewDecoder(r).Decode(&a); err != nil {
		return Archive{}, fmt.Errorf("scene: decode archive: %w", err)
	}
	return a, nil
}
