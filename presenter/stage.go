package presenter

import (
	"github.com/teranos/showreel/deck"
	"github.com/teranos/showreel/scene"
)

// Stage holds the nodes every slide shares: the camera rig and camera, the
// lights, the reflective floor and the parent all slide content hangs from.
//
// The rig carries the camera's ground position and yaw. Slide transitions
// move the rig; the camera below it only changes altitude and pitch.
type Stage struct {
	g *scene.Graph

	Rig     scene.NodeID
	Camera  scene.NodeID
	Main    scene.NodeID
	Spot    scene.NodeID
	Ambient scene.NodeID
	Floor   scene.NodeID
	Slides  scene.NodeID
}

// NewStage builds the shared nodes under the graph root.
func NewStage(g *scene.Graph) *Stage {
	root := g.Root()
	s := &Stage{
		g:       g,
		Rig:     g.NewChild(root, "rig", scene.KindGroup),
		Main:    g.NewChild(root, "main-light", scene.KindLight),
		Spot:    g.NewChild(root, "spot-light", scene.KindLight),
		Ambient: g.NewChild(root, "ambient-light", scene.KindLight),
		Floor:   g.NewChild(root, "floor", scene.KindFloor),
		Slides:  g.NewChild(root, "slides", scene.KindGroup),
	}
	s.Camera = g.NewChild(s.Rig, "camera", scene.KindCamera)

	d := deck.Defaults()
	g.Transaction(0, func() {
		s.SetCamera(d.Camera)
		s.SetLights(d.Lights)
		s.SetFloor(d.Floor)
	}, nil)
	return s
}

// RigPosition is the model position of the rig.
func (s *Stage) RigPosition() scene.Vec3 {
	return s.g.Get(s.Rig).Position
}

// RigYaw is the model yaw of the rig in radians.
func (s *Stage) RigYaw() float32 {
	return s.g.Get(s.Rig).Rotation.Y
}

// MoveRig sets the rig's position and yaw inside whatever transaction is
// open.
func (s *Stage) MoveRig(pos scene.Vec3, yaw float32) {
	s.g.SetPosition(s.Rig, pos)
	s.g.SetRotation(s.Rig, scene.V3(0, yaw, 0))
}

// SetCamera sets the camera altitude and pitch.
func (s *Stage) SetCamera(c deck.Camera) {
	s.g.SetPosition(s.Camera, scene.V3(0, c.Altitude, 0))
	s.g.SetRotation(s.Camera, scene.V3(scene.Radians(c.Pitch), 0, 0))
}

// SetLights sets the three light intensities.
func (s *Stage) SetLights(l deck.Lights) {
	s.g.SetIntensity(s.Main, l.Main)
	s.g.SetIntensity(s.Spot, l.Spot)
	s.g.SetIntensity(s.Ambient, l.Ambient)
}

// SetFloor sets the floor reflection parameters and overlay texture. The
// texture swaps instantly.
func (s *Stage) SetFloor(f deck.Floor) {
	s.g.SetValue(s.Floor, "reflectivity", f.Reflectivity)
	s.g.SetValue(s.Floor, "falloff", f.Falloff)
	s.g.SetText(s.Floor, f.Texture)
}

// Material is what a renderer hands back after warming a floor texture. The
// instance keeps it until the slide is evicted.
type Material struct {
	Texture string
	Tint    scene.Color
}

// Renderer warms content before it is first shown.
type Renderer interface {
	// Prepare readies the subtree rooted at root for drawing.
	Prepare(g *scene.Graph, root scene.NodeID) error
	// PrepareTexture loads a floor overlay texture.
	PrepareTexture(path string) (*Material, error)
}
