// Package scene defines the mutable scene aggregate for a pipeline run:
// placed object instances, the camera, lights, and the compositor graph
// describing the render post-processing pipeline.
//
// A Scene is owned by exactly one pipeline run. The render orchestrator takes
// the scene for the duration of one invocation and mutates its compositor
// links and object flags destructively; callers must not interleave two
// orchestrations against the same scene.
package scene

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/dropstage/dropstage/pkg/compositor"
)

// Vec3 is a 3-component vector in scene units (meters).
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

// Cross returns the cross product of v and o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Euler is a rotation as XYZ euler angles in radians.
type Euler [3]float64

// Pose is the placement of an entity: location plus rotation.
type Pose struct {
	Location Vec3  `json:"location" bson:"location"`
	Rotation Euler `json:"rotation" bson:"rotation"`
}

// Object is a placed object instance. It is created by a generator at
// placement time; its pose is mutated by placement and the physics drop, and
// its render bookkeeping (Rendered, HideRender, SoloMaskID) only during the
// render phase.
type Object struct {
	// Instance is the unique integer instance id. It doubles as the pixel
	// value identifying this object in the rendered ID mask.
	Instance int `json:"instance" bson:"instance"`

	// Name is the template name the generator instantiated.
	Name string `json:"name" bson:"name"`

	// Source names the generator that produced this instance.
	Source string `json:"source,omitempty" bson:"source,omitempty"`

	Pose Pose `json:"pose" bson:"pose"`

	// Radius is the bounding-sphere radius used for collision and splatting.
	Radius float64 `json:"radius,omitempty" bson:"radius,omitempty"`

	// Color is the flat albedo used by the software backend.
	Color [3]float64 `json:"color,omitempty" bson:"color,omitempty"`

	// Rendered reports whether the object survived visibility filtering.
	// Objects start rendered; mask discovery clears the flag for instances
	// whose id never appears in the combined ID-mask image.
	Rendered bool `json:"rendered" bson:"rendered"`

	// HideRender excludes the object from subsequent render calls.
	HideRender bool `json:"-" bson:"-"`

	// Background marks floor and container colliders: they appear in the
	// composite but never in ID masks, per-object passes, or annotations.
	Background bool `json:"-" bson:"-"`

	// SoloMaskID is the per-object filename suffix ("objNNN") assigned
	// during the per-object mask pass.
	SoloMaskID string `json:"solo_mask_id,omitempty" bson:"solo_mask_id,omitempty"`

	// Obstruction is the fraction of this object's pixels occluded in the
	// composite view. Computed only when obstruction metrics are requested.
	Obstruction float64 `json:"obstruction,omitempty" bson:"obstruction,omitempty"`
}

// SoloMaskLabel returns the canonical per-object suffix for an instance id.
func SoloMaskLabel(instance int) string {
	return fmt.Sprintf("obj%03d", instance)
}

// LightType selects the light model.
type LightType string

// Light types mirroring the renderer back end's lamp kinds.
const (
	LightPoint LightType = "POINT"
	LightSpot  LightType = "SPOT"
	LightSun   LightType = "SUN"
	LightArea  LightType = "AREA"
)

// Light is a scene lamp. Lights created by the light node point at the
// scene origin.
type Light struct {
	Name     string    `json:"name" bson:"name"`
	Type     LightType `json:"type" bson:"type"`
	Energy   float64   `json:"energy" bson:"energy"` // radiant power in watts
	Location Vec3      `json:"location" bson:"location"`
	Target   Vec3      `json:"target" bson:"target"`
}

// Camera is the scene viewpoint. The camera looks at Target with a roll
// about the view axis.
type Camera struct {
	Name     string  `json:"name" bson:"name"`
	Location Vec3    `json:"location" bson:"location"`
	Target   Vec3    `json:"target" bson:"target"`
	Roll     float64 `json:"roll" bson:"roll"` // radians
	FOV      float64 `json:"fov" bson:"fov"`   // horizontal field of view, radians
}

// DefaultFOV is the horizontal field of view used when a camera does not
// specify one.
const DefaultFOV = 50 * math.Pi / 180

// Basis returns the camera's orthonormal view basis: forward toward the
// target, right, and up, with roll applied about the forward axis.
func (c *Camera) Basis() (forward, right, up Vec3) {
	forward = c.Target.Sub(c.Location).Normalized()
	worldUp := Vec3{0, 0, 1}
	if math.Abs(forward.Dot(worldUp)) > 0.999 {
		worldUp = Vec3{0, 1, 0}
	}
	right = forward.Cross(worldUp).Normalized()
	up = right.Cross(forward)
	if c.Roll != 0 {
		cos, sin := math.Cos(c.Roll), math.Sin(c.Roll)
		right, up = right.Scale(cos).Add(up.Scale(sin)), up.Scale(cos).Sub(right.Scale(sin))
	}
	return forward, right, up
}

// Scene is the mutable aggregate for one pipeline run.
type Scene struct {
	// ID identifies this scene in metadata records.
	ID uuid.UUID

	// Frame is the current frame number. The physics drop advances it to
	// the bake end frame, and file-output slot templates substitute it for
	// the '#' placeholder.
	Frame int

	Objects []*Object
	Camera  *Camera
	Lights  []*Light

	// Compositor is the render post-processing graph.
	Compositor *compositor.Graph

	// Render settings, mutated by the orchestrator per pass.
	ResolutionX int
	ResolutionY int
	Samples     int
	MaxBounces  int

	nextInstance int
}

// New creates an empty scene with a fresh identity and the standard
// compositor graph.
func New() *Scene {
	return &Scene{
		ID:           uuid.New(),
		Frame:        1,
		Compositor:   compositor.NewStandard(),
		nextInstance: 1,
	}
}

// NewObject allocates the next instance id and registers an object in the
// scene. Instance ids start at 1; zero is the ID-mask background value.
func (s *Scene) NewObject(name, source string) *Object {
	obj := &Object{
		Instance: s.nextInstance,
		Name:     name,
		Source:   source,
		Rendered: true,
		Radius:   0.05,
		Color:    [3]float64{0.8, 0.8, 0.8},
	}
	s.nextInstance++
	s.Objects = append(s.Objects, obj)
	return obj
}

// Object returns the object with the given instance id, or nil.
func (s *Scene) Object(instance int) *Object {
	for _, o := range s.Objects {
		if o.Instance == instance {
			return o
		}
	}
	return nil
}

// RenderedObjects returns the objects of interest that survived visibility
// filtering, in stable placement order. Background colliders are excluded.
func (s *Scene) RenderedObjects() []*Object {
	var out []*Object
	for _, o := range s.Objects {
		if o.Rendered && !o.Background {
			out = append(out, o)
		}
	}
	return out
}

// InterestObjects returns the placed objects of interest in stable order,
// regardless of visibility flags.
func (s *Scene) InterestObjects() []*Object {
	var out []*Object
	for _, o := range s.Objects {
		if !o.Background {
			out = append(out, o)
		}
	}
	return out
}

// VisibleCount returns the number of objects of interest not hidden from
// render calls. Background colliders stay visible through mask passes and
// are not counted.
func (s *Scene) VisibleCount() int {
	n := 0
	for _, o := range s.Objects {
		if !o.HideRender && !o.Background {
			n++
		}
	}
	return n
}

// SetResolution sets the output resolution, clamped to the renderer's
// per-axis maximum.
func (s *Scene) SetResolution(w, h int) {
	if w > MaxResolution {
		w = MaxResolution
	}
	if h > MaxResolution {
		h = MaxResolution
	}
	s.ResolutionX, s.ResolutionY = w, h
}

// MaxResolution is the hard per-axis resolution cap.
const MaxResolution = 3000
