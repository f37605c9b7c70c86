// Package physics settles placed objects under gravity before rendering.
//
// The package defines the port to an external rigid-body engine (the World
// aggregate plus the Engine interface) and ships a built-in settle engine so
// the pipeline runs without an external simulator. A drop configures one
// world per scene, links every placed object as a dynamic body, adds a
// passive floor (and optionally a container), then bakes a fixed number of
// frames so subsequent pose reads reflect final settled positions.
package physics

import (
	"context"
	"sort"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/scene"
)

// BodyType distinguishes simulated from static colliders.
type BodyType string

// Body types.
const (
	// BodyActive is a dynamic rigid body affected by gravity.
	BodyActive BodyType = "ACTIVE"

	// BodyPassive is a static collider that never moves.
	BodyPassive BodyType = "PASSIVE"
)

// CollisionShape selects the collision geometry.
type CollisionShape string

// Collision shapes.
const (
	ShapeConvexHull CollisionShape = "CONVEX_HULL"
	ShapeMesh       CollisionShape = "MESH"
	ShapeSphere     CollisionShape = "SPHERE"
)

// DefaultFrameEnd is the bake length in frames.
const DefaultFrameEnd = 50

// DefaultCollisionMargin keeps static colliders from interpenetrating
// settled objects.
const DefaultCollisionMargin = 0.001

// Body links one scene object into the rigid-body world.
type Body struct {
	Object *scene.Object
	Type   BodyType
	Shape  CollisionShape

	// Margin is the collision margin; only honored when UseMargin is set.
	UseMargin bool
	Margin    float64
}

// World is the rigid-body simulation scoped to one scene.
type World struct {
	// Enabled gates simulation; a disabled world bakes to a no-op.
	Enabled bool

	// FrameEnd is the frame the bake advances to.
	FrameEnd int

	// Gravity is the downward acceleration in m/s².
	Gravity float64

	bodies []*Body
	index  map[int]*Body // by object instance id
}

// NewWorld creates an enabled world with default bake length and gravity.
func NewWorld() *World {
	return &World{
		Enabled:  true,
		FrameEnd: DefaultFrameEnd,
		Gravity:  9.81,
		index:    make(map[int]*Body),
	}
}

// LinkDynamic adds a scene object as a dynamic rigid body. Linking the same
// object twice is a CONFIGURATION error: the collection holds each placed
// object exactly once.
func (w *World) LinkDynamic(obj *scene.Object) (*Body, error) {
	return w.link(&Body{Object: obj, Type: BodyActive, Shape: ShapeConvexHull})
}

// LinkStatic adds a scene object as a passive mesh collider with the
// standard collision margin.
func (w *World) LinkStatic(obj *scene.Object) (*Body, error) {
	return w.link(&Body{
		Object:    obj,
		Type:      BodyPassive,
		Shape:     ShapeMesh,
		UseMargin: true,
		Margin:    DefaultCollisionMargin,
	})
}

func (w *World) link(b *Body) (*Body, error) {
	if b.Object == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "cannot link nil object into rigid-body world")
	}
	if _, dup := w.index[b.Object.Instance]; dup {
		return nil, errors.New(errors.ErrCodeConfiguration,
			"object %d already linked into rigid-body world", b.Object.Instance)
	}
	w.bodies = append(w.bodies, b)
	w.index[b.Object.Instance] = b
	return b, nil
}

// Bodies returns all linked bodies in link order.
func (w *World) Bodies() []*Body {
	return w.bodies
}

// Body returns the body linked for the given object instance, or nil.
func (w *World) Body(instance int) *Body {
	return w.index[instance]
}

// Engine advances and resolves a rigid-body world. The production engine is
// the external renderer's simulator; BuiltinEngine is the shipped fallback.
type Engine interface {
	// Bake advances the world to its end frame and resolves all dynamic
	// body poses in place. Blocking; dominated by simulation time.
	Bake(ctx context.Context, w *World) error
}

// BuiltinEngine is a deterministic settle solver: dynamic spheres fall onto
// the highest passive surface (or previously settled object) beneath them.
// It is not a full dynamics simulation, but it produces plausible resting
// poses with the same contract as an external bake.
type BuiltinEngine struct{}

// Bake settles all dynamic bodies. Objects are processed floor-first in
// ascending initial height so stacking resolves bottom-up.
func (BuiltinEngine) Bake(ctx context.Context, w *World) error {
	if !w.Enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	floorZ, hasFloor := 0.0, false
	margin := DefaultCollisionMargin
	for _, b := range w.Bodies() {
		if b.Type != BodyPassive {
			continue
		}
		top := b.Object.Pose.Location[2]
		if !hasFloor || top > floorZ {
			// Highest passive surface wins; container walls share the
			// floor height so only the top face matters here.
			floorZ, hasFloor = top, true
		}
		if b.UseMargin {
			margin = b.Margin
		}
	}
	if !hasFloor {
		return errors.New(errors.ErrCodeConfiguration, "rigid-body world has no passive collider")
	}

	dynamic := make([]*Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		if b.Type == BodyActive {
			dynamic = append(dynamic, b)
		}
	}
	sort.SliceStable(dynamic, func(i, j int) bool {
		return dynamic[i].Object.Pose.Location[2] < dynamic[j].Object.Pose.Location[2]
	})

	var settled []*scene.Object
	for _, b := range dynamic {
		obj := b.Object
		restZ := floorZ + margin + obj.Radius
		for _, other := range settled {
			dx := obj.Pose.Location[0] - other.Pose.Location[0]
			dy := obj.Pose.Location[1] - other.Pose.Location[1]
			reach := obj.Radius + other.Radius
			if dx*dx+dy*dy < reach*reach {
				if z := other.Pose.Location[2] + reach; z > restZ {
					restZ = z
				}
			}
		}
		obj.Pose.Location[2] = restZ
		settled = append(settled, obj)
	}
	return nil
}

// Ensure BuiltinEngine implements Engine.
var _ Engine = BuiltinEngine{}
