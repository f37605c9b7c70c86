package nodes

import (
	"math"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/physics"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/scene"
)

// MaxObjects is the hard per-placement object cap. Larger requested counts
// are silently truncated.
const MaxObjects = 200

// Horizontal jitter spans for the two placement variants: objects land
// within +-span/2 of the drop axis.
const (
	containerJitter = 0.1
	randomJitter    = 0.5
)

// Initial stacking: objects spawn at increasing height so they do not
// interpenetrate before the drop.
const (
	dropHeight  = 2.0
	stackSpacing = 0.1
)

// Placement populates the scene with objects from a branch generator,
// stacks them above the drop zone with randomized rotations, and settles
// them with a physics drop over the floor (and optional container). The
// container variant uses a tight jitter so objects land inside; the random
// variant scatters wider.
type Placement struct {
	name     string
	nodeType string
	jitter   float64
}

// NewPlacementOverContainer creates the tight-jitter placement variant.
func NewPlacementOverContainer(name string) *Placement {
	return &Placement{name: name, nodeType: "PlacementOverContainer", jitter: containerJitter}
}

// NewRandomPlacement creates the wide-jitter placement variant.
func NewRandomPlacement(name string) *Placement {
	return &Placement{name: name, nodeType: "RandomPlacement", jitter: randomJitter}
}

func (n *Placement) Name() string { return n.name }
func (n *Placement) Type() string { return n.nodeType }

// Exec places up to min(count, MaxObjects) objects and delegates to the
// physics drop. An empty-sentinel generator port places nothing, but the
// floor and container handling still runs.
func (n *Placement) Exec(run *graph.Run, in port.Map) (port.Map, error) {
	count, err := in.Int(PortNumberOfObjects)
	if err != nil {
		return nil, err
	}
	if count > MaxObjects {
		count = MaxObjects
	}

	var objects []*scene.Object
	generatorsInput := in.Get(PortObjectGenerators)
	if !generatorsInput.Empty() {
		gens, err := generator.Coerce(generatorsInput, run.Pool)
		if err != nil {
			return nil, err
		}
		branch, err := generator.NewBranch(gens)
		if err != nil {
			return nil, err
		}

		for i := 0; i < count; i++ {
			obj, err := branch.Exec(run.Scene, run.Rand)
			if err != nil {
				return nil, err
			}
			obj.Pose.Location = scene.Vec3{
				n.jitter * (run.Rand.Float64() - 0.5),
				n.jitter * (run.Rand.Float64() - 0.5),
				dropHeight + stackSpacing*float64(i),
			}
			obj.Pose.Rotation = scene.Euler{
				run.Rand.Float64() * 360 * math.Pi / 180,
				run.Rand.Float64() * 360 * math.Pi / 180,
				run.Rand.Float64() * 360 * math.Pi / 180,
			}
			objects = append(objects, obj)
		}
	}

	if err := drop(run, in, objects); err != nil {
		return nil, err
	}

	run.Logger.Info("objects placed", "node", n.name, "count", len(objects))
	return port.Map{PortObjectsOfInterest: {objects}}, nil
}

// drop settles the placed objects: every object becomes a dynamic body, one
// floor instance (and optionally one container instance) becomes a passive
// mesh collider, and the world bakes to its end frame so subsequent pose
// reads see final positions.
func drop(run *graph.Run, in port.Map, objects []*scene.Object) error {
	world := physics.NewWorld()

	for _, obj := range objects {
		if _, err := world.LinkDynamic(obj); err != nil {
			return err
		}
	}

	floor, err := spawnStatic(run, in.Get(PortFloorGenerator))
	if err != nil {
		return err
	}
	if floor == nil {
		return errors.New(errors.ErrCodeRenderFatal, "floor generator yielded no instance")
	}
	if _, err := world.LinkStatic(floor); err != nil {
		return err
	}

	containerInput := in.Get(PortContainerGenerator)
	if !containerInput.Empty() {
		container, err := spawnStatic(run, containerInput)
		if err != nil {
			return err
		}
		if container != nil {
			if _, err := world.LinkStatic(container); err != nil {
				return err
			}
		}
	}

	engine := run.Physics
	if engine == nil {
		engine = physics.BuiltinEngine{}
	}
	if err := engine.Bake(run.Context, world); err != nil {
		return err
	}
	// Pose reads after the bake see the settled state.
	run.Scene.Frame = world.FrameEnd
	return nil
}

// spawnStatic instantiates one background collider from a generator port,
// picking a branch when several candidates are wired in. Returns nil for an
// empty port.
func spawnStatic(run *graph.Run, input port.List) (*scene.Object, error) {
	if input.Empty() {
		return nil, nil
	}
	gens, err := generator.Coerce(input, run.Pool)
	if err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return nil, nil
	}
	branch, err := generator.NewBranch(gens)
	if err != nil {
		return nil, err
	}
	obj, err := branch.Exec(run.Scene, run.Rand)
	if err != nil {
		return nil, err
	}
	obj.Background = true
	return obj, nil
}
