package nodes

import (
	"context"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/physics"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/render/software"
	"github.com/dropstage/dropstage/pkg/scene"
)

func testPool() generator.Pool {
	return generator.NewStaticPool([]generator.Template{
		{Name: "crate", Radius: 0.05, Color: [3]float64{0.8, 0.6, 0.3}},
		{Name: "bottle", Radius: 0.04, Color: [3]float64{0.2, 0.7, 0.3}},
		{Name: "can", Radius: 0.03, Color: [3]float64{0.7, 0.2, 0.2}},
		{Name: "floor", Radius: 0.0},
		{Name: "bin", Radius: 0.0},
	})
}

func testRun(t *testing.T) *graph.Run {
	t.Helper()
	return &graph.Run{
		Context: context.Background(),
		Scene:   scene.New(),
		Rand:    rand.New(rand.NewSource(7)),
		Logger:  log.New(io.Discard),
		Pool:    testPool(),
	}
}

func placementInputs(count int, objectGen, floorGen, containerGen any) port.Map {
	return port.Map{
		PortNumberOfObjects:    {count},
		PortObjectGenerators:   {objectGen},
		PortFloorGenerator:     {floorGen},
		PortContainerGenerator: {containerGen},
	}
}

// ----------------------------------------------------------------------------
// Placement
// ----------------------------------------------------------------------------

func TestPlacementPlacesRequestedCount(t *testing.T) {
	run := testRun(t)
	out, err := NewRandomPlacement("place").Exec(run, placementInputs(5, "crate", "floor", ""))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	objects, ok := out[PortObjectsOfInterest][0].([]*scene.Object)
	if !ok {
		t.Fatalf("output port holds %T", out[PortObjectsOfInterest][0])
	}
	if len(objects) != 5 {
		t.Fatalf("placed %d objects, want 5", len(objects))
	}
	if len(run.Scene.InterestObjects()) != 5 {
		t.Fatalf("scene has %d interest objects, want 5", len(run.Scene.InterestObjects()))
	}
}

func TestPlacementCapsObjectCount(t *testing.T) {
	run := testRun(t)
	out, err := NewRandomPlacement("place").Exec(run, placementInputs(500, "crate", "floor", ""))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	objects := out[PortObjectsOfInterest][0].([]*scene.Object)
	if len(objects) != MaxObjects {
		t.Fatalf("placed %d objects, want cap %d", len(objects), MaxObjects)
	}
}

func TestPlacementEmptyGeneratorSentinel(t *testing.T) {
	run := testRun(t)
	out, err := NewRandomPlacement("place").Exec(run, placementInputs(5, "", "floor", ""))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	objects := out[PortObjectsOfInterest][0].([]*scene.Object)
	if len(objects) != 0 {
		t.Fatalf("sentinel input placed %d objects, want 0", len(objects))
	}
	// The drop still runs: the floor collider exists and the scene frame
	// advanced to the end of the bake.
	if len(run.Scene.Objects) != 1 || !run.Scene.Objects[0].Background {
		t.Fatalf("expected a single background floor object, got %d objects", len(run.Scene.Objects))
	}
	if run.Scene.Frame != physics.DefaultFrameEnd {
		t.Fatalf("scene frame = %d, want %d", run.Scene.Frame, physics.DefaultFrameEnd)
	}
}

func TestPlacementDropSettlesObjects(t *testing.T) {
	run := testRun(t)
	out, err := NewRandomPlacement("place").Exec(run, placementInputs(6, "crate", "floor", ""))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	objects := out[PortObjectsOfInterest][0].([]*scene.Object)
	for _, o := range objects {
		if z := o.Pose.Location[2]; z >= dropHeight {
			t.Errorf("object %d still at drop height z=%f", o.Instance, z)
		}
		if z := o.Pose.Location[2]; z < o.Radius {
			t.Errorf("object %d sunk below the floor, z=%f", o.Instance, z)
		}
	}
	if run.Scene.Frame != physics.DefaultFrameEnd {
		t.Fatalf("scene frame = %d, want %d", run.Scene.Frame, physics.DefaultFrameEnd)
	}
}

func TestPlacementMissingFloorIsFatal(t *testing.T) {
	run := testRun(t)
	_, err := NewRandomPlacement("place").Exec(run, placementInputs(2, "crate", "", ""))
	if !errors.Is(err, errors.ErrCodeRenderFatal) {
		t.Fatalf("missing floor: err = %v, want RENDER_FATAL", err)
	}
}

func TestPlacementContainerIsBackground(t *testing.T) {
	run := testRun(t)
	_, err := NewPlacementOverContainer("place").Exec(run, placementInputs(3, "crate", "floor", "bin"))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	background := 0
	for _, o := range run.Scene.Objects {
		if o.Background {
			background++
		}
	}
	if background != 2 {
		t.Fatalf("scene has %d background colliders, want floor + container = 2", background)
	}
	if got := len(run.Scene.InterestObjects()); got != 3 {
		t.Fatalf("scene has %d interest objects, want 3", got)
	}
}

func TestPlacementJitterBounds(t *testing.T) {
	cases := []struct {
		name string
		node *Placement
		span float64
	}{
		{"container", NewPlacementOverContainer("place"), containerJitter},
		{"random", NewRandomPlacement("place"), randomJitter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := testRun(t)
			out, err := tc.node.Exec(run, placementInputs(50, "crate", "floor", ""))
			if err != nil {
				t.Fatalf("Exec: %v", err)
			}
			limit := tc.span / 2
			for _, o := range out[PortObjectsOfInterest][0].([]*scene.Object) {
				x, y := o.Pose.Location[0], o.Pose.Location[1]
				if math.Abs(x) > limit || math.Abs(y) > limit {
					t.Fatalf("object %d landed at (%f, %f), outside +-%f", o.Instance, x, y, limit)
				}
			}
		})
	}
}

func TestPlacementUnknownTemplate(t *testing.T) {
	run := testRun(t)
	_, err := NewRandomPlacement("place").Exec(run, placementInputs(2, "ghost", "floor", ""))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("unknown template: err = %v, want NOT_FOUND", err)
	}
}

// ----------------------------------------------------------------------------
// Weight
// ----------------------------------------------------------------------------

func TestWeightAppliesWeight(t *testing.T) {
	run := testRun(t)
	gen := generator.FromTemplate(generator.Template{Name: "crate"})
	out, err := NewWeight("w").Exec(run, port.Map{
		PortWeightGenerator: {gen},
		PortWeight:          {"2.5"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	got, ok := out[PortWeightGenerator][0].(generator.Generator)
	if !ok {
		t.Fatalf("output port holds %T", out[PortWeightGenerator][0])
	}
	if got.Weight() != 2.5 {
		t.Fatalf("weight = %f, want 2.5", got.Weight())
	}
}

func TestWeightResolvesTemplateName(t *testing.T) {
	run := testRun(t)
	out, err := NewWeight("w").Exec(run, port.Map{
		PortWeightGenerator: {"bottle"},
		PortWeight:          {3.0},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	gen := out[PortWeightGenerator][0].(generator.Generator)
	if gen.Name() != "bottle" || gen.Weight() != 3.0 {
		t.Fatalf("got generator %q weight %f", gen.Name(), gen.Weight())
	}
}

func TestWeightNonNumericLeavesGeneratorUntouched(t *testing.T) {
	run := testRun(t)
	gen := generator.FromTemplate(generator.Template{Name: "crate"})
	_, err := NewWeight("w").Exec(run, port.Map{
		PortWeightGenerator: {gen},
		PortWeight:          {"abc"},
	})
	if !errors.Is(err, errors.ErrCodeValueConversion) {
		t.Fatalf("non-numeric weight: err = %v, want VALUE_CONVERSION", err)
	}
	if gen.Weight() != 1 {
		t.Fatalf("weight mutated to %f on failed conversion", gen.Weight())
	}
}

func TestWeightRequiresSingleGenerator(t *testing.T) {
	run := testRun(t)
	a := generator.FromTemplate(generator.Template{Name: "crate"})
	b := generator.FromTemplate(generator.Template{Name: "bottle"})
	_, err := NewWeight("w").Exec(run, port.Map{
		PortWeightGenerator: {a, b},
		PortWeight:          {2.0},
	})
	if !errors.Is(err, errors.ErrCodePortArity) {
		t.Fatalf("two generators: err = %v, want PORT_ARITY", err)
	}
}

// ----------------------------------------------------------------------------
// Camera
// ----------------------------------------------------------------------------

func execCamera(t *testing.T, run *graph.Run, height any, roll any) *scene.Camera {
	t.Helper()
	out, err := NewCamera("cam").Exec(run, port.Map{
		PortLocationHeight: {height},
		PortRollDegrees:    {roll},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	cam, ok := out[PortCamera][0].(*scene.Camera)
	if !ok {
		t.Fatalf("output port holds %T", out[PortCamera][0])
	}
	return cam
}

func TestCameraFixedHeight(t *testing.T) {
	run := testRun(t)
	cam := execCamera(t, run, 0.5, 0.0)
	if cam.Location[2] != 0.5 {
		t.Fatalf("camera height = %f, want 0.5", cam.Location[2])
	}
	if cam.Target != (scene.Vec3{}) {
		t.Fatalf("camera target = %v, want origin", cam.Target)
	}
}

func TestCameraRandomHeightOnHemisphere(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		run := testRun(t)
		run.Rand = rand.New(rand.NewSource(seed))
		cam := execCamera(t, run, RandomHeight, 0.0)
		h := cam.Location[2]
		if h < minRandomHeight || h > maxRandomHeight {
			t.Fatalf("seed %d: height %f outside [%f, %f]", seed, h, minRandomHeight, maxRandomHeight)
		}
		x, y := cam.Location[0], cam.Location[1]
		if x < 0 || x > h {
			t.Fatalf("seed %d: x = %f outside [0, %f]", seed, x, h)
		}
		if limit := math.Sqrt(h*h - x*x); math.Abs(y) > limit+1e-9 {
			t.Fatalf("seed %d: y = %f outside +-%f", seed, y, limit)
		}
	}
}

func TestCameraRollInRadians(t *testing.T) {
	run := testRun(t)
	cam := execCamera(t, run, 0.5, 90.0)
	if math.Abs(cam.Roll-math.Pi/2) > 1e-9 {
		t.Fatalf("roll = %f rad, want pi/2", cam.Roll)
	}
}

func TestCameraNonNumericHeight(t *testing.T) {
	run := testRun(t)
	_, err := NewCamera("cam").Exec(run, port.Map{
		PortLocationHeight: {"tall"},
		PortRollDegrees:    {0.0},
	})
	if !errors.Is(err, errors.ErrCodeValueConversion) {
		t.Fatalf("non-numeric height: err = %v, want VALUE_CONVERSION", err)
	}
}

// ----------------------------------------------------------------------------
// Light
// ----------------------------------------------------------------------------

func TestLightBuildsAimedLamp(t *testing.T) {
	run := testRun(t)
	out, err := NewLight("lamp").Exec(run, port.Map{
		PortLightType:    {"POINT"},
		PortRadiantPower: {100.0},
		PortLocation:     {[]float64{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	light, ok := out[PortLight][0].(*scene.Light)
	if !ok {
		t.Fatalf("output port holds %T", out[PortLight][0])
	}
	if light.Type != scene.LightPoint || light.Energy != 100.0 {
		t.Fatalf("light = %+v", light)
	}
	if light.Location != (scene.Vec3{1, 2, 3}) || light.Target != (scene.Vec3{}) {
		t.Fatalf("light placed at %v aimed at %v", light.Location, light.Target)
	}
}

func TestLightRejectsUnknownType(t *testing.T) {
	run := testRun(t)
	_, err := NewLight("lamp").Exec(run, port.Map{
		PortLightType:    {"LASER"},
		PortRadiantPower: {100.0},
		PortLocation:     {[]float64{1, 2, 3}},
	})
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Fatalf("unknown light type: err = %v, want CONFIGURATION", err)
	}
}

// ----------------------------------------------------------------------------
// Registry
// ----------------------------------------------------------------------------

func TestCreateKnownTypes(t *testing.T) {
	for nodeType := range Registry {
		n, err := Create(nodeType, "n1")
		if err != nil {
			t.Fatalf("Create(%q): %v", nodeType, err)
		}
		if n.Name() != "n1" || n.Type() != nodeType {
			t.Fatalf("Create(%q) built %q/%q", nodeType, n.Name(), n.Type())
		}
	}
}

func TestCreateUnknownType(t *testing.T) {
	if _, err := Create("Teleporter", "n1"); !errors.Is(err, errors.ErrCodeInvalidChannel) {
		t.Fatalf("unknown type: err = %v, want INVALID_CHANNEL", err)
	}
}

// ----------------------------------------------------------------------------
// End to end
// ----------------------------------------------------------------------------

// TestChannelEndToEnd wires a full channel graph the way a channel file
// would and checks the dataset layout on disk: one composite, one combined
// mask surviving cleanup, and the annotation pair.
func TestChannelEndToEnd(t *testing.T) {
	g := graph.New()
	mustAdd := func(n graph.Node) {
		t.Helper()
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.Name(), err)
		}
	}
	mustAdd(NewWeight("bias"))
	mustAdd(NewPlacementOverContainer("place"))
	mustAdd(NewLight("lamp"))
	mustAdd(NewCamera("cam"))
	mustAdd(NewRender("render"))

	g.SetInput("bias", PortWeightGenerator, "crate")
	g.SetInput("bias", PortWeight, 2.0)

	g.SetInput("place", PortNumberOfObjects, 5)
	g.SetInput("place", PortObjectGenerators, "bottle")
	g.SetInput("place", PortFloorGenerator, "floor")
	g.SetInput("place", PortContainerGenerator, "")

	g.SetInput("lamp", PortLightType, "POINT")
	g.SetInput("lamp", PortRadiantPower, 40.0)
	g.SetInput("lamp", PortLocation, []float64{0.3, -0.3, 1.2})

	g.SetInput("cam", PortLocationHeight, 0.6)
	g.SetInput("cam", PortRollDegrees, 0.0)

	g.SetInput("render", PortResolution, "[64, 64]")
	g.SetInput("render", PortCollectDepthNormal, "F")
	g.SetInput("render", PortCalculateObstruct, "T")

	connect := func(from, fromPort, to, toPort string) {
		t.Helper()
		if err := g.Connect(from, fromPort, to, toPort); err != nil {
			t.Fatalf("Connect(%s -> %s): %v", from, to, err)
		}
	}
	connect("bias", PortWeightGenerator, "place", PortObjectGenerators)
	connect("place", PortObjectsOfInterest, "render", PortObjectsOfInterest)
	connect("lamp", PortLight, "render", PortLights)
	connect("cam", PortCamera, "render", PortCamera)

	dir := t.TempDir()
	run, err := g.Run(context.Background(), graph.RunOptions{
		Seed:      42,
		OutputDir: dir,
		Backend:   software.New(),
		Pool:      testPool(),
		Logger:    log.New(io.Discard),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(run.Scene.InterestObjects()); got != 5 {
		t.Fatalf("scene has %d interest objects, want 5", got)
	}

	images, err := filepath.Glob(filepath.Join(dir, "images", "*.png"))
	if err != nil || len(images) != 1 {
		t.Fatalf("images dir holds %v (err %v), want one composite", images, err)
	}
	masks, err := filepath.Glob(filepath.Join(dir, "masks", "*.png"))
	if err != nil || len(masks) != 1 {
		t.Fatalf("masks dir holds %v (err %v), want only the combined mask after cleanup", masks, err)
	}
	annotations, err := filepath.Glob(filepath.Join(dir, "annotations", "*.json"))
	if err != nil || len(annotations) != 2 {
		t.Fatalf("annotations dir holds %v (err %v), want annotation + metadata", annotations, err)
	}

	for _, o := range run.Scene.InterestObjects() {
		if o.Pose.Location[2] >= dropHeight {
			t.Fatalf("object %d never dropped, z=%f", o.Instance, o.Pose.Location[2])
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "preview.png")); err == nil {
		t.Fatal("preview file written during a full render")
	}
}
