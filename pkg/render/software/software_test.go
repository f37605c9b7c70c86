package software

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/dropstage/dropstage/pkg/compositor"
	"github.com/dropstage/dropstage/pkg/render"
	"github.com/dropstage/dropstage/pkg/scene"
)

// testScene builds a scene with n objects clustered at the origin and a
// camera looking down at them from the front.
func testScene(t *testing.T, n int) *scene.Scene {
	t.Helper()
	s := scene.New()
	s.SetResolution(64, 64)
	s.Camera = &scene.Camera{
		Name:     "cam0",
		Location: scene.Vec3{0, -0.8, 0.4},
		Target:   scene.Vec3{0, 0, 0},
	}
	s.Lights = []*scene.Light{
		{Name: "key", Type: scene.LightPoint, Energy: 40, Location: scene.Vec3{0.5, -0.5, 1}},
	}
	for i := 0; i < n; i++ {
		o := s.NewObject("sphere", "")
		o.Pose.Location = scene.Vec3{float64(i)*0.15 - 0.15, 0, 0.05}
		o.Radius = 0.06
	}
	return s
}

// wireMaskOutput attaches a mask file output fed by the object index pass.
func wireMaskOutput(t *testing.T, s *scene.Scene, dir string) string {
	t.Helper()
	g := s.Compositor
	g.Remove(compositor.NodeImagePlace)
	out := g.MustAdd(&compositor.Node{Name: "maskout", Kind: compositor.KindFileOutput, BasePath: dir})
	out.AddSlot("mask-#.png")
	if err := g.Connect(compositor.NodeRenderLayers, compositor.SocketIndex, "maskout", compositor.SocketImage); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, "mask-1.png")
}

func TestRenderWritesInstanceIDMask(t *testing.T) {
	s := testScene(t, 3)
	path := wireMaskOutput(t, s, t.TempDir())

	if err := New().Render(context.Background(), s, render.QualityMasks); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	ids, err := render.ReadMaskIDs(path)
	if err != nil {
		t.Fatalf("ReadMaskIDs failed: %v", err)
	}
	for instance := 1; instance <= 3; instance++ {
		if !ids[instance] {
			t.Errorf("expected instance %d in mask, got %v", instance, ids)
		}
	}
}

func TestRenderSkipsHiddenObjects(t *testing.T) {
	s := testScene(t, 2)
	s.Object(2).HideRender = true
	path := wireMaskOutput(t, s, t.TempDir())

	if err := New().Render(context.Background(), s, render.QualityMasks); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	ids, err := render.ReadMaskIDs(path)
	if err != nil {
		t.Fatal(err)
	}
	if ids[2] {
		t.Error("hidden object 2 leaked into the mask")
	}
	if !ids[1] {
		t.Error("visible object 1 missing from the mask")
	}
}

func TestRenderSoloMaskIsolatesOneObject(t *testing.T) {
	s := testScene(t, 2)
	dir := t.TempDir()
	g := s.Compositor
	g.Remove(compositor.NodeImagePlace)
	g.MustAdd(&compositor.Node{Name: "obj001_mask", Kind: compositor.KindIDMask, Index: 1})
	out := g.MustAdd(&compositor.Node{Name: "maskout", Kind: compositor.KindFileOutput, BasePath: dir})
	out.AddSlot("solo-#.png")
	if err := g.Connect("obj001_mask", compositor.SocketAlpha, "maskout", compositor.SocketImage); err != nil {
		t.Fatal(err)
	}

	if err := New().Render(context.Background(), s, render.QualityMasks); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	count, err := render.CountMaskPixels(filepath.Join(dir, "solo-1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Error("solo mask for object 1 is empty")
	}
}

func TestRenderCompositeHasShadedPixels(t *testing.T) {
	s := testScene(t, 1)
	dir := t.TempDir()
	g := s.Compositor
	g.Remove(compositor.NodeImagePlace)
	out := g.MustAdd(&compositor.Node{Name: "imgout", Kind: compositor.KindFileOutput, BasePath: dir})
	out.AddSlot("img-#.png")
	if err := g.Connect(compositor.NodeRenderLayers, compositor.SocketImage, "imgout", compositor.SocketImage); err != nil {
		t.Fatal(err)
	}

	if err := New().Render(context.Background(), s, render.QualityHigh); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "img-1.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	lit := 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 > 40 || g>>8 > 40 || b>>8 > 40 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("composite has no shaded pixels")
	}
}

func TestRenderRequiresCamera(t *testing.T) {
	s := testScene(t, 1)
	s.Camera = nil
	if err := New().Render(context.Background(), s, render.QualityMasks); err == nil {
		t.Error("expected error for missing camera")
	}
}

func TestRenderHonorsCancelledContext(t *testing.T) {
	s := testScene(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Render(ctx, s, render.QualityMasks); err == nil {
		t.Error("expected error for cancelled context")
	}
}

// Full pipeline against the real rasterizer: composite, mask discovery,
// per-object masks, obstruction, cleanup.
func TestOrchestratorWithSoftwareBackend(t *testing.T) {
	s := testScene(t, 3)
	dir := t.TempDir()
	orch := render.NewOrchestrator(New(), nil, nil)

	result, err := orch.Execute(context.Background(), s, render.Options{
		OutputDir:   dir,
		Sensor:      "cam0",
		Frame:       1,
		Resolution:  [2]int{64, 64},
		Camera:      s.Camera,
		Lights:      s.Lights,
		Obstruction: true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(result.ImagePath); err != nil {
		t.Errorf("composite missing: %v", err)
	}
	if _, err := os.Stat(result.MaskPath); err != nil {
		t.Errorf("combined mask missing: %v", err)
	}
	if len(result.MaskIDs) == 0 {
		t.Error("no objects discovered in the combined mask")
	}
	for _, o := range s.RenderedObjects() {
		if o.Obstruction < 0 || o.Obstruction > 1 {
			t.Errorf("object %d obstruction %v out of range", o.Instance, o.Obstruction)
		}
	}
}
