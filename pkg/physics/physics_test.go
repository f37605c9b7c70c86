package physics

import (
	"context"
	"math"
	"testing"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/scene"
)

func TestLinkOnce(t *testing.T) {
	s := scene.New()
	w := NewWorld()
	obj := s.NewObject("cube", "gen")

	if _, err := w.LinkDynamic(obj); err != nil {
		t.Fatalf("LinkDynamic: %v", err)
	}
	if _, err := w.LinkDynamic(obj); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("second link of same object should be CONFIGURATION, got %v", err)
	}
	if len(w.Bodies()) != 1 {
		t.Errorf("world holds %d bodies, want 1", len(w.Bodies()))
	}
}

func TestLinkStaticIsPassiveMesh(t *testing.T) {
	s := scene.New()
	w := NewWorld()
	floor := s.NewObject("floor", "floorgen")

	b, err := w.LinkStatic(floor)
	if err != nil {
		t.Fatalf("LinkStatic: %v", err)
	}
	if b.Type != BodyPassive {
		t.Errorf("floor body type = %v, want PASSIVE", b.Type)
	}
	if b.Shape != ShapeMesh {
		t.Errorf("floor shape = %v, want MESH", b.Shape)
	}
	if !b.UseMargin || b.Margin != DefaultCollisionMargin {
		t.Errorf("floor margin = %v/%v, want enabled at %v", b.UseMargin, b.Margin, DefaultCollisionMargin)
	}
}

func TestBakeSettlesOntoFloor(t *testing.T) {
	s := scene.New()
	w := NewWorld()

	floor := s.NewObject("floor", "floorgen")
	floor.Pose.Location = scene.Vec3{0, 0, 0}
	if _, err := w.LinkStatic(floor); err != nil {
		t.Fatal(err)
	}

	obj := s.NewObject("ball", "gen")
	obj.Radius = 0.05
	obj.Pose.Location = scene.Vec3{0.3, 0, 2}
	if _, err := w.LinkDynamic(obj); err != nil {
		t.Fatal(err)
	}

	if err := (BuiltinEngine{}).Bake(context.Background(), w); err != nil {
		t.Fatalf("Bake: %v", err)
	}

	want := DefaultCollisionMargin + 0.05
	if got := obj.Pose.Location[2]; math.Abs(got-want) > 1e-9 {
		t.Errorf("settled z = %v, want %v", got, want)
	}
	// Horizontal position is untouched by a straight drop
	if obj.Pose.Location[0] != 0.3 {
		t.Errorf("bake should not move objects horizontally, x = %v", obj.Pose.Location[0])
	}
}

func TestBakeStacksOverlappingObjects(t *testing.T) {
	s := scene.New()
	w := NewWorld()

	floor := s.NewObject("floor", "floorgen")
	if _, err := w.LinkStatic(floor); err != nil {
		t.Fatal(err)
	}

	lower := s.NewObject("a", "gen")
	lower.Radius = 0.05
	lower.Pose.Location = scene.Vec3{0, 0, 2}
	upper := s.NewObject("b", "gen")
	upper.Radius = 0.05
	upper.Pose.Location = scene.Vec3{0.01, 0, 2.1}
	for _, o := range []*scene.Object{lower, upper} {
		if _, err := w.LinkDynamic(o); err != nil {
			t.Fatal(err)
		}
	}

	if err := (BuiltinEngine{}).Bake(context.Background(), w); err != nil {
		t.Fatalf("Bake: %v", err)
	}

	if upper.Pose.Location[2] <= lower.Pose.Location[2] {
		t.Errorf("overlapping object should stack: upper z=%v, lower z=%v",
			upper.Pose.Location[2], lower.Pose.Location[2])
	}
}

func TestBakeRequiresPassiveCollider(t *testing.T) {
	s := scene.New()
	w := NewWorld()
	obj := s.NewObject("ball", "gen")
	if _, err := w.LinkDynamic(obj); err != nil {
		t.Fatal(err)
	}

	err := (BuiltinEngine{}).Bake(context.Background(), w)
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("bake without floor should be CONFIGURATION, got %v", err)
	}
}

func TestBakeDisabledWorld(t *testing.T) {
	s := scene.New()
	w := NewWorld()
	w.Enabled = false

	obj := s.NewObject("ball", "gen")
	obj.Pose.Location = scene.Vec3{0, 0, 2}
	if _, err := w.LinkDynamic(obj); err != nil {
		t.Fatal(err)
	}

	if err := (BuiltinEngine{}).Bake(context.Background(), w); err != nil {
		t.Fatalf("Bake: %v", err)
	}
	if obj.Pose.Location[2] != 2 {
		t.Error("disabled world should not move objects")
	}
}
