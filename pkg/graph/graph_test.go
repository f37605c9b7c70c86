package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/dropstage/dropstage/pkg/annotate"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/port"
)

// stubNode records its execution and forwards a configurable output.
type stubNode struct {
	name     string
	execLog  *[]string
	inputs   port.Map
	output   port.Map
	execErr  error
	sawScene bool
}

func (n *stubNode) Name() string { return n.name }
func (n *stubNode) Type() string { return "stub" }

func (n *stubNode) Exec(run *Run, in port.Map) (port.Map, error) {
	*n.execLog = append(*n.execLog, n.name)
	n.inputs = in
	n.sawScene = run.Scene != nil
	if n.execErr != nil {
		return nil, n.execErr
	}
	return n.output, nil
}

func buildChain(t *testing.T, names ...string) (*Graph, *[]string, map[string]*stubNode) {
	t.Helper()
	g := New()
	execLog := &[]string{}
	nodes := map[string]*stubNode{}
	for _, name := range names {
		n := &stubNode{name: name, execLog: execLog}
		nodes[name] = n
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", name, err)
		}
	}
	return g, execLog, nodes
}

func TestRunExecutesInTopologicalOrder(t *testing.T) {
	g, execLog, nodes := buildChain(t, "c", "a", "b")
	nodes["a"].output = port.Map{"out": {1.0}}
	nodes["b"].output = port.Map{"out": {2.0}}

	// c depends on b, b depends on a; insertion order would be c first.
	if err := g.Connect("a", "out", "b", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect("b", "out", "c", "in"); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Run(context.Background(), RunOptions{Seed: 1}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := strings.Join(*execLog, ","); got != "a,b,c" {
		t.Errorf("execution order = %s, want a,b,c", got)
	}
}

func TestRunDefaultsAnnotatorToFileWriter(t *testing.T) {
	g, _, _ := buildChain(t, "a")

	run, err := g.Run(context.Background(), RunOptions{Seed: 1, OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := run.Annotator.(*annotate.FileWriter); !ok {
		t.Errorf("annotator = %T, want *annotate.FileWriter", run.Annotator)
	}

	// Without an output directory there is nothing to annotate against.
	run, err = g.Run(context.Background(), RunOptions{Seed: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := run.Annotator.(annotate.NullWriter); !ok {
		t.Errorf("annotator = %T, want annotate.NullWriter", run.Annotator)
	}
}

func TestRunStableOrderForIndependentNodes(t *testing.T) {
	g, execLog, _ := buildChain(t, "z", "m", "a")

	if _, err := g.Run(context.Background(), RunOptions{Seed: 1}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Independent nodes run in insertion order, not name order.
	if got := strings.Join(*execLog, ","); got != "z,m,a" {
		t.Errorf("execution order = %s, want z,m,a", got)
	}
}

func TestRunDeliversLinkedValuesAndLiterals(t *testing.T) {
	g, _, nodes := buildChain(t, "src", "dst")
	nodes["src"].output = port.Map{"value": {2.5, 3.5}}

	if err := g.SetInput("dst", "value", 1.5); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect("src", "value", "dst", "value"); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Run(context.Background(), RunOptions{Seed: 1}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := nodes["dst"].inputs["value"]
	if len(got) != 3 {
		t.Fatalf("expected 3 values on port, got %v", got)
	}
	// Literals first, then linked values in order.
	if got[0] != 1.5 || got[1] != 2.5 || got[2] != 3.5 {
		t.Errorf("unexpected port values: %v", got)
	}
}

func TestRunRejectsCycle(t *testing.T) {
	g, _, _ := buildChain(t, "a", "b")
	if err := g.Connect("a", "out", "b", "in"); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect("b", "out", "a", "in"); err != nil {
		t.Fatal(err)
	}

	_, err := g.Run(context.Background(), RunOptions{Seed: 1})
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error for cycle, got %v", err)
	}
}

func TestRunWrapsNodeErrorWithNodeIdentity(t *testing.T) {
	g, _, nodes := buildChain(t, "boom")
	nodes["boom"].execErr = errors.New(errors.ErrCodePortArity, "port %q requires exactly 1 link", "height")

	_, err := g.Run(context.Background(), RunOptions{Seed: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.ErrCodePortArity) {
		t.Errorf("node error lost its code: %v", err)
	}
	if !strings.Contains(err.Error(), `node "boom" (stub)`) {
		t.Errorf("error does not identify the failing node: %v", err)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	g, execLog, nodes := buildChain(t, "first", "second")
	nodes["first"].execErr = errors.New(errors.ErrCodeConfiguration, "bad")
	if err := g.Connect("first", "out", "second", "in"); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Run(context.Background(), RunOptions{Seed: 1}); err == nil {
		t.Fatal("expected error")
	}
	if len(*execLog) != 1 {
		t.Errorf("expected execution to stop after the failing node, ran %v", *execLog)
	}
}

func TestRunSeedDeterminism(t *testing.T) {
	draw := func(seed int64) float64 {
		g := New()
		execLog := []string{}
		n := &stubNode{name: "n", execLog: &execLog}
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
		run, err := g.Run(context.Background(), RunOptions{Seed: seed})
		if err != nil {
			t.Fatal(err)
		}
		return run.Rand.Float64()
	}

	if draw(7) != draw(7) {
		t.Error("same seed produced different random streams")
	}
	if draw(7) == draw(8) {
		t.Error("different seeds produced the same first draw")
	}
}

func TestRunProvidesFreshScene(t *testing.T) {
	g, _, nodes := buildChain(t, "n")

	run, err := g.Run(context.Background(), RunOptions{Seed: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !nodes["n"].sawScene {
		t.Error("node did not receive a scene")
	}
	if run.Scene == nil || len(run.Scene.Objects) != 0 {
		t.Error("expected a fresh empty scene on the run")
	}

	run2, err := g.Run(context.Background(), RunOptions{Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if run.Scene == run2.Scene {
		t.Error("runs must not share a scene")
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	g, execLog, _ := buildChain(t, "n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Run(ctx, RunOptions{Seed: 1}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(*execLog) != 0 {
		t.Errorf("no nodes should run after cancellation, ran %v", *execLog)
	}
}

func TestAddNodeRejectsDuplicates(t *testing.T) {
	g, _, _ := buildChain(t, "n")
	execLog := []string{}
	err := g.AddNode(&stubNode{name: "n", execLog: &execLog})
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error, got %v", err)
	}
}

func TestConnectRequiresExistingNodes(t *testing.T) {
	g, _, _ := buildChain(t, "n")
	if err := g.Connect("ghost", "out", "n", "in"); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error, got %v", err)
	}
	if err := g.Connect("n", "out", "ghost", "in"); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION error, got %v", err)
	}
}

func TestDOTExport(t *testing.T) {
	g, _, _ := buildChain(t, "lights", "render")
	if err := g.Connect("lights", "Lights", "render", "Lights"); err != nil {
		t.Fatal(err)
	}

	dot := string(g.DOT())
	for _, want := range []string{"digraph pipeline", `"lights"`, `"render"`, `"lights" -> "render"`} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if string(g.DOT()) != dot {
		t.Error("DOT export is not deterministic")
	}
}
