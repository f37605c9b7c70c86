// Package graph implements the node-graph engine that drives scene
// construction: named nodes with typed ports, directed links between ports,
// and deterministic topological execution against a single scene.
//
// # Execution Model
//
// Each node consumes a port map (port name to value list) and produces one.
// A node's input port collects, in link order, the values its upstream
// links delivered, preceded by any literal values configured on the port.
// Execution order is a stable topological order: among ready nodes, the one
// added to the graph first runs first, so runs with the same seed replay
// identically.
//
// All shared state lives on the Run: the scene under construction, the
// seeded random source, and the pipeline collaborators (render backend,
// physics engine, annotation writer, asset pool).
package graph

import (
	"context"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dropstage/dropstage/pkg/annotate"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/observability"
	"github.com/dropstage/dropstage/pkg/physics"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/render"
	"github.com/dropstage/dropstage/pkg/scene"
)

// Node is one executable unit in the graph. Implementations read their
// configuration from the input port map and mutate the run's scene.
type Node interface {
	// Name is the unique node name within its graph.
	Name() string

	// Type is the node type label used in logs and graph exports.
	Type() string

	// Exec runs the node against the run's scene and returns its output
	// ports. Exec must not retain the input map.
	Exec(run *Run, in port.Map) (port.Map, error)
}

// Run carries the shared state of one graph execution. Nodes receive the
// same Run for the whole execution; nothing is global.
type Run struct {
	Context context.Context
	Scene   *scene.Scene

	// Rand is the run's seeded random source. All node randomness draws
	// from it so a seed fully determines the produced scene.
	Rand *rand.Rand

	Logger *log.Logger

	// Collaborators for render-stage nodes.
	Backend   render.Backend
	Physics   physics.Engine
	Annotator annotate.Writer
	Pool      generator.Pool

	// ID identifies this run in annotations and logs.
	ID string

	// Seed is the value Rand was seeded with, recorded in metadata.
	Seed int64

	// OutputDir is the dataset root for render-stage nodes.
	OutputDir string

	// Frame is the dataset frame number being produced.
	Frame int

	// Preview switches render nodes to the fast preview pass.
	Preview bool

	// KeepScratch leaves per-object scratch files in place when a render
	// fails, for post-mortem inspection.
	KeepScratch bool
}

// RunOptions configures one graph execution.
type RunOptions struct {
	Seed      int64
	OutputDir string
	Frame     int
	Preview   bool

	// KeepScratch leaves per-object scratch files in place when a render
	// fails.
	KeepScratch bool

	Backend   render.Backend
	Physics   physics.Engine
	Annotator annotate.Writer
	Pool      generator.Pool
	Logger    *log.Logger

	// RunID is generated when empty.
	RunID string
}

// link is one directed connection between two node ports.
type link struct {
	fromNode, fromPort string
	toNode, toPort     string
}

// Link is the exported view of a connection, for graph exports and tests.
type Link struct {
	FromNode, FromPort string
	ToNode, ToPort     string
}

// Graph is a directed acyclic graph of nodes. Zero value is not usable;
// call New.
type Graph struct {
	nodes  []Node
	index  map[string]Node
	links  []link
	inputs map[string]port.Map
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index:  make(map[string]Node),
		inputs: make(map[string]port.Map),
	}
}

// AddNode registers a node. Names must be unique and valid.
func (g *Graph) AddNode(n Node) error {
	if err := errors.ValidateNodeName(n.Name()); err != nil {
		return err
	}
	if _, exists := g.index[n.Name()]; exists {
		return errors.New(errors.ErrCodeConfiguration, "node %q already exists", n.Name())
	}
	g.nodes = append(g.nodes, n)
	g.index[n.Name()] = n
	return nil
}

// Node returns the named node, or nil.
func (g *Graph) Node(name string) Node {
	return g.index[name]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Links returns all links in insertion order.
func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	for i, l := range g.links {
		out[i] = Link{l.fromNode, l.fromPort, l.toNode, l.toPort}
	}
	return out
}

// SetInput appends a literal value to a node's input port. Literals are
// delivered before any linked values, in the order they were set.
func (g *Graph) SetInput(node, portName string, value any) error {
	if _, exists := g.index[node]; !exists {
		return errors.New(errors.ErrCodeConfiguration, "node %q does not exist", node)
	}
	m := g.inputs[node]
	if m == nil {
		m = port.Map{}
		g.inputs[node] = m
	}
	m[portName] = append(m[portName], value)
	return nil
}

// Connect links an output port to an input port. Both nodes must exist; a
// port may carry any number of links.
func (g *Graph) Connect(fromNode, fromPort, toNode, toPort string) error {
	if _, exists := g.index[fromNode]; !exists {
		return errors.New(errors.ErrCodeConfiguration, "link source node %q does not exist", fromNode)
	}
	if _, exists := g.index[toNode]; !exists {
		return errors.New(errors.ErrCodeConfiguration, "link target node %q does not exist", toNode)
	}
	g.links = append(g.links, link{fromNode, fromPort, toNode, toPort})
	return nil
}

// ============================================================================
// EXECUTION
// ============================================================================

// Run executes the graph once against a fresh scene and returns the run
// state, including the constructed scene.
func (g *Graph) Run(ctx context.Context, opts RunOptions) (*Run, error) {
	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	annotator := opts.Annotator
	if annotator == nil {
		// Annotations are part of every render; only runs without an output
		// directory (nothing to annotate against) fall back to the no-op.
		if opts.OutputDir != "" {
			annotator, err = annotate.NewFileWriter(opts.OutputDir)
			if err != nil {
				return nil, err
			}
		} else {
			annotator = annotate.NullWriter{}
		}
	}

	run := &Run{
		Context:   ctx,
		Scene:     scene.New(),
		Rand:      rand.New(rand.NewSource(opts.Seed)),
		Logger:    logger,
		Backend:   opts.Backend,
		Physics:   opts.Physics,
		Annotator: annotator,
		Pool:      opts.Pool,
		ID:        runID,
		Seed:      opts.Seed,
		OutputDir: opts.OutputDir,
		Frame:     opts.Frame,
		Preview:   opts.Preview,

		KeepScratch: opts.KeepScratch,
	}

	hooks := observability.Graph()
	hooks.OnRunStart(ctx, runID, len(order))
	start := time.Now()

	outputs := make(map[string]port.Map, len(order))
	for _, n := range order {
		if err := ctx.Err(); err != nil {
			err = errors.Wrap(errors.ErrCodeInternal, err, "run cancelled")
			hooks.OnRunComplete(ctx, runID, time.Since(start), err)
			return nil, err
		}

		in := g.gatherInputs(n.Name(), outputs)
		logger.Debug("executing node", "node", n.Name(), "type", n.Type(), "ports", len(in))

		hooks.OnNodeStart(ctx, n.Name(), n.Type())
		nodeStart := time.Now()
		out, err := n.Exec(run, in)
		hooks.OnNodeComplete(ctx, n.Name(), n.Type(), time.Since(nodeStart), err)

		if err != nil {
			err = errors.AtNode(err, n.Name(), n.Type())
			hooks.OnRunComplete(ctx, runID, time.Since(start), err)
			return nil, err
		}
		outputs[n.Name()] = out
	}

	hooks.OnRunComplete(ctx, runID, time.Since(start), nil)
	logger.Info("graph run complete",
		"run", runID, "nodes", len(order),
		"objects", len(run.Scene.Objects), "duration", time.Since(start))
	return run, nil
}

// gatherInputs assembles a node's input map: configured literals first,
// then linked upstream values in link order.
func (g *Graph) gatherInputs(name string, outputs map[string]port.Map) port.Map {
	in := port.Map{}
	for p, values := range g.inputs[name] {
		in[p] = append(in[p], values...)
	}
	for _, l := range g.links {
		if l.toNode != name {
			continue
		}
		if up, ok := outputs[l.fromNode]; ok {
			in[l.toPort] = append(in[l.toPort], up[l.fromPort]...)
		}
	}
	return in
}

// topoOrder computes a stable topological order: ready nodes run in
// insertion order. Cycles are a CONFIGURATION error.
func (g *Graph) topoOrder() ([]Node, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n.Name()] = 0
	}
	for _, l := range g.links {
		indegree[l.toNode]++
	}

	order := make([]Node, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(order) < len(g.nodes) {
		progressed := false
		for _, n := range g.nodes {
			if done[n.Name()] || indegree[n.Name()] > 0 {
				continue
			}
			done[n.Name()] = true
			order = append(order, n)
			progressed = true
			for _, l := range g.links {
				if l.fromNode == n.Name() {
					indegree[l.toNode]--
				}
			}
		}
		if !progressed {
			return nil, errors.New(errors.ErrCodeConfiguration, "node graph contains a cycle")
		}
	}
	return order, nil
}
