// Package compositor models the renderer's post-processing pipeline as an
// explicit directed graph: typed nodes with named sockets, connected by
// links. The render orchestrator rewires this graph between passes
// (add-link/remove-link operations); render back ends translate the final
// graph state into native calls immediately before each render.
//
// The graph preserves node insertion order so backends and tests observe a
// deterministic traversal.
package compositor

import (
	"fmt"
	"strings"

	"github.com/dropstage/dropstage/pkg/errors"
)

// Kind identifies a compositor node type.
type Kind string

// Compositor node kinds.
const (
	KindRenderLayers Kind = "RenderLayers" // raw render-layer source
	KindDenoise      Kind = "Denoise"      // image denoise stage
	KindNormalize    Kind = "Normalize"    // value normalization (depth viewing)
	KindComposite    Kind = "Composite"    // final composite sink
	KindFileOutput   Kind = "FileOutput"   // file-output sink
	KindIDMask       Kind = "IDMask"       // per-object index-to-alpha mask
	KindImagePlace   Kind = "ImageOutput"  // placeholder image output (removed at setup)
)

// Socket names used by the standard graph.
const (
	SocketImage  = "Image"
	SocketAlpha  = "Alpha"
	SocketValue  = "Value"
	SocketDepth  = "Depth"
	SocketNormal = "Normal"
	SocketIndex  = "IndexOB"
)

// Well-known node names in the standard graph.
const (
	NodeRenderLayers = "Render Layers"
	NodeComposite    = "Composite"
	NodeImagePlace   = "imgout"
)

// Node is one compositor stage.
type Node struct {
	Name string
	Kind Kind

	// BasePath is the output directory for FileOutput nodes.
	BasePath string

	// FileSlots are the output filename templates of a FileOutput node.
	// A '#' in a slot is replaced with the scene's current frame number at
	// write time.
	FileSlots []string

	// Index is the object instance id an IDMask node isolates.
	Index int
}

// ClearSlots removes all file slots from a FileOutput node.
func (n *Node) ClearSlots() { n.FileSlots = nil }

// AddSlot appends a file slot template to a FileOutput node.
func (n *Node) AddSlot(path string) { n.FileSlots = append(n.FileSlots, path) }

// Link is one directed connection between two node sockets.
type Link struct {
	FromNode   string
	FromSocket string
	ToNode     string
	ToSocket   string
}

// String formats the link for logs and errors.
func (l Link) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", l.FromNode, l.FromSocket, l.ToNode, l.ToSocket)
}

// Graph is the compositor graph: nodes in insertion order plus directed
// links between named sockets.
type Graph struct {
	nodes []*Node
	index map[string]*Node
	links []Link
}

// NewGraph creates an empty compositor graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]*Node)}
}

// NewStandard creates the graph every fresh scene starts with: a
// render-layer source, the composite sink, and the placeholder image output
// that setup removes.
func NewStandard() *Graph {
	g := NewGraph()
	g.MustAdd(&Node{Name: NodeRenderLayers, Kind: KindRenderLayers})
	g.MustAdd(&Node{Name: NodeComposite, Kind: KindComposite})
	g.MustAdd(&Node{Name: NodeImagePlace, Kind: KindImagePlace})
	_ = g.Connect(NodeRenderLayers, SocketImage, NodeImagePlace, SocketImage)
	return g
}

// Add inserts a node. Node names are unique within the graph.
func (g *Graph) Add(n *Node) error {
	if n.Name == "" {
		return errors.New(errors.ErrCodeConfiguration, "compositor node needs a name")
	}
	if _, exists := g.index[n.Name]; exists {
		return errors.New(errors.ErrCodeConfiguration, "compositor node %q already exists", n.Name)
	}
	g.nodes = append(g.nodes, n)
	g.index[n.Name] = n
	return nil
}

// MustAdd inserts a node and panics on a name collision. Used only for
// building the standard graph.
func (g *Graph) MustAdd(n *Node) *Node {
	if err := g.Add(n); err != nil {
		panic(err)
	}
	return n
}

// Node returns the named node, or nil.
func (g *Graph) Node(name string) *Node {
	return g.index[name]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// NodesByKind returns all nodes of the given kind in insertion order.
func (g *Graph) NodesByKind(kind Kind) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Remove deletes a node and every link touching it.
func (g *Graph) Remove(name string) {
	if _, ok := g.index[name]; !ok {
		return
	}
	delete(g.index, name)
	nodes := g.nodes[:0]
	for _, n := range g.nodes {
		if n.Name != name {
			nodes = append(nodes, n)
		}
	}
	g.nodes = nodes
	links := g.links[:0]
	for _, l := range g.links {
		if l.FromNode != name && l.ToNode != name {
			links = append(links, l)
		}
	}
	g.links = links
}

// Connect adds a directed link between two node sockets. Both endpoints
// must exist; duplicate links are rejected.
func (g *Graph) Connect(fromNode, fromSocket, toNode, toSocket string) error {
	if g.index[fromNode] == nil {
		return errors.New(errors.ErrCodeConfiguration, "compositor link source %q does not exist", fromNode)
	}
	if g.index[toNode] == nil {
		return errors.New(errors.ErrCodeConfiguration, "compositor link target %q does not exist", toNode)
	}
	l := Link{FromNode: fromNode, FromSocket: fromSocket, ToNode: toNode, ToSocket: toSocket}
	for _, existing := range g.links {
		if existing == l {
			return errors.New(errors.ErrCodeConfiguration, "compositor link %s already exists", l)
		}
	}
	g.links = append(g.links, l)
	return nil
}

// Disconnect removes the exact link, reporting whether it was present.
func (g *Graph) Disconnect(fromNode, fromSocket, toNode, toSocket string) bool {
	l := Link{FromNode: fromNode, FromSocket: fromSocket, ToNode: toNode, ToSocket: toSocket}
	for i, existing := range g.links {
		if existing == l {
			g.links = append(g.links[:i], g.links[i+1:]...)
			return true
		}
	}
	return false
}

// DisconnectFrom removes every link whose source is the given node socket
// and returns the removed links.
func (g *Graph) DisconnectFrom(fromNode, fromSocket string) []Link {
	var removed []Link
	links := g.links[:0]
	for _, l := range g.links {
		if l.FromNode == fromNode && l.FromSocket == fromSocket {
			removed = append(removed, l)
		} else {
			links = append(links, l)
		}
	}
	g.links = links
	return removed
}

// Links returns a copy of all links in insertion order.
func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	copy(out, g.links)
	return out
}

// LinksInto returns the links terminating at the given node.
func (g *Graph) LinksInto(toNode string) []Link {
	var out []Link
	for _, l := range g.links {
		if l.ToNode == toNode {
			out = append(out, l)
		}
	}
	return out
}

// HasLink reports whether the exact link is present.
func (g *Graph) HasLink(fromNode, fromSocket, toNode, toSocket string) bool {
	l := Link{FromNode: fromNode, FromSocket: fromSocket, ToNode: toNode, ToSocket: toSocket}
	for _, existing := range g.links {
		if existing == l {
			return true
		}
	}
	return false
}

// MaskNodes returns the per-object IDMask nodes, identified by the "_mask"
// name suffix, in insertion order.
func (g *Graph) MaskNodes() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Kind == KindIDMask && strings.HasSuffix(n.Name, "_mask") {
			out = append(out, n)
		}
	}
	return out
}
