package channel

import (
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/nodes"
)

// Channel is the parsed form of a channel TOML file.
type Channel struct {
	// Name labels the channel in logs and job listings.
	Name string `toml:"name" json:"name"`

	// Pool locates the asset pool TOML file, relative to the working
	// directory.
	Pool string `toml:"pool" json:"pool,omitempty"`

	// Output is the dataset root directory.
	Output string `toml:"output" json:"output,omitempty"`

	// Seed is the base random seed; frame i runs with Seed+i.
	Seed int64 `toml:"seed" json:"seed,omitempty"`

	// Frames is the number of dataset frames to produce.
	Frames int `toml:"frames" json:"frames,omitempty"`

	Nodes []NodeDef `toml:"node" json:"nodes"`
	Links []LinkDef `toml:"link" json:"links,omitempty"`
}

// NodeDef declares one graph node: its unique name, registered type, and
// port literals.
type NodeDef struct {
	Name string `toml:"name" json:"name"`
	Type string `toml:"type" json:"type"`

	// Input maps port names to literal values. Values keep their TOML
	// types; multi-value ports use arrays.
	Input map[string]any `toml:"input" json:"input,omitempty"`
}

// LinkDef connects an output port to an input port.
type LinkDef struct {
	From     string `toml:"from" json:"from"`
	FromPort string `toml:"from_port" json:"from_port"`
	To       string `toml:"to" json:"to"`
	ToPort   string `toml:"to_port" json:"to_port"`
}

// Load reads and parses a channel file.
func Load(path string) (*Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "channel file %s", path)
	}
	return Parse(data)
}

// Parse decodes a channel body and validates its structure. Node names must
// be unique and every link endpoint must name a declared node.
func Parse(data []byte) (*Channel, error) {
	var ch Channel
	if err := toml.Unmarshal(data, &ch); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidChannel, err, "parse channel")
	}

	if len(ch.Nodes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidChannel, "channel declares no nodes")
	}
	seen := make(map[string]bool, len(ch.Nodes))
	for _, def := range ch.Nodes {
		if def.Name == "" || def.Type == "" {
			return nil, errors.New(errors.ErrCodeInvalidChannel,
				"node declarations require both name and type")
		}
		if seen[def.Name] {
			return nil, errors.New(errors.ErrCodeInvalidChannel, "duplicate node name %q", def.Name)
		}
		seen[def.Name] = true
	}
	for _, l := range ch.Links {
		if !seen[l.From] {
			return nil, errors.New(errors.ErrCodeInvalidChannel,
				"link source %q is not a declared node", l.From)
		}
		if !seen[l.To] {
			return nil, errors.New(errors.ErrCodeInvalidChannel,
				"link target %q is not a declared node", l.To)
		}
	}
	return &ch, nil
}

// Build constructs the executable node graph: instantiate every declared
// node, apply port literals, and wire the links. Literal application walks
// port names in sorted order so graph construction is deterministic.
func (ch *Channel) Build() (*graph.Graph, error) {
	g := graph.New()
	for _, def := range ch.Nodes {
		n, err := nodes.Create(def.Type, def.Name)
		if err != nil {
			return nil, err
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}

		ports := make([]string, 0, len(def.Input))
		for name := range def.Input {
			ports = append(ports, name)
		}
		sort.Strings(ports)
		for _, portName := range ports {
			// Each TOML literal is one port value; arrays arrive whole
			// (resolutions, locations, generator name lists).
			if err := g.SetInput(def.Name, portName, def.Input[portName]); err != nil {
				return nil, err
			}
		}
	}

	for _, l := range ch.Links {
		if err := g.Connect(l.From, l.FromPort, l.To, l.ToPort); err != nil {
			return nil, err
		}
	}
	return g, nil
}
