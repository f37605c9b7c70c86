package nodes

import (
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/port"
)

// Weight sets the branch weight of exactly one generator and passes it
// through, so a channel can bias which templates a placement picks.
type Weight struct {
	name string
}

// NewWeight creates a weight node.
func NewWeight(name string) *Weight {
	return &Weight{name: name}
}

func (n *Weight) Name() string { return n.name }
func (n *Weight) Type() string { return "Weight" }

// Exec resolves the single wired generator, applies the weight, and emits
// the generator on the output port. A non-numeric weight leaves the
// generator untouched.
func (n *Weight) Exec(run *graph.Run, in port.Map) (port.Map, error) {
	if _, err := in.One(PortWeightGenerator); err != nil {
		return nil, err
	}
	gens, err := generator.Coerce(in.Get(PortWeightGenerator), run.Pool)
	if err != nil {
		return nil, err
	}
	if len(gens) != 1 {
		return nil, errors.New(errors.ErrCodePortArity, "weight node %q needs exactly one generator, got %d", n.name, len(gens))
	}

	weight, err := in.Float(PortWeight)
	if err != nil {
		return nil, err
	}

	gen := gens[0]
	gen.SetWeight(weight)
	return port.Map{PortWeightGenerator: {gen}}, nil
}
