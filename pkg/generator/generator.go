// Package generator produces concrete object instances from object
// templates. A Generator yields one new instance per call; a Branch wraps
// several generators and picks one per invocation by configured weight, the
// reuse primitive behind every placement node.
package generator

import (
	"math/rand"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/scene"
)

// Generator produces one new object instance per call.
// Implementations must be callable repeatedly and independently; the only
// state carried between calls is the sampling weight.
type Generator interface {
	// Name identifies the generator in logs and object metadata.
	Name() string

	// Weight returns the branch-selection weight. Defaults to 1.
	Weight() float64

	// SetWeight mutates the sampling weight in place.
	SetWeight(w float64)

	// Generate instantiates one object into the scene.
	Generate(s *scene.Scene, rng *rand.Rand) (*scene.Object, error)
}

// Template describes one object template from the asset pool.
type Template struct {
	Name   string     `toml:"name" json:"name"`
	Radius float64    `toml:"radius" json:"radius"`
	Color  [3]float64 `toml:"color" json:"color"`
}

// templateGenerator instantiates a fixed template.
type templateGenerator struct {
	tpl    Template
	weight float64
}

// FromTemplate wraps a template as a Generator with unit weight.
func FromTemplate(tpl Template) Generator {
	return &templateGenerator{tpl: tpl, weight: 1}
}

func (g *templateGenerator) Name() string       { return g.tpl.Name }
func (g *templateGenerator) Weight() float64    { return g.weight }
func (g *templateGenerator) SetWeight(w float64) { g.weight = w }

func (g *templateGenerator) Generate(s *scene.Scene, rng *rand.Rand) (*scene.Object, error) {
	obj := s.NewObject(g.tpl.Name, g.tpl.Name)
	if g.tpl.Radius > 0 {
		obj.Radius = g.tpl.Radius
	}
	if g.tpl.Color != ([3]float64{}) {
		obj.Color = g.tpl.Color
	}
	return obj, nil
}

// Branch selects one of several candidate generators per invocation,
// weighted by each generator's configured weight (uniform by default), and
// delegates to it. Stateless between invocations apart from the weight
// table its members carry.
type Branch struct {
	generators []Generator
}

// NewBranch creates a branch generator over a non-empty ordered generator
// list. An empty list is a CONFIGURATION error.
func NewBranch(generators []Generator) (*Branch, error) {
	if len(generators) == 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "branch generator requires at least one generator")
	}
	return &Branch{generators: generators}, nil
}

// Exec picks one generator by weight and executes it, returning one new
// object instance.
func (b *Branch) Exec(s *scene.Scene, rng *rand.Rand) (*scene.Object, error) {
	return b.pick(rng).Generate(s, rng)
}

// Generators returns the branch members in configuration order.
func (b *Branch) Generators() []Generator {
	return b.generators
}

func (b *Branch) pick(rng *rand.Rand) Generator {
	total := 0.0
	for _, g := range b.generators {
		if w := g.Weight(); w > 0 {
			total += w
		}
	}
	if total == 0 {
		// All weights zero or negative: fall back to uniform choice.
		return b.generators[rng.Intn(len(b.generators))]
	}
	r := rng.Float64() * total
	for _, g := range b.generators {
		w := g.Weight()
		if w <= 0 {
			continue
		}
		if r < w {
			return g
		}
		r -= w
	}
	return b.generators[len(b.generators)-1]
}

// Coerce converts a port list into generators. Values that already are
// generators pass through; strings are template names resolved against the
// pool. This mirrors how placement nodes accept both upstream generator
// links and raw template names.
func Coerce(values port.List, pool Pool) ([]Generator, error) {
	out := make([]Generator, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case Generator:
			out = append(out, t)
		case []any:
			// Channel files deliver generator name lists as one array value.
			nested, err := Coerce(t, pool)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case string:
			if t == "" {
				continue
			}
			if pool == nil {
				return nil, errors.New(errors.ErrCodeConfiguration,
					"no asset pool configured to resolve template %q", t)
			}
			tpl, ok := pool.Lookup(t)
			if !ok {
				return nil, errors.New(errors.ErrCodeNotFound, "object template %q not in pool", t)
			}
			out = append(out, FromTemplate(tpl))
		default:
			return nil, errors.New(errors.ErrCodeValueConversion,
				"cannot use %T as an object generator", v)
		}
	}
	return out, nil
}
