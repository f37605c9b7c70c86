package nodes

import (
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/scene"
)

// Light creates one lamp pointed at the scene origin and emits it on the
// "Light" port for a downstream render node to attach.
type Light struct {
	name string
}

// NewLight creates a light node.
func NewLight(name string) *Light { return &Light{name: name} }

func (n *Light) Name() string { return n.name }
func (n *Light) Type() string { return "Light" }

var validLightTypes = map[scene.LightType]bool{
	scene.LightPoint: true,
	scene.LightSpot:  true,
	scene.LightSun:   true,
	scene.LightArea:  true,
}

// Exec builds the lamp from the Type, Radiant Power (W), and Location (m)
// ports. The location accepts a vector or the bracketed string form.
func (n *Light) Exec(run *graph.Run, in port.Map) (port.Map, error) {
	kind, err := in.String(PortLightType)
	if err != nil {
		return nil, err
	}
	lightType := scene.LightType(kind)
	if !validLightTypes[lightType] {
		return nil, errors.New(errors.ErrCodeConfiguration, "unknown light type %q", kind)
	}

	energy, err := in.Float(PortRadiantPower)
	if err != nil {
		return nil, err
	}

	locValue, err := in.One(PortLocation)
	if err != nil {
		return nil, err
	}
	loc, err := port.Vec3(locValue)
	if err != nil {
		return nil, err
	}

	light := &scene.Light{
		Name:     n.name,
		Type:     lightType,
		Energy:   energy,
		Location: scene.Vec3(loc),
		Target:   scene.Vec3{}, // aimed at the origin, matters for spots
	}
	run.Logger.Debug("light created", "node", n.name, "type", kind, "energy", energy)
	return port.Map{PortLight: {light}}, nil
}
