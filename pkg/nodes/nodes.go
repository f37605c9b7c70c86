// Package nodes implements the built-in node types of the scene pipeline:
// lights, cameras, placement (container and random variants), rendering, and
// generator weighting. Channel configurations refer to these by their type
// names; the Registry maps names to constructors.
//
// Port names follow the channel vocabulary ("Number of Objects", "Objects of
// Interest", ...) so channel files stay portable across back ends.
package nodes

import (
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/graph"
)

// Port names shared by the built-in node types.
const (
	PortObjectGenerators    = "Object Generators"
	PortNumberOfObjects     = "Number of Objects"
	PortFloorGenerator      = "Floor Generator"
	PortContainerGenerator  = "Container Generator"
	PortObjectsOfInterest   = "Objects of Interest"
	PortLights              = "Lights"
	PortLight               = "Light"
	PortCamera              = "Camera"
	PortResolution          = "Resolution (px)"
	PortCollectDepthNormal  = "Collect Depth and Normal Masks"
	PortCalculateObstruct   = "Calculate Obstruction"
	PortSensorName          = "Sensor Name"
	PortLightType           = "Type"
	PortRadiantPower        = "Radiant Power (W)"
	PortLocation            = "Location (m)"
	PortLocationHeight      = "Location Height (m)"
	PortRollDegrees         = "Roll (degrees)"
	PortWeightGenerator     = "Generator"
	PortWeight              = "Weight"
)

// RandomHeight is the sentinel a camera height port carries to request a
// randomized altitude.
const RandomHeight = "<random>"

// Factory constructs a node of one type with the given instance name.
type Factory func(name string) graph.Node

// Registry maps node type names to factories. Channel loaders look types up
// here when building a graph.
var Registry = map[string]Factory{
	"Light":                  func(name string) graph.Node { return NewLight(name) },
	"Camera":                 func(name string) graph.Node { return NewCamera(name) },
	"PlacementOverContainer": func(name string) graph.Node { return NewPlacementOverContainer(name) },
	"RandomPlacement":        func(name string) graph.Node { return NewRandomPlacement(name) },
	"Render":                 func(name string) graph.Node { return NewRender(name) },
	"Weight":                 func(name string) graph.Node { return NewWeight(name) },
}

// Create instantiates a node by registered type name.
func Create(nodeType, name string) (graph.Node, error) {
	factory, ok := Registry[nodeType]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidChannel, "unknown node type %q", nodeType)
	}
	return factory(name), nil
}
