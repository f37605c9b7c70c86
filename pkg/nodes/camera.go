package nodes

import (
	"math"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/scene"
)

// Random-height sampling range. The hemisphere constraint below keeps the
// camera altitude angle above 45 degrees.
const (
	minRandomHeight = 0.4
	maxRandomHeight = 0.7
)

// Camera places the viewpoint on a hemisphere over the scene origin and
// emits it on the "Camera" port.
type Camera struct {
	name string
}

// NewCamera creates a camera node.
func NewCamera(name string) *Camera { return &Camera{name: name} }

func (n *Camera) Name() string { return n.name }
func (n *Camera) Type() string { return "Camera" }

// Exec samples the camera position: the height comes from the Location
// Height (m) port (or uniformly from the random range for the "<random>"
// sentinel), x is drawn in [0, height], and y within the disc that keeps
// the camera-to-origin distance equal to the height. The camera points at
// the origin with the configured roll.
func (n *Camera) Exec(run *graph.Run, in port.Map) (port.Map, error) {
	heightValue, err := in.One(PortLocationHeight)
	if err != nil {
		return nil, err
	}

	var height float64
	if s, ok := heightValue.(string); ok && s == RandomHeight {
		height = minRandomHeight + run.Rand.Float64()*(maxRandomHeight-minRandomHeight)
	} else {
		height, err = port.ToFloat(heightValue)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeValueConversion, err, "camera height is not numeric")
		}
	}

	x := run.Rand.Float64() * height
	yLimit := math.Sqrt(height*height - x*x)
	y := -yLimit + run.Rand.Float64()*2*yLimit

	rollDeg, err := in.Float(PortRollDegrees)
	if err != nil {
		return nil, err
	}

	cam := &scene.Camera{
		Name:     n.name,
		Location: scene.Vec3{x, y, height},
		Target:   scene.Vec3{},
		Roll:     rollDeg * math.Pi / 180,
		FOV:      scene.DefaultFOV,
	}
	run.Logger.Debug("camera placed", "node", n.name,
		"x", x, "y", y, "height", height, "roll_deg", rollDeg)
	return port.Map{PortCamera: {cam}}, nil
}
