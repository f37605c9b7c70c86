package nodes

import (
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/graph"
	"github.com/dropstage/dropstage/pkg/port"
	"github.com/dropstage/dropstage/pkg/render"
	"github.com/dropstage/dropstage/pkg/render/software"
	"github.com/dropstage/dropstage/pkg/scene"
)

// Render is the terminal node of a channel: it attaches the camera, lights
// and resolution to the run's scene and drives the multi-pass render
// pipeline (composite, combined ID mask, optional per-object masks with
// obstruction metrics, annotations).
type Render struct {
	name string
}

// NewRender creates a render node.
func NewRender(name string) *Render {
	return &Render{name: name}
}

func (n *Render) Name() string { return n.name }
func (n *Render) Type() string { return "Render" }

// Exec runs the render pipeline. The objects port is consumed only to force
// placement upstream; the placed objects already live on the run's scene.
func (n *Render) Exec(run *graph.Run, in port.Map) (port.Map, error) {
	if _, err := in.One(PortObjectsOfInterest); err != nil {
		return nil, err
	}

	camValue, err := in.One(PortCamera)
	if err != nil {
		return nil, err
	}
	cam, ok := camValue.(*scene.Camera)
	if !ok {
		return nil, errors.New(errors.ErrCodeValueConversion, "camera port holds %T, not a camera", camValue)
	}

	lights, err := coerceLights(in.Get(PortLights))
	if err != nil {
		return nil, err
	}

	resValue, err := in.One(PortResolution)
	if err != nil {
		return nil, err
	}
	width, height, err := port.Resolution(resValue)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderFatal, err, "render resolution")
	}

	depthNormal, err := in.Bool(PortCollectDepthNormal)
	if err != nil {
		return nil, err
	}
	obstruction, err := in.Bool(PortCalculateObstruct)
	if err != nil {
		return nil, err
	}

	sensor := ""
	if sensorInput := in.Get(PortSensorName); !sensorInput.Empty() {
		sensor, err = in.String(PortSensorName)
		if err != nil {
			return nil, err
		}
	}

	backend := run.Backend
	if backend == nil {
		backend = software.New()
	}

	orchestrator := render.NewOrchestrator(backend, run.Annotator, run.Logger)
	result, err := orchestrator.Execute(run.Context, run.Scene, render.Options{
		OutputDir:   run.OutputDir,
		Sensor:      sensor,
		Frame:       run.Frame,
		Resolution:  [2]int{width, height},
		Camera:      cam,
		Lights:      lights,
		Preview:     run.Preview,
		DepthNormal: depthNormal,
		Obstruction: obstruction,

		KeepScratchOnError: run.KeepScratch,

		RunID: run.ID,
		Seed:  run.Seed,
	})
	if err != nil {
		return nil, err
	}

	if result.PreviewPath != "" {
		run.Logger.Info("preview rendered", "node", n.name, "path", result.PreviewPath)
	} else {
		run.Logger.Info("frame rendered", "node", n.name,
			"image", result.ImagePath, "mask", result.MaskPath, "objects", len(result.MaskIDs))
	}
	return port.Map{}, nil
}

// coerceLights collects lights from the port, skipping the empty-string
// sentinel a channel uses to wire "no lights" explicitly.
func coerceLights(values port.List) ([]*scene.Light, error) {
	lights := make([]*scene.Light, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case *scene.Light:
			lights = append(lights, t)
		case string:
			if t == "" {
				continue
			}
			return nil, errors.New(errors.ErrCodeValueConversion, "light port holds string %q", t)
		default:
			return nil, errors.New(errors.ErrCodeValueConversion, "light port holds %T, not a light", v)
		}
	}
	return lights, nil
}
