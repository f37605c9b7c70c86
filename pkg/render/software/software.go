// Package software implements a pure-Go render backend. Objects render as
// shaded bounding-sphere splats through a pinhole camera, which is enough to
// produce geometrically consistent composites, ID masks, depth, and normal
// passes without an external renderer. Dataset runs that need photorealism
// swap in a different backend; the pipeline contract is identical.
package software

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/dropstage/dropstage/pkg/compositor"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/render"
	"github.com/dropstage/dropstage/pkg/scene"
)

// Ambient is the base light level so unlit geometry stays visible.
const Ambient = 0.15

// Backend is the software rasterizer. The zero value is ready to use.
type Backend struct {
	// Background is the composite clear color. Defaults to near-black.
	Background [3]float64
}

// New creates a software backend with the default background.
func New() *Backend {
	return &Backend{Background: [3]float64{0.05, 0.05, 0.06}}
}

// Render rasterizes the scene once and writes an output file for every
// file-output node with an active incoming link, per the Backend contract.
func (b *Backend) Render(ctx context.Context, s *scene.Scene, q render.Quality) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeRenderFatal, err, "render cancelled")
	}
	if s.Camera == nil {
		return errors.New(errors.ErrCodeRenderFatal, "no camera attached to the scene")
	}
	if s.ResolutionX <= 0 || s.ResolutionY <= 0 {
		return errors.New(errors.ErrCodeRenderFatal, "render resolution is not set")
	}

	fb := b.rasterize(s)

	for _, n := range s.Compositor.NodesByKind(compositor.KindFileOutput) {
		links := s.Compositor.LinksInto(n.Name)
		if len(links) == 0 || len(n.FileSlots) == 0 {
			continue
		}
		src := s.Compositor.Node(links[0].FromNode)
		if src == nil {
			return errors.New(errors.ErrCodeConfiguration, "compositor link source %q vanished", links[0].FromNode)
		}

		var img image.Image
		switch {
		case src.Kind == compositor.KindIDMask:
			img = fb.soloMask(src.Index)
		case src.Kind == compositor.KindNormalize:
			img = fb.depthMap()
		case links[0].FromSocket == compositor.SocketIndex:
			img = fb.idMask()
		case links[0].FromSocket == compositor.SocketNormal:
			img = fb.normalMap()
		default:
			img = fb.composite(b.Background)
		}

		for _, slot := range n.FileSlots {
			path := filepath.Join(n.BasePath, render.ResolveSlot(slot, s.Frame))
			if err := writePNG(path, img); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================================
// RASTERIZATION
// ============================================================================

// framebuffer holds the per-pixel results of one rasterization.
type framebuffer struct {
	w, h    int
	index   []uint16     // object instance id, 0 = no pass index
	covered []bool       // any geometry hit, including background colliders
	depth   []float64    // camera-space depth, +Inf = background
	shade   []float64    // light intensity at the splat surface
	normals [][3]float64 // camera-space surface normal
	colors  [][3]float64 // object albedo
}

func (b *Backend) rasterize(s *scene.Scene) *framebuffer {
	w, h := s.ResolutionX, s.ResolutionY
	fb := &framebuffer{
		w: w, h: h,
		index:   make([]uint16, w*h),
		covered: make([]bool, w*h),
		depth:   make([]float64, w*h),
		shade:   make([]float64, w*h),
		normals: make([][3]float64, w*h),
		colors:  make([][3]float64, w*h),
	}
	for i := range fb.depth {
		fb.depth[i] = math.Inf(1)
	}

	cam := s.Camera
	forward, right, up := cam.Basis()
	fov := cam.FOV
	if fov == 0 {
		fov = scene.DefaultFOV
	}
	focal := float64(w) / 2 / math.Tan(fov/2)
	cx, cy := float64(w)/2, float64(h)/2

	for _, o := range s.Objects {
		if o.HideRender {
			continue
		}
		d := o.Pose.Location.Sub(cam.Location)
		z := d.Dot(forward)
		if z <= 1e-6 {
			continue
		}
		px := cx + focal*d.Dot(right)/z
		py := cy - focal*d.Dot(up)/z
		pr := focal * o.Radius / z
		if pr < 0.5 {
			pr = 0.5
		}

		light := b.lightAt(s, o.Pose.Location)

		minX := int(math.Floor(px - pr))
		maxX := int(math.Ceil(px + pr))
		minY := int(math.Floor(py - pr))
		maxY := int(math.Ceil(py + pr))
		for y := max(minY, 0); y <= min(maxY, h-1); y++ {
			for x := max(minX, 0); x <= min(maxX, w-1); x++ {
				dx := (float64(x) - px) / pr
				dy := (float64(y) - py) / pr
				rr := dx*dx + dy*dy
				if rr > 1 {
					continue
				}
				dz := math.Sqrt(1 - rr)
				// Surface depth bulges toward the camera.
				pd := z - o.Radius*dz
				i := y*w + x
				if pd >= fb.depth[i] {
					continue
				}
				fb.depth[i] = pd
				fb.covered[i] = true
				// Background colliders shade the composite but carry no
				// pass index, so they never appear in ID masks.
				if o.Background {
					fb.index[i] = 0
				} else {
					fb.index[i] = uint16(o.Instance)
				}
				fb.colors[i] = o.Color
				fb.normals[i] = [3]float64{dx, -dy, dz}
				fb.shade[i] = Ambient + light*dz
			}
		}
	}
	return fb
}

// lightAt evaluates the scene lights at a point with inverse-square
// falloff. Sun lights contribute a constant term.
func (b *Backend) lightAt(s *scene.Scene, p scene.Vec3) float64 {
	if len(s.Lights) == 0 {
		return 1 - Ambient
	}
	total := 0.0
	for _, l := range s.Lights {
		switch l.Type {
		case scene.LightSun:
			total += l.Energy
		default:
			dist2 := l.Location.Sub(p).Dot(l.Location.Sub(p))
			if dist2 < 1e-6 {
				dist2 = 1e-6
			}
			total += l.Energy / (4 * math.Pi * dist2)
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

// ============================================================================
// OUTPUT PASSES
// ============================================================================

func (fb *framebuffer) composite(background [3]float64) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, fb.w, fb.h))
	for i := 0; i < fb.w*fb.h; i++ {
		c := background
		if fb.covered[i] {
			shade := fb.shade[i]
			if shade > 1 {
				shade = 1
			}
			c = [3]float64{fb.colors[i][0] * shade, fb.colors[i][1] * shade, fb.colors[i][2] * shade}
		}
		img.Pix[i*4+0] = toByte(c[0])
		img.Pix[i*4+1] = toByte(c[1])
		img.Pix[i*4+2] = toByte(c[2])
		img.Pix[i*4+3] = 0xFF
	}
	return img
}

func (fb *framebuffer) idMask() image.Image {
	img := image.NewGray16(image.Rect(0, 0, fb.w, fb.h))
	for i, id := range fb.index {
		img.SetGray16(i%fb.w, i/fb.w, color.Gray16{Y: id})
	}
	return img
}

func (fb *framebuffer) soloMask(instance int) image.Image {
	img := image.NewGray16(image.Rect(0, 0, fb.w, fb.h))
	for i, id := range fb.index {
		if int(id) == instance {
			img.SetGray16(i%fb.w, i/fb.w, color.Gray16{Y: 0xFFFF})
		}
	}
	return img
}

// depthMap normalizes covered depths into [0, 1) and leaves the background
// at white, matching what a normalize node produces.
func (fb *framebuffer) depthMap() image.Image {
	minD, maxD := math.Inf(1), math.Inf(-1)
	for i, d := range fb.depth {
		if !fb.covered[i] {
			continue
		}
		minD = math.Min(minD, d)
		maxD = math.Max(maxD, d)
	}
	span := maxD - minD
	if span <= 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, fb.w, fb.h))
	for i, d := range fb.depth {
		v := uint16(0xFFFF)
		if fb.covered[i] {
			v = uint16((d - minD) / span * 0xFFFE)
		}
		img.SetGray16(i%fb.w, i/fb.w, color.Gray16{Y: v})
	}
	return img
}

func (fb *framebuffer) normalMap() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, fb.w, fb.h))
	for i := 0; i < fb.w*fb.h; i++ {
		if !fb.covered[i] {
			img.Pix[i*4+3] = 0xFF
			continue
		}
		n := fb.normals[i]
		img.Pix[i*4+0] = toByte(n[0]*0.5 + 0.5)
		img.Pix[i*4+1] = toByte(n[1]*0.5 + 0.5)
		img.Pix[i*4+2] = toByte(n[2]*0.5 + 0.5)
		img.Pix[i*4+3] = 0xFF
	}
	return img
}

func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xFF
	}
	return uint8(v * 255)
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to create output directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to create %s", path)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return errors.Wrap(errors.ErrCodeRenderFatal, err, "failed to encode %s", path)
	}
	return nil
}

// Ensure Backend implements the render contract.
var _ render.Backend = (*Backend)(nil)
