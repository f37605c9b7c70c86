package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dropstage/dropstage/pkg/annotate"
	"github.com/dropstage/dropstage/pkg/compositor"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/observability"
	"github.com/dropstage/dropstage/pkg/scene"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, API, and Graph Nodes
// =============================================================================

const (
	// DefaultSensor names the capture when no sensor name is configured.
	DefaultSensor = "cam0"

	// ImagesSubdir and MasksSubdir are the output subdirectories for
	// composites and mask/auxiliary images.
	ImagesSubdir = "images"
	MasksSubdir  = "masks"

	// PreviewFilename is where the preview pass copies its single output.
	PreviewFilename = "preview.png"

	// MaxResolution caps each output axis in pixels.
	MaxResolution = 3000
)

// Compositor node names installed during setup.
const (
	nodeDenoise   = "Denoise"
	nodeImageOut  = "File Output"
	nodeMaskOut   = "maskout"
	nodeDepthOut  = "depthout"
	nodeNormalOut = "normalout"
	nodeNormalize = "Normalize"
)

// ============================================================================
// OPTIONS
// ============================================================================

// Options configures one orchestration of the render pipeline.
type Options struct {
	// OutputDir is the dataset root. Images land in OutputDir/images, masks
	// and auxiliary passes in OutputDir/masks.
	OutputDir string

	// Sensor is the capture name embedded in filenames.
	Sensor string

	// Frame is the dataset frame number embedded in filenames. Distinct from
	// the scene's internal frame counter, which the physics bake advances.
	Frame int

	// Resolution is the requested output resolution (width, height).
	Resolution [2]int

	Camera *scene.Camera
	Lights []*scene.Light

	// Preview renders a single fast composite and stops.
	Preview bool

	// DepthNormal additionally writes normalized depth and normal passes.
	DepthNormal bool

	// Obstruction enables mask discovery, per-object mask passes, and
	// obstruction metrics.
	Obstruction bool

	// KeepScratchOnError leaves per-object scratch files in place when the
	// pipeline fails, for post-mortem inspection.
	KeepScratchOnError bool

	// RunID ties annotation records to a pipeline run. Generated when empty.
	RunID string

	// Seed is recorded in metadata for reproducibility.
	Seed int64
}

// ValidateAndSetDefaults checks the options and fills defaults in place.
func (o *Options) ValidateAndSetDefaults() error {
	if o.OutputDir == "" {
		return errors.New(errors.ErrCodeConfiguration, "output directory is required")
	}
	if o.Camera == nil {
		return errors.New(errors.ErrCodeRenderFatal, "no camera attached to the scene")
	}
	if o.Resolution[0] <= 0 || o.Resolution[1] <= 0 {
		return errors.New(errors.ErrCodeRenderFatal, "render resolution could not be resolved")
	}
	if o.Resolution[0] > MaxResolution || o.Resolution[1] > MaxResolution {
		return errors.New(errors.ErrCodeRenderFatal,
			"render resolution %dx%d exceeds the %d px per-axis limit",
			o.Resolution[0], o.Resolution[1], MaxResolution)
	}
	if o.Sensor == "" {
		o.Sensor = DefaultSensor
	}
	if err := errors.ValidateSensorName(o.Sensor); err != nil {
		return err
	}
	if o.RunID == "" {
		o.RunID = uuid.New().String()
	}
	return nil
}

// Result reports what one orchestration produced.
type Result struct {
	ImagePath   string
	MaskPath    string
	DepthPath   string
	NormalPath  string
	PreviewPath string

	// MaskIDs are the object instance ids visible in the combined mask.
	// Populated only when obstruction metrics run.
	MaskIDs []int

	Stats Stats
}

// Stats carries per-pass timing for logs and the job API.
type Stats struct {
	CompositeTime  time.Duration
	MaskTime       time.Duration
	ObjectMaskTime time.Duration
	ObjectPasses   int
}

// ============================================================================
// ORCHESTRATOR
// ============================================================================

// Orchestrator sequences the render passes for one scene: setup, composite,
// combined mask, optional mask discovery and per-object masks, annotation,
// and cleanup. It owns all compositor rewiring between passes.
//
// The Orchestrator is stateless except for its collaborators; a single
// instance can serve sequential frames.
type Orchestrator struct {
	Backend   Backend
	Annotator annotate.Writer
	Logger    *log.Logger
}

// NewOrchestrator creates an orchestrator. A nil annotator disables
// annotation output; a nil logger falls back to the default logger.
func NewOrchestrator(backend Backend, annotator annotate.Writer, logger *log.Logger) *Orchestrator {
	if annotator == nil {
		annotator = annotate.NullWriter{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{Backend: backend, Annotator: annotator, Logger: logger}
}

// Execute runs the full pipeline against a scene. The scene's compositor
// graph and object flags are mutated destructively.
func (r *Orchestrator) Execute(ctx context.Context, s *scene.Scene, opts Options) (res *Result, err error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Backend == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "no render backend configured")
	}

	s.Camera = opts.Camera
	s.Lights = opts.Lights
	s.SetResolution(opts.Resolution[0], opts.Resolution[1])

	if err := r.setupCompositor(s, opts); err != nil {
		return nil, err
	}

	if opts.Preview {
		return r.preview(ctx, s, opts)
	}

	result := &Result{
		ImagePath: r.resolvedPath(s, opts, ImagesSubdir, imageSlot(opts)),
		MaskPath:  r.resolvedPath(s, opts, MasksSubdir, maskSlot(opts)),
	}
	if opts.DepthNormal {
		result.DepthPath = r.resolvedPath(s, opts, MasksSubdir, depthSlot(opts))
		result.NormalPath = r.resolvedPath(s, opts, MasksSubdir, normalSlot(opts))
	}

	defer func() {
		if err != nil && opts.KeepScratchOnError {
			r.Logger.Warn("keeping scratch files for inspection", "dir", opts.OutputDir)
			return
		}
		r.cleanup(s, opts)
	}()

	if err := r.composite(ctx, s, result); err != nil {
		return nil, err
	}
	if err := r.combinedMask(ctx, s, result); err != nil {
		return nil, err
	}

	if opts.Obstruction {
		if err := r.maskDiscovery(s, result); err != nil {
			return nil, err
		}
		if err := r.objectMasks(ctx, s, opts, result); err != nil {
			return nil, err
		}
	}

	if err := r.annotate(ctx, s, opts, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ----------------------------------------------------------------------------
// Setup
// ----------------------------------------------------------------------------

// setupCompositor replaces the placeholder output with the real pipeline:
// denoised composite to file, combined ID mask to file, optional depth and
// normal passes, and one dormant ID-mask node per object.
func (r *Orchestrator) setupCompositor(s *scene.Scene, opts Options) error {
	g := s.Compositor

	g.Remove(compositor.NodeImagePlace)

	g.MustAdd(&compositor.Node{Name: nodeDenoise, Kind: compositor.KindDenoise})
	imgOut := g.MustAdd(&compositor.Node{
		Name:     nodeImageOut,
		Kind:     compositor.KindFileOutput,
		BasePath: filepath.Join(opts.OutputDir, ImagesSubdir),
	})
	imgOut.AddSlot(imageSlot(opts))

	if err := g.Connect(compositor.NodeRenderLayers, compositor.SocketImage, nodeDenoise, compositor.SocketImage); err != nil {
		return err
	}
	if err := g.Connect(nodeDenoise, compositor.SocketImage, compositor.NodeComposite, compositor.SocketImage); err != nil {
		return err
	}
	if err := g.Connect(nodeDenoise, compositor.SocketImage, nodeImageOut, compositor.SocketImage); err != nil {
		return err
	}

	if opts.Preview {
		return nil
	}

	maskOut := g.MustAdd(&compositor.Node{
		Name:     nodeMaskOut,
		Kind:     compositor.KindFileOutput,
		BasePath: filepath.Join(opts.OutputDir, MasksSubdir),
	})
	maskOut.AddSlot(maskSlot(opts))
	if err := g.Connect(compositor.NodeRenderLayers, compositor.SocketIndex, nodeMaskOut, compositor.SocketImage); err != nil {
		return err
	}

	if opts.DepthNormal {
		g.MustAdd(&compositor.Node{Name: nodeNormalize, Kind: compositor.KindNormalize})
		depthOut := g.MustAdd(&compositor.Node{
			Name:     nodeDepthOut,
			Kind:     compositor.KindFileOutput,
			BasePath: filepath.Join(opts.OutputDir, MasksSubdir),
		})
		depthOut.AddSlot(depthSlot(opts))
		normalOut := g.MustAdd(&compositor.Node{
			Name:     nodeNormalOut,
			Kind:     compositor.KindFileOutput,
			BasePath: filepath.Join(opts.OutputDir, MasksSubdir),
		})
		normalOut.AddSlot(normalSlot(opts))

		if err := g.Connect(compositor.NodeRenderLayers, compositor.SocketDepth, nodeNormalize, compositor.SocketValue); err != nil {
			return err
		}
		if err := g.Connect(nodeNormalize, compositor.SocketValue, nodeDepthOut, compositor.SocketImage); err != nil {
			return err
		}
		if err := g.Connect(compositor.NodeRenderLayers, compositor.SocketNormal, nodeNormalOut, compositor.SocketImage); err != nil {
			return err
		}
	}

	// One dormant ID-mask node per object of interest. They stay unlinked
	// until the per-object pass connects them one at a time.
	for _, o := range s.InterestObjects() {
		g.MustAdd(&compositor.Node{
			Name:  maskNodeName(o.Instance),
			Kind:  compositor.KindIDMask,
			Index: o.Instance,
		})
	}
	return nil
}

// ----------------------------------------------------------------------------
// Passes
// ----------------------------------------------------------------------------

func (r *Orchestrator) preview(ctx context.Context, s *scene.Scene, opts Options) (*Result, error) {
	if s.ResolutionX > PreviewMaxWidth {
		s.SetResolution(PreviewWidth, PreviewHeight)
	}
	if err := r.renderPass(ctx, s, "preview", QualityPreview); err != nil {
		return nil, err
	}

	src := r.resolvedPath(s, opts, ImagesSubdir, imageSlot(opts))
	dst := filepath.Join(opts.OutputDir, PreviewFilename)
	if err := copyFile(src, dst); err != nil {
		return nil, err
	}
	r.Logger.Info("preview rendered", "path", dst,
		"resolution", fmt.Sprintf("%dx%d", s.ResolutionX, s.ResolutionY))
	return &Result{ImagePath: src, PreviewPath: dst}, nil
}

func (r *Orchestrator) composite(ctx context.Context, s *scene.Scene, result *Result) error {
	start := time.Now()
	if err := r.renderPass(ctx, s, "composite", QualityHigh); err != nil {
		return err
	}
	result.Stats.CompositeTime = time.Since(start)
	r.Logger.Info("composite rendered", "path", result.ImagePath,
		"objects", len(s.Objects), "duration", result.Stats.CompositeTime)
	return nil
}

// combinedMask renders the combined ID mask (plus depth/normal when wired)
// at mask quality. Image file slots are cleared first so the cheap pass does
// not overwrite the composite.
func (r *Orchestrator) combinedMask(ctx context.Context, s *scene.Scene, result *Result) error {
	s.Compositor.Node(nodeImageOut).ClearSlots()

	start := time.Now()
	if err := r.renderPass(ctx, s, "masks", QualityMasks); err != nil {
		return err
	}
	result.Stats.MaskTime = time.Since(start)
	r.Logger.Info("combined mask rendered", "path", result.MaskPath,
		"duration", result.Stats.MaskTime)
	return nil
}

// maskDiscovery reads the combined mask and reconciles the object list
// against it: objects whose instance id never shows up are dropped from all
// subsequent passes and annotated as not rendered.
func (r *Orchestrator) maskDiscovery(s *scene.Scene, result *Result) error {
	ids, err := ReadMaskIDs(result.MaskPath)
	if err != nil {
		return err
	}

	hidden := 0
	for _, o := range s.InterestObjects() {
		if ids[o.Instance] {
			result.MaskIDs = append(result.MaskIDs, o.Instance)
			continue
		}
		o.Rendered = false
		o.HideRender = true
		hidden++
	}
	r.Logger.Info("mask discovery complete",
		"visible", len(result.MaskIDs), "hidden", hidden)
	return nil
}

// objectMasks renders one solo mask per surviving object: everything is
// hidden, then each object in turn is unhidden, its ID-mask node is linked
// into the mask output, and a cheap render writes its scratch mask. Links
// and visibility are restored between passes so no two objects are ever
// visible in the same mask render.
func (r *Orchestrator) objectMasks(ctx context.Context, s *scene.Scene, opts Options, result *Result) error {
	g := s.Compositor
	maskOut := g.Node(nodeMaskOut)

	// The combined mask is done; from here the mask output is driven by
	// exactly one ID-mask node at a time.
	g.Disconnect(compositor.NodeRenderLayers, compositor.SocketIndex, nodeMaskOut, compositor.SocketImage)

	// Background colliders stay visible; only objects of interest toggle.
	for _, o := range s.InterestObjects() {
		o.HideRender = true
	}
	defer func() {
		for _, o := range s.InterestObjects() {
			o.HideRender = !o.Rendered
		}
	}()

	start := time.Now()
	for _, o := range s.RenderedObjects() {
		o.SoloMaskID = scene.SoloMaskLabel(o.Instance)
		maskOut.ClearSlots()
		maskOut.AddSlot(soloMaskSlot(opts, o.Instance))

		maskNode := maskNodeName(o.Instance)
		if err := g.Connect(maskNode, compositor.SocketAlpha, nodeMaskOut, compositor.SocketImage); err != nil {
			return err
		}
		o.HideRender = false

		err := r.renderPass(ctx, s, "object_mask", QualityMasks)

		o.HideRender = true
		g.Disconnect(maskNode, compositor.SocketAlpha, nodeMaskOut, compositor.SocketImage)
		if err != nil {
			return err
		}

		observability.Render().OnObjectMask(ctx, o.Instance)
		result.Stats.ObjectPasses++

		solo, err := CountMaskPixels(r.resolvedPath(s, opts, MasksSubdir, soloMaskSlot(opts, o.Instance)))
		if err != nil {
			return err
		}
		combined, err := CountMaskPixelsWithID(result.MaskPath, o.Instance)
		if err != nil {
			return err
		}
		o.Obstruction = Obstruction(solo, combined)
	}
	result.Stats.ObjectMaskTime = time.Since(start)

	maskOut.ClearSlots()
	maskOut.AddSlot(maskSlot(opts))
	r.Logger.Info("object masks rendered",
		"rendered", len(s.RenderedObjects()),
		"passes", result.Stats.ObjectPasses, "duration", result.Stats.ObjectMaskTime)
	return nil
}

func (r *Orchestrator) annotate(ctx context.Context, s *scene.Scene, opts Options, result *Result) error {
	aopts := annotate.Options{
		RunID:       opts.RunID,
		Frame:       opts.Frame,
		Sensor:      opts.Sensor,
		Seed:        opts.Seed,
		Image:       result.ImagePath,
		Mask:        result.MaskPath,
		Obstruction: opts.Obstruction,
	}
	if err := r.Annotator.WriteAnnotations(ctx, s, aopts); err != nil {
		return err
	}
	return r.Annotator.WriteMetadata(ctx, s, aopts)
}

// cleanup removes the per-object scratch masks, keeping the canonical
// composite, combined mask, and auxiliary passes.
func (r *Orchestrator) cleanup(s *scene.Scene, opts Options) {
	base := strings.TrimSuffix(r.resolvedPath(s, opts, MasksSubdir, maskSlot(opts)), ".png")
	matches, err := filepath.Glob(base + "-*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			r.Logger.Warn("failed to remove scratch file", "path", m, "error", err)
		}
	}
	if len(matches) > 0 {
		r.Logger.Debug("scratch files removed", "count", len(matches))
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// renderPass applies a quality preset and issues one blocking backend call,
// reporting it through the render hooks.
func (r *Orchestrator) renderPass(ctx context.Context, s *scene.Scene, pass string, q Quality) error {
	hooks := observability.Render()
	hooks.OnPassStart(ctx, pass, s.VisibleCount())

	start := time.Now()
	q.apply(s)
	err := r.Backend.Render(ctx, s, q)
	hooks.OnPassComplete(ctx, pass, time.Since(start), err)

	if err != nil {
		return errors.Wrap(errors.ErrCodeRenderFatal, err, "%s render failed", pass)
	}
	return nil
}

// resolvedPath expands a file-slot template into the concrete on-disk path
// for the scene's current frame.
func (r *Orchestrator) resolvedPath(s *scene.Scene, opts Options, subdir, slot string) string {
	return filepath.Join(opts.OutputDir, subdir, ResolveSlot(slot, s.Frame))
}

// ResolveSlot substitutes the scene frame number for the '#' placeholder in
// a file-slot template. Shared with render back ends.
func ResolveSlot(slot string, frame int) string {
	return strings.ReplaceAll(slot, "#", strconv.Itoa(frame))
}

func imageSlot(opts Options) string {
	return fmt.Sprintf("%010d-#-%s.png", opts.Frame, opts.Sensor)
}

func maskSlot(opts Options) string {
	return fmt.Sprintf("%010d-#-%s-mask.png", opts.Frame, opts.Sensor)
}

func soloMaskSlot(opts Options, instance int) string {
	return fmt.Sprintf("%010d-#-%s-mask-%s.png", opts.Frame, opts.Sensor, scene.SoloMaskLabel(instance))
}

func depthSlot(opts Options) string {
	return fmt.Sprintf("%010d-#-%s-depth.png", opts.Frame, opts.Sensor)
}

func normalSlot(opts Options) string {
	return fmt.Sprintf("%010d-#-%s-normal.png", opts.Frame, opts.Sensor)
}

func maskNodeName(instance int) string {
	return scene.SoloMaskLabel(instance) + "_mask"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRenderFatal, err, "render output %s was not produced", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to copy %s", dst)
	}
	return nil
}
