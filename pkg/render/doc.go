// Package render executes the multi-pass render pipeline for a prepared scene.
//
// # Overview
//
// This package turns a settled scene into dataset artifacts. One call to
// [Orchestrator.Execute] produces:
//
//   - The composite image (images/)
//   - The combined object ID mask (masks/)
//   - Optional depth and normal passes
//   - Per-object solo masks, consumed for annotations and then cleaned up
//   - Per-object annotation records with optional obstruction metrics
//
// # Passes
//
// Execute runs as a state machine over the scene's compositor graph. The
// composite pass renders all visible objects; the mask pass rewires the
// compositor output to the ID channel; mask discovery decodes the combined
// mask to learn which objects are actually visible; the solo-mask passes
// isolate each visible object in turn. Pass quality (samples, bounce depth)
// is controlled by [Quality] presets, with [QualityPreview] trading fidelity
// for speed.
//
// # Backends
//
// Rendering itself goes through the [Backend] interface. The [software]
// subpackage provides a built-in rasterizer so the pipeline runs without an
// external renderer; production setups plug in their own backend.
//
// # Masks
//
// ID masks encode the object instance number in 16-bit grayscale pixels.
// [ReadMaskIDs] and the pixel-counting helpers in mask.go decode them, and
// [Obstruction] derives how much of an object other geometry hides.
//
// [software]: github.com/dropstage/dropstage/pkg/render/software
package render
