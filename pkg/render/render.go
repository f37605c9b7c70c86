// Package render drives the multi-pass render and annotation pipeline for a
// scene: composite render, combined ID-mask render, per-object mask passes,
// obstruction measurement, annotation output, and scratch cleanup.
//
// The package is backend-agnostic. A Backend consumes the scene's compositor
// graph and writes whatever its active file-output links describe; the
// Orchestrator owns pass ordering, quality switching, and compositor
// rewiring between passes.
package render

import (
	"context"

	"github.com/dropstage/dropstage/pkg/scene"
)

// ============================================================================
// QUALITY PRESETS (Single Source of Truth)
// ============================================================================

// Quality bundles the sampling parameters for one render call.
type Quality struct {
	Samples    int
	MaxBounces int
}

// Render quality presets. Mask and per-object passes always run at the
// cheapest setting since only coverage matters, not shading.
var (
	QualityPreview = Quality{Samples: 8, MaxBounces: 6}
	QualityHigh    = Quality{Samples: 15, MaxBounces: 12}
	QualityMasks   = Quality{Samples: 1, MaxBounces: 1}
)

// Preview renders above this width are forced down to PreviewWidth x
// PreviewHeight to keep iteration fast.
const (
	PreviewMaxWidth = 1000
	PreviewWidth    = 640
	PreviewHeight   = 384
)

// ============================================================================
// BACKEND
// ============================================================================

// Backend executes one blocking render call against a scene. The backend
// reads the scene's compositor graph and writes an output file for every
// file-output node that has an active incoming link, resolving '#' in file
// slots to the scene's frame number. Objects with HideRender set must not
// contribute to any output.
type Backend interface {
	Render(ctx context.Context, s *scene.Scene, q Quality) error
}

// apply copies a quality preset onto the scene before a render call.
func (q Quality) apply(s *scene.Scene) {
	s.Samples = q.Samples
	s.MaxBounces = q.MaxBounces
}
