// Package channel loads and runs channel files: the TOML descriptions of a
// dataset pipeline that can be used by CLI, API, and worker components. By
// centralizing this logic, we ensure consistent behavior across all entry
// points and avoid code duplication.
//
// # Architecture
//
// A channel file names an asset pool, a frame count, and a node graph
// (definitions, port literals, links). Running a channel executes the graph
// once per frame with a per-frame seed, so a channel plus a base seed fully
// determines the produced dataset.
//
// # Usage
//
// Create a Runner and execute the channel:
//
//	runner := channel.NewRunner(cache, logger)
//	opts := channel.Options{
//	    ChannelPath: "channels/bin-picking.toml",
//	    OutputDir:   "dataset",
//	    Frames:      100,
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
package channel

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/dropstage/dropstage/pkg/annotate"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/physics"
	"github.com/dropstage/dropstage/pkg/render"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, API, and Worker
// =============================================================================

const (
	// DefaultFrames is the number of dataset frames a run produces when the
	// channel file and flags leave it unset.
	DefaultFrames = 1

	// DefaultSeed is the default base random seed for reproducibility.
	DefaultSeed = int64(42)

	// DefaultOutputDir is the dataset root when the channel file and flags
	// leave it unset.
	DefaultOutputDir = "dataset"
)

// =============================================================================
// Options - Channel Run Configuration
// =============================================================================

// Options contains all configuration for one channel run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// ChannelPath locates the channel TOML file. Either ChannelPath or
	// Channel must be set; Channel wins when both are.
	ChannelPath string `json:"channel_path,omitempty"`

	// Channel is an already-parsed channel, for callers that received the
	// channel body over the wire.
	Channel *Channel `json:"channel,omitempty"`

	// OutputDir overrides the channel file's output directory.
	OutputDir string `json:"output_dir,omitempty"`

	// Seed overrides the channel file's base seed. Frame i runs with
	// seed Seed+i.
	Seed int64 `json:"seed,omitempty"`

	// Frames overrides the channel file's frame count.
	Frames int `json:"frames,omitempty"`

	// StartFrame offsets the dataset frame numbering, so parallel workers
	// can fill disjoint ranges of one dataset.
	StartFrame int `json:"start_frame,omitempty"`

	// Preview renders a single fast composite per frame and stops.
	Preview bool `json:"preview,omitempty"`

	// KeepScratch leaves per-object scratch files in place when a render
	// fails, for post-mortem inspection.
	KeepScratch bool `json:"keep_scratch,omitempty"`

	// Runtime options (not serialized)
	Backend   render.Backend  `json:"-"`
	Physics   physics.Engine  `json:"-"`
	Annotator annotate.Writer `json:"-"`
	Pool      generator.Pool  `json:"-"`
	Logger    *log.Logger     `json:"-"`

	// OnFrame is called after each frame completes, for progress output.
	OnFrame func(frame, total int, err error) `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect
// as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.ChannelPath == "" && o.Channel == nil {
		return errors.New(errors.ErrCodeConfiguration, "channel path or channel body is required")
	}
	if o.Frames < 0 {
		return errors.New(errors.ErrCodeConfiguration, "frame count cannot be negative")
	}
	if o.StartFrame < 0 {
		return errors.New(errors.ErrCodeConfiguration, "start frame cannot be negative")
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Result contains the outputs of a channel run.
type Result struct {
	// Channel is the resolved channel the run executed.
	Channel *Channel

	// Frames holds one entry per completed frame.
	Frames []FrameResult

	// Stats contains timing and size information.
	Stats Stats
}

// FrameResult reports one completed dataset frame.
type FrameResult struct {
	Frame   int    `json:"frame"`
	Seed    int64  `json:"seed"`
	RunID   string `json:"run_id"`
	Objects int    `json:"objects"`
}
