package channel

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dropstage/dropstage/pkg/annotate"
	"github.com/dropstage/dropstage/pkg/cache"
	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/graph"
)

// Runner encapsulates channel execution. Both CLI and API use this to avoid
// duplicating resolve/build/run logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store run results. Multiple goroutines can safely use the same Runner
// with different options.
type Runner struct {
	Cache  cache.Cache
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Logger: logger}
}

// Stats contains channel execution statistics.
type Stats struct {
	FrameCount int
	TotalTime  time.Duration
}

// Execute runs the complete resolve -> build -> run-per-frame pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = r.Logger
	}

	ch, err := r.Resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	pool := opts.Pool
	if pool == nil && ch.Pool != "" {
		pool, err = generator.LoadPool(ctx, ch.Pool, r.Cache)
		if err != nil {
			return nil, err
		}
	}

	g, err := ch.Build()
	if err != nil {
		return nil, err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = ch.Output
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	seed := opts.Seed
	if seed == 0 {
		seed = ch.Seed
	}
	if seed == 0 {
		seed = DefaultSeed
	}
	frames := opts.Frames
	if frames == 0 {
		frames = ch.Frames
	}
	if frames == 0 {
		frames = DefaultFrames
	}

	annotator := opts.Annotator
	if annotator == nil {
		annotator, err = annotate.NewFileWriter(outputDir)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("running channel",
		"channel", ch.Name,
		"frames", frames,
		"seed", seed,
		"output", outputDir)

	result := &Result{Channel: ch}
	start := time.Now()
	for i := 0; i < frames; i++ {
		frame := opts.StartFrame + i
		run, err := g.Run(ctx, graph.RunOptions{
			Seed:        seed + int64(i),
			OutputDir:   outputDir,
			Frame:       frame,
			Preview:     opts.Preview,
			KeepScratch: opts.KeepScratch,
			Backend:     opts.Backend,
			Physics:     opts.Physics,
			Annotator:   annotator,
			Pool:        pool,
			Logger:      logger,
		})
		if opts.OnFrame != nil {
			opts.OnFrame(frame, frames, err)
		}
		if err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "frame %d", frame)
		}
		result.Frames = append(result.Frames, FrameResult{
			Frame:   frame,
			Seed:    seed + int64(i),
			RunID:   run.ID,
			Objects: len(run.Scene.InterestObjects()),
		})
	}
	result.Stats = Stats{FrameCount: len(result.Frames), TotalTime: time.Since(start)}

	logger.Info("channel run complete",
		"frames", result.Stats.FrameCount,
		"duration", result.Stats.TotalTime)
	return result, nil
}

// Resolve returns the channel the options describe, loading it from disk
// when only a path was given. Loaded channels are memoized in the cache
// keyed by path and modification time, like asset pools.
func (r *Runner) Resolve(ctx context.Context, opts Options) (*Channel, error) {
	if opts.Channel != nil {
		return opts.Channel, nil
	}

	info, err := os.Stat(opts.ChannelPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "channel file %s", opts.ChannelPath)
	}
	key := cache.ChannelKey(opts.ChannelPath, info.ModTime().UnixNano())

	if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
		var ch Channel
		if err := json.Unmarshal(data, &ch); err == nil {
			return &ch, nil
		}
	}

	ch, err := Load(opts.ChannelPath)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ch); err == nil {
		_ = r.Cache.Set(ctx, key, data, cache.TTLChannel)
	}
	return ch, nil
}
