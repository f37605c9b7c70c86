package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dropstage/dropstage/pkg/annotate"
	"github.com/dropstage/dropstage/pkg/channel"
)

// runFlags carries the flag values shared by run and preview.
type runFlags struct {
	output      string
	frames      int
	startFrame  int
	seed        int64
	noCache     bool
	redisAddr   string
	mongoURI    string
	mongoDB     string
	keepScratch bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "dataset output directory (overrides the channel file)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "base random seed (overrides the channel file)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the asset cache")
	cmd.Flags().StringVar(&f.redisAddr, "redis", "", "redis address for the asset cache (host:port)")
	cmd.Flags().StringVar(&f.mongoURI, "mongo-uri", "", "write annotations to MongoDB at this URI instead of JSON files")
	cmd.Flags().StringVar(&f.mongoDB, "mongo-db", appName, "MongoDB database for annotations")
}

// runCommand creates the run command.
func (c *CLI) runCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [channel.toml]",
		Short: "Execute a channel file and write dataset frames",
		Long: `Execute a channel file and write dataset frames.

The run command builds the channel's node graph and executes it once per
frame with a per-frame seed. Each frame places objects, settles them with a
physics drop, and renders the composite, the combined ID mask, optional
depth/normal passes, and per-object annotations into the output directory.

When no channel file is given, an interactive picker lists the channel files
found under the working directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveChannelArg(args)
			if err != nil || path == "" {
				return err
			}
			return c.runChannel(cmd.Context(), path, flags, false)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.frames, "frames", "n", 0, "number of frames to render (overrides the channel file)")
	cmd.Flags().IntVar(&flags.startFrame, "start-frame", 0, "first dataset frame number, for splitting work across workers")
	cmd.Flags().BoolVar(&flags.keepScratch, "keep-scratch", false, "keep per-object scratch files when a render fails")

	return cmd
}

// previewCommand creates the preview command.
func (c *CLI) previewCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "preview [channel.toml]",
		Short: "Render a single fast preview frame",
		Long: `Render a single fast preview frame.

The preview command runs one frame of the channel at preview quality and
copies the result to preview.png in the output directory. Masks and
annotations are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveChannelArg(args)
			if err != nil || path == "" {
				return err
			}
			flags.frames = 1
			return c.runChannel(cmd.Context(), path, flags, true)
		},
	}

	flags.register(cmd)
	return cmd
}

// resolveChannelArg returns the channel path from args, falling back to the
// interactive picker. An empty path with a nil error means the user quit the
// picker without selecting.
func resolveChannelArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return selectChannel()
}

// runChannel executes a channel with progress output.
func (c *CLI) runChannel(ctx context.Context, channelPath string, flags runFlags, preview bool) error {
	runner, err := c.newRunner(flags.noCache, flags.redisAddr)
	if err != nil {
		return err
	}

	opts := channel.Options{
		ChannelPath: channelPath,
		OutputDir:   flags.output,
		Seed:        flags.seed,
		Frames:      flags.frames,
		StartFrame:  flags.startFrame,
		Preview:     preview,
		KeepScratch: flags.keepScratch,
		Logger:      c.Logger,
	}

	if flags.mongoURI != "" {
		writer, err := annotate.NewMongoWriter(ctx, flags.mongoURI, flags.mongoDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(context.Background()); err != nil {
				c.Logger.Warn("close mongo writer", "err", err)
			}
		}()
		opts.Annotator = writer
	}

	spinner := newSpinnerWithContext(ctx, "rendering frames")
	completed := 0
	opts.OnFrame = func(frame, total int, err error) {
		if err != nil {
			return
		}
		completed++
		spinner.SetMessage(fmt.Sprintf("rendering frames (%d/%d)", completed, total))
	}

	track := newProgress(c.Logger)
	spinner.Start()
	result, err := runner.Execute(ctx, opts)
	if err != nil {
		spinner.StopWithError(fmt.Sprintf("Run failed: %s", err))
		return err
	}

	if preview {
		spinner.StopWithSuccess("Preview rendered")
	} else {
		spinner.StopWithSuccess(fmt.Sprintf("Rendered %d frames", len(result.Frames)))
	}
	track.done(fmt.Sprintf("channel %q complete", result.Channel.Name))

	outputDir := flags.output
	if outputDir == "" {
		outputDir = result.Channel.Output
	}
	if outputDir == "" {
		outputDir = channel.DefaultOutputDir
	}
	if preview {
		printFile(filepath.Join(outputDir, "preview.png"))
	} else {
		printDetail("output: %s", outputDir)
	}
	return nil
}
