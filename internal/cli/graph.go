package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropstage/dropstage/pkg/channel"
)

// Graph export formats.
const (
	formatDOT = "dot"
	formatSVG = "svg"
	formatPNG = "png"
)

// graphCommand creates the graph export command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "graph [channel.toml]",
		Short: "Export a channel's node graph",
		Long: `Export a channel's node graph.

The graph command builds the node graph a channel file describes, without
running it, and exports the structure as Graphviz DOT or renders it to SVG
or PNG. Useful for checking the wiring of a channel before a long run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channel.Load(args[0])
			if err != nil {
				return err
			}
			g, err := ch.Build()
			if err != nil {
				return err
			}

			var data []byte
			switch strings.ToLower(format) {
			case formatDOT:
				data = g.DOT()
			case formatSVG:
				data, err = g.RenderSVG(cmd.Context())
			case formatPNG:
				data, err = g.RenderPNG(cmd.Context())
			default:
				return fmt.Errorf("invalid format: %q (must be one of: dot, svg, png)", format)
			}
			if err != nil {
				return err
			}

			if output == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Exported %d nodes, %d links", len(g.Nodes()), len(g.Links()))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", formatDOT, "output format: dot (default), svg, png")

	return cmd
}
