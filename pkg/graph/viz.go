package graph

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// RenderSVG renders the graph's DOT export to SVG using Graphviz.
func (g *Graph) RenderSVG(ctx context.Context) ([]byte, error) {
	return g.renderFormat(ctx, graphviz.SVG)
}

// RenderPNG renders the graph's DOT export to PNG using Graphviz.
func (g *Graph) RenderPNG(ctx context.Context) ([]byte, error) {
	return g.renderFormat(ctx, graphviz.PNG)
}

func (g *Graph) renderFormat(ctx context.Context, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes(g.DOT())
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, parsed, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
