package graph

import (
	"fmt"
	"strings"
)

// DOT renders the graph in Graphviz DOT syntax. Nodes keep insertion order
// so repeated exports of the same graph are byte-identical; edge labels
// name the connected ports.
func (g *Graph) DOT() []byte {
	var b strings.Builder
	b.WriteString("digraph pipeline {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")

	for _, n := range g.nodes {
		fmt.Fprintf(&b, "  %s [label=\"%s\\n(%s)\"];\n",
			quoteID(n.Name()), escapeLabel(n.Name()), escapeLabel(n.Type()))
	}
	for _, l := range g.links {
		fmt.Fprintf(&b, "  %s -> %s [label=\"%s → %s\"];\n",
			quoteID(l.fromNode), quoteID(l.toNode),
			escapeLabel(l.fromPort), escapeLabel(l.toPort))
	}

	b.WriteString("}\n")
	return []byte(b.String())
}

func quoteID(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
