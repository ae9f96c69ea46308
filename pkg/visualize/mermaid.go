package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"
)

// MermaidGenerator renders node networks as Mermaid flowcharts, sources on top and scoring
// nodes at the bottom. Mermaid labels are single-line, so operation labels are flattened.
type MermaidGenerator struct {
	Compact bool
}

// Generate creates a Mermaid flowchart from the graph using the dot library.
func (m *MermaidGenerator) Generate(g *Graph) string {
	flatten := func(l string) string { return strings.ReplaceAll(l, "\n", " ") }
	if m.Compact {
		flatten = func(string) string { return "" }
	}
	g = g.withLabels(flatten)
	g.mermaid = true
	mermaid := dot.MermaidFlowchart(BuildDotGraph(g), dot.MermaidTopToBottom)
	return fmt.Sprintf("```mermaid\n%s\n```\n", mermaid)
}
