package visualize

// DotGenerator renders node networks as Graphviz DOT. Compact drops the operation labels and
// keeps the node kinds and orders, which keeps large networks readable.
type DotGenerator struct {
	Compact bool
}

// Generate creates a Graphviz DOT diagram from the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	if d.Compact {
		g = g.withLabels(func(string) string { return "" })
	}
	return BuildDotGraph(g).String()
}
