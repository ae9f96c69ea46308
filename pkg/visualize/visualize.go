// Package visualize renders node networks as diagrams.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/dscore/pkg/network"
)

// Graph is the visualization graph of a network.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge

	// mermaid selects Mermaid node shapes and single-line labels
	mermaid bool
}

// Node is one network node.
type Node struct {
	ID    string
	Kind  network.NodeKind
	Label string
	Order int
	// Shared is set for nodes feeding more than one child.
	Shared bool
}

// Edge connects a parent node to a child node. Side is the input position at the child: 0 for
// single-input nodes and left inputs, 1 for right inputs.
type Edge struct {
	From, To string
	Side     int
}

// BuildGraph constructs a visualization graph from a network.
func BuildGraph(name string, net *network.Network) *Graph {
	g := &Graph{
		Name:  name,
		Nodes: make([]Node, 0, len(net.Nodes())),
	}
	for _, n := range net.Nodes() {
		g.Nodes = append(g.Nodes, Node{
			ID:     nodeID(n.ID()),
			Kind:   n.Kind(),
			Label:  n.Label(),
			Order:  n.Order(),
			Shared: len(n.Children()) > 1,
		})
		for i, p := range n.Parents() {
			g.Edges = append(g.Edges, Edge{From: nodeID(p), To: nodeID(n.ID()), Side: i})
		}
	}
	return g
}

func nodeID(id network.NodeID) string { return fmt.Sprintf("n%d", id) }

// withLabels returns a copy of the graph with the operation labels rewritten.
func (g *Graph) withLabels(f func(string) string) *Graph {
	ret := &Graph{Name: g.Name, Nodes: make([]Node, len(g.Nodes)), Edges: g.Edges, mermaid: g.mermaid}
	for i, n := range g.Nodes {
		n.Label = f(n.Label)
		ret.Nodes[i] = n
	}
	return ret
}

// Orders returns the nodes grouped by order.
func (g *Graph) Orders() [][]Node {
	var ret [][]Node
	for _, n := range g.Nodes {
		for len(ret) <= n.Order {
			ret = append(ret, nil)
		}
		ret[n.Order] = append(ret[n.Order], n)
	}
	return ret
}

type style struct {
	shape, fill string
	// Mermaid has its own shape set, nil renders a rounded box
	mermaid any
}

var styles = map[network.NodeKind]style{
	network.SourceNode:      {"ellipse", "lightgreen", dot.MermaidShapeStadium},
	network.FilterNode:      {"box", "lightblue", nil},
	network.LeftBridgeNode:  {"cds", "lightgrey", dot.MermaidShapeAsymmetric},
	network.RightBridgeNode: {"cds", "lightgrey", dot.MermaidShapeAsymmetric},
	network.JoinNode:        {"invtrapezium", "lightsalmon", dot.MermaidShapeTrapezoidAlt},
	network.ExistsNode:      {"invtrapezium", "wheat", dot.MermaidShapeTrapezoidAlt},
	network.GroupBridgeNode: {"cds", "lightgrey", dot.MermaidShapeAsymmetric},
	network.GroupNode:       {"box3d", "plum", dot.MermaidShapeSubroutine},
	network.MapNode:         {"box", "lightcyan", nil},
	network.FlattenNode:     {"box", "lightcyan", nil},
	network.DistinctNode:    {"box", "lightcyan", nil},
	network.ScoringNode:     {"doubleoctagon", "lightyellow", dot.MermaidShapeRhombus},
}

// label renders the node text: kind and order on the first line, the operation below.
func (g *Graph) label(n Node) string {
	head := fmt.Sprintf("%s #%s (order %d)", n.Kind, strings.TrimPrefix(n.ID, "n"), n.Order)
	if n.Label == "" {
		return head
	}
	if g.mermaid {
		return head + ": " + n.Label
	}
	return head + "\n" + n.Label
}

// BuildDotGraph creates a dot.Graph from the visualization graph, one rank per node order.
// This unified graph can then be rendered in different formats (DOT, Mermaid, etc.).
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for o, layer := range g.Orders() {
		sub := graph.Subgraph(fmt.Sprintf("order-%d", o))
		sub.Attr("rank", "same")
		for _, n := range layer {
			st := styles[n.Kind]
			node := sub.Node(n.ID).Attr("label", g.label(n))
			switch {
			case g.mermaid && n.Shared:
				node.Attr("shape", st.mermaid).Attr("style", "fill:"+st.fill+",stroke:darkblue,stroke-width:2px")
			case g.mermaid:
				node.Attr("shape", st.mermaid).Attr("style", "fill:"+st.fill)
			default:
				node.Attr("shape", st.shape).
					Attr("style", "filled").
					Attr("fillcolor", st.fill).
					Attr("fontname", "helvetica")
				if n.Shared {
					node.Attr("penwidth", "2").Attr("color", "darkblue")
				}
			}
			nodes[n.ID] = node
		}
	}

	for _, e := range g.Edges {
		edge := graph.Edge(nodes[e.From], nodes[e.To])
		if e.Side == 1 {
			edge.Attr("label", "right").
				Attr("style", "dashed").
				Attr("fontname", "helvetica").
				Attr("fontsize", "10")
		}
	}

	return graph
}

// Generator renders a graph in some diagram format.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator of a format: dot or mermaid.
func NewGenerator(format string, compact bool) (Generator, error) {
	switch strings.ToLower(format) {
	case "dot", "graphviz":
		return &DotGenerator{Compact: compact}, nil
	case "mermaid":
		return &MermaidGenerator{Compact: compact}, nil
	default:
		return nil, fmt.Errorf("unknown diagram format %q", format)
	}
}
