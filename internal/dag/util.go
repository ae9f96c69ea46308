// Copyright 2024 rg0now. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import "fmt"

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// Roots returns the roots of the DAG, i.e., the nodes without an incoming edge.
func (g *Graph) Roots() []string {
	incoming := g.incoming()
	roots := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if incoming[n] == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns the nodes without an outgoing edge.
func (g *Graph) Leaves() []string {
	leaves := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if len(g.edges[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

func (g *Graph) incoming() map[string]int {
	incoming := make(map[string]int, len(g.Nodes))
	for _, from := range g.Nodes {
		for to := range g.edges[from] {
			incoming[to]++
		}
	}
	return incoming
}

// TopoSort returns the nodes so that every edge points forward. Among the nodes whose
// predecessors are all placed, the earliest inserted comes first.
func (g *Graph) TopoSort() ([]string, error) {
	incoming := g.incoming()
	ready := g.Roots()
	ret := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		ret = append(ret, n)
		for _, m := range g.Edges(n) {
			if incoming[m]--; incoming[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(ret) != len(g.Nodes) {
		return nil, fmt.Errorf("graph has a cycle through %d nodes", len(g.Nodes)-len(ret))
	}
	return ret, nil
}

// Depths returns the length of the longest path from a root to each node: roots are at depth
// 0 and every node is deeper than all of its predecessors.
func (g *Graph) Depths() (map[string]int, error) {
	order, err := g.TopoSort()
	if err != nil {
		return nil, err
	}
	depths := make(map[string]int, len(order))
	for _, n := range order {
		for _, m := range g.Edges(n) {
			if d := depths[n] + 1; d > depths[m] {
				depths[m] = d
			}
		}
	}
	return depths, nil
}
