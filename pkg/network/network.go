// Package network implements the incremental constraint-evaluation network: the node arena
// compiled from constraint streams, the tuples flowing through it, and the sessions that drive
// fact changes through the nodes and keep the score up to date.
//
// A Network is immutable once built and can be shared by any number of sessions, each of which
// holds its own node memories (indexes, groups, tuples) and its own running score. A Session is
// single-threaded: fact changes must not be interleaved from different goroutines.
//
// Every fact change schedules tuples in a queue bucketed by node order and drains it before
// returning. A node is never refreshed before its ancestors, and a tuple is refreshed at most
// once per drain even when several ancestors schedule it.
package network

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

// Constraint is a compiled constraint.
type Constraint struct {
	Ref    score.ConstraintRef
	Impact score.ImpactType
	// Weight is the effective weight, after overrides.
	Weight  score.Score
	Weigher *stream.Func
	// Node is the scoring node of the constraint.
	Node NodeID
}

// Network is a compiled, immutable node network.
type Network struct {
	nodes       []Node
	sources     []*sourceNode
	constraints []*Constraint
	pruned      []score.ConstraintRef
	kind        score.Kind
	levels      int
	maxOrder    int
	log         logr.Logger
}

// Nodes returns the node arena.
func (n *Network) Nodes() []Node { return n.nodes }

// Node returns a node by id.
func (n *Network) Node(id NodeID) Node { return n.nodes[id] }

// Constraints returns the compiled constraints in definition order.
func (n *Network) Constraints() []*Constraint { return n.constraints }

// Pruned returns the constraints left out of the network because their weight is zero.
func (n *Network) Pruned() []score.ConstraintRef { return n.pruned }

// ScoreKind returns the score representation of the sessions.
func (n *Network) ScoreKind() score.Kind { return n.kind }

// Levels returns the number of score levels.
func (n *Network) Levels() int { return n.levels }

// MaxOrder returns the largest node order.
func (n *Network) MaxOrder() int { return n.maxOrder }

// String renders the nodes in arena order, one per line.
func (n *Network) String() string {
	var sb strings.Builder
	for _, node := range n.nodes {
		fmt.Fprintf(&sb, "%s order=%d parents=%v children=%v\n", node, node.Order(), node.Parents(),
			node.Children())
	}
	return sb.String()
}
