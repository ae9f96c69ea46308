package network

import (
	"fmt"
	"strings"
)

// NodeID addresses a node in the node arena of a network.
type NodeID int

// NodeKind classifies nodes.
type NodeKind int

const (
	SourceNode NodeKind = iota
	FilterNode
	LeftBridgeNode
	RightBridgeNode
	JoinNode
	ExistsNode
	GroupBridgeNode
	GroupNode
	MapNode
	FlattenNode
	DistinctNode
	ScoringNode
)

var nodeKindNames = []string{"source", "filter", "left-bridge", "right-bridge", "join", "exists",
	"group-bridge", "group", "map", "flatten", "distinct", "scoring"}

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("node(%d)", int(k))
}

// Node is a processing step of the network. The topology and the operations of a node are
// immutable and shared by all sessions; the per-session state of a node lives in the memory the
// session allocates for it.
type Node interface {
	// ID returns the position of the node in the arena.
	ID() NodeID
	// Kind returns the node kind.
	Kind() NodeKind
	// Order returns the topological depth of the node. Every child has a larger order than its
	// parents.
	Order() int
	// Arity returns the number of facts the tuples of the node carry.
	Arity() int
	// Parents returns the upstream nodes, left first.
	Parents() []NodeID
	// Children returns the downstream nodes.
	Children() []NodeID
	// Label describes the operation of the node.
	Label() string
	fmt.Stringer

	base() *baseNode
	// newMemory allocates the per-session state of the node, nil if it has none.
	newMemory() any
	// insert, update and retract react to a parent tuple being created, updated or dying.
	insert(s *Session, p *Tuple, side int) error
	update(s *Session, p *Tuple, side int) error
	retract(s *Session, p *Tuple, side int) error
	// refresh processes a scheduled tuple of the node.
	refresh(s *Session, t *Tuple) error
}

// baseNode holds the topology shared by all node kinds.
type baseNode struct {
	id       NodeID
	kind     NodeKind
	order    int
	arity    int
	label    string
	parents  []NodeID
	children []NodeID
}

func (n *baseNode) ID() NodeID         { return n.id }
func (n *baseNode) Kind() NodeKind     { return n.kind }
func (n *baseNode) Order() int         { return n.order }
func (n *baseNode) Arity() int         { return n.arity }
func (n *baseNode) Parents() []NodeID  { return n.parents }
func (n *baseNode) Children() []NodeID { return n.children }
func (n *baseNode) Label() string      { return n.label }
func (n *baseNode) base() *baseNode    { return n }
func (n *baseNode) newMemory() any     { return nil }

func (n *baseNode) String() string {
	if n.label == "" {
		return fmt.Sprintf("%s#%d", n.kind, n.id)
	}
	return fmt.Sprintf("%s#%d[%s]", n.kind, n.id, n.label)
}

// side returns the position of a parent node among the parents of a child.
func side(child Node, parent NodeID) int {
	for i, p := range child.Parents() {
		if p == parent {
			return i
		}
	}
	return 0
}

// propagate notifies the child nodes of a refreshed tuple, then settles its state.
func (n *baseNode) propagate(s *Session, t *Tuple) error {
	state := t.state
	for _, cid := range n.children {
		c := s.net.nodes[cid]
		i := side(c, n.id)
		var err error
		switch state {
		case Creating:
			err = c.insert(s, t, i)
		case Updating:
			err = c.update(s, t, i)
		case Dying:
			err = c.retract(s, t, i)
		}
		if err != nil {
			return err
		}
	}
	n.settle(t)
	return nil
}

// settle moves a refreshed tuple to its final state.
func (n *baseNode) settle(t *Tuple) {
	switch t.state {
	case Creating, Updating:
		t.state = Active
	case Dying, Aborting:
		t.state = Dead
	}
}

// killChildren schedules the death of the children a parent tuple has at this node.
func (n *baseNode) killChildren(s *Session, p *Tuple) {
	for _, c := range p.childrenAt(n.id) {
		s.kill(c)
	}
}

// Parent-less nodes never receive parent events.
func (n *baseNode) insert(*Session, *Tuple, int) error  { return nil }
func (n *baseNode) update(*Session, *Tuple, int) error  { return nil }
func (n *baseNode) retract(*Session, *Tuple, int) error { return nil }

func (n *baseNode) refresh(s *Session, t *Tuple) error { return n.propagate(s, t) }

func labels[T fmt.Stringer](ops []T) string {
	ss := make([]string, len(ops))
	for i, op := range ops {
		ss[i] = op.String()
	}
	return strings.Join(ss, ", ")
}
