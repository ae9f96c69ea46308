package network

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dscore/pkg/score"
)

// State is the processing state of a tuple.
type State int

const (
	// Creating tuples are new and wait for their first refresh.
	Creating State = iota
	// Active tuples have been refreshed and are not dying.
	Active
	// Updating tuples are active tuples whose facts changed; they keep their identity.
	Updating
	// Dying tuples wait for the refresh that retracts everything derived from them.
	Dying
	// Aborting tuples died before their first refresh; they have derived nothing.
	Aborting
	// Dead tuples are gone.
	Dead
)

var stateNames = []string{"creating", "active", "updating", "dying", "aborting", "dead"}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsAlive is true for the states whose tuples take part in matching.
func (s State) IsAlive() bool { return s == Creating || s == Active || s == Updating }

// Tuple is one flowing match at one node.
type Tuple struct {
	// Facts are the facts the tuple carries, one per stream arity.
	Facts []any

	node   NodeID
	state  State
	queued bool

	// parents are the tuples the tuple is derived from: one for most nodes, the left and the
	// right bridge tuple for joins, none for source, group and distinct tuples
	parents  []*Tuple
	children sets.Set[*Tuple]

	// bridge: the current and the previous index properties
	props, prev []any
	// group bridge: the group contributed to and the collector undos; group node: the group
	group *group
	undo  []func()
	// scoring: the undo of the current impact
	impact score.Undo
}

func newTuple(node NodeID, facts []any, parents ...*Tuple) *Tuple {
	t := &Tuple{Facts: facts, node: node, state: Creating}
	if len(parents) > 0 {
		t.parents = parents
		for _, p := range parents {
			p.addChild(t)
		}
	}
	return t
}

// Node returns the node the tuple lives at.
func (t *Tuple) Node() NodeID { return t.node }

// State returns the processing state.
func (t *Tuple) State() State { return t.state }

// String implements fmt.Stringer.
func (t *Tuple) String() string {
	return fmt.Sprintf("#%d%v(%s)", t.node, t.Facts, t.state)
}

func (t *Tuple) addChild(c *Tuple) {
	if t.children == nil {
		t.children = sets.New[*Tuple]()
	}
	t.children.Insert(c)
}

// childrenAt collects the children living at a node.
func (t *Tuple) childrenAt(node NodeID) []*Tuple {
	var ret []*Tuple
	for c := range t.children {
		if c.node == node {
			ret = append(ret, c)
		}
	}
	return ret
}

// childAt returns the child living at a node, for nodes that derive at most one child per
// parent.
func (t *Tuple) childAt(node NodeID) *Tuple {
	for c := range t.children {
		if c.node == node {
			return c
		}
	}
	return nil
}

// unlink removes the tuple from the children of its parents.
func (t *Tuple) unlink() {
	for _, p := range t.parents {
		p.children.Delete(t)
	}
}

func joinFacts(left, right []any) []any {
	ret := make([]any, 0, len(left)+len(right))
	return append(append(ret, left...), right...)
}
