package network

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dscore/pkg/index"
	"github.com/l7mp/dscore/pkg/stream"
)

// bridgeNode feeds one side of a join or an exists node: it keeps one tuple per parent tuple and
// computes the index properties of the tuple, i.e., the left or the right mappings of the
// indexed joiners. The index itself lives in the join and exists nodes, so one bridge can feed
// several of them.
type bridgeNode struct {
	baseNode
	mappings []*stream.Func
}

func newBridgeNode(kind NodeKind, arity int, mappings []*stream.Func) *bridgeNode {
	return &bridgeNode{
		baseNode: baseNode{kind: kind, arity: arity, label: labels(mappings)},
		mappings: mappings,
	}
}

func (n *bridgeNode) props(facts []any) []any {
	ret := make([]any, len(n.mappings))
	for i, m := range n.mappings {
		ret[i] = m.Call(facts)
	}
	return ret
}

func (n *bridgeNode) insert(s *Session, p *Tuple, _ int) error {
	s.enqueue(newTuple(n.id, p.Facts, p))
	return nil
}

func (n *bridgeNode) update(s *Session, p *Tuple, _ int) error {
	bt := p.childAt(n.id)
	if bt == nil {
		return n.insert(s, p, 0)
	}
	bt.Facts = p.Facts
	s.touch(bt)
	return nil
}

func (n *bridgeNode) retract(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return nil
}

func (n *bridgeNode) refresh(s *Session, bt *Tuple) error {
	switch bt.state {
	case Creating:
		bt.props = n.props(bt.Facts)
	case Updating:
		bt.prev, bt.props = bt.props, n.props(bt.Facts)
	}
	if err := n.propagate(s, bt); err != nil {
		return err
	}
	bt.prev = nil
	return nil
}

// joinLevels returns the index levels of the right and the left index of a join. The right index
// is queried with the properties of left tuples and the left index with the properties of right
// tuples, so the relations of the left index are flipped.
func joinLevels(joiners []*stream.Joiner) (left, right []index.Level) {
	for _, j := range joiners {
		if j.IsFiltering() {
			continue
		}
		right = append(right, index.Level{Kind: j.Kind(), Compare: j.Compare()})
		left = append(left, index.Level{Kind: j.Kind().Flip(), Compare: j.Compare()})
	}
	return left, right
}

// joinBase is shared by join and exists nodes: two indexes, one per side, and the filtering
// joiners.
type joinBase struct {
	baseNode
	levels  [2][]index.Level
	filters []*stream.Func
}

type joinMemory struct {
	index [2]index.Indexer[*Tuple]
	// exists nodes: the tuples of the other side each tuple matches
	links map[*Tuple]sets.Set[*Tuple]
}

func newJoinBase(kind NodeKind, arity int, joiners []*stream.Joiner) joinBase {
	left, right := joinLevels(joiners)
	jb := joinBase{
		baseNode: baseNode{kind: kind, arity: arity, label: labels(joiners)},
		levels:   [2][]index.Level{left, right},
	}
	for _, j := range joiners {
		if j.IsFiltering() {
			jb.filters = append(jb.filters, j.Filter())
		}
	}
	return jb
}

func (n *joinBase) newMemory() any {
	mem := &joinMemory{links: map[*Tuple]sets.Set[*Tuple]{}}
	for i := range n.levels {
		// levels are validated by the builder
		mem.index[i], _ = index.New[*Tuple](n.levels[i])
	}
	return mem
}

func (n *joinBase) test(facts []any) bool {
	for _, f := range n.filters {
		if !f.Test(facts) {
			return false
		}
	}
	return true
}

// candidates visits the live tuples of the opposite side that match t on all joiners.
func (n *joinBase) candidates(mem *joinMemory, t *Tuple, side int, fn func(o *Tuple, facts []any)) {
	_ = mem.index[1-side].ForEach(t.props, func(o *Tuple) bool {
		if !o.state.IsAlive() {
			return true
		}
		left, right := t, o
		if side == 1 {
			left, right = o, t
		}
		facts := joinFacts(left.Facts, right.Facts)
		if n.test(facts) {
			fn(o, facts)
		}
		return true
	})
}

func (n *joinBase) put(mem *joinMemory, t *Tuple, side int) error {
	if err := mem.index[side].Put(t.props, t); err != nil {
		return NewNodeError(n, err)
	}
	return nil
}

func (n *joinBase) move(mem *joinMemory, t *Tuple, side int) error {
	if err := mem.index[side].Remove(t.prev, t); err != nil {
		return NewNodeError(n, err)
	}
	return n.put(mem, t, side)
}

func (n *joinBase) remove(mem *joinMemory, t *Tuple, side int) error {
	if err := mem.index[side].Remove(t.props, t); err != nil {
		return NewNodeError(n, err)
	}
	return nil
}

// joinNode emits one tuple per matching pair of a left tuple and a right fact.
type joinNode struct {
	joinBase
}

func newJoinNode(arity int, joiners []*stream.Joiner) *joinNode {
	return &joinNode{joinBase: newJoinBase(JoinNode, arity, joiners)}
}

func (n *joinNode) insert(s *Session, bt *Tuple, side int) error {
	mem := s.memory(n.id).(*joinMemory)
	if err := n.put(mem, bt, side); err != nil {
		return err
	}
	n.candidates(mem, bt, side, func(o *Tuple, facts []any) {
		left, right := bt, o
		if side == 1 {
			left, right = o, bt
		}
		s.enqueue(newTuple(n.id, facts, left, right))
	})
	return nil
}

func (n *joinNode) update(s *Session, bt *Tuple, side int) error {
	mem := s.memory(n.id).(*joinMemory)
	if err := n.move(mem, bt, side); err != nil {
		return err
	}
	existing := map[*Tuple]*Tuple{}
	for _, c := range bt.childrenAt(n.id) {
		existing[c.parents[1-side]] = c
	}
	n.candidates(mem, bt, side, func(o *Tuple, facts []any) {
		if c, ok := existing[o]; ok {
			delete(existing, o)
			c.Facts = facts
			s.touch(c)
			return
		}
		left, right := bt, o
		if side == 1 {
			left, right = o, bt
		}
		s.enqueue(newTuple(n.id, facts, left, right))
	})
	for _, c := range existing {
		s.kill(c)
	}
	return nil
}

func (n *joinNode) retract(s *Session, bt *Tuple, side int) error {
	mem := s.memory(n.id).(*joinMemory)
	n.killChildren(s, bt)
	return n.remove(mem, bt, side)
}

// existsNode passes on the left tuples for which a matching right fact exists, or for a negative
// node, does not exist. The right side only counts, it never shows up in the output.
type existsNode struct {
	joinBase
	positive bool
}

func newExistsNode(arity int, positive bool, joiners []*stream.Joiner) *existsNode {
	return &existsNode{joinBase: newJoinBase(ExistsNode, arity, joiners), positive: positive}
}

func (n *existsNode) Label() string {
	if n.positive {
		return "exists(" + n.label + ")"
	}
	return "not exists(" + n.label + ")"
}

func (n *existsNode) link(mem *joinMemory, t *Tuple, side int) sets.Set[*Tuple] {
	matches := sets.New[*Tuple]()
	n.candidates(mem, t, side, func(o *Tuple, _ []any) {
		matches.Insert(o)
		if mem.links[o] == nil {
			mem.links[o] = sets.New[*Tuple]()
		}
		mem.links[o].Insert(t)
	})
	mem.links[t] = matches
	return matches
}

func (n *existsNode) unlink(mem *joinMemory, t *Tuple) sets.Set[*Tuple] {
	old := mem.links[t]
	for o := range old {
		mem.links[o].Delete(t)
	}
	delete(mem.links, t)
	return old
}

// reconcile creates or kills the output tuple of a left tuple; a kept output tuple is touched
// if requested.
func (n *existsNode) reconcile(s *Session, mem *joinMemory, l *Tuple, touch bool) {
	if !l.state.IsAlive() {
		return
	}
	want := (mem.links[l].Len() > 0) == n.positive
	c := l.childAt(n.id)
	switch {
	case want && c == nil:
		s.enqueue(newTuple(n.id, l.Facts, l))
	case !want && c != nil:
		s.kill(c)
	case want && touch:
		c.Facts = l.Facts
		s.touch(c)
	}
}

func (n *existsNode) insert(s *Session, bt *Tuple, side int) error {
	mem := s.memory(n.id).(*joinMemory)
	if err := n.put(mem, bt, side); err != nil {
		return err
	}
	matches := n.link(mem, bt, side)
	if side == 0 {
		n.reconcile(s, mem, bt, false)
		return nil
	}
	for l := range matches {
		n.reconcile(s, mem, l, false)
	}
	return nil
}

func (n *existsNode) update(s *Session, bt *Tuple, side int) error {
	mem := s.memory(n.id).(*joinMemory)
	if err := n.move(mem, bt, side); err != nil {
		return err
	}
	old := n.unlink(mem, bt)
	matches := n.link(mem, bt, side)
	if side == 0 {
		n.reconcile(s, mem, bt, true)
		return nil
	}
	for l := range old.Union(matches) {
		n.reconcile(s, mem, l, false)
	}
	return nil
}

func (n *existsNode) retract(s *Session, bt *Tuple, side int) error {
	mem := s.memory(n.id).(*joinMemory)
	old := n.unlink(mem, bt)
	if side == 0 {
		n.killChildren(s, bt)
	} else {
		for l := range old {
			n.reconcile(s, mem, l, false)
		}
	}
	return n.remove(mem, bt, side)
}
