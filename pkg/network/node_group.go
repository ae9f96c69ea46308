package network

import (
	"github.com/l7mp/dscore/pkg/index"
	"github.com/l7mp/dscore/pkg/stream"
)

// group is the accumulation state of one group key.
type group struct {
	key        any
	keyFacts   []any
	containers []any
	refs       int
	tuple      *Tuple
}

type groupMemory struct {
	groups map[any]*group
}

// groupBridgeNode computes the group key of every contributing tuple and accumulates the tuple
// into the group of its key. The undo functions of a contribution are stored on the bridge tuple
// so that only that contribution is ever undone. A group bridge feeds exactly one group node.
type groupBridgeNode struct {
	baseNode
	keys       []*stream.Func
	collectors []*stream.Collector
}

func newGroupBridgeNode(arity int, keys []*stream.Func, collectors []*stream.Collector) *groupBridgeNode {
	return &groupBridgeNode{
		baseNode:   baseNode{kind: GroupBridgeNode, arity: arity, label: labels(keys)},
		keys:       keys,
		collectors: collectors,
	}
}

func (n *groupBridgeNode) insert(s *Session, p *Tuple, _ int) error {
	s.enqueue(newTuple(n.id, p.Facts, p))
	return nil
}

func (n *groupBridgeNode) update(s *Session, p *Tuple, _ int) error {
	bt := p.childAt(n.id)
	if bt == nil {
		return n.insert(s, p, 0)
	}
	bt.Facts = p.Facts
	s.touch(bt)
	return nil
}

func (n *groupBridgeNode) retract(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return nil
}

func (n *groupBridgeNode) key(facts []any) ([]any, any, error) {
	keyFacts := make([]any, len(n.keys))
	for i, k := range n.keys {
		v := k.Call(facts)
		if err := index.CheckComparable(v); err != nil {
			return nil, nil, NewNodeError(n, err)
		}
		keyFacts[i] = v
	}
	return keyFacts, index.NewKey(keyFacts...), nil
}

func (n *groupBridgeNode) refresh(s *Session, bt *Tuple) error {
	mem := s.memory(n.children[0]).(*groupMemory)
	var err error
	switch bt.state {
	case Creating:
		err = n.contribute(s, mem, bt)
	case Updating:
		var keyFacts []any
		var key any
		keyFacts, key, err = n.key(bt.Facts)
		if err != nil {
			break
		}
		if g := bt.group; g != nil && g.key == key {
			// same group: replace the contribution only
			n.undo(bt)
			err = n.accumulate(g, bt)
			s.touch(g.tuple)
			break
		}
		n.withdraw(s, mem, bt)
		err = n.join(s, mem, bt, keyFacts, key)
	case Dying:
		n.withdraw(s, mem, bt)
	}
	n.settle(bt)
	return err
}

func (n *groupBridgeNode) contribute(s *Session, mem *groupMemory, bt *Tuple) error {
	keyFacts, key, err := n.key(bt.Facts)
	if err != nil {
		return err
	}
	return n.join(s, mem, bt, keyFacts, key)
}

// join adds a contribution to the group of a key, creating the group on first contribution.
func (n *groupBridgeNode) join(s *Session, mem *groupMemory, bt *Tuple, keyFacts []any, key any) error {
	g, ok := mem.groups[key]
	if !ok {
		g = &group{key: key, keyFacts: keyFacts, containers: make([]any, len(n.collectors))}
		for i, c := range n.collectors {
			g.containers[i] = c.Supply()
		}
		g.tuple = newTuple(n.children[0], nil)
		g.tuple.group = g
		mem.groups[key] = g
		s.enqueue(g.tuple)
	} else {
		s.touch(g.tuple)
	}
	g.refs++
	bt.group = g
	return n.accumulate(g, bt)
}

func (n *groupBridgeNode) accumulate(g *group, bt *Tuple) error {
	for i, c := range n.collectors {
		undo, err := c.Accumulate(g.containers[i], bt.Facts)
		if err != nil {
			return NewNodeError(n, err)
		}
		bt.undo = append(bt.undo, undo)
	}
	return nil
}

func (n *groupBridgeNode) undo(bt *Tuple) {
	for _, u := range bt.undo {
		u()
	}
	bt.undo = bt.undo[:0]
}

// withdraw removes a contribution; the last contribution takes the group with it.
func (n *groupBridgeNode) withdraw(s *Session, mem *groupMemory, bt *Tuple) {
	g := bt.group
	if g == nil {
		return
	}
	n.undo(bt)
	bt.group = nil
	if g.refs--; g.refs == 0 {
		delete(mem.groups, g.key)
		s.kill(g.tuple)
		return
	}
	s.touch(g.tuple)
}

// groupNode emits one tuple per group key, carrying the key values followed by the collector
// results. Results are computed when the group tuple is refreshed.
type groupNode struct {
	baseNode
	collectors []*stream.Collector
}

func newGroupNode(arity int, collectors []*stream.Collector) *groupNode {
	return &groupNode{
		baseNode:   baseNode{kind: GroupNode, arity: arity, label: labels(collectors)},
		collectors: collectors,
	}
}

func (n *groupNode) newMemory() any { return &groupMemory{groups: map[any]*group{}} }

func (n *groupNode) refresh(s *Session, t *Tuple) error {
	if t.state == Creating || t.state == Updating {
		g := t.group
		facts := make([]any, 0, len(g.keyFacts)+len(n.collectors))
		facts = append(facts, g.keyFacts...)
		for i, c := range n.collectors {
			facts = append(facts, c.Finish(g.containers[i]))
		}
		t.Facts = facts
	}
	return n.propagate(s, t)
}
