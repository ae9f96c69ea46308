package network

import (
	"github.com/l7mp/dscore/pkg/index"
)

// distinctNode folds equal tuples into one representative, counting the parent tuples behind it.
type distinctNode struct {
	baseNode
}

type distinctEntry struct {
	rep   *Tuple
	count int
}

type distinctMemory struct {
	entries map[any]*distinctEntry
	// the key each parent tuple contributes to
	keys map[*Tuple]any
}

func newDistinctNode(arity int) *distinctNode {
	return &distinctNode{baseNode: baseNode{kind: DistinctNode, arity: arity}}
}

func (n *distinctNode) newMemory() any {
	return &distinctMemory{entries: map[any]*distinctEntry{}, keys: map[*Tuple]any{}}
}

func (n *distinctNode) key(facts []any) (any, error) {
	for _, f := range facts {
		if err := index.CheckComparable(f); err != nil {
			return nil, NewNodeError(n, err)
		}
	}
	return index.NewKey(facts...), nil
}

func (n *distinctNode) insert(s *Session, p *Tuple, _ int) error {
	mem := s.memory(n.id).(*distinctMemory)
	k, err := n.key(p.Facts)
	if err != nil {
		return err
	}
	mem.keys[p] = k
	if e, ok := mem.entries[k]; ok {
		e.count++
		return nil
	}
	rep := newTuple(n.id, append([]any(nil), p.Facts...))
	mem.entries[k] = &distinctEntry{rep: rep, count: 1}
	s.enqueue(rep)
	return nil
}

func (n *distinctNode) update(s *Session, p *Tuple, _ int) error {
	mem := s.memory(n.id).(*distinctMemory)
	k, err := n.key(p.Facts)
	if err != nil {
		return err
	}
	if old, ok := mem.keys[p]; ok && old == k {
		// same value: the facts may have changed inside
		s.touch(mem.entries[k].rep)
		return nil
	}
	if err := n.retract(s, p, 0); err != nil {
		return err
	}
	return n.insert(s, p, 0)
}

func (n *distinctNode) retract(s *Session, p *Tuple, _ int) error {
	mem := s.memory(n.id).(*distinctMemory)
	k, ok := mem.keys[p]
	if !ok {
		return nil
	}
	delete(mem.keys, p)
	e := mem.entries[k]
	if e.count--; e.count == 0 {
		delete(mem.entries, k)
		s.kill(e.rep)
	}
	return nil
}
