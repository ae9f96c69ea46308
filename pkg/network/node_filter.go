package network

import (
	"fmt"
	"reflect"

	"github.com/l7mp/dscore/pkg/stream"
)

// filterNode passes on the tuples that match a predicate.
type filterNode struct {
	baseNode
	pred *stream.Func
}

func newFilterNode(arity int, pred *stream.Func) *filterNode {
	return &filterNode{baseNode: baseNode{kind: FilterNode, arity: arity, label: pred.String()}, pred: pred}
}

func (n *filterNode) insert(s *Session, p *Tuple, _ int) error {
	if n.pred.Test(p.Facts) {
		s.enqueue(newTuple(n.id, p.Facts, p))
	}
	return nil
}

func (n *filterNode) update(s *Session, p *Tuple, _ int) error {
	c := p.childAt(n.id)
	pass := n.pred.Test(p.Facts)
	switch {
	case c != nil && pass:
		c.Facts = p.Facts
		s.touch(c)
	case c != nil:
		s.kill(c)
	case pass:
		s.enqueue(newTuple(n.id, p.Facts, p))
	}
	return nil
}

func (n *filterNode) retract(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return nil
}

// mapNode replaces the facts of every tuple with the results of its mappings.
type mapNode struct {
	baseNode
	mappings []*stream.Func
}

func newMapNode(mappings []*stream.Func) *mapNode {
	return &mapNode{
		baseNode: baseNode{kind: MapNode, arity: len(mappings), label: labels(mappings)},
		mappings: mappings,
	}
}

func (n *mapNode) apply(facts []any) []any {
	ret := make([]any, len(n.mappings))
	for i, m := range n.mappings {
		ret[i] = m.Call(facts)
	}
	return ret
}

func (n *mapNode) insert(s *Session, p *Tuple, _ int) error {
	s.enqueue(newTuple(n.id, n.apply(p.Facts), p))
	return nil
}

func (n *mapNode) update(s *Session, p *Tuple, _ int) error {
	c := p.childAt(n.id)
	if c == nil {
		return n.insert(s, p, 0)
	}
	c.Facts = n.apply(p.Facts)
	s.touch(c)
	return nil
}

func (n *mapNode) retract(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return nil
}

// flattenNode emits one tuple per element of the slice its mapping returns for the last fact.
type flattenNode struct {
	baseNode
	mapping *stream.Func
}

func newFlattenNode(arity int, mapping *stream.Func) *flattenNode {
	return &flattenNode{
		baseNode: baseNode{kind: FlattenNode, arity: arity, label: mapping.String()},
		mapping:  mapping,
	}
}

func (n *flattenNode) insert(s *Session, p *Tuple, _ int) error {
	last := len(p.Facts) - 1
	out := n.mapping.Call(p.Facts[last:])
	if out == nil {
		return nil
	}
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return NewNodeError(n, fmt.Errorf("mapping returned %T, expected a slice", out))
	}
	for i := 0; i < v.Len(); i++ {
		facts := make([]any, len(p.Facts))
		copy(facts, p.Facts[:last])
		facts[last] = v.Index(i).Interface()
		s.enqueue(newTuple(n.id, facts, p))
	}
	return nil
}

func (n *flattenNode) update(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return n.insert(s, p, 0)
}

func (n *flattenNode) retract(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return nil
}
