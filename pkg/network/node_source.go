package network

import (
	"reflect"
)

// sourceNode emits one tuple per fact of a type. Its tuples are created, updated and retracted by
// the session.
type sourceNode struct {
	baseNode
	typ reflect.Type
}

type sourceMemory struct {
	tuples map[any]*Tuple
}

func newSourceNode(typ reflect.Type) *sourceNode {
	return &sourceNode{baseNode: baseNode{kind: SourceNode, arity: 1, label: typ.String()}, typ: typ}
}

func (n *sourceNode) newMemory() any { return &sourceMemory{tuples: map[any]*Tuple{}} }

// Type returns the fact type the source accepts. Facts of any type assignable to it are
// accepted.
func (n *sourceNode) Type() reflect.Type { return n.typ }

func (n *sourceNode) accepts(t reflect.Type) bool { return t.AssignableTo(n.typ) }

func (n *sourceNode) insertFact(s *Session, fact any) {
	mem := s.memory(n.id).(*sourceMemory)
	t := newTuple(n.id, []any{fact})
	mem.tuples[fact] = t
	s.enqueue(t)
}

func (n *sourceNode) updateFact(s *Session, fact any) {
	mem := s.memory(n.id).(*sourceMemory)
	if t, ok := mem.tuples[fact]; ok {
		s.touch(t)
	}
}

func (n *sourceNode) retractFact(s *Session, fact any) {
	mem := s.memory(n.id).(*sourceMemory)
	if t, ok := mem.tuples[fact]; ok {
		delete(mem.tuples, fact)
		s.kill(t)
	}
}
