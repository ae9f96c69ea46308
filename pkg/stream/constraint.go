package stream

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/l7mp/dscore/pkg/score"
)

// Terminal is the penalize, reward or impact stage of a constraint.
type Terminal struct {
	stream  *Stream
	impact  score.ImpactType
	weight  score.Score
	weigher *Func
	err     error
}

func newTerminal(s *Stream, impact score.ImpactType, weight score.Score) *Terminal {
	t := &Terminal{stream: s, impact: impact, weight: weight, err: s.err}
	if weight == nil && t.err == nil {
		t.err = fmt.Errorf("%s: %w: constraint weight", impact, ErrNilOperation)
	}
	return t
}

// WithMatchWeigher sets the function computing the weight of a match. The result must be an
// int, int32, int64 or decimal.Decimal. Without a weigher every match weighs 1.
func (t *Terminal) WithMatchWeigher(weigher *Func) *Terminal {
	ret := *t
	ret.weigher = weigher
	if weigher == nil && ret.err == nil {
		ret.err = fmt.Errorf("%s: %w: match weigher", t.impact, ErrNilOperation)
	}
	return &ret
}

// AsConstraint names the constraint.
func (t *Terminal) AsConstraint(pkg, name string) *Constraint {
	return NewConstraint(pkg, name, t)
}

// Constraint is a named, terminated stream.
type Constraint struct {
	ref      score.ConstraintRef
	terminal *Terminal
	err      error
}

// NewConstraint names a terminated stream. Problems are reported by Err.
func NewConstraint(pkg, name string, t *Terminal) *Constraint {
	c := &Constraint{ref: score.ConstraintRef{Package: pkg, Name: name}, terminal: t}
	switch {
	case t == nil:
		c.err = fmt.Errorf("constraint %s: %w", c.ref, ErrNoTerminal)
	case name == "":
		c.err = errors.New("constraint name is empty")
	case t.err != nil:
		c.err = fmt.Errorf("constraint %s: %w", c.ref, t.err)
	}
	return c
}

// Ref returns the constraint identifier.
func (c *Constraint) Ref() score.ConstraintRef { return c.ref }

// Stream returns the last stage before the terminal, nil if there is no terminal.
func (c *Constraint) Stream() *Stream {
	if c.terminal == nil {
		return nil
	}
	return c.terminal.stream
}

// Impact returns the direction of the constraint.
func (c *Constraint) Impact() score.ImpactType { return c.terminal.impact }

// Weight returns the declared weight.
func (c *Constraint) Weight() score.Score { return c.terminal.weight }

// Weigher returns the match weigher, nil if every match weighs 1.
func (c *Constraint) Weigher() *Func { return c.terminal.weigher }

// Err returns the first construction error of the constraint.
func (c *Constraint) Err() error { return c.err }

// String implements fmt.Stringer.
func (c *Constraint) String() string { return c.ref.String() }

// FactType describes the facts of one Go type. Assigned, if set, tells whether the planning
// variables of a fact are set; ForEach skips the facts for which it returns false.
type FactType struct {
	typ      reflect.Type
	assigned *Func
}

// NewFactType registers the assigned predicate of the facts of type T.
func NewFactType[T any](assigned func(T) bool) *FactType {
	ft := &FactType{typ: reflect.TypeFor[T]()}
	if assigned != nil {
		ft.assigned = F1(assigned).Named(fmt.Sprintf("assigned(%s)", ft.typ))
	}
	return ft
}

// Type returns the Go type of the facts.
func (ft *FactType) Type() reflect.Type { return ft.typ }

// Assigned returns the assigned predicate, nil if all facts count as assigned.
func (ft *FactType) Assigned() *Func { return ft.assigned }
