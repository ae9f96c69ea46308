package network

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

// scoringNode is the terminal node of a constraint: every tuple is a match whose weight is
// applied to the score of the constraint.
type scoringNode struct {
	baseNode
	ref     score.ConstraintRef
	impact  score.ImpactType
	weight  score.Score
	weigher *stream.Func
	// slot is the position of the impacter of the constraint in the session
	slot int
}

func newScoringNode(arity int, c *Constraint) *scoringNode {
	return &scoringNode{
		baseNode: baseNode{kind: ScoringNode, arity: arity,
			label: fmt.Sprintf("%s %s %s", c.Impact, c.Ref, c.Weight)},
		ref:     c.Ref,
		impact:  c.Impact,
		weight:  c.Weight,
		weigher: c.Weigher,
	}
}

// Constraint returns the constraint the node scores.
func (n *scoringNode) Constraint() score.ConstraintRef { return n.ref }

func (n *scoringNode) insert(s *Session, p *Tuple, _ int) error {
	s.enqueue(newTuple(n.id, p.Facts, p))
	return nil
}

func (n *scoringNode) update(s *Session, p *Tuple, _ int) error {
	st := p.childAt(n.id)
	if st == nil {
		return n.insert(s, p, 0)
	}
	st.Facts = p.Facts
	s.touch(st)
	return nil
}

func (n *scoringNode) retract(s *Session, p *Tuple, _ int) error {
	n.killChildren(s, p)
	return nil
}

func (n *scoringNode) refresh(s *Session, st *Tuple) error {
	if st.impact != nil {
		st.impact()
		st.impact = nil
	}
	if st.state == Creating || st.state == Updating {
		undo, err := n.apply(s.impacters[n.slot], st.Facts)
		if err != nil {
			return err
		}
		st.impact = undo
	}
	n.settle(st)
	return nil
}

func (n *scoringNode) apply(imp score.Impacter, facts []any) (score.Undo, error) {
	if n.weigher == nil {
		return imp.ImpactInt(1, facts)
	}
	var (
		undo score.Undo
		err  error
	)
	switch w := n.weigher.Call(facts).(type) {
	case int32:
		undo, err = imp.ImpactInt(w, facts)
	case int:
		undo, err = imp.ImpactLong(int64(w), facts)
	case int64:
		undo, err = imp.ImpactLong(w, facts)
	case decimal.Decimal:
		undo, err = imp.ImpactDecimal(w, facts)
	default:
		err = fmt.Errorf("%w: match weigher of %s returned %T", ErrWeight, n.ref, w)
	}
	var se *score.SignError
	switch {
	case errors.As(err, &se):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("constraint %s: %w", n.ref, err)
	}
	return undo, nil
}
