package score

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Inliner owns the running score of a session: one total per constraint plus the global total.
// Every constraint registers once and receives an Impacter.
type Inliner interface {
	// Kind returns the score representation.
	Kind() Kind
	// Levels returns the number of score levels.
	Levels() int
	// Register creates the impacter of a constraint.
	Register(ref ConstraintRef, weight Score, impact ImpactType) (Impacter, error)
	// Score returns the current total. It has no side effects.
	Score() Score
	// ConstraintScore returns the current total of one constraint.
	ConstraintScore(ref ConstraintRef) (Score, bool)
	// MatchTotals returns the per-constraint totals in registration order.
	MatchTotals() []MatchTotal
	// Matches returns the current matches; empty unless match tracking is enabled.
	Matches() []Match
	// Indictments groups the current matches by justification fact.
	Indictments() []Indictment
	// TracksMatches tells whether matches are recorded.
	TracksMatches() bool
}

// NewInliner returns an empty inliner for the given score definition.
func NewInliner(kind Kind, levels int, trackMatches bool) (Inliner, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: a score needs at least one level", ErrShape)
	}
	switch kind {
	case Int:
		return newInliner[int32](intArith{}, kind, levels, trackMatches), nil
	case Long:
		return newInliner[int64](longArith{}, kind, levels, trackMatches), nil
	case Decimal:
		return newInliner[decimal.Decimal](decimalArith{}, kind, levels, trackMatches), nil
	default:
		return nil, fmt.Errorf("unknown score kind %s", kind)
	}
}

type inliner[T any] struct {
	a           arith[T]
	kind        Kind
	levels      int
	track       bool
	total       []T
	constraints []*constraintState[T]
	byRef       map[ConstraintRef]*constraintState[T]
}

func newInliner[T any](a arith[T], kind Kind, levels int, track bool) *inliner[T] {
	in := &inliner[T]{
		a:      a,
		kind:   kind,
		levels: levels,
		track:  track,
		total:  make([]T, levels),
		byRef:  map[ConstraintRef]*constraintState[T]{},
	}
	for i := range in.total {
		in.total[i] = a.zero()
	}
	return in
}

func (in *inliner[T]) Kind() Kind          { return in.kind }
func (in *inliner[T]) Levels() int         { return in.levels }
func (in *inliner[T]) TracksMatches() bool { return in.track }

func (in *inliner[T]) register(ref ConstraintRef, weight Score, impact ImpactType) (*constraintState[T], error) {
	if _, ok := in.byRef[ref]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, ref)
	}
	w, ok := in.a.levelsOf(weight)
	if !ok || len(w) != in.levels {
		return nil, fmt.Errorf("%w: constraint %s has weight %v, expected a %d-level %s score",
			ErrShape, ref, weight, in.levels, in.kind)
	}
	c := &constraintState[T]{
		in:     in,
		ref:    ref,
		impact: impact,
		weight: w,
		score:  make([]T, in.levels),
	}
	for i := range c.score {
		c.score[i] = in.a.zero()
	}
	if in.track {
		c.matches = sets.New[*Match]()
	}
	in.constraints = append(in.constraints, c)
	in.byRef[ref] = c
	return c, nil
}

func (in *inliner[T]) Register(ref ConstraintRef, weight Score, impact ImpactType) (Impacter, error) {
	c, err := in.register(ref, weight, impact)
	if err != nil {
		return nil, err
	}
	return &impacter[T]{c: c}, nil
}

func (in *inliner[T]) snapshot(ls []T) Score {
	return in.a.makeScore(append([]T(nil), ls...))
}

func (in *inliner[T]) Score() Score { return in.snapshot(in.total) }

func (in *inliner[T]) ConstraintScore(ref ConstraintRef) (Score, bool) {
	c, ok := in.byRef[ref]
	if !ok {
		return nil, false
	}
	return in.snapshot(c.score), true
}

func (in *inliner[T]) MatchTotals() []MatchTotal {
	ret := make([]MatchTotal, 0, len(in.constraints))
	for _, c := range in.constraints {
		ret = append(ret, MatchTotal{
			Constraint: c.ref,
			Weight:     in.snapshot(c.weight),
			Count:      c.count,
			Score:      in.snapshot(c.score),
		})
	}
	return ret
}

func (in *inliner[T]) Matches() []Match {
	ret := []Match{}
	for _, c := range in.constraints {
		if c.matches == nil {
			continue
		}
		ms := make([]Match, 0, c.matches.Len())
		for m := range c.matches {
			ms = append(ms, *m)
		}
		sort.Slice(ms, func(i, j int) bool { return ms[i].String() < ms[j].String() })
		ret = append(ret, ms...)
	}
	return ret
}

func (in *inliner[T]) Indictments() []Indictment {
	byFact := map[any]*Indictment{}
	order := []any{}
	for _, m := range in.Matches() {
		seen := map[any]bool{}
		for _, f := range m.Justification {
			if seen[f] {
				continue
			}
			seen[f] = true
			ind, ok := byFact[f]
			if !ok {
				ind = &Indictment{Fact: f, Score: Zero(in.kind, in.levels)}
				byFact[f] = ind
				order = append(order, f)
			}
			ind.Count++
			ind.Score = in.add(ind.Score, m.Score)
			ind.Matches = append(ind.Matches, m)
		}
	}
	ret := make([]Indictment, 0, len(order))
	for _, f := range order {
		ret = append(ret, *byFact[f])
	}
	return ret
}

func (in *inliner[T]) add(a, b Score) Score {
	la, _ := in.a.levelsOf(a)
	lb, _ := in.a.levelsOf(b)
	ret := make([]T, in.levels)
	for i := range ret {
		ret[i] = in.a.add(la[i], lb[i])
	}
	return in.a.makeScore(ret)
}

// constraintState is the running total of one constraint.
type constraintState[T any] struct {
	in      *inliner[T]
	ref     ConstraintRef
	impact  ImpactType
	weight  []T
	score   []T
	count   int
	matches sets.Set[*Match]
}

func (c *constraintState[T]) apply(matchWeight T, facts []any) (Undo, error) {
	a := c.in.a
	mw := matchWeight
	switch c.impact {
	case Penalty:
		if a.sign(mw) < 0 {
			return nil, &SignError{Constraint: c.ref, Impact: c.impact, MatchWeight: a.format(mw), Facts: facts}
		}
		mw = a.neg(mw)
	case Reward:
		if a.sign(mw) < 0 {
			return nil, &SignError{Constraint: c.ref, Impact: c.impact, MatchWeight: a.format(mw), Facts: facts}
		}
	}

	delta := make([]T, len(c.weight))
	for i, w := range c.weight {
		delta[i] = a.mul(w, mw)
		c.score[i] = a.add(c.score[i], delta[i])
		c.in.total[i] = a.add(c.in.total[i], delta[i])
	}
	c.count++

	var m *Match
	if c.matches != nil {
		m = &Match{
			Constraint:    c.ref,
			Justification: append([]any(nil), facts...),
			Score:         a.makeScore(delta),
		}
		c.matches.Insert(m)
	}

	return func() {
		for i, d := range delta {
			c.score[i] = a.add(c.score[i], a.neg(d))
			c.in.total[i] = a.add(c.in.total[i], a.neg(d))
		}
		c.count--
		if m != nil {
			c.matches.Delete(m)
		}
	}, nil
}
