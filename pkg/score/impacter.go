package score

import (
	"github.com/shopspring/decimal"
)

// Undo reverses exactly one impact. Calling it twice is a programming error.
type Undo func()

// Impacter applies the match weights of one constraint to the running score. The match weight
// is converted into the score kind of the session; a conversion that would lose information
// fails with ErrWeightKind.
type Impacter interface {
	// Constraint returns the constraint the impacter belongs to.
	Constraint() ConstraintRef
	// Impact returns the direction of the constraint.
	Impact() ImpactType
	// ImpactInt applies an int match weight.
	ImpactInt(matchWeight int32, facts []any) (Undo, error)
	// ImpactLong applies a long match weight.
	ImpactLong(matchWeight int64, facts []any) (Undo, error)
	// ImpactDecimal applies a decimal match weight.
	ImpactDecimal(matchWeight decimal.Decimal, facts []any) (Undo, error)
}

type impacter[T any] struct {
	c *constraintState[T]
}

func (i *impacter[T]) Constraint() ConstraintRef { return i.c.ref }
func (i *impacter[T]) Impact() ImpactType        { return i.c.impact }

func (i *impacter[T]) ImpactInt(matchWeight int32, facts []any) (Undo, error) {
	mw, err := i.c.in.a.fromInt32(matchWeight)
	if err != nil {
		return nil, err
	}
	return i.c.apply(mw, facts)
}

func (i *impacter[T]) ImpactLong(matchWeight int64, facts []any) (Undo, error) {
	mw, err := i.c.in.a.fromInt64(matchWeight)
	if err != nil {
		return nil, err
	}
	return i.c.apply(mw, facts)
}

func (i *impacter[T]) ImpactDecimal(matchWeight decimal.Decimal, facts []any) (Undo, error) {
	mw, err := i.c.in.a.fromDecimal(matchWeight)
	if err != nil {
		return nil, err
	}
	return i.c.apply(mw, facts)
}
