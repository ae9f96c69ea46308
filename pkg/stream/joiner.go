package stream

import (
	"cmp"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/l7mp/dscore/pkg/index"
)

// Joiner is a per-pair test between the tuples of a stream and the facts of another stream.
// Indexed joiners relate a property of the left tuple to a property of the right fact
// (left REL right) and are answered by an index; filtering joiners are arbitrary predicates over
// the combined facts and are evaluated on the candidates the index returns.
type Joiner struct {
	kind      index.Kind
	filtering bool
	left      *Func
	right     *Func
	filter    *Func
	compare   func(a, b any) int
}

func newJoiner(kind index.Kind, left, right *Func) *Joiner {
	if left == nil || right == nil {
		return nil
	}
	return &Joiner{kind: kind, left: left, right: right, compare: Natural}
}

// Equal joins when left(tuple) == right(fact).
func Equal(left, right *Func) *Joiner { return newJoiner(index.Equal, left, right) }

// LessThan joins when left(tuple) < right(fact).
func LessThan(left, right *Func) *Joiner { return newJoiner(index.LessThan, left, right) }

// LessThanOrEqual joins when left(tuple) <= right(fact).
func LessThanOrEqual(left, right *Func) *Joiner {
	return newJoiner(index.LessThanOrEqual, left, right)
}

// GreaterThan joins when left(tuple) > right(fact).
func GreaterThan(left, right *Func) *Joiner { return newJoiner(index.GreaterThan, left, right) }

// GreaterThanOrEqual joins when left(tuple) >= right(fact).
func GreaterThanOrEqual(left, right *Func) *Joiner {
	return newJoiner(index.GreaterThanOrEqual, left, right)
}

// EqualOn joins two streams of the same fact type on a shared property.
func EqualOn[A any, K comparable](key func(A) K) *Joiner {
	f := F1(key)
	return Equal(f, f)
}

// Filtering joins when the predicate holds on the facts of the left tuple followed by the right
// fact.
func Filtering(pred *Func) *Joiner {
	if pred == nil {
		return nil
	}
	return &Joiner{filtering: true, filter: pred}
}

// WithCompare returns a copy of a comparison joiner using the given order.
func (j *Joiner) WithCompare(compare func(a, b any) int) *Joiner {
	ret := *j
	ret.compare = compare
	return &ret
}

// Kind returns the relation of an indexed joiner.
func (j *Joiner) Kind() index.Kind { return j.kind }

// IsFiltering is true for filtering joiners.
func (j *Joiner) IsFiltering() bool { return j.filtering }

// Left returns the mapping of the left tuple.
func (j *Joiner) Left() *Func { return j.left }

// Right returns the mapping of the right fact.
func (j *Joiner) Right() *Func { return j.right }

// Filter returns the predicate of a filtering joiner.
func (j *Joiner) Filter() *Func { return j.filter }

// Compare returns the order used by comparison joiners.
func (j *Joiner) Compare() func(a, b any) int { return j.compare }

// String implements fmt.Stringer.
func (j *Joiner) String() string {
	if j.filtering {
		return fmt.Sprintf("filtering(%s)", j.filter)
	}
	return fmt.Sprintf("%s %s %s", j.left, j.kind, j.right)
}

// Natural orders the usual ordered values: integers, floats, strings, decimals and times. Values
// of different or unknown types are ordered by their printed form.
func Natural(a, b any) int {
	switch x := a.(type) {
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case int32:
		if y, ok := b.(int32); ok {
			return cmp.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case uint:
		if y, ok := b.(uint); ok {
			return cmp.Compare(x, y)
		}
	case uint64:
		if y, ok := b.(uint64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
