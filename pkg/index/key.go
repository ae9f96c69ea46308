package index

import (
	"fmt"
	"reflect"
)

// unitKey is the key of the single bucket used when nothing is indexed.
type unitKey struct{}

// pairKey chains composite keys; nested pairs stay comparable whenever their parts are.
type pairKey struct {
	head any
	tail any
}

// NewKey returns a comparable composite key for the given values. Zero values yield the unit
// key, a single value is returned as is and more values are chained into nested pairs, so that
// NewKey(a, b) == NewKey(c, d) iff a == c and b == d.
func NewKey(vals ...any) any {
	switch len(vals) {
	case 0:
		return unitKey{}
	case 1:
		return vals[0]
	default:
		return pairKey{head: vals[0], tail: NewKey(vals[1:]...)}
	}
}

// CheckComparable returns an error if v cannot be used as a map key.
func CheckComparable(v any) error {
	if v == nil {
		return nil
	}
	if !reflect.ValueOf(v).Comparable() {
		return fmt.Errorf("%w: %T", ErrNonComparableKey, v)
	}
	return nil
}

// String renders a key for diagnostics.
func String(key any) string {
	switch k := key.(type) {
	case unitKey:
		return "()"
	case pairKey:
		s := "(" + fmt.Sprint(k.head)
		for {
			next, ok := k.tail.(pairKey)
			if !ok {
				return s + ", " + fmt.Sprint(k.tail) + ")"
			}
			s += ", " + fmt.Sprint(next.head)
			k = next
		}
	default:
		return fmt.Sprint(k)
	}
}
