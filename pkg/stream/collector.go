package stream

import (
	"fmt"
	"reflect"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dscore/pkg/index"
)

// Collector aggregates the tuples of a group. The supplier creates an empty container per group,
// the accumulator adds the facts of one tuple and returns the function that removes exactly that
// contribution, and the finisher turns the container into the group result.
type Collector struct {
	name       string
	out        reflect.Type
	supply     func() any
	accumulate func(container any, facts []any) (func(), error)
	finish     func(container any) any
}

// NewCollector creates a collector with a typed container.
func NewCollector[C, R any](name string, supply func() C, accumulate func(C, []any) (func(), error), finish func(C) R) *Collector {
	if supply == nil || accumulate == nil || finish == nil {
		return nil
	}
	return &Collector{
		name:       name,
		out:        reflect.TypeFor[R](),
		supply:     func() any { return supply() },
		accumulate: func(c any, facts []any) (func(), error) { return accumulate(c.(C), facts) },
		finish:     func(c any) any { return finish(c.(C)) },
	}
}

// Supply creates an empty container.
func (c *Collector) Supply() any { return c.supply() }

// Accumulate adds a contribution and returns its undo function.
func (c *Collector) Accumulate(container any, facts []any) (func(), error) {
	return c.accumulate(container, facts)
}

// Finish computes the group result.
func (c *Collector) Finish(container any) any { return c.finish(container) }

// Out returns the declared result type.
func (c *Collector) Out() reflect.Type { return c.out }

// String implements fmt.Stringer.
func (c *Collector) String() string { return c.name }

func noop() {}

// value is the mapped value of a tuple, or the tuple itself when no mapping is given.
func value(mapping *Func, facts []any) any {
	if mapping != nil {
		return mapping.Call(facts)
	}
	if len(facts) == 1 {
		return facts[0]
	}
	return index.NewKey(facts...)
}

type counter struct{ n int }

// Count counts the tuples of a group.
func Count() *Collector {
	return NewCollector("count",
		func() *counter { return &counter{} },
		func(c *counter, _ []any) (func(), error) {
			c.n++
			return func() { c.n-- }, nil
		},
		func(c *counter) int { return c.n })
}

// multiset counts the occurrences of values.
type multiset struct{ counts map[any]int }

func newMultiset() *multiset { return &multiset{counts: map[any]int{}} }

func (m *multiset) add(v any) (func(), error) {
	if err := index.CheckComparable(v); err != nil {
		return nil, err
	}
	m.counts[v]++
	return func() {
		if m.counts[v]--; m.counts[v] == 0 {
			delete(m.counts, v)
		}
	}, nil
}

// CountDistinct counts the distinct mapped values of a group. A nil mapping counts distinct
// tuples.
func CountDistinct(mapping *Func) *Collector {
	return NewCollector("countDistinct", newMultiset,
		func(m *multiset, facts []any) (func(), error) { return m.add(value(mapping, facts)) },
		func(m *multiset) int { return len(m.counts) })
}

// ToSet collects the distinct mapped values of a group.
func ToSet(mapping *Func) *Collector {
	return NewCollector("toSet", newMultiset,
		func(m *multiset, facts []any) (func(), error) { return m.add(value(mapping, facts)) },
		func(m *multiset) sets.Set[any] {
			ret := sets.New[any]()
			for v := range m.counts {
				ret.Insert(v)
			}
			return ret
		})
}

type listItem struct{ v any }

type list struct{ items []*listItem }

// ToList collects the mapped values of a group in contribution order, duplicates included.
func ToList(mapping *Func) *Collector {
	return NewCollector("toList",
		func() *list { return &list{} },
		func(l *list, facts []any) (func(), error) {
			item := &listItem{v: value(mapping, facts)}
			l.items = append(l.items, item)
			return func() {
				for i, it := range l.items {
					if it == item {
						l.items = append(l.items[:i], l.items[i+1:]...)
						return
					}
				}
			}, nil
		},
		func(l *list) []any {
			ret := make([]any, len(l.items))
			for i, it := range l.items {
				ret[i] = it.v
			}
			return ret
		})
}

// ToInt64 converts an integer value to int64.
func ToInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("value %v of type %T is not an integer", v, v)
	}
}

type sum struct {
	total int64
	n     int
}

// Sum adds up the integer values the mapping returns.
func Sum(mapping *Func) *Collector {
	if mapping == nil {
		return nil
	}
	return NewCollector("sum",
		func() *sum { return &sum{} },
		func(s *sum, facts []any) (func(), error) {
			v, err := ToInt64(mapping.Call(facts))
			if err != nil {
				return nil, err
			}
			s.total += v
			s.n++
			return func() { s.total -= v; s.n-- }, nil
		},
		func(s *sum) int64 { return s.total })
}

// Average computes the mean of the integer values the mapping returns.
func Average(mapping *Func) *Collector {
	if mapping == nil {
		return nil
	}
	return NewCollector("average",
		func() *sum { return &sum{} },
		func(s *sum, facts []any) (func(), error) {
			v, err := ToInt64(mapping.Call(facts))
			if err != nil {
				return nil, err
			}
			s.total += v
			s.n++
			return func() { s.total -= v; s.n-- }, nil
		},
		func(s *sum) float64 {
			if s.n == 0 {
				return 0
			}
			return float64(s.total) / float64(s.n)
		})
}

type decimalSum struct{ total decimal.Decimal }

// SumDecimal adds up the decimal values the mapping returns. Integer values are converted.
func SumDecimal(mapping *Func) *Collector {
	if mapping == nil {
		return nil
	}
	return NewCollector("sumDecimal",
		func() *decimalSum { return &decimalSum{total: decimal.Zero} },
		func(s *decimalSum, facts []any) (func(), error) {
			var v decimal.Decimal
			switch x := mapping.Call(facts).(type) {
			case decimal.Decimal:
				v = x
			default:
				i, err := ToInt64(x)
				if err != nil {
					return nil, err
				}
				v = decimal.NewFromInt(i)
			}
			s.total = s.total.Add(v)
			return func() { s.total = s.total.Sub(v) }, nil
		},
		func(s *decimalSum) decimal.Decimal { return s.total })
}

type orderedEntry struct {
	v any
	n int
}

type ordered struct {
	tree *btree.BTreeG[*orderedEntry]
}

func newOrdered(compare func(a, b any) int) *ordered {
	return &ordered{tree: btree.NewG(8, func(a, b *orderedEntry) bool { return compare(a.v, b.v) < 0 })}
}

func (o *ordered) add(v any) func() {
	e, ok := o.tree.Get(&orderedEntry{v: v})
	if !ok {
		e = &orderedEntry{v: v}
		o.tree.ReplaceOrInsert(e)
	}
	e.n++
	return func() {
		if e.n--; e.n == 0 {
			o.tree.Delete(e)
		}
	}
}

func extremum(name string, mapping *Func, compare func(a, b any) int, pick func(*btree.BTreeG[*orderedEntry]) (*orderedEntry, bool)) *Collector {
	if compare == nil {
		compare = Natural
	}
	return NewCollector(name,
		func() *ordered { return newOrdered(compare) },
		func(o *ordered, facts []any) (func(), error) { return o.add(value(mapping, facts)), nil },
		func(o *ordered) any {
			if e, ok := pick(o.tree); ok {
				return e.v
			}
			return nil
		})
}

// Min returns the smallest mapped value of a group. A nil compare uses Natural.
func Min(mapping *Func, compare func(a, b any) int) *Collector {
	return extremum("min", mapping, compare, (*btree.BTreeG[*orderedEntry]).Min)
}

// Max returns the largest mapped value of a group. A nil compare uses Natural.
func Max(mapping *Func, compare func(a, b any) int) *Collector {
	return extremum("max", mapping, compare, (*btree.BTreeG[*orderedEntry]).Max)
}

// Conditionally passes only the tuples matching the predicate to the wrapped collector.
func Conditionally(pred *Func, c *Collector) *Collector {
	if pred == nil || c == nil {
		return nil
	}
	return &Collector{
		name:   "conditionally(" + c.name + ")",
		out:    c.out,
		supply: c.supply,
		accumulate: func(container any, facts []any) (func(), error) {
			if !pred.Test(facts) {
				return noop, nil
			}
			return c.accumulate(container, facts)
		},
		finish: c.finish,
	}
}
