// Package index implements the multi-level lookup structure used by join nodes to find the
// candidates on the opposite side of a join without scanning the whole stream.
//
// An index is a chain of levels, one per indexed property. Consecutive equality levels are
// merged into a single hash level keyed by a composite key, comparison levels are kept in a
// B-tree ordered by the property value, and the last level holds a bucket of items. An index
// without levels degenerates into a single bucket.
//
// Comparison levels are described from the point of view of the query: a level of kind
// LessThan matches the stored items whose property p satisfies query < p.
package index

import (
	"fmt"

	"github.com/google/btree"
)

// Kind is the relation tested by an index level.
type Kind int

const (
	Equal Kind = iota
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
)

// Flip returns the relation seen from the other operand: a < b iff b > a.
func (k Kind) Flip() Kind {
	switch k {
	case LessThan:
		return GreaterThan
	case LessThanOrEqual:
		return GreaterThanOrEqual
	case GreaterThan:
		return LessThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	default:
		return k
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Equal:
		return "=="
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	default:
		return "?"
	}
}

// Test evaluates the relation on a comparison result cmp(a, b).
func (k Kind) Test(c int) bool {
	switch k {
	case Equal:
		return c == 0
	case LessThan:
		return c < 0
	case LessThanOrEqual:
		return c <= 0
	case GreaterThan:
		return c > 0
	case GreaterThanOrEqual:
		return c >= 0
	default:
		return false
	}
}

// Level describes one indexed property. Compare is mandatory for comparison levels and
// ignored for equality levels.
type Level struct {
	Kind    Kind
	Compare func(a, b any) int
}

// Indexer stores items under a list of properties, one per level.
type Indexer[T comparable] interface {
	// Put stores item under the given properties.
	Put(props []any, item T) error
	// Remove deletes item from under the given properties.
	Remove(props []any, item T) error
	// ForEach visits every stored item matching the query properties until fn returns false.
	ForEach(props []any, fn func(T) bool) error
	// Size returns the number of stored items.
	Size() int
}

// New creates an indexer for the given levels.
func New[T comparable](levels []Level) (Indexer[T], error) {
	ix := &indexer[T]{}
	for i := 0; i < len(levels); {
		l := levels[i]
		if l.Kind == Equal {
			j := i
			for j < len(levels) && levels[j].Kind == Equal {
				j++
			}
			ix.levels = append(ix.levels, levelSpec{kind: Equal, from: i, to: j})
			i = j
			continue
		}
		if l.Compare == nil {
			return nil, fmt.Errorf("comparison level %d (%s) has no compare function", i, l.Kind)
		}
		ix.levels = append(ix.levels, levelSpec{kind: l.Kind, from: i, to: i + 1, compare: l.Compare})
		i++
	}
	ix.width = len(levels)
	ix.root = ix.newNode(0)
	return ix, nil
}

type levelSpec struct {
	kind     Kind
	from, to int
	compare  func(a, b any) int
}

type indexer[T comparable] struct {
	levels []levelSpec
	width  int
	root   node[T]
	size   int
}

type node[T comparable] interface {
	put(props []any, item T) error
	remove(props []any, item T) error
	forEach(props []any, fn func(T) bool) bool
	isEmpty() bool
}

func (ix *indexer[T]) newNode(depth int) node[T] {
	if depth == len(ix.levels) {
		return newBucket[T]()
	}
	spec := ix.levels[depth]
	if spec.kind == Equal {
		return &equalNode[T]{ix: ix, depth: depth, children: map[any]node[T]{}}
	}
	return &comparisonNode[T]{
		ix:    ix,
		depth: depth,
		tree: btree.NewG[*comparisonEntry[T]](16, func(a, b *comparisonEntry[T]) bool {
			return spec.compare(a.key, b.key) < 0
		}),
	}
}

func (ix *indexer[T]) Put(props []any, item T) error {
	if len(props) != ix.width {
		return fmt.Errorf("%w: expected %d, got %d", ErrArity, ix.width, len(props))
	}
	if err := ix.root.put(props, item); err != nil {
		return err
	}
	ix.size++
	return nil
}

func (ix *indexer[T]) Remove(props []any, item T) error {
	if len(props) != ix.width {
		return fmt.Errorf("%w: expected %d, got %d", ErrArity, ix.width, len(props))
	}
	if err := ix.root.remove(props, item); err != nil {
		return err
	}
	ix.size--
	return nil
}

func (ix *indexer[T]) ForEach(props []any, fn func(T) bool) error {
	if len(props) != ix.width {
		return fmt.Errorf("%w: expected %d, got %d", ErrArity, ix.width, len(props))
	}
	ix.root.forEach(props, fn)
	return nil
}

func (ix *indexer[T]) Size() int { return ix.size }

// equalNode hashes a run of equality properties into one composite key.
type equalNode[T comparable] struct {
	ix       *indexer[T]
	depth    int
	children map[any]node[T]
}

func (n *equalNode[T]) key(props []any) (any, error) {
	spec := n.ix.levels[n.depth]
	for _, p := range props[spec.from:spec.to] {
		if err := CheckComparable(p); err != nil {
			return nil, err
		}
	}
	return NewKey(props[spec.from:spec.to]...), nil
}

func (n *equalNode[T]) put(props []any, item T) error {
	k, err := n.key(props)
	if err != nil {
		return err
	}
	child, ok := n.children[k]
	if !ok {
		child = n.ix.newNode(n.depth + 1)
		n.children[k] = child
	}
	return child.put(props, item)
}

func (n *equalNode[T]) remove(props []any, item T) error {
	k, err := n.key(props)
	if err != nil {
		return err
	}
	child, ok := n.children[k]
	if !ok {
		return fmt.Errorf("%w: key %s", ErrNotFound, String(k))
	}
	if err := child.remove(props, item); err != nil {
		return err
	}
	if child.isEmpty() {
		delete(n.children, k)
	}
	return nil
}

func (n *equalNode[T]) forEach(props []any, fn func(T) bool) bool {
	k, err := n.key(props)
	if err != nil {
		// a key that cannot be stored cannot match anything
		return true
	}
	child, ok := n.children[k]
	if !ok {
		return true
	}
	return child.forEach(props, fn)
}

func (n *equalNode[T]) isEmpty() bool { return len(n.children) == 0 }

type comparisonEntry[T comparable] struct {
	key   any
	child node[T]
}

// comparisonNode keeps one child per distinct property value, ordered by the level's compare.
type comparisonNode[T comparable] struct {
	ix    *indexer[T]
	depth int
	tree  *btree.BTreeG[*comparisonEntry[T]]
}

func (n *comparisonNode[T]) prop(props []any) any {
	return props[n.ix.levels[n.depth].from]
}

func (n *comparisonNode[T]) put(props []any, item T) error {
	pivot := &comparisonEntry[T]{key: n.prop(props)}
	entry, ok := n.tree.Get(pivot)
	if !ok {
		entry = pivot
		entry.child = n.ix.newNode(n.depth + 1)
		n.tree.ReplaceOrInsert(entry)
	}
	return entry.child.put(props, item)
}

func (n *comparisonNode[T]) remove(props []any, item T) error {
	pivot := &comparisonEntry[T]{key: n.prop(props)}
	entry, ok := n.tree.Get(pivot)
	if !ok {
		return fmt.Errorf("%w: comparison key %v", ErrNotFound, pivot.key)
	}
	if err := entry.child.remove(props, item); err != nil {
		return err
	}
	if entry.child.isEmpty() {
		n.tree.Delete(entry)
	}
	return nil
}

func (n *comparisonNode[T]) forEach(props []any, fn func(T) bool) bool {
	spec := n.ix.levels[n.depth]
	q := n.prop(props)
	pivot := &comparisonEntry[T]{key: q}
	cont := true
	visit := func(e *comparisonEntry[T]) bool {
		cont = e.child.forEach(props, fn)
		return cont
	}

	switch spec.kind {
	case LessThan, LessThanOrEqual:
		// query < stored: walk upwards from the query value
		n.tree.AscendGreaterOrEqual(pivot, func(e *comparisonEntry[T]) bool {
			if !spec.kind.Test(spec.compare(q, e.key)) {
				return true // equal key under strict relation
			}
			return visit(e)
		})
	case GreaterThan:
		n.tree.AscendLessThan(pivot, visit)
	case GreaterThanOrEqual:
		n.tree.AscendLessThan(pivot, visit)
		if cont {
			if e, ok := n.tree.Get(pivot); ok {
				visit(e)
			}
		}
	}
	return cont
}

func (n *comparisonNode[T]) isEmpty() bool { return n.tree.Len() == 0 }

// bucket is the leaf level: an insertion-ordered set with O(1) removal.
type bucket[T comparable] struct {
	items []T
	pos   map[T]int
}

func newBucket[T comparable]() *bucket[T] {
	return &bucket[T]{pos: map[T]int{}}
}

func (b *bucket[T]) put(_ []any, item T) error {
	if _, ok := b.pos[item]; ok {
		return fmt.Errorf("item %v already indexed", item)
	}
	b.pos[item] = len(b.items)
	b.items = append(b.items, item)
	return nil
}

func (b *bucket[T]) remove(_ []any, item T) error {
	i, ok := b.pos[item]
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, item)
	}
	last := len(b.items) - 1
	if i != last {
		b.items[i] = b.items[last]
		b.pos[b.items[i]] = i
	}
	var zero T
	b.items[last] = zero
	b.items = b.items[:last]
	delete(b.pos, item)
	return nil
}

func (b *bucket[T]) forEach(_ []any, fn func(T) bool) bool {
	for _, item := range b.items {
		if !fn(item) {
			return false
		}
	}
	return true
}

func (b *bucket[T]) isEmpty() bool { return len(b.items) == 0 }
