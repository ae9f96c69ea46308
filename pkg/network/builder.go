package network

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dscore/internal/dag"
	"github.com/l7mp/dscore/pkg/index"
	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

// Option configures a Builder.
type Option func(*Builder)

// WithScoreKind sets the score representation and the number of score levels. Default is a
// single int level.
func WithScoreKind(kind score.Kind, levels int) Option {
	return func(b *Builder) { b.kind, b.levels = kind, levels }
}

// WithWeightOverrides replaces the declared weights of constraints, keyed by constraint id. A
// zero override disables the constraint.
func WithWeightOverrides(weights map[string]score.Score) Option {
	return func(b *Builder) {
		for id, w := range weights {
			b.overrides[id] = w
		}
	}
}

// WithFactTypes registers fact types and their assigned predicates.
func WithFactTypes(fts ...*stream.FactType) Option {
	return func(b *Builder) {
		for _, ft := range fts {
			b.factTypes[ft.Type()] = ft
		}
	}
}

// WithLogger sets the logger of the builder and of the networks it builds.
func WithLogger(log logr.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// Builder compiles constraints into a network.
type Builder struct {
	kind      score.Kind
	levels    int
	overrides map[string]score.Score
	factTypes map[reflect.Type]*stream.FactType
	log       logr.Logger
}

// NewBuilder creates a network builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		kind:      score.Int,
		levels:    1,
		overrides: map[string]score.Score{},
		factTypes: map[reflect.Type]*stream.FactType{},
		log:       logr.Discard(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// compiler holds the state of one build.
type compiler struct {
	*Builder
	net    *Network
	keys   map[string]NodeID
	shared int
}

// Build compiles the constraints into a network. Nodes that compute the same thing from the
// same parents are shared, also across constraints. Any error aborts the build.
func (b *Builder) Build(constraints ...*stream.Constraint) (*Network, error) {
	log := b.log.WithName("builder")
	c := &compiler{
		Builder: b,
		net:     &Network{kind: b.kind, levels: b.levels, log: b.log},
		keys:    map[string]NodeID{},
	}

	// a throwaway inliner checks the weights the same way sessions will register them
	check, err := score.NewInliner(b.kind, b.levels, false)
	if err != nil {
		return nil, NewConfigError("", err)
	}

	ids := sets.New[string]()
	for i, sc := range constraints {
		if sc == nil {
			return nil, NewConfigError("", fmt.Errorf("constraint %d: %w", i, stream.ErrNoTerminal))
		}
		id := sc.Ref().ID()
		if err := sc.Err(); err != nil {
			return nil, NewConfigError(id, err)
		}
		if ids.Has(id) {
			return nil, NewConfigError(id, ErrDuplicateConstraint)
		}
		ids.Insert(id)

		weight := sc.Weight()
		if w, ok := b.overrides[id]; ok {
			log.V(1).Info("constraint weight overridden", "constraint", id, "declared", weight,
				"weight", w)
			weight = w
		}
		if err := checkWeight(check, sc, weight); err != nil {
			return nil, NewConfigError(id, err)
		}
		if weight.IsZero() {
			// pruned constraints are still checked, on a scratch network
			if err := c.scratch().validate(sc); err != nil {
				return nil, NewConfigError(id, err)
			}
			log.V(1).Info("zero-weight constraint pruned", "constraint", id)
			c.net.pruned = append(c.net.pruned, sc.Ref())
			continue
		}

		last, err := c.compile(sc.Stream())
		if err != nil {
			return nil, NewConfigError(id, err)
		}
		if err := c.checkWeigher(sc); err != nil {
			return nil, NewConfigError(id, err)
		}

		nc := &Constraint{Ref: sc.Ref(), Impact: sc.Impact(), Weight: weight, Weigher: sc.Weigher()}
		sn := newScoringNode(sc.Stream().Arity(), nc)
		sn.slot = len(c.net.constraints)
		nc.Node = c.add("scoring|"+id, sn, last)
		c.net.constraints = append(c.net.constraints, nc)
		log.V(2).Info("constraint compiled", "constraint", id, "stream", sc.Stream().String())
	}

	for id := range b.overrides {
		if !ids.Has(id) {
			log.Info("weight override for an unknown constraint", "constraint", id)
		}
	}

	if err := c.finish(); err != nil {
		return nil, NewConfigError("", err)
	}

	log.V(0).Info("network built", "nodes", len(c.net.nodes), "constraints", len(c.net.constraints),
		"pruned", len(c.net.pruned), "shared", c.shared, "depth", c.net.maxOrder)
	return c.net, nil
}

// scratch returns an empty compiler with the settings of c.
func (c *compiler) scratch() *compiler {
	return &compiler{
		Builder: c.Builder,
		net:     &Network{kind: c.kind, levels: c.levels, log: c.log},
		keys:    map[string]NodeID{},
	}
}

// validate compiles the stream of a constraint and checks its match weigher.
func (c *compiler) validate(sc *stream.Constraint) error {
	if _, err := c.compile(sc.Stream()); err != nil {
		return err
	}
	return c.checkWeigher(sc)
}

func checkWeight(check score.Inliner, sc *stream.Constraint, weight score.Score) error {
	if weight == nil {
		return fmt.Errorf("%w: no weight", ErrWeight)
	}
	if _, err := check.Register(sc.Ref(), weight, sc.Impact()); err != nil {
		return fmt.Errorf("%w: %w", ErrWeight, err)
	}
	if sc.Impact() == score.Mixed {
		return nil
	}
	for i := 0; i < weight.Levels(); i++ {
		if weight.Level(i).Sign() < 0 {
			return fmt.Errorf("%w: %s constraint with negative weight %s", ErrWeight, sc.Impact(),
				weight)
		}
	}
	return nil
}

var (
	decimalType = reflect.TypeFor[decimal.Decimal]()
	weigherOuts = []reflect.Type{reflect.TypeFor[int](), reflect.TypeFor[int32](),
		reflect.TypeFor[int64](), decimalType}
)

func (c *compiler) checkWeigher(sc *stream.Constraint) error {
	w := sc.Weigher()
	if w == nil {
		return nil
	}
	if err := checkFunc(w, sc.Stream().Types(), "match weigher"); err != nil {
		return err
	}
	out := w.Out()
	if out == nil || out.Kind() == reflect.Interface {
		return nil
	}
	for _, t := range weigherOuts {
		if out == t {
			if t == decimalType && c.kind != score.Decimal {
				return fmt.Errorf("%w: decimal match weigher for a %s score", ErrWeight, c.kind)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: match weigher %s returns %s", ErrWeight, w, out)
}

// compile returns the node emitting the tuples of a stream, adding the missing nodes.
func (c *compiler) compile(s *stream.Stream) (NodeID, error) {
	if s == nil {
		return 0, stream.ErrNoTerminal
	}
	if err := s.Err(); err != nil {
		return 0, err
	}

	if s.Kind() == stream.SourceStage {
		return c.source(s), nil
	}

	parent, err := c.compile(s.Parent())
	if err != nil {
		return 0, err
	}
	types := s.Parent().Types()

	switch s.Kind() {
	case stream.FilterStage:
		if err := checkPredicate(s.Predicate(), types, "filter"); err != nil {
			return 0, err
		}
		return c.add(nodeKey("filter", parent, s.Predicate()), newFilterNode(s.Arity(), s.Predicate()),
			parent), nil

	case stream.JoinStage, stream.IfExistsStage, stream.IfNotExistsStage:
		return c.join(s, parent)

	case stream.GroupByStage:
		for i, k := range s.Keys() {
			if err := checkFunc(k, types, fmt.Sprintf("group key %d", i)); err != nil {
				return 0, err
			}
		}
		ops := append(funcs(s.Keys()), collectors(s.Collectors())...)
		gb := c.add(nodeKey("group-bridge", parent, ops...),
			newGroupBridgeNode(len(types), s.Keys(), s.Collectors()), parent)
		return c.add(nodeKey("group", gb), newGroupNode(s.Arity(), s.Collectors()), gb), nil

	case stream.MapStage:
		for i, m := range s.Mappings() {
			if err := checkFunc(m, types, fmt.Sprintf("mapping %d", i)); err != nil {
				return 0, err
			}
		}
		return c.add(nodeKey("map", parent, funcs(s.Mappings())...), newMapNode(s.Mappings()),
			parent), nil

	case stream.FlattenStage:
		m := s.Mappings()[0]
		if err := checkFunc(m, types[len(types)-1:], "flatten mapping"); err != nil {
			return 0, err
		}
		if out := m.Out(); out != nil && out.Kind() != reflect.Interface &&
			out.Kind() != reflect.Slice && out.Kind() != reflect.Array {
			return 0, fmt.Errorf("%w: flatten mapping %s returns %s, expected a slice",
				ErrUnassignable, m, out)
		}
		return c.add(nodeKey("flatten", parent, m), newFlattenNode(s.Arity(), m), parent), nil

	case stream.DistinctStage:
		return c.add(nodeKey("distinct", parent), newDistinctNode(s.Arity()), parent), nil
	}

	return 0, fmt.Errorf("unknown stage %s", s.Kind())
}

// source returns the source node of a stream, behind the assigned filter of its fact type unless
// the stream includes unassigned facts.
func (c *compiler) source(s *stream.Stream) NodeID {
	typ := s.SourceType()
	src := c.add("source|"+typ.String(), newSourceNode(typ))
	if s.IncludesUnassigned() {
		return src
	}
	ft, ok := c.factTypes[typ]
	if !ok || ft.Assigned() == nil {
		return src
	}
	return c.add(nodeKey("filter", src, ft.Assigned()), newFilterNode(1, ft.Assigned()), src)
}

func (c *compiler) join(s *stream.Stream, left NodeID) (NodeID, error) {
	right, err := c.compile(s.Other())
	if err != nil {
		return 0, err
	}
	leftTypes, rightTypes := s.Parent().Types(), s.Other().Types()
	joiners := s.Joiners()

	var leftMaps, rightMaps []*stream.Func
	filtering := false
	for i, j := range joiners {
		if j.IsFiltering() {
			filtering = true
			all := append(append([]reflect.Type{}, leftTypes...), rightTypes...)
			if err := checkPredicate(j.Filter(), all, fmt.Sprintf("joiner %d", i)); err != nil {
				return 0, err
			}
			continue
		}
		if filtering {
			return 0, fmt.Errorf("%w: joiner %d (%s)", ErrFilteringBeforeIndexed, i, j)
		}
		if err := checkFunc(j.Left(), leftTypes, fmt.Sprintf("left mapping of joiner %d", i)); err != nil {
			return 0, err
		}
		if err := checkFunc(j.Right(), rightTypes, fmt.Sprintf("right mapping of joiner %d", i)); err != nil {
			return 0, err
		}
		leftMaps, rightMaps = append(leftMaps, j.Left()), append(rightMaps, j.Right())
	}

	lv, rv := joinLevels(joiners)
	for _, levels := range [][]index.Level{lv, rv} {
		if _, err := index.New[*Tuple](levels); err != nil {
			return 0, fmt.Errorf("%s: %w", s.Kind(), err)
		}
	}

	lb := c.add(nodeKey("left-bridge", left, funcs(leftMaps)...),
		newBridgeNode(LeftBridgeNode, len(leftTypes), leftMaps), left)
	rb := c.add(nodeKey("right-bridge", right, funcs(rightMaps)...),
		newBridgeNode(RightBridgeNode, len(rightTypes), rightMaps), right)

	ops := make([]any, len(joiners))
	for i, j := range joiners {
		ops[i] = j
	}
	switch s.Kind() {
	case stream.JoinStage:
		return c.add(nodeKey("join", lb, append([]any{rb}, ops...)...),
			newJoinNode(s.Arity(), joiners), lb, rb), nil
	case stream.IfExistsStage:
		return c.add(nodeKey("exists", lb, append([]any{rb}, ops...)...),
			newExistsNode(s.Arity(), true, joiners), lb, rb), nil
	default:
		return c.add(nodeKey("not-exists", lb, append([]any{rb}, ops...)...),
			newExistsNode(s.Arity(), false, joiners), lb, rb), nil
	}
}

// add places a node in the arena unless a node with the same key is already there.
func (c *compiler) add(key string, n Node, parents ...NodeID) NodeID {
	if id, ok := c.keys[key]; ok {
		c.shared++
		return id
	}
	b := n.base()
	b.id = NodeID(len(c.net.nodes))
	b.parents = parents
	for _, p := range parents {
		pb := c.net.nodes[p].base()
		pb.children = append(pb.children, b.id)
	}
	c.net.nodes = append(c.net.nodes, n)
	c.keys[key] = b.id
	if src, ok := n.(*sourceNode); ok {
		c.net.sources = append(c.net.sources, src)
	}
	c.log.V(4).Info("node added", "node", n.String(), "parents", parents)
	return b.id
}

// finish assigns the node orders and validates the topology.
func (c *compiler) finish() error {
	g := dag.New()
	for _, n := range c.net.nodes {
		g.AddNode(strconv.Itoa(int(n.ID())))
	}
	for _, n := range c.net.nodes {
		for _, ch := range n.Children() {
			g.AddEdge(strconv.Itoa(int(n.ID())), strconv.Itoa(int(ch)))
		}
	}
	depths, err := g.Depths()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}
	for _, n := range c.net.nodes {
		n.base().order = depths[strconv.Itoa(int(n.ID()))]
		c.net.maxOrder = max(c.net.maxOrder, n.Order())
	}

	var errs []error
	for _, n := range c.net.nodes {
		switch {
		case n.Kind() == ScoringNode && len(n.Children()) > 0:
			errs = append(errs, fmt.Errorf("%w: scoring node %s has children", ErrInvalidGraph, n))
		case n.Kind() != ScoringNode && len(n.Children()) == 0:
			errs = append(errs, fmt.Errorf("%w: node %s leads nowhere", ErrInvalidGraph, n))
		}
		for _, p := range n.Parents() {
			if c.net.nodes[p].Order() >= n.Order() {
				errs = append(errs, fmt.Errorf("%w: node %s is not below its parent %s", ErrInvalidGraph,
					n, c.net.nodes[p]))
			}
		}
	}
	return errors.Join(errs...)
}

// nodeKey identifies a node by kind, parents and operation identities.
func nodeKey(kind string, parent NodeID, ops ...any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%d", kind, parent)
	for _, op := range ops {
		if id, ok := op.(NodeID); ok {
			fmt.Fprintf(&sb, "|#%d", id)
			continue
		}
		fmt.Fprintf(&sb, "|%p", op)
	}
	return sb.String()
}

func funcs(fs []*stream.Func) []any {
	ret := make([]any, len(fs))
	for i, f := range fs {
		ret[i] = f
	}
	return ret
}

func collectors(cs []*stream.Collector) []any {
	ret := make([]any, len(cs))
	for i, c := range cs {
		ret[i] = c
	}
	return ret
}

// checkFunc refuses a function that can never accept the facts of a stream. Untyped functions
// are not checked.
func checkFunc(f *stream.Func, types []reflect.Type, what string) error {
	in := f.In()
	if in == nil {
		return nil
	}
	if len(in) != len(types) {
		return fmt.Errorf("%w: %s %s takes %d facts, the stream carries %d", ErrUnassignable, what,
			f, len(in), len(types))
	}
	for i, t := range types {
		if t == nil || in[i] == nil || assignable(t, in[i]) {
			continue
		}
		return fmt.Errorf("%w: %s %s expects %s at position %d, the stream carries %s",
			ErrUnassignable, what, f, in[i], i, t)
	}
	return nil
}

func checkPredicate(f *stream.Func, types []reflect.Type, what string) error {
	if err := checkFunc(f, types, what); err != nil {
		return err
	}
	if out := f.Out(); out != nil && out.Kind() != reflect.Bool && out.Kind() != reflect.Interface {
		return fmt.Errorf("%w: %s %s returns %s, expected bool", ErrUnassignable, what, f, out)
	}
	return nil
}

// assignable is true if a value of static type from may hold a value accepted as to.
func assignable(from, to reflect.Type) bool {
	if from.AssignableTo(to) {
		return true
	}
	if from.Kind() != reflect.Interface {
		return false
	}
	return to.Kind() == reflect.Interface || to.Implements(from)
}
