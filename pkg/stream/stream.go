// Package stream is the declarative surface used to describe constraints. A constraint is a
// pipeline of stages over a stream of tuples, starting from the facts of one type and ending in
// a penalize, reward or impact stage. Streams are immutable descriptions: they do not evaluate
// anything, the network builder compiles them into a node network.
//
// Argument errors (nil operations, unsupported arities) are recorded on the stream when the
// stage is constructed and reported by Err; the network builder refuses streams with a
// recorded error.
package stream

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/l7mp/dscore/pkg/score"
)

// MaxArity is the largest number of facts a tuple can carry.
const MaxArity = 4

// StageKind identifies a pipeline stage.
type StageKind int

const (
	SourceStage StageKind = iota
	FilterStage
	JoinStage
	IfExistsStage
	IfNotExistsStage
	GroupByStage
	MapStage
	FlattenStage
	DistinctStage
)

var stageNames = []string{"forEach", "filter", "join", "ifExists", "ifNotExists", "groupBy", "map",
	"flatten", "distinct"}

// String implements fmt.Stringer.
func (k StageKind) String() string {
	if int(k) < len(stageNames) {
		return stageNames[k]
	}
	return fmt.Sprintf("stage(%d)", int(k))
}

// Stream is one stage of a constraint pipeline.
type Stream struct {
	kind   StageKind
	parent *Stream
	types  []reflect.Type
	err    error

	source     reflect.Type
	unassigned bool
	pred       *Func
	other      *Stream
	joiners    []*Joiner
	keys       []*Func
	collectors []*Collector
	mappings   []*Func
}

// ForEach streams every fact of type T. Facts the fact type of T declares unassigned are
// excluded.
func ForEach[T any]() *Stream {
	return &Stream{kind: SourceStage, source: reflect.TypeFor[T](), types: []reflect.Type{reflect.TypeFor[T]()}}
}

// ForEachIncludingUnassigned streams every fact of type T, unassigned ones included.
func ForEachIncludingUnassigned[T any]() *Stream {
	s := ForEach[T]()
	s.unassigned = true
	return s
}

var (
	pairLock    sync.Mutex
	pairJoiners = map[*Func]*Joiner{}
)

// ForEachUniquePair streams every pair (a, b) of facts of type T with id(a) < id(b) that
// matches the joiners, i.e., each unordered pair exactly once and never a fact with itself.
func ForEachUniquePair[T any](id *Func, joiners ...*Joiner) *Stream {
	if id == nil {
		s := ForEach[T]()
		s.err = NewStageError(JoinStage, ErrNilOperation, "unique pair needs an id mapping")
		return s
	}
	// one joiner per id so that unique pairs over the same id share their nodes
	pairLock.Lock()
	j, ok := pairJoiners[id]
	if !ok {
		j = LessThan(id, id)
		pairJoiners[id] = j
	}
	pairLock.Unlock()
	return ForEach[T]().Join(ForEach[T](), append([]*Joiner{j}, joiners...)...)
}

func (s *Stream) next(kind StageKind, types []reflect.Type) *Stream {
	return &Stream{kind: kind, parent: s, types: types, err: s.err}
}

func (s *Stream) fail(kind StageKind, err error, format string, args ...any) *Stream {
	ret := s.next(kind, s.types)
	if ret.err == nil {
		ret.err = NewStageError(kind, err, format, args...)
	}
	return ret
}

// Filter keeps the tuples matching the predicate.
func (s *Stream) Filter(pred *Func) *Stream {
	if pred == nil {
		return s.fail(FilterStage, ErrNilOperation, "predicate")
	}
	ret := s.next(FilterStage, s.types)
	ret.pred = pred
	return ret
}

// Join extends every tuple with each fact of other that matches the joiners. Indexed joiners
// must precede filtering joiners.
func (s *Stream) Join(other *Stream, joiners ...*Joiner) *Stream {
	if bad := s.checkJoin(JoinStage, other, joiners); bad != nil {
		return bad
	}
	if len(s.types)+1 > MaxArity {
		return s.fail(JoinStage, ErrArity, "joining a stream of %d facts", len(s.types))
	}
	ret := s.next(JoinStage, append(append([]reflect.Type{}, s.types...), other.types...))
	ret.other, ret.joiners = other, joiners
	if other.err != nil && ret.err == nil {
		ret.err = other.err
	}
	return ret
}

// IfExists keeps the tuples for which at least one fact of other matches the joiners. Facts of
// other that are unassigned do not count unless other includes them.
func (s *Stream) IfExists(other *Stream, joiners ...*Joiner) *Stream {
	return s.exists(IfExistsStage, other, false, joiners)
}

// IfNotExists keeps the tuples for which no fact of other matches the joiners.
func (s *Stream) IfNotExists(other *Stream, joiners ...*Joiner) *Stream {
	return s.exists(IfNotExistsStage, other, false, joiners)
}

// IfExistsIncludingUnassigned is IfExists where unassigned facts of other also count.
func (s *Stream) IfExistsIncludingUnassigned(other *Stream, joiners ...*Joiner) *Stream {
	return s.exists(IfExistsStage, other, true, joiners)
}

// IfNotExistsIncludingUnassigned is IfNotExists where unassigned facts of other also count.
func (s *Stream) IfNotExistsIncludingUnassigned(other *Stream, joiners ...*Joiner) *Stream {
	return s.exists(IfNotExistsStage, other, true, joiners)
}

func (s *Stream) exists(kind StageKind, other *Stream, unassigned bool, joiners []*Joiner) *Stream {
	if bad := s.checkJoin(kind, other, joiners); bad != nil {
		return bad
	}
	if unassigned {
		other = other.includingUnassigned()
	}
	ret := s.next(kind, s.types)
	ret.other, ret.joiners = other, joiners
	if other.err != nil && ret.err == nil {
		ret.err = other.err
	}
	return ret
}

func (s *Stream) checkJoin(kind StageKind, other *Stream, joiners []*Joiner) *Stream {
	if other == nil {
		return s.fail(kind, ErrNilOperation, "stream")
	}
	if other.Arity() != 1 {
		return s.fail(kind, ErrArity, "the joined stream must carry one fact, got %d", other.Arity())
	}
	for i, j := range joiners {
		if j == nil {
			return s.fail(kind, ErrNilOperation, "joiner %d", i)
		}
	}
	return nil
}

// includingUnassigned returns a copy of the pipeline whose source includes unassigned facts.
func (s *Stream) includingUnassigned() *Stream {
	ret := *s
	if s.parent == nil {
		ret.unassigned = true
	} else {
		ret.parent = s.parent.includingUnassigned()
	}
	return &ret
}

// GroupBy groups the tuples by the composite of the key mappings and aggregates each group with
// the collectors. The resulting tuples carry the keys followed by the collector results. No keys
// means a single group over the whole stream.
func (s *Stream) GroupBy(keys []*Func, collectors ...*Collector) *Stream {
	switch {
	case len(keys) > MaxArity || len(collectors) > MaxArity || len(keys)+len(collectors) > MaxArity:
		return s.fail(GroupByStage, ErrArity, "%d keys and %d collectors", len(keys), len(collectors))
	case len(keys)+len(collectors) == 0:
		return s.fail(GroupByStage, ErrArity, "no keys and no collectors")
	}
	types := make([]reflect.Type, 0, len(keys)+len(collectors))
	for i, k := range keys {
		if k == nil {
			return s.fail(GroupByStage, ErrNilOperation, "key %d", i)
		}
		types = append(types, k.Out())
	}
	for i, c := range collectors {
		if c == nil {
			return s.fail(GroupByStage, ErrNilOperation, "collector %d", i)
		}
		types = append(types, c.Out())
	}
	ret := s.next(GroupByStage, types)
	ret.keys, ret.collectors = keys, collectors
	return ret
}

// Map replaces every tuple with the results of the mappings.
func (s *Stream) Map(mappings ...*Func) *Stream {
	if len(mappings) == 0 || len(mappings) > MaxArity {
		return s.fail(MapStage, ErrArity, "%d mappings", len(mappings))
	}
	types := make([]reflect.Type, len(mappings))
	for i, m := range mappings {
		if m == nil {
			return s.fail(MapStage, ErrNilOperation, "mapping %d", i)
		}
		types[i] = m.Out()
	}
	ret := s.next(MapStage, types)
	ret.mappings = mappings
	return ret
}

// Flatten applies the mapping to the last fact of every tuple and emits one tuple per element of
// the returned slice, with the element in place of the last fact.
func (s *Stream) Flatten(mapping *Func) *Stream {
	if mapping == nil {
		return s.fail(FlattenStage, ErrNilOperation, "mapping")
	}
	types := append([]reflect.Type{}, s.types...)
	var elem reflect.Type
	if out := mapping.Out(); out != nil && (out.Kind() == reflect.Slice || out.Kind() == reflect.Array) {
		elem = out.Elem()
	}
	types[len(types)-1] = elem
	ret := s.next(FlattenStage, types)
	ret.mappings = []*Func{mapping}
	return ret
}

// Distinct folds equal tuples into one.
func (s *Stream) Distinct() *Stream { return s.next(DistinctStage, s.types) }

// Penalize terminates the stream: every match subtracts weight × match weight.
func (s *Stream) Penalize(weight score.Score) *Terminal {
	return newTerminal(s, score.Penalty, weight)
}

// Reward terminates the stream: every match adds weight × match weight.
func (s *Stream) Reward(weight score.Score) *Terminal {
	return newTerminal(s, score.Reward, weight)
}

// Impact terminates the stream: every match adds weight × match weight, of any sign.
func (s *Stream) Impact(weight score.Score) *Terminal {
	return newTerminal(s, score.Mixed, weight)
}

// Kind returns the stage kind.
func (s *Stream) Kind() StageKind { return s.kind }

// Parent returns the upstream stage, nil for a source.
func (s *Stream) Parent() *Stream { return s.parent }

// Arity returns the number of facts the tuples of the stage carry.
func (s *Stream) Arity() int { return len(s.types) }

// Types returns the declared fact types. A nil entry is unknown.
func (s *Stream) Types() []reflect.Type { return s.types }

// Err returns the first argument error recorded along the pipeline.
func (s *Stream) Err() error { return s.err }

// SourceType returns the fact type of a source stage.
func (s *Stream) SourceType() reflect.Type { return s.source }

// IncludesUnassigned tells whether a source stage keeps unassigned facts.
func (s *Stream) IncludesUnassigned() bool { return s.unassigned }

// Predicate returns the predicate of a filter stage.
func (s *Stream) Predicate() *Func { return s.pred }

// Other returns the joined stream of a join or exists stage.
func (s *Stream) Other() *Stream { return s.other }

// Joiners returns the joiners of a join or exists stage.
func (s *Stream) Joiners() []*Joiner { return s.joiners }

// Keys returns the group keys of a groupBy stage.
func (s *Stream) Keys() []*Func { return s.keys }

// Collectors returns the collectors of a groupBy stage.
func (s *Stream) Collectors() []*Collector { return s.collectors }

// Mappings returns the mappings of a map or flatten stage.
func (s *Stream) Mappings() []*Func { return s.mappings }

// String renders the pipeline.
func (s *Stream) String() string {
	stages := []string{}
	for cur := s; cur != nil; cur = cur.parent {
		if cur.kind == SourceStage {
			stages = append(stages, fmt.Sprintf("%s(%s)", cur.kind, cur.source))
			continue
		}
		stages = append(stages, cur.kind.String())
	}
	for i, j := 0, len(stages)-1; i < j; i, j = i+1, j-1 {
		stages[i], stages[j] = stages[j], stages[i]
	}
	return strings.Join(stages, ".")
}
