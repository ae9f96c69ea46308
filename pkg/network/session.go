package network

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/dscore/pkg/index"
	"github.com/l7mp/dscore/pkg/metrics"
	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/util"
)

// SessionOption configures a session.
type SessionOption func(*Session)

// WithSessionLogger overrides the logger inherited from the network.
func WithSessionLogger(log logr.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithMatchTracking keeps the individual matches of every constraint, enabling Matches and
// Indictments.
func WithMatchTracking(track bool) SessionOption {
	return func(s *Session) { s.track = track }
}

// WithMetrics reports fact changes and queue drains to the given collectors.
func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// Session evaluates the constraints of a network over a changing set of facts. Every fact change
// settles the network before returning, so the score is always up to date.
type Session struct {
	net       *Network
	mem       []any
	layers    [][]*Tuple
	inliner   score.Inliner
	impacters []score.Impacter

	facts       map[any]int
	factList    []any
	sourceCache map[reflect.Type][]*sourceNode

	track     bool
	refreshes int
	metrics   *metrics.Metrics
	log       logr.Logger
	err       error
}

// NewSession creates a session with empty node memories and a zero score.
func (n *Network) NewSession(opts ...SessionOption) (*Session, error) {
	s := &Session{
		net:         n,
		mem:         make([]any, len(n.nodes)),
		layers:      make([][]*Tuple, n.maxOrder+1),
		facts:       map[any]int{},
		sourceCache: map[reflect.Type][]*sourceNode{},
		log:         n.log,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithName("session")

	inliner, err := score.NewInliner(n.kind, n.levels, s.track)
	if err != nil {
		return nil, err
	}
	s.inliner = inliner
	s.impacters = make([]score.Impacter, len(n.constraints))
	for i, c := range n.constraints {
		imp, err := inliner.Register(c.Ref, c.Weight, c.Impact)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", c.Ref, err)
		}
		s.impacters[i] = imp
	}
	for i, node := range n.nodes {
		s.mem[i] = node.newMemory()
	}

	s.log.V(1).Info("session created", "nodes", len(n.nodes), "constraints", len(n.constraints),
		"match-tracking", s.track)
	return s, nil
}

// Network returns the network the session evaluates.
func (s *Session) Network() *Network { return s.net }

// Err returns the error that broke the session, if any.
func (s *Session) Err() error { return s.err }

// Insert adds a fact. Facts must be comparable and are identified by ==.
func (s *Session) Insert(fact any) error {
	if err := s.add(fact); err != nil {
		return err
	}
	s.metrics.FactChanged(metrics.OpInsert, 1)
	return s.settle("insert", fact)
}

// InsertAll adds a batch of facts and settles the network once.
func (s *Session) InsertAll(facts ...any) error {
	if s.err != nil {
		return ErrBroken
	}
	for i, f := range facts {
		if err := s.add(f); err != nil {
			// the facts added so far stay in
			if serr := s.settle("insert", i); serr != nil {
				return serr
			}
			return err
		}
	}
	s.metrics.FactChanged(metrics.OpInsert, len(facts))
	return s.settle("insert", len(facts))
}

func (s *Session) add(fact any) error {
	if s.err != nil {
		return ErrBroken
	}
	if fact == nil {
		return fmt.Errorf("%w: nil", ErrUnknownFact)
	}
	if err := index.CheckComparable(fact); err != nil {
		return fmt.Errorf("fact %T: %w", fact, err)
	}
	if _, ok := s.facts[fact]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFact, util.Stringify(fact))
	}
	s.facts[fact] = len(s.factList)
	s.factList = append(s.factList, fact)
	for _, src := range s.sourcesOf(fact) {
		src.insertFact(s, fact)
	}
	return nil
}

// Update signals that a property or a planning variable of a fact has changed.
func (s *Session) Update(fact any) error {
	if err := s.known(fact); err != nil {
		return err
	}
	for _, src := range s.sourcesOf(fact) {
		src.updateFact(s, fact)
	}
	s.metrics.FactChanged(metrics.OpUpdate, 1)
	return s.settle("update", fact)
}

// Retract removes a fact.
func (s *Session) Retract(fact any) error {
	if err := s.known(fact); err != nil {
		return err
	}
	i := s.facts[fact]
	last := len(s.factList) - 1
	s.factList[i] = s.factList[last]
	s.facts[s.factList[i]] = i
	s.factList = s.factList[:last]
	delete(s.facts, fact)
	for _, src := range s.sourcesOf(fact) {
		src.retractFact(s, fact)
	}
	s.metrics.FactChanged(metrics.OpRetract, 1)
	return s.settle("retract", fact)
}

func (s *Session) known(fact any) error {
	if s.err != nil {
		return ErrBroken
	}
	if fact == nil || index.CheckComparable(fact) != nil {
		return fmt.Errorf("%w: %T", ErrUnknownFact, fact)
	}
	if _, ok := s.facts[fact]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFact, util.Stringify(fact))
	}
	return nil
}

// sourcesOf returns the source nodes accepting the type of a fact. Facts no source accepts are
// tracked but do not reach any node.
func (s *Session) sourcesOf(fact any) []*sourceNode {
	t := reflect.TypeOf(fact)
	srcs, ok := s.sourceCache[t]
	if !ok {
		for _, src := range s.net.sources {
			if src.accepts(t) {
				srcs = append(srcs, src)
			}
		}
		s.sourceCache[t] = srcs
	}
	return srcs
}

// Facts returns the facts of the session.
func (s *Session) Facts() []any { return append([]any(nil), s.factList...) }

// Score returns the current score.
func (s *Session) Score() score.Score { return s.inliner.Score() }

// ConstraintTotal returns the score of one constraint, zero for pruned and unknown ones.
func (s *Session) ConstraintTotal(ref score.ConstraintRef) score.Score {
	if sc, ok := s.inliner.ConstraintScore(ref); ok {
		return sc
	}
	return score.Zero(s.net.kind, s.net.levels)
}

// MatchTotals returns the match count and score of every constraint.
func (s *Session) MatchTotals() []score.MatchTotal { return s.inliner.MatchTotals() }

// Matches returns the individual matches. Empty unless match tracking is on.
func (s *Session) Matches() []score.Match { return s.inliner.Matches() }

// Indictments returns the matches grouped by the facts they involve. Empty unless match tracking
// is on.
func (s *Session) Indictments() []score.Indictment { return s.inliner.Indictments() }

func (s *Session) memory(id NodeID) any { return s.mem[id] }

// enqueue schedules a tuple for refresh, at most once per drain.
func (s *Session) enqueue(t *Tuple) {
	if t.queued {
		return
	}
	t.queued = true
	o := s.net.nodes[t.node].Order()
	s.layers[o] = append(s.layers[o], t)
}

// touch schedules an update of an active tuple. Tuples already scheduled are left alone: the
// pending refresh picks up the new facts.
func (s *Session) touch(t *Tuple) {
	if t.state == Active {
		t.state = Updating
		s.enqueue(t)
	}
}

// kill schedules the death of a tuple and detaches it from its parents.
func (s *Session) kill(t *Tuple) {
	switch t.state {
	case Creating:
		t.state = Aborting
	case Active:
		t.state = Dying
		s.enqueue(t)
	case Updating:
		t.state = Dying
	default:
		return
	}
	t.unlink()
}

// settle drains the queue, layer by layer in node order. A failure leaves the session broken.
func (s *Session) settle(op string, subject any) error {
	start := time.Now()
	s.refreshes = 0
	if err := s.drain(); err != nil {
		s.err = err
		s.log.Error(err, "fact change failed, session is broken", "op", op)
		return err
	}
	s.metrics.Drained(s.refreshes, time.Since(start))
	if s.log.V(1).Enabled() {
		s.log.V(1).Info("settled", "op", op, "fact", util.Stringify(subject), "refreshes", s.refreshes,
			"score", s.Score().String())
	}
	if s.metrics != nil {
		for _, mt := range s.MatchTotals() {
			s.metrics.SetMatches(mt.Constraint.ID(), mt.Count)
		}
	}
	return nil
}

func (s *Session) drain() error {
	trace := s.log.V(2).Enabled()
	for o := range s.layers {
		for i := 0; i < len(s.layers[o]); i++ {
			t := s.layers[o][i]
			t.queued = false
			n := s.net.nodes[t.node]
			if trace {
				s.log.V(2).Info("refresh", "node", n.String(), "tuple", t.String())
			}
			if err := n.refresh(s, t); err != nil {
				var se *score.SignError
				if !errors.As(err, &se) {
					err = fmt.Errorf("refresh %s: %w", t, err)
				}
				return err
			}
			s.refreshes++
		}
		s.layers[o] = s.layers[o][:0]
	}
	return nil
}
