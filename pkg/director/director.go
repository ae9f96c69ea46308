// Package director is the fact-change boundary between a search and a scoring session. The search
// brackets every change with a Before and an After call and asks for the score afterwards; the
// director drives the session accordingly and optionally checks the incremental score against a
// full recalculation.
package director

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dscore/pkg/metrics"
	"github.com/l7mp/dscore/pkg/network"
	"github.com/l7mp/dscore/pkg/score"
)

var (
	// ErrUnbalanced is returned for an After call without a matching Before call, and for a
	// score calculation while a change is still open.
	ErrUnbalanced = errors.New("unbalanced fact change")
	// ErrScoreCorruption is returned when the incremental score differs from a full
	// recalculation.
	ErrScoreCorruption = errors.New("score corruption")
)

// AssertMode selects the checks run on every score calculation.
type AssertMode int

const (
	// AssertNone trusts the incremental score.
	AssertNone AssertMode = iota
	// AssertIncremental compares every calculated score with a from-scratch calculation.
	AssertIncremental
)

// String implements fmt.Stringer.
func (m AssertMode) String() string {
	if m == AssertIncremental {
		return "incremental"
	}
	return "none"
}

// ParseAssertMode parses "none" or "incremental".
func ParseAssertMode(s string) (AssertMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return AssertNone, nil
	case "incremental":
		return AssertIncremental, nil
	default:
		return AssertNone, fmt.Errorf("unknown assert mode %q", s)
	}
}

// Options configure a director.
type Options struct {
	// MatchTracking keeps the matches needed by Explain.
	MatchTracking bool
	AssertMode    AssertMode
	Metrics       *metrics.Metrics
	Logger        logr.Logger
}

type change int

const (
	added change = iota
	removed
	propertyChanged
	variableChanged
)

var changeNames = []string{"fact added", "fact removed", "property changed", "variable changed"}

func (c change) String() string { return changeNames[c] }

// Director drives one session.
type Director struct {
	net     *network.Network
	session *network.Session
	opts    Options
	// facts with an open Before call, per change kind
	pending map[change]sets.Set[any]
	log     logr.Logger
}

// New creates a director with an empty session.
func New(net *network.Network, opts Options) (*Director, error) {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	d := &Director{
		net:     net,
		opts:    opts,
		pending: map[change]sets.Set[any]{},
		log:     opts.Logger.WithName("director"),
	}
	for c := range changeNames {
		d.pending[change(c)] = sets.New[any]()
	}
	s, err := d.newSession()
	if err != nil {
		return nil, err
	}
	d.session = s
	d.log.V(1).Info("director created", "assert-mode", opts.AssertMode.String(),
		"match-tracking", opts.MatchTracking)
	return d, nil
}

func (d *Director) newSession(facts ...any) (*network.Session, error) {
	s, err := d.net.NewSession(
		network.WithSessionLogger(d.opts.Logger),
		network.WithMatchTracking(d.opts.MatchTracking),
		network.WithMetrics(d.opts.Metrics))
	if err != nil {
		return nil, err
	}
	if err := s.InsertAll(facts...); err != nil {
		return nil, err
	}
	return s, nil
}

// Session returns the driven session.
func (d *Director) Session() *network.Session { return d.session }

// Reset replaces the session with a fresh one over the given facts.
func (d *Director) Reset(facts ...any) error {
	s, err := d.newSession(facts...)
	if err != nil {
		return err
	}
	d.session = s
	for c := range d.pending {
		d.pending[c] = sets.New[any]()
	}
	return nil
}

func (d *Director) before(c change, fact any) {
	d.pending[c].Insert(fact)
}

func (d *Director) after(c change, fact any) error {
	if !d.pending[c].Has(fact) {
		return fmt.Errorf("%w: %s without a before call", ErrUnbalanced, c)
	}
	d.pending[c].Delete(fact)
	return nil
}

// BeforeFactAdded announces a new fact.
func (d *Director) BeforeFactAdded(fact any) { d.before(added, fact) }

// AfterFactAdded inserts the fact into the session.
func (d *Director) AfterFactAdded(fact any) error {
	if err := d.after(added, fact); err != nil {
		return err
	}
	return d.session.Insert(fact)
}

// BeforeFactRemoved announces the removal of a fact.
func (d *Director) BeforeFactRemoved(fact any) { d.before(removed, fact) }

// AfterFactRemoved retracts the fact from the session. The derived state of the fact is found
// through its tuples, so the fact may have been modified in between.
func (d *Director) AfterFactRemoved(fact any) error {
	if err := d.after(removed, fact); err != nil {
		return err
	}
	return d.session.Retract(fact)
}

// BeforePropertyChanged announces a change of a problem property of a fact.
func (d *Director) BeforePropertyChanged(fact any) { d.before(propertyChanged, fact) }

// AfterPropertyChanged updates the fact in the session.
func (d *Director) AfterPropertyChanged(fact any) error {
	if err := d.after(propertyChanged, fact); err != nil {
		return err
	}
	return d.session.Update(fact)
}

// BeforeVariableChanged announces a change of a planning variable of a fact.
func (d *Director) BeforeVariableChanged(fact any) { d.before(variableChanged, fact) }

// AfterVariableChanged updates the fact in the session.
func (d *Director) AfterVariableChanged(fact any) error {
	if err := d.after(variableChanged, fact); err != nil {
		return err
	}
	return d.session.Update(fact)
}

func (d *Director) open() int {
	n := 0
	for _, p := range d.pending {
		n += p.Len()
	}
	return n
}

// CalculateScore returns the score of the current facts. With incremental assertion the score is
// also recalculated from scratch.
func (d *Director) CalculateScore() (score.Score, error) {
	if n := d.open(); n > 0 {
		return nil, fmt.Errorf("%w: %d changes are still open", ErrUnbalanced, n)
	}
	if err := d.session.Err(); err != nil {
		return nil, err
	}
	if d.opts.AssertMode == AssertIncremental {
		if err := d.AssertFromScratch(); err != nil {
			return nil, err
		}
	}
	sc := d.session.Score()
	d.log.V(2).Info("score calculated", "score", sc.String())
	return sc, nil
}

// AssertFromScratch compares the incremental score and match totals with a fresh session over the
// same facts.
func (d *Director) AssertFromScratch() error {
	fresh, err := d.newSession(d.session.Facts()...)
	if err != nil {
		return fmt.Errorf("from-scratch session: %w", err)
	}

	var diffs []string
	if !d.session.Score().Equal(fresh.Score()) {
		diffs = append(diffs, fmt.Sprintf("score %s, expected %s", d.session.Score(), fresh.Score()))
	}
	expected := map[string]score.MatchTotal{}
	for _, mt := range fresh.MatchTotals() {
		expected[mt.Constraint.ID()] = mt
	}
	for _, mt := range d.session.MatchTotals() {
		e := expected[mt.Constraint.ID()]
		if mt.Count != e.Count || !mt.Score.Equal(e.Score) {
			diffs = append(diffs, fmt.Sprintf("%s: %d matches with score %s, expected %d with %s",
				mt.Constraint, mt.Count, mt.Score, e.Count, e.Score))
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	err = fmt.Errorf("%w: %s", ErrScoreCorruption, strings.Join(diffs, "; "))
	d.log.Error(err, "incremental score differs from a full recalculation")
	return err
}
