package score

import (
	"fmt"
	"strings"
)

// ConstraintRef identifies a constraint.
type ConstraintRef struct {
	Package string
	Name    string
}

// ID returns the "package/name" identifier.
func (r ConstraintRef) ID() string {
	if r.Package == "" {
		return r.Name
	}
	return r.Package + "/" + r.Name
}

// String implements fmt.Stringer.
func (r ConstraintRef) String() string { return r.ID() }

// ImpactType is the direction of a constraint.
type ImpactType int

const (
	// Penalty subtracts weight×matchWeight; negative match weights are refused.
	Penalty ImpactType = iota
	// Reward adds weight×matchWeight; negative match weights are refused.
	Reward
	// Mixed adds weight×matchWeight with any sign.
	Mixed
)

// String implements fmt.Stringer.
func (t ImpactType) String() string {
	switch t {
	case Penalty:
		return "penalize"
	case Reward:
		return "reward"
	case Mixed:
		return "impact"
	default:
		return fmt.Sprintf("impact(%d)", int(t))
	}
}

// Match is one constraint match with the facts that justify it and its score impact.
type Match struct {
	Constraint    ConstraintRef
	Justification []any
	Score         Score
}

// String implements fmt.Stringer.
func (m Match) String() string {
	facts := make([]string, len(m.Justification))
	for i, f := range m.Justification {
		facts[i] = fmt.Sprint(f)
	}
	return fmt.Sprintf("%s[%s]=%s", m.Constraint, strings.Join(facts, ", "), m.Score)
}

// MatchTotal summarizes the matches of one constraint.
type MatchTotal struct {
	Constraint ConstraintRef
	Weight     Score
	Count      int
	Score      Score
}

// Indictment summarizes the matches a single fact participates in.
type Indictment struct {
	Fact    any
	Count   int
	Score   Score
	Matches []Match
}
