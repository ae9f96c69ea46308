package director

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/util"
)

// Explanation breaks the score down by constraint and by fact.
type Explanation struct {
	Score       score.Score
	Totals      []score.MatchTotal
	Matches     []score.Match
	Indictments []score.Indictment
}

// Explain returns the score breakdown. Matches and indictments are only available with match
// tracking.
func (d *Director) Explain() (*Explanation, error) {
	sc, err := d.CalculateScore()
	if err != nil {
		return nil, err
	}
	return &Explanation{
		Score:       sc,
		Totals:      d.session.MatchTotals(),
		Matches:     d.session.Matches(),
		Indictments: d.session.Indictments(),
	}, nil
}

// String renders the explanation, worst constraints first.
func (e *Explanation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "score: %s\n", e.Score)

	totals := append([]score.MatchTotal(nil), e.Totals...)
	sort.SliceStable(totals, func(i, j int) bool { return totals[i].Score.Compare(totals[j].Score) < 0 })
	for _, mt := range totals {
		if mt.Count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  %s: %s (%d matches)\n", mt.Constraint, mt.Score, mt.Count)
		for _, m := range e.Matches {
			if m.Constraint == mt.Constraint {
				fmt.Fprintf(&sb, "    %s %s\n", m.Score, util.StringifyAll(m.Justification))
			}
		}
	}

	if len(e.Indictments) > 0 {
		sb.WriteString("indictments:\n")
		ind := append([]score.Indictment(nil), e.Indictments...)
		sort.SliceStable(ind, func(i, j int) bool { return ind[i].Score.Compare(ind[j].Score) < 0 })
		for _, i := range ind {
			fmt.Fprintf(&sb, "  %s: %s (%d matches)\n", util.Stringify(i.Fact), i.Score, i.Count)
		}
	}
	return sb.String()
}
