// Package score implements the numeric side of constraint scoring: score kinds, immutable
// multi-level scores, and the weighted score impacters that turn a match weight into a signed,
// undoable contribution to the running total of a constraint.
//
// Three representations are supported: Int (32-bit integer), Long (64-bit integer) and
// Decimal (arbitrary-precision decimal). A score has one or more levels, hardest first, e.g.,
// "-2hard/-40soft". Single-level scores render as a plain number.
package score

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the numeric representation of a score.
type Kind int

const (
	Int Kind = iota
	Long
	Decimal
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Long:
		return "long"
	case Decimal:
		return "decimal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the textual name of a score kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "":
		return Int, nil
	case "long", "int64":
		return Long, nil
	case "decimal", "bigdecimal":
		return Decimal, nil
	default:
		return Int, fmt.Errorf("unknown score kind %q", s)
	}
}

// Score is an immutable multi-level score.
type Score interface {
	// Kind returns the numeric representation.
	Kind() Kind
	// Levels returns the number of levels.
	Levels() int
	// Level returns level i as a decimal, independent of the representation.
	Level(i int) decimal.Decimal
	// IsZero is true if all levels are zero.
	IsZero() bool
	// Equal compares kind and every level.
	Equal(Score) bool
	// Compare orders scores level by level, hardest first. Scores of different shape compare
	// by their decimal levels.
	Compare(Score) int
	fmt.Stringer
}

// IntScore is a score with 32-bit integer levels.
type IntScore struct{ levels []int32 }

// LongScore is a score with 64-bit integer levels.
type LongScore struct{ levels []int64 }

// DecimalScore is a score with arbitrary-precision decimal levels.
type DecimalScore struct{ levels []decimal.Decimal }

// Ints creates an IntScore from the given levels.
func Ints(levels ...int32) IntScore { return IntScore{levels: append([]int32(nil), levels...)} }

// Longs creates a LongScore from the given levels.
func Longs(levels ...int64) LongScore { return LongScore{levels: append([]int64(nil), levels...)} }

// Decimals creates a DecimalScore from the given levels.
func Decimals(levels ...decimal.Decimal) DecimalScore {
	return DecimalScore{levels: append([]decimal.Decimal(nil), levels...)}
}

// Zero returns the zero score of the given kind and shape.
func Zero(kind Kind, levels int) Score {
	switch kind {
	case Long:
		return LongScore{levels: make([]int64, levels)}
	case Decimal:
		ls := make([]decimal.Decimal, levels)
		for i := range ls {
			ls[i] = decimal.Zero
		}
		return DecimalScore{levels: ls}
	default:
		return IntScore{levels: make([]int32, levels)}
	}
}

func (s IntScore) Kind() Kind                  { return Int }
func (s IntScore) Levels() int                 { return len(s.levels) }
func (s IntScore) Level(i int) decimal.Decimal { return decimal.NewFromInt32(s.levels[i]) }
func (s IntScore) IsZero() bool                { return isZero(s) }
func (s IntScore) Equal(o Score) bool          { return equal(s, o) }
func (s IntScore) Compare(o Score) int         { return compare(s, o) }
func (s IntScore) String() string              { return format(s) }

// Get returns level i.
func (s IntScore) Get(i int) int32 { return s.levels[i] }

func (s LongScore) Kind() Kind                  { return Long }
func (s LongScore) Levels() int                 { return len(s.levels) }
func (s LongScore) Level(i int) decimal.Decimal { return decimal.NewFromInt(s.levels[i]) }
func (s LongScore) IsZero() bool                { return isZero(s) }
func (s LongScore) Equal(o Score) bool          { return equal(s, o) }
func (s LongScore) Compare(o Score) int         { return compare(s, o) }
func (s LongScore) String() string              { return format(s) }

// Get returns level i.
func (s LongScore) Get(i int) int64 { return s.levels[i] }

func (s DecimalScore) Kind() Kind                  { return Decimal }
func (s DecimalScore) Levels() int                 { return len(s.levels) }
func (s DecimalScore) Level(i int) decimal.Decimal { return s.levels[i] }
func (s DecimalScore) IsZero() bool                { return isZero(s) }
func (s DecimalScore) Equal(o Score) bool          { return equal(s, o) }
func (s DecimalScore) Compare(o Score) int         { return compare(s, o) }
func (s DecimalScore) String() string              { return format(s) }

// Get returns level i.
func (s DecimalScore) Get(i int) decimal.Decimal { return s.levels[i] }

// IsFeasible is true if no level other than the softest is negative.
func IsFeasible(s Score) bool {
	for i := 0; i < s.Levels()-1; i++ {
		if s.Level(i).Sign() < 0 {
			return false
		}
	}
	return true
}

func isZero(s Score) bool {
	for i := 0; i < s.Levels(); i++ {
		if !s.Level(i).IsZero() {
			return false
		}
	}
	return true
}

func equal(a, b Score) bool {
	if b == nil || a.Kind() != b.Kind() || a.Levels() != b.Levels() {
		return false
	}
	for i := 0; i < a.Levels(); i++ {
		if !a.Level(i).Equal(b.Level(i)) {
			return false
		}
	}
	return true
}

func compare(a, b Score) int {
	n := max(a.Levels(), b.Levels())
	for i := 0; i < n; i++ {
		la, lb := decimal.Zero, decimal.Zero
		if i < a.Levels() {
			la = a.Level(i)
		}
		if i < b.Levels() {
			lb = b.Level(i)
		}
		if c := la.Cmp(lb); c != 0 {
			return c
		}
	}
	return 0
}

var levelLabels = map[int][]string{
	2: {"hard", "soft"},
	3: {"hard", "medium", "soft"},
}

func format(s Score) string {
	parts := make([]string, s.Levels())
	for i := range parts {
		parts[i] = s.Level(i).String()
	}
	switch labels, ok := levelLabels[len(parts)]; {
	case len(parts) == 1:
		return parts[0]
	case ok:
		for i := range parts {
			parts[i] += labels[i]
		}
		return strings.Join(parts, "/")
	default:
		return "[" + strings.Join(parts, "/") + "]"
	}
}

// Parse parses a score of the given kind. Accepted forms: "-40", "-2hard/-40soft",
// "0hard/-1medium/-3soft" and "[1/2/3/4]".
func Parse(kind Kind, s string) (Score, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, fmt.Errorf("empty score")
	}

	var parts []string
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		parts = strings.Split(raw[1:len(raw)-1], "/")
	} else {
		parts = strings.Split(raw, "/")
		if labels, ok := levelLabels[len(parts)]; ok {
			for i, p := range parts {
				if !strings.HasSuffix(p, labels[i]) {
					return nil, fmt.Errorf("score %q: level %d must end with %q", s, i, labels[i])
				}
				parts[i] = strings.TrimSuffix(p, labels[i])
			}
		} else if len(parts) != 1 {
			return nil, fmt.Errorf("score %q: use the [a/b/...] form for %d levels", s, len(parts))
		}
	}

	switch kind {
	case Int:
		ls := make([]int32, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("score %q: %w", s, err)
			}
			ls[i] = int32(v)
		}
		return IntScore{levels: ls}, nil
	case Long:
		ls := make([]int64, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("score %q: %w", s, err)
			}
			ls[i] = v
		}
		return LongScore{levels: ls}, nil
	case Decimal:
		ls := make([]decimal.Decimal, len(parts))
		for i, p := range parts {
			v, err := decimal.NewFromString(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("score %q: %w", s, err)
			}
			ls[i] = v
		}
		return DecimalScore{levels: ls}, nil
	default:
		return nil, fmt.Errorf("unknown score kind %s", kind)
	}
}

// MustParse is like Parse but panics on error. Meant for static weights.
func MustParse(kind Kind, s string) Score {
	ret, err := Parse(kind, s)
	if err != nil {
		panic(err)
	}
	return ret
}
