package score

import (
	"errors"
	"fmt"
)

var (
	// ErrWeightKind is returned when a match weight cannot be represented in the score kind.
	ErrWeightKind = errors.New("match weight not representable in score kind")
	// ErrShape is returned when a constraint weight does not fit the score kind or level count.
	ErrShape = errors.New("constraint weight does not match the score definition")
	// ErrDuplicate is returned when a constraint is registered twice.
	ErrDuplicate = errors.New("constraint already registered")
)

// SignError reports a match weight whose sign contradicts the constraint direction.
type SignError struct {
	Constraint  ConstraintRef
	Impact      ImpactType
	MatchWeight string
	Facts       []any
}

// Error implements the error interface.
func (e *SignError) Error() string {
	return fmt.Sprintf("constraint %s (%s) has a negative match weight %s for match %v",
		e.Constraint, e.Impact, e.MatchWeight, e.Facts)
}
