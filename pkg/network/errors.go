package network

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateConstraint is returned when two constraints share an id.
	ErrDuplicateConstraint = errors.New("duplicate constraint")
	// ErrFilteringBeforeIndexed is returned when an indexed joiner follows a filtering joiner.
	ErrFilteringBeforeIndexed = errors.New("filtering joiner precedes an indexed joiner")
	// ErrUnassignable is returned when a fact type cannot be passed to a function.
	ErrUnassignable = errors.New("fact type not assignable")
	// ErrInvalidGraph is returned when the compiled network has a dangling or misplaced node.
	ErrInvalidGraph = errors.New("invalid network")
	// ErrWeight is returned for a constraint weight or weigher that does not fit the score.
	ErrWeight = errors.New("invalid constraint weight")
	// ErrUnknownFact is returned when updating or retracting a fact that was never inserted.
	ErrUnknownFact = errors.New("unknown fact")
	// ErrDuplicateFact is returned when inserting a fact twice.
	ErrDuplicateFact = errors.New("fact already inserted")
	// ErrBroken is returned by a session whose previous fact change failed.
	ErrBroken = errors.New("session is broken")
)

// ConfigError is an error in the constraint definitions. It aborts the network build.
type ConfigError struct {
	// Constraint is the id of the offending constraint, empty if the error is not tied to one.
	Constraint string
	Err        error
}

// NewConfigError creates a configuration error for a constraint.
func NewConfigError(constraint string, err error) error {
	return &ConfigError{Constraint: constraint, Err: err}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("invalid constraint definitions: %s", e.Err)
	}
	return fmt.Sprintf("invalid constraint %s: %s", e.Constraint, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewNodeError reports a runtime failure of a node.
func NewNodeError(n Node, err error) error {
	return fmt.Errorf("node %s: %w", n, err)
}
