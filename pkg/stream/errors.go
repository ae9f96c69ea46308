package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNilOperation is returned when a stage gets a nil predicate, mapping, joiner,
	// collector or stream.
	ErrNilOperation = errors.New("operation is nil")
	// ErrArity is returned when a stage would produce tuples of an unsupported size.
	ErrArity = errors.New("unsupported arity")
	// ErrNoTerminal is returned for a constraint without a penalize/reward/impact stage.
	ErrNoTerminal = errors.New("stream has no terminal stage")
)

// NewStageError reports an invalid stage argument.
func NewStageError(stage StageKind, err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", stage, err, fmt.Sprintf(format, args...))
}
