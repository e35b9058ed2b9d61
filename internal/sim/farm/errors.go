package farm

import (
	"errors"
	"fmt"
)

// InvariantError reports a broken core invariant (entity in two cells, index/position
// mismatch, action out of range, holding violations). Training must not continue after one.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("farm invariant violated in %s: %s", e.Op, e.Detail)
}

func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

func invariantf(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
