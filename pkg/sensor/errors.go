package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned by a Driver when it's healthy but
	// has no fresh sample for this poll.
	ErrNoData = errors.New("no data")
	// ErrNotFound indicates an unknown sensor ID.
	ErrNotFound = errors.New("sensor not found")
)

// DefinitionError reports an invalid sensor definition table.
type DefinitionError struct {
	Index  int
	Reason string
}

// Error implements error.
func (e *DefinitionError) Error() string {
	return fmt.Sprintf("sensor definition %d: %s", e.Index, e.Reason)
}
