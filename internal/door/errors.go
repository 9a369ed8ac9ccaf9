package door

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidState = errors.New("invalid door state")
	ErrShutdown     = errors.New("door is shut down")
	ErrActuation    = errors.New("actuation failed")
)

// ActuationError is reported when a button press could not be driven. The
// door state machine has already advanced when it is reported.
type ActuationError struct {
	Door   string
	Target State
	Err    error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("%s: %s for target %s: %s", e.Door, ErrActuation, e.Target, e.Err)
}

func (e *ActuationError) Unwrap() error {
	return e.Err
}

func (e *ActuationError) Is(target error) bool {
	return target == ErrActuation
}
