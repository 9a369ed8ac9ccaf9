package door

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// State is a door state. The numeric values follow the HomeKit
// CurrentDoorState/TargetDoorState characteristics and must not be reordered.
type State int

const (
	Open State = iota
	Closed
	Opening
	Closing
	Stopped
)

const (
	DoorOpenState    = "open"
	DoorClosedState  = "closed"
	DoorOpeningState = "opening"
	DoorClosingState = "closing"
	DoorStoppedState = "stopped"
)

// Home Assistant cover command payloads.
const (
	OpenCmd  = "open"
	CloseCmd = "close"
	StopCmd  = "stop"
)

var stateNames = [...]string{
	Open:    DoorOpenState,
	Closed:  DoorClosedState,
	Opening: DoorOpeningState,
	Closing: DoorClosingState,
	Stopped: DoorStoppedState,
}

func (s State) Valid() bool {
	return s >= Open && s <= Stopped
}

// Resting reports whether s is a state the door can stay in without a
// pending settlement.
func (s State) Resting() bool {
	return s == Open || s == Closed
}

func (s State) String() string {
	if !s.Valid() {
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// ParseState accepts a state name, a HomeKit integer code or a Home
// Assistant cover command.
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))

	switch v {
	case OpenCmd:
		return Open, nil
	case CloseCmd:
		return Closed, nil
	case StopCmd:
		return Stopped, nil
	}

	for s, name := range stateNames {
		if name == v {
			return State(s), nil
		}
	}

	code, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidState, "%q", v)
	}

	return StateFromCode(code)
}

// StateFromCode converts a HomeKit characteristic value.
func StateFromCode(code int) (State, error) {
	s := State(code)
	if !s.Valid() {
		return 0, errors.Wrapf(ErrInvalidState, "code %d", code)
	}
	return s, nil
}

// Confidence tells how the reported current state was obtained.
type Confidence string

// ConfidenceAssumed is reported by doors without a position sensor: the
// current state is derived from the last command and elapsed time.
const ConfidenceAssumed Confidence = "assumed"

type UpdateHandler func(current, target State)

type ErrorHandler func(err error)

type Door interface {
	Name() string
	Confidence() Confidence

	CurrentState() State
	TargetState() State

	OnUpdate(h UpdateHandler)
	OnError(h ErrorHandler)

	SetTargetState(target State) error
	Shutdown() error
}
