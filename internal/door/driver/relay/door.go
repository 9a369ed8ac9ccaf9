package relay

import (
	"context"
	"sync"
	"time"

	"github.com/jkaflik/garage2mqtt/internal/door"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPulseDuration = 100 * time.Millisecond
	DefaultTravelTime    = 5 * time.Second
)

// RelayDoor is a garage door whose opener is a single relay wired across
// the wall button. It has no position sensor: the current state is assumed
// from the last command and settles after the travel time.
//
// A new command supersedes the settlement of the previous one. Stopped is
// recorded as a target but neither presses the button nor touches a pending
// settlement.
type RelayDoor struct {
	relay Relay

	name          string
	pulseDuration time.Duration
	travelTime    time.Duration

	mu sync.Mutex

	currentState door.State
	targetState  door.State

	updateHandlers []door.UpdateHandler
	errorHandler   door.ErrorHandler

	generation           uint64
	cancelCurrentContext context.CancelFunc
	closed               bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRelayDoor(name string, r Relay, pulseDuration time.Duration, travelTime time.Duration) *RelayDoor {
	if pulseDuration <= 0 {
		pulseDuration = DefaultPulseDuration
	}
	if travelTime <= 0 {
		travelTime = DefaultTravelTime
	}

	d := &RelayDoor{
		relay:         r,
		name:          name,
		pulseDuration: pulseDuration,
		travelTime:    travelTime,
		currentState:  door.Closed,
		targetState:   door.Closed,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d
}

func (d *RelayDoor) Name() string {
	return d.name
}

func (d *RelayDoor) Confidence() door.Confidence {
	return door.ConfidenceAssumed
}

func (d *RelayDoor) CurrentState() door.State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.currentState
}

func (d *RelayDoor) TargetState() door.State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.targetState
}

// OnUpdate adds h to the handlers called after every state change. Handlers
// are called with the door locked and must not call back into the door.
func (d *RelayDoor) OnUpdate(h door.UpdateHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.updateHandlers = append(d.updateHandlers, h)
}

// OnError registers h to receive actuation failures.
func (d *RelayDoor) OnError(h door.ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.errorHandler = h
}

func (d *RelayDoor) SetTargetState(target door.State) error {
	if !target.Valid() {
		logrus.Errorf("%s: rejected target state %d", d.name, int(target))
		return door.ErrInvalidState
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return door.ErrShutdown
	}

	logrus.Infof("%s: set target state to %s", d.name, target)
	d.targetState = target

	switch target {
	case door.Open:
		ctx, generation := d.retainContext()
		d.press(target)
		d.currentState = door.Opening
		d.scheduleSettlement(ctx, generation, door.Open)
	case door.Closed:
		ctx, generation := d.retainContext()
		d.press(target)
		d.currentState = door.Closing
		d.scheduleSettlement(ctx, generation, door.Closed)
	case door.Opening:
		d.retainContext()
		d.currentState = door.Open
	case door.Closing:
		d.retainContext()
		d.currentState = door.Closed
	case door.Stopped:
		logrus.Debugf("%s: stop has no button, state kept %s", d.name, d.currentState)
	}

	d.notify()

	return nil
}

// Shutdown cancels pending settlements, waits for a press in progress to be
// released and shuts the relay down. Later calls are no-ops.
func (d *RelayDoor) Shutdown() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.cancelCurrentContext != nil {
		d.cancelCurrentContext()
	}
	d.mu.Unlock()

	logrus.Infof("%s: shutdown", d.name)
	d.cancel()
	d.wg.Wait()

	return d.relay.Shutdown()
}

// retainContext supersedes the previous operation. Must be called with mu held.
func (d *RelayDoor) retainContext() (context.Context, uint64) {
	if d.cancelCurrentContext != nil {
		logrus.Debugf("%s: found previous operation context, cancel", d.name)
		d.cancelCurrentContext()
	}

	d.generation++

	var ctx context.Context
	ctx, d.cancelCurrentContext = context.WithCancel(d.ctx)
	return ctx, d.generation
}

// press enables the relay in the background. Must be called with mu held.
func (d *RelayDoor) press(target door.State) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		logrus.Debugf("%s: press button for %s", d.name, d.pulseDuration.String())
		err := d.relay.EnableFor(d.ctx, d.pulseDuration)
		if err == nil || d.ctx.Err() != nil {
			return
		}

		aerr := &door.ActuationError{Door: d.name, Target: target, Err: err}
		logrus.Error(aerr)

		d.mu.Lock()
		h := d.errorHandler
		d.mu.Unlock()
		if h != nil {
			h(aerr)
		}
	}()
}

// scheduleSettlement must be called with mu held.
func (d *RelayDoor) scheduleSettlement(ctx context.Context, generation uint64, resting door.State) {
	if !resting.Resting() {
		logrus.Errorf("%s: refusing to settle to transient state %s", d.name, resting)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		t := time.NewTimer(d.travelTime)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			logrus.Debugf("%s: settlement to %s superseded", d.name, resting)
			return
		}

		d.mu.Lock()
		defer d.mu.Unlock()

		if d.closed || generation != d.generation {
			logrus.Debugf("%s: stale settlement to %s dropped", d.name, resting)
			return
		}

		d.currentState = resting
		d.notify()

		logrus.Infof("%s: updated state %s", d.name, d.currentState)
	}()
}

// notify must be called with mu held.
func (d *RelayDoor) notify() {
	for _, h := range d.updateHandlers {
		h(d.currentState, d.targetState)
	}
}
