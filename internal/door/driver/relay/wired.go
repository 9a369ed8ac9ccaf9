package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type SetPin interface {
	High() error
	Low() error
}

// ReleasablePin is a SetPin holding an OS or bus resource.
type ReleasablePin interface {
	SetPin
	Release() error
}

// Wired is a relay driven by a single output pin. The pin is at rest level
// whenever no press is in progress.
type Wired struct {
	pin       SetPin
	activeLow bool

	// mu is held for the whole press, so presses never overlap.
	mu        sync.Mutex
	isEnabled atomic.Bool
	closed    bool

	done     chan struct{}
	shutdown sync.Once
	err      error
}

// NewWired drives the pin to rest level before returning.
func NewWired(pin SetPin, activeLow bool) (*Wired, error) {
	w := &Wired{pin: pin, activeLow: activeLow, done: make(chan struct{})}
	if err := w.disable(); err != nil {
		return nil, errors.Wrapf(ErrHardwareUnavailable, "drive rest level: %s", err)
	}

	return w, nil
}

// EnableFor drives the pin active for duration. The pin goes back to rest
// level when duration elapses, ctx is done or the relay is shut down.
func (p *Wired) EnableFor(ctx context.Context, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrShutdown
	}

	t := time.NewTimer(duration)
	defer t.Stop()

	p.isEnabled.Store(true)
	defer p.isEnabled.Store(false)

	if err := p.enable(); err != nil {
		if rerr := p.disable(); rerr != nil {
			logrus.Error(rerr)
		}
		return errors.Wrap(err, "wired relay enable")
	}

	var err error
	select {
	case <-t.C:
	case <-ctx.Done():
		logrus.Debug("wired relay context exit")
	case <-p.done:
		logrus.Debug("wired relay shutdown exit")
	}

	if derr := p.disable(); derr != nil {
		err = errors.Wrap(derr, "wired relay disable")
	}

	return err
}

func (p *Wired) IsEnabled() bool {
	return p.isEnabled.Load()
}

// Shutdown interrupts a press in progress, leaves the pin at rest level and
// releases it. It is safe to call more than once and from a signal handler.
func (p *Wired) Shutdown() error {
	p.shutdown.Do(func() {
		close(p.done)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true

		if err := p.disable(); err != nil {
			p.err = errors.Wrap(err, "wired relay rest level on shutdown")
		}

		if r, ok := p.pin.(ReleasablePin); ok {
			if err := r.Release(); err != nil && p.err == nil {
				p.err = errors.Wrap(err, "wired relay release")
			}
		}
	})

	return p.err
}

func (p *Wired) enable() error {
	if p.activeLow {
		return p.pin.Low()
	}

	return p.pin.High()
}

func (p *Wired) disable() error {
	if p.activeLow {
		return p.pin.High()
	}

	return p.pin.Low()
}
