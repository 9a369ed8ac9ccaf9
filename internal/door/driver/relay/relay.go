package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrHardwareUnavailable = errors.New("relay hardware unavailable")
	ErrShutdown            = errors.New("relay is shut down")
)

// Relay presses a button for a given duration.
type Relay interface {
	EnableFor(ctx context.Context, duration time.Duration) error
	IsEnabled() bool
	Shutdown() error
}

// PoolProxy limits how many relays sharing the pool are enabled at once.
type PoolProxy struct {
	r Relay
	c chan struct{}
}

func NewPoolProxy(r Relay, pool chan struct{}) *PoolProxy {
	return &PoolProxy{r: r, c: pool}
}

func (p *PoolProxy) EnableFor(ctx context.Context, duration time.Duration) error {
	select {
	case p.c <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		<-p.c
	}()

	return p.r.EnableFor(ctx, duration)
}

func (p *PoolProxy) IsEnabled() bool {
	return p.r.IsEnabled()
}

func (p *PoolProxy) Shutdown() error {
	return p.r.Shutdown()
}

// Dumb is a relay without hardware. It only logs.
type Dumb struct {
	Name string

	isEnabled atomic.Bool
	presses   atomic.Int64
}

func (r *Dumb) EnableFor(ctx context.Context, duration time.Duration) error {
	r.isEnabled.Store(true)
	defer r.isEnabled.Store(false)
	r.presses.Add(1)

	t := time.NewTimer(duration)
	defer t.Stop()

	logrus.Warnf("%s: dumb relay start (for %s)", r.Name, duration.String())

	select {
	case <-t.C:
		logrus.Warnf("%s: dumb relay done", r.Name)
		return nil
	case <-ctx.Done():
		logrus.Warnf("%s: dumb relay exit", r.Name)
		return ctx.Err()
	}
}

func (r *Dumb) IsEnabled() bool {
	return r.isEnabled.Load()
}

// Presses returns how many times the relay was enabled.
func (r *Dumb) Presses() int64 {
	return r.presses.Load()
}

func (r *Dumb) Shutdown() error {
	logrus.Debugf("%s: dumb relay shutdown", r.Name)
	return nil
}
