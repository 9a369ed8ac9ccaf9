// Package homekit exposes a door as a HomeKit GarageDoorOpener accessory.
package homekit

import (
	"context"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	"github.com/jkaflik/garage2mqtt/internal/door"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Pin          string
	Port         string
	StoragePath  string
	Manufacturer string
	Model        string
	SerialNumber string
	Firmware     string
}

type Accessory struct {
	door door.Door
	cfg  Config

	acc    *accessory.Accessory
	opener *service.GarageDoorOpener
}

func NewAccessory(d door.Door, cfg Config) *Accessory {
	a := &Accessory{door: d, cfg: cfg}

	a.acc = accessory.New(accessory.Info{
		Name:             d.Name(),
		Manufacturer:     cfg.Manufacturer,
		Model:            cfg.Model,
		SerialNumber:     cfg.SerialNumber,
		FirmwareRevision: cfg.Firmware,
	}, accessory.TypeGarageDoorOpener)

	a.opener = service.NewGarageDoorOpener()
	a.opener.CurrentDoorState.SetValue(int(d.CurrentState()))
	if code, ok := targetCode(d.TargetState()); ok {
		a.opener.TargetDoorState.SetValue(code)
	}
	a.opener.ObstructionDetected.SetValue(false)
	a.opener.TargetDoorState.OnValueRemoteUpdate(a.onTargetRemoteUpdate)
	a.acc.AddService(a.opener.Service)

	d.OnUpdate(a.onDoorUpdate)

	return a
}

// Run serves the accessory until ctx is done.
func (a *Accessory) Run(ctx context.Context) error {
	t, err := hc.NewIPTransport(hc.Config{
		Pin:         a.cfg.Pin,
		Port:        a.cfg.Port,
		StoragePath: a.cfg.StoragePath,
	}, a.acc)
	if err != nil {
		return errors.Wrapf(err, "%s: HomeKit transport", a.door.Name())
	}

	go func() {
		<-ctx.Done()
		<-t.Stop()
		logrus.Infof("%s: HomeKit transport stopped", a.door.Name())
	}()

	logrus.Infof("%s: HomeKit accessory published", a.door.Name())
	t.Start()

	return nil
}

func (a *Accessory) onTargetRemoteUpdate(v int) {
	target, err := door.StateFromCode(v)
	if err != nil {
		logrus.Errorf("%s: HomeKit target %d rejected: %s", a.door.Name(), v, err)
		return
	}

	logrus.Debugf("%s: HomeKit set target %s", a.door.Name(), target)
	if err := a.door.SetTargetState(target); err != nil {
		logrus.Errorf("%s: HomeKit set target %s failed: %s", a.door.Name(), target, err)
	}
}

func (a *Accessory) onDoorUpdate(current, target door.State) {
	a.opener.CurrentDoorState.SetValue(int(current))
	if code, ok := targetCode(target); ok {
		a.opener.TargetDoorState.SetValue(code)
	}
}

// targetCode maps a door target onto TargetDoorState, which only knows open
// and closed.
func targetCode(s door.State) (int, bool) {
	switch s {
	case door.Open, door.Opening:
		return characteristic.TargetDoorStateOpen, true
	case door.Closed, door.Closing:
		return characteristic.TargetDoorStateClosed, true
	}
	return 0, false
}
