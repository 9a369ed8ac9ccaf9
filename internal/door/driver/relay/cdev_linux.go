//go:build linux

package relay

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const DefaultChip = "gpiochip0"

// CdevPin is a GPIO line requested through the Linux character device.
type CdevPin struct {
	line *gpiocdev.Line
}

// NewCdevPin requests offset on chip as an output already at restValue.
func NewCdevPin(chip string, offset int, restValue int) (*CdevPin, error) {
	if chip == "" {
		chip = DefaultChip
	}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithConsumer("garage2mqtt"),
		gpiocdev.AsOutput(restValue))
	if err != nil {
		return nil, errors.Wrapf(err, "request %s line %d", chip, offset)
	}

	return &CdevPin{line: line}, nil
}

func (c *CdevPin) High() error {
	return c.line.SetValue(1)
}

func (c *CdevPin) Low() error {
	return c.line.SetValue(0)
}

func (c *CdevPin) Release() error {
	return c.line.Close()
}
