package relay

import (
	"github.com/hjkoskel/govattu"
	"github.com/pkg/errors"
)

// BcmPin drives a Raspberry Pi GPIO through the BCM283x registers.
type BcmPin struct {
	hw  govattu.Vattu
	pin uint8
}

// NewBcmPin maps the GPIO registers and configures pin as an output.
func NewBcmPin(pin uint8) (*BcmPin, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open gpio")
	}

	hw.PinMode(pin, govattu.ALToutput)

	return &BcmPin{hw: hw, pin: pin}, nil
}

func (b *BcmPin) High() error {
	b.hw.PinSet(b.pin)
	return nil
}

func (b *BcmPin) Low() error {
	b.hw.PinClear(b.pin)
	return nil
}

func (b *BcmPin) Release() error {
	return b.hw.Close()
}
