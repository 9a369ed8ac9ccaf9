//go:build !linux

package relay

import "github.com/pkg/errors"

const DefaultChip = "gpiochip0"

var ErrCdevNotSupported = errors.New("gpio character device not supported on this platform")

// CdevPin is a stub for non-linux platforms.
type CdevPin struct{}

// NewCdevPin returns an error on non-linux platforms.
func NewCdevPin(chip string, offset int, restValue int) (*CdevPin, error) {
	return nil, ErrCdevNotSupported
}

func (c *CdevPin) High() error    { return ErrCdevNotSupported }
func (c *CdevPin) Low() error     { return ErrCdevNotSupported }
func (c *CdevPin) Release() error { return nil }
