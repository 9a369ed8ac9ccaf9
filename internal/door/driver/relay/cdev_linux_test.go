//go:build linux

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCdevPinMissingChip(t *testing.T) {
	_, err := NewCdevPin("gpiochip-garage2mqtt-missing", 26, 0)
	assert.ErrorContains(t, err, "request gpiochip-garage2mqtt-missing line 26")
}
