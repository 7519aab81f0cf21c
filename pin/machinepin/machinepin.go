//go:build tinygo

// Package machinepin adapts TinyGo machine pins to [pin.Pin].
package machinepin

import (
	"machine"

	"github.com/soypat/phyboot/pin"
)

var _ pin.Pin = Pin(0)

// Pin is a microcontroller GPIO. None of its methods fail.
type Pin machine.Pin

// SetRole configures the pin as push-pull output or floating input.
// A pull-down is not enabled on input; the MDIO line has an external pull-up.
func (p Pin) SetRole(r pin.Role) error {
	mode := machine.PinInput
	if r == pin.RoleOutput {
		mode = machine.PinOutput
	}
	machine.Pin(p).Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (p Pin) Set(high bool) error {
	machine.Pin(p).Set(high)
	return nil
}

func (p Pin) Get() (bool, error) {
	return machine.Pin(p).Get(), nil
}
