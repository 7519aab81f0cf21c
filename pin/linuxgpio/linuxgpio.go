// Package linuxgpio adapts Linux GPIO controller pins to [pin.Pin] so the MDIO
// bus can be bit-banged from a Linux host such as a BMC or single board computer.
package linuxgpio

import (
	"github.com/platinasystems/gpio"

	"github.com/soypat/phyboot/pin"
)

var _ pin.Pin = (*Pin)(nil)

// Pin is a GPIO line on a Linux gpio controller. The zero value is not usable, see [New].
type Pin struct {
	base gpio.Pin
	role pin.Role
	cur  gpio.Pin
}

// New returns a pin for the controller line num (bank base plus index, as
// in a [gpio.PinMap]). Mode bits present in num are discarded. The pin starts
// as a floating input.
func New(num gpio.Pin) (*Pin, error) {
	p := &Pin{base: num &^ (gpio.IsOutputHi | gpio.IsOutputLo)}
	err := p.SetRole(pin.RoleInput)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetRole reprograms the line direction. Switching to output drives the line low.
func (p *Pin) SetRole(r pin.Role) error {
	next := p.base
	if r == pin.RoleOutput {
		next |= gpio.IsOutputLo
	}
	if next == p.cur && r == p.role {
		return nil
	}
	err := next.SetDirection()
	if err != nil {
		return err
	}
	p.cur = next
	p.role = r
	return nil
}

// Set drives the line level.
func (p *Pin) Set(high bool) error {
	return p.cur.SetValue(high)
}

// Get reads the line level.
func (p *Pin) Get() (bool, error) {
	return p.cur.Value()
}
