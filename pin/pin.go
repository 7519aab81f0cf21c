// Package pin defines the GPIO abstraction consumed by the MDIO bit-bang engine
// and the heartbeat LED.
package pin

// Role is the electrical role of a GPIO pin.
type Role uint8

const (
	// RoleOutput drives the line push-pull.
	RoleOutput Role = iota
	// RoleInput leaves the line floating so another device may drive it.
	RoleInput
)

func (r Role) String() string {
	switch r {
	case RoleOutput:
		return "push-pull-output"
	case RoleInput:
		return "floating-input"
	}
	return "Role(?)"
}

// Pin is a single GPIO line. Implementations on microcontrollers typically never
// fail; implementations backed by an operating system may return errors which
// callers must treat as fatal for the protocol being driven over the pin.
type Pin interface {
	// SetRole switches the electrical role of the pin.
	SetRole(Role) error
	// Set drives the level of a pin in [RoleOutput].
	Set(high bool) error
	// Get samples the current line level.
	Get() (high bool, err error)
}
