// Package ltesto provides simulated hardware for testing bring-up code on a host:
// an electrical model of a PHY on the management bus, simulated clock hardware
// and virtual counters.
package ltesto

import (
	"errors"

	"github.com/soypat/phyboot/pin"
)

// Counter is a virtual microsecond (or cycle) counter. Every read returns the
// current value and advances it by Step, so busy-wait loops terminate
// without real time passing.
type Counter struct {
	Now  uint32
	Step uint32
}

func (c *Counter) Micros() uint32 {
	v := c.Now
	c.Now += c.Step
	return v
}

func (c *Counter) Cycles() uint32 { return c.Micros() }

// Delay records requested delays and advances an optional counter accordingly.
// It implements the bring-up delay interface without spinning.
type Delay struct {
	Counter *Counter
	TotalUs uint64
	Calls   int
}

func (d *Delay) DelayUs(us uint32) {
	d.Calls++
	d.TotalUs += uint64(us)
	if d.Counter != nil {
		d.Counter.Now += us
	}
}

func (d *Delay) DelayMs(ms uint32) {
	for ; ms > 0; ms-- {
		d.DelayUs(1000)
	}
}

// ErrInjected is returned by [FaultPin] once its budget is exhausted.
var ErrInjected = errors.New("ltesto: injected pin failure")

// FaultPin wraps a pin and fails every operation after OpsLeft operations succeeded.
type FaultPin struct {
	Pin     pin.Pin
	OpsLeft int
}

func (f *FaultPin) use() error {
	if f.OpsLeft <= 0 {
		return ErrInjected
	}
	f.OpsLeft--
	return nil
}

func (f *FaultPin) SetRole(r pin.Role) error {
	if err := f.use(); err != nil {
		return err
	}
	return f.Pin.SetRole(r)
}

func (f *FaultPin) Set(high bool) error {
	if err := f.use(); err != nil {
		return err
	}
	return f.Pin.Set(high)
}

func (f *FaultPin) Get() (bool, error) {
	if err := f.use(); err != nil {
		return false, err
	}
	return f.Pin.Get()
}

// LED is a push-pull output that counts level changes.
type LED struct {
	On      bool
	Toggles int
	role    pin.Role
}

func (l *LED) SetRole(r pin.Role) error { l.role = r; return nil }
func (l *LED) Set(high bool) error {
	if high != l.On {
		l.Toggles++
	}
	l.On = high
	return nil
}
func (l *LED) Get() (bool, error) { return l.On, nil }
