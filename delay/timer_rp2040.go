//go:build rp2040

package delay

import "device/rp"

// Timer is the RP2040 1MHz system timer. It ticks from the watchdog tick generator
// so it is only accurate after the clock tree programmed the tick divider.
type Timer struct{}

// Micros returns the low word of the raw timer without latching the high word.
func (Timer) Micros() uint32 {
	return rp.TIMER.TIMERAWL.Get()
}
