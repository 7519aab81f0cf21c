// Package delay implements busy-wait delays over free-running hardware counters.
//
// All elapsed time computations use unsigned modular subtraction so they remain
// correct when the counter rolls over. A signed comparison of the difference
// would break for delays longer than half the counter period and is not used.
package delay

import (
	"time"

	"github.com/soypat/phyboot"
)

// Counter is a monotonic free-running microsecond counter that wraps at 2**32.
type Counter interface {
	Micros() uint32
}

// CycleCounter is a free-running up-counter incrementing once per system clock cycle.
type CycleCounter interface {
	Cycles() uint32
}

// Delayer blocks the caller for the requested time.
type Delayer interface {
	DelayUs(us uint32)
	DelayMs(ms uint32)
}

var (
	_ Delayer = Busy{}
	_ Delayer = (*Cycles)(nil)
)

// Busy spins on a microsecond [Counter].
type Busy struct {
	Counter Counter
}

// Elapsed returns microseconds since start. Correct across a single counter rollover.
func (b Busy) Elapsed(start uint32) uint32 {
	return b.Counter.Micros() - start
}

// DelayUs spins until us microseconds have elapsed.
func (b Busy) DelayUs(us uint32) {
	start := b.Counter.Micros()
	for b.Counter.Micros()-start < us {
	}
}

// DelayMs spins for ms milliseconds. The wait is split in millisecond chunks
// so that large values do not overflow the microsecond counter range.
func (b Busy) DelayMs(ms uint32) {
	for ; ms > 0; ms-- {
		b.DelayUs(1000)
	}
}

// Cycles spins on a [CycleCounter] calibrated against the system clock frequency.
type Cycles struct {
	counter  CycleCounter
	perMicro uint32
}

// NewCycles returns a delay calibrated for a counter ticking at sysHz.
// sysHz must be at least 1MHz.
func NewCycles(counter CycleCounter, sysHz uint32) (*Cycles, error) {
	if counter == nil || sysHz < 1_000_000 {
		return nil, phyboot.ErrInvalidConfig
	}
	return &Cycles{counter: counter, perMicro: sysHz / 1_000_000}, nil
}

// CyclesPerMicro returns the calibration factor.
func (c *Cycles) CyclesPerMicro() uint32 { return c.perMicro }

// DelayUs spins for at least us microseconds.
func (c *Cycles) DelayUs(us uint32) {
	// Split so the cycle count fits in 32 bits with margin for any clock below 4GHz.
	const chunk = 1000
	for us > chunk {
		c.spin(chunk * c.perMicro)
		us -= chunk
	}
	c.spin(us * c.perMicro)
}

// DelayMs spins for at least ms milliseconds.
func (c *Cycles) DelayMs(ms uint32) {
	for ; ms > 0; ms-- {
		c.DelayUs(1000)
	}
}

func (c *Cycles) spin(cycles uint32) {
	start := c.counter.Cycles()
	for c.counter.Cycles()-start < cycles {
	}
}

// SinceStart is a host [Counter] backed by the monotonic clock of the time package.
type SinceStart struct {
	start time.Time
}

// NewSinceStart returns a counter starting at zero now.
func NewSinceStart() *SinceStart {
	return &SinceStart{start: time.Now()}
}

// Micros returns microseconds since creation truncated to 32 bits.
func (s *SinceStart) Micros() uint32 {
	return uint32(time.Since(s.start).Microseconds())
}
