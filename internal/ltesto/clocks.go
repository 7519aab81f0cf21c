package ltesto

import (
	"errors"
	"fmt"

	"github.com/soypat/phyboot/clocks"
)

// ClockHW simulates the oscillator, PLLs, clock generators, reset controller
// and watchdog tick of a microcontroller. It refuses to route a clock from a
// source that is not running, which catches bring-up ordering mistakes.
type ClockHW struct {
	// Fail* inject a failure at the matching stage.
	FailXOSC   bool
	FailPLLSys bool
	FailPLLUSB bool
	// FailDomain fails configuration of the given domain when FailDomainSet is true.
	FailDomain    clocks.Domain
	FailDomainSet bool

	// Calls logs every hardware access in order.
	Calls []string
	// TickCycles is the last watchdog tick divider programmed.
	TickCycles uint32

	xosc       clocks.Hz
	inReset    uint32
	pllSys     simPLL
	pllUSB     simPLL
	configured [clocks.NumDomains]bool
	divs       [clocks.NumDomains]uint32
}

var errInjected = errors.New("ltesto: injected failure")

type simPLL struct {
	hw     *ClockHW
	name   string
	mask   uint32
	fail   *bool
	locked bool
	out    clocks.Hz
}

// NewClockHW returns simulated clock hardware with every PLL held in reset.
func NewClockHW() *ClockHW {
	hw := &ClockHW{inReset: clocks.ResetPLLSys | clocks.ResetPLLUSB}
	hw.pllSys = simPLL{hw: hw, name: "pll_sys", mask: clocks.ResetPLLSys, fail: &hw.FailPLLSys}
	hw.pllUSB = simPLL{hw: hw, name: "pll_usb", mask: clocks.ResetPLLUSB, fail: &hw.FailPLLUSB}
	return hw
}

// Hardware returns the handles consumed by [clocks.Initialize].
func (hw *ClockHW) Hardware() clocks.Hardware {
	return clocks.Hardware{
		XOSC:     (*simXOSC)(hw),
		PLLSys:   &hw.pllSys,
		PLLUSB:   &hw.pllUSB,
		Clocks:   (*simClockBlock)(hw),
		Resets:   (*simResets)(hw),
		Watchdog: (*simWatchdog)(hw),
	}
}

// Configured reports whether domain d has been routed.
func (hw *ClockHW) Configured(d clocks.Domain) bool { return hw.configured[d] }

// AnyConfigured reports whether any derived domain has been routed.
func (hw *ClockHW) AnyConfigured() bool {
	for _, c := range hw.configured {
		if c {
			return true
		}
	}
	return false
}

// Divider returns the divider programmed for domain d.
func (hw *ClockHW) Divider(d clocks.Domain) uint32 { return hw.divs[d] }

// PLLOutput returns the output frequencies of the locked PLLs.
func (hw *ClockHW) PLLOutput() (sys, usb clocks.Hz) { return hw.pllSys.out, hw.pllUSB.out }

func (hw *ClockHW) call(format string, args ...any) {
	hw.Calls = append(hw.Calls, fmt.Sprintf(format, args...))
}

type simXOSC ClockHW

func (x *simXOSC) Start(crystal clocks.Hz) error {
	hw := (*ClockHW)(x)
	hw.call("xosc.start %d", crystal)
	if hw.FailXOSC {
		return errInjected
	}
	hw.xosc = crystal
	return nil
}

func (p *simPLL) Configure(refdiv, fbdiv, postdiv1, postdiv2 uint32) error {
	p.hw.call("%s.configure %d %d %d %d", p.name, refdiv, fbdiv, postdiv1, postdiv2)
	switch {
	case *p.fail:
		return errInjected
	case p.hw.xosc == 0:
		return errors.New(p.name + ": reference not running")
	case p.hw.inReset&p.mask != 0:
		return errors.New(p.name + ": held in reset")
	case refdiv == 0 || postdiv1 == 0 || postdiv2 == 0:
		return errors.New(p.name + ": zero divider")
	}
	vco := uint64(p.hw.xosc) / uint64(refdiv) * uint64(fbdiv)
	p.out = clocks.Hz(vco / uint64(postdiv1*postdiv2))
	p.locked = true
	return nil
}

type simClockBlock ClockHW

func (cb *simClockBlock) Configure(d clocks.Domain, src clocks.Source, div uint32) error {
	hw := (*ClockHW)(cb)
	hw.call("clocks.configure %s %s %d", d, src, div)
	if hw.FailDomainSet && hw.FailDomain == d {
		return errInjected
	}
	running := false
	switch src {
	case clocks.SourceXOSC:
		running = hw.xosc != 0
	case clocks.SourcePLLSys:
		running = hw.pllSys.locked
	case clocks.SourcePLLUSB:
		running = hw.pllUSB.locked
	case clocks.SourceClkRef:
		running = hw.configured[clocks.DomainRef]
	case clocks.SourceClkSys:
		running = hw.configured[clocks.DomainSys]
	}
	if !running {
		return fmt.Errorf("%s: source %s not running", d, src)
	} else if div < 1<<8 {
		return fmt.Errorf("%s: divider below one", d)
	}
	hw.configured[d] = true
	hw.divs[d] = div
	return nil
}

type simResets ClockHW

func (r *simResets) ResetBlock(mask uint32) {
	(*ClockHW)(r).call("resets.reset %#x", mask)
	r.inReset |= mask
}

func (r *simResets) UnresetBlockWait(mask uint32) {
	(*ClockHW)(r).call("resets.unreset %#x", mask)
	r.inReset &^= mask
}

type simWatchdog ClockHW

func (w *simWatchdog) StartTick(cycles uint32) {
	(*ClockHW)(w).call("watchdog.tick %d", cycles)
	w.TickCycles = cycles
}
