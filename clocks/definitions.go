package clocks

import (
	"strconv"
)

// Hz is a frequency in hertz.
type Hz uint32

const (
	KHz Hz = 1000
	MHz Hz = 1000 * KHz
)

func (f Hz) String() string {
	switch {
	case f >= MHz && f%MHz == 0:
		return strconv.FormatUint(uint64(f/MHz), 10) + "MHz"
	case f >= KHz && f%KHz == 0:
		return strconv.FormatUint(uint64(f/KHz), 10) + "kHz"
	}
	return strconv.FormatUint(uint64(f), 10) + "Hz"
}

// Domain is a derived clock output of the clock block.
// Domains are configured in ascending order during [Initialize].
type Domain uint8

const (
	DomainRef    Domain = iota // clk_ref
	DomainSys                  // clk_sys
	DomainUSB                  // clk_usb
	DomainADC                  // clk_adc
	DomainRTC                  // clk_rtc
	DomainPeri                 // clk_peri
	DomainGPOut0               // clk_gpout0
	NumDomains   = iota
)

func (d Domain) String() string {
	switch d {
	case DomainRef:
		return "clk_ref"
	case DomainSys:
		return "clk_sys"
	case DomainUSB:
		return "clk_usb"
	case DomainADC:
		return "clk_adc"
	case DomainRTC:
		return "clk_rtc"
	case DomainPeri:
		return "clk_peri"
	case DomainGPOut0:
		return "clk_gpout0"
	}
	return "Domain(" + strconv.Itoa(int(d)) + ")"
}

// Source is an upstream clock a [Domain] may be fed from.
type Source uint8

const (
	SourceXOSC   Source = iota // xosc
	SourcePLLSys               // pll_sys
	SourcePLLUSB               // pll_usb
	SourceClkRef               // clk_ref
	SourceClkSys               // clk_sys
)

func (s Source) String() string {
	switch s {
	case SourceXOSC:
		return "xosc"
	case SourcePLLSys:
		return "pll_sys"
	case SourcePLLUSB:
		return "pll_usb"
	case SourceClkRef:
		return "clk_ref"
	case SourceClkSys:
		return "clk_sys"
	}
	return "Source(" + strconv.Itoa(int(s)) + ")"
}

// domain returns the domain backing the source and true if the source is itself a derived clock.
func (s Source) domain() (Domain, bool) {
	switch s {
	case SourceClkRef:
		return DomainRef, true
	case SourceClkSys:
		return DomainSys, true
	}
	return 0, false
}

type divKind uint8

const (
	divNone divKind = iota // source passes through undivided.
	divInt                 // integer divider 1..3.
	divFrac                // 24.8 fractional divider.
)

// domainInfo describes the mux and divider of each clock generator.
var domainInfo = [NumDomains]struct {
	div     divKind
	sources []Source
}{
	DomainRef:    {div: divInt, sources: []Source{SourceXOSC}},
	DomainSys:    {div: divFrac, sources: []Source{SourceClkRef, SourcePLLSys, SourcePLLUSB, SourceXOSC}},
	DomainUSB:    {div: divInt, sources: []Source{SourcePLLUSB, SourcePLLSys, SourceXOSC}},
	DomainADC:    {div: divInt, sources: []Source{SourcePLLUSB, SourcePLLSys, SourceXOSC}},
	DomainRTC:    {div: divFrac, sources: []Source{SourcePLLUSB, SourcePLLSys, SourceXOSC}},
	DomainPeri:   {div: divNone, sources: []Source{SourceClkSys, SourcePLLSys, SourcePLLUSB, SourceXOSC}},
	DomainGPOut0: {div: divFrac, sources: []Source{SourceClkSys, SourceClkRef, SourcePLLSys, SourcePLLUSB, SourceXOSC}},
}

// RP2040 reset controller bits for the PLLs.
const (
	ResetPLLSys uint32 = 1 << 12
	ResetPLLUSB uint32 = 1 << 13
)

// Oscillator is the crystal oscillator.
type Oscillator interface {
	// Start enables the oscillator for a crystal of the given frequency and
	// blocks until it is stable.
	Start(crystal Hz) error
}

// PLL is a phase-locked loop block.
type PLL interface {
	// Configure programs the dividers, powers the PLL up and blocks until lock.
	// VCO = ref/refdiv*fbdiv, output = VCO/(postdiv1*postdiv2).
	Configure(refdiv, fbdiv, postdiv1, postdiv2 uint32) error
}

// ClockBlock is the clock generator block feeding every derived domain.
type ClockBlock interface {
	// Configure switches domain d to src and sets its divider. div is a 24.8
	// fixed point value: 1<<8 means divide by one.
	Configure(d Domain, src Source, div uint32) error
}

// Resetter controls the subsystem reset lines.
type Resetter interface {
	ResetBlock(mask uint32)
	UnresetBlockWait(mask uint32)
}

// Watchdog exposes the tick generator used by the watchdog and system timer.
type Watchdog interface {
	// StartTick enables the tick generator dividing clk_ref by cycles.
	StartTick(cycles uint32)
}

// Hardware groups the peripherals consumed by [Initialize]. Each is owned
// exclusively by the boot sequence.
type Hardware struct {
	XOSC     Oscillator
	PLLSys   PLL
	PLLUSB   PLL
	Clocks   ClockBlock
	Resets   Resetter
	Watchdog Watchdog
}
