// Package clocks brings up the clock tree of an RP2040 class microcontroller: the
// crystal oscillator, the system and USB PLLs and the derived clock domains,
// in dependency order.
package clocks

import (
	"log/slog"
	"strings"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/internal"
)

// Stage identifies a step of the clock bring-up sequence.
type Stage uint8

const (
	StageOscillator Stage = iota + 1 // oscillator
	StageSysPLL                      // system PLL
	StageUSBPLL                      // USB PLL
	StageDerived                     // derived clock
)

func (s Stage) String() string {
	switch s {
	case StageOscillator:
		return "oscillator"
	case StageSysPLL:
		return "system PLL"
	case StageUSBPLL:
		return "USB PLL"
	case StageDerived:
		return "derived clock"
	}
	return "Stage(?)"
}

// StageError is returned by [Initialize] when a stage of the sequence fails.
// Domain is only meaningful for [StageDerived].
type StageError struct {
	Stage  Stage
	Domain Domain
	Err    error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString("clocks: ")
	b.WriteString(e.Stage.String())
	if e.Stage == StageDerived {
		b.WriteString(" ")
		b.WriteString(e.Domain.String())
	}
	b.WriteString(" failed")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// Is reports true for [phyboot.ErrClockStage].
func (e *StageError) Is(target error) bool { return target == phyboot.ErrClockStage }

// RunningClocks holds the realized frequencies of a configured clock tree.
// It is immutable.
type RunningClocks struct {
	xosc   Hz
	pllSys Hz
	pllUSB Hz
	freq   [NumDomains]Hz
}

// Freq returns the realized frequency of domain d.
func (rc *RunningClocks) Freq(d Domain) Hz {
	if d >= NumDomains {
		return 0
	}
	return rc.freq[d]
}

// SourceFreq returns the frequency of an upstream clock source.
func (rc *RunningClocks) SourceFreq(s Source) Hz {
	switch s {
	case SourceXOSC:
		return rc.xosc
	case SourcePLLSys:
		return rc.pllSys
	case SourcePLLUSB:
		return rc.pllUSB
	}
	if d, ok := s.domain(); ok {
		return rc.freq[d]
	}
	return 0
}

// SysFreq returns the system clock frequency, used to calibrate cycle based delays.
func (rc *RunningClocks) SysFreq() Hz { return rc.freq[DomainSys] }

func (rc *RunningClocks) String() string {
	var b strings.Builder
	b.WriteString("xosc=")
	b.WriteString(rc.xosc.String())
	b.WriteString(" pll_sys=")
	b.WriteString(rc.pllSys.String())
	b.WriteString(" pll_usb=")
	b.WriteString(rc.pllUSB.String())
	for d := Domain(0); d < NumDomains; d++ {
		b.WriteByte(' ')
		b.WriteString(d.String())
		b.WriteByte('=')
		b.WriteString(rc.freq[d].String())
	}
	return b.String()
}

// Initialize brings the clock tree up following plan:
//
//  1. start the crystal oscillator
//  2. program the watchdog tick generator for a 1MHz tick (best effort)
//  3. lock the system PLL
//  4. lock the USB PLL
//  5. route every derived domain from its source, in [Domain] order
//
// The first failing stage aborts the sequence and is reported as a [*StageError].
// There are no retries: a partially configured clock tree cannot run peripherals
// reliably and callers are expected to halt. An invalid plan is rejected before
// any hardware is touched with a [*StageError] wrapping [phyboot.ErrInvalidConfig].
func Initialize(hw Hardware, plan ClockPlan, log *slog.Logger) (*RunningClocks, error) {
	if hw.XOSC == nil || hw.PLLSys == nil || hw.PLLUSB == nil || hw.Clocks == nil || hw.Resets == nil {
		return nil, phyboot.ErrInvalidConfig
	}
	l := logger{log: log}
	r, err := plan.resolve()
	if err != nil {
		return nil, l.fail(err.(*StageError))
	}

	err = hw.XOSC.Start(plan.XOSC)
	if err != nil {
		return nil, l.fail(&StageError{Stage: StageOscillator, Err: err})
	}
	l.debug("clocks:stage-ok", slog.String("stage", StageOscillator.String()), slog.Uint64("hz", uint64(plan.XOSC)))

	if hw.Watchdog != nil {
		hw.Watchdog.StartTick(uint32(plan.XOSC / MHz))
	}

	err = startPLL(hw.PLLSys, hw.Resets, ResetPLLSys, plan.Sys, r.sysFBDiv)
	if err != nil {
		return nil, l.fail(&StageError{Stage: StageSysPLL, Err: err})
	}
	l.debug("clocks:stage-ok", slog.String("stage", StageSysPLL.String()), slog.Uint64("hz", uint64(r.sysOut)))

	err = startPLL(hw.PLLUSB, hw.Resets, ResetPLLUSB, plan.USB, r.usbFBDiv)
	if err != nil {
		return nil, l.fail(&StageError{Stage: StageUSBPLL, Err: err})
	}
	l.debug("clocks:stage-ok", slog.String("stage", StageUSBPLL.String()), slog.Uint64("hz", uint64(r.usbOut)))

	for d := Domain(0); d < NumDomains; d++ {
		err = hw.Clocks.Configure(d, plan.Derived[d].Source, r.div[d])
		if err != nil {
			return nil, l.fail(&StageError{Stage: StageDerived, Domain: d, Err: err})
		}
		l.trace("clocks:domain-ok", slog.String("domain", d.String()), slog.String("src", plan.Derived[d].Source.String()), slog.Uint64("hz", uint64(r.freq[d])))
	}
	rc := &RunningClocks{
		xosc:   plan.XOSC,
		pllSys: r.sysOut,
		pllUSB: r.usbOut,
		freq:   r.freq,
	}
	l.info("clocks:running", slog.Uint64("sys", uint64(rc.SysFreq())), slog.Uint64("usb", uint64(r.freq[DomainUSB])))
	return rc, nil
}

func startPLL(pll PLL, resets Resetter, mask uint32, cfg PLLConfig, fbdiv uint32) error {
	resets.ResetBlock(mask)
	resets.UnresetBlockWait(mask)
	return pll.Configure(uint32(cfg.RefDiv), fbdiv, uint32(cfg.PostDiv1), uint32(cfg.PostDiv2))
}

type logger struct {
	log *slog.Logger
}

func (l logger) fail(err *StageError) error {
	internal.LogAttrs(l.log, slog.LevelError, "clocks:stage-failed", slog.String("err", err.Error()))
	return err
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}
