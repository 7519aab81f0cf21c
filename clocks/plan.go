package clocks

import (
	"errors"
	"fmt"

	"github.com/soypat/phyboot"
)

// PLL electrical limits.
const (
	minVCO     = 750 * MHz
	maxVCO     = 1600 * MHz
	minRefFreq = 5 * MHz
	minFBDiv   = 16
	maxFBDiv   = 320
	maxPostDiv = 7
)

// PLLConfig holds the configuration of a PLL.
type PLLConfig struct {
	// VCO is the target voltage controlled oscillator frequency.
	VCO Hz
	// RefDiv divides the reference input before the phase detector.
	RefDiv uint8
	// PostDiv1 and PostDiv2 divide the VCO output.
	PostDiv1 uint8
	PostDiv2 uint8
}

// Output returns the frequency the PLL produces when fed by ref along with the
// feedback divider required to reach the VCO target. An error is returned if the
// configuration is out of range or the frequencies are not exact multiples.
func (cfg PLLConfig) Output(ref Hz) (out Hz, fbdiv uint32, err error) {
	switch {
	case cfg.RefDiv == 0:
		return 0, 0, errors.New("zero reference divider")
	case cfg.PostDiv1 < 1 || cfg.PostDiv1 > maxPostDiv || cfg.PostDiv2 < 1 || cfg.PostDiv2 > maxPostDiv:
		return 0, 0, errors.New("post divider out of range 1..7")
	case cfg.VCO < minVCO || cfg.VCO > maxVCO:
		return 0, 0, fmt.Errorf("VCO %s out of range %s..%s", cfg.VCO, minVCO, maxVCO)
	}
	pfd := ref / Hz(cfg.RefDiv)
	if pfd < minRefFreq || ref%Hz(cfg.RefDiv) != 0 {
		return 0, 0, fmt.Errorf("reference %s/%d below %s or inexact", ref, cfg.RefDiv, minRefFreq)
	}
	if cfg.VCO%pfd != 0 {
		return 0, 0, fmt.Errorf("VCO %s not a multiple of %s", cfg.VCO, pfd)
	}
	fbdiv = uint32(cfg.VCO / pfd)
	if fbdiv < minFBDiv || fbdiv > maxFBDiv {
		return 0, 0, fmt.Errorf("feedback divider %d out of range", fbdiv)
	}
	post := Hz(cfg.PostDiv1) * Hz(cfg.PostDiv2)
	if cfg.VCO%post != 0 {
		return 0, 0, fmt.Errorf("VCO %s not divisible by %d", cfg.VCO, post)
	}
	return cfg.VCO / post, fbdiv, nil
}

// Derived configures a clock domain.
type Derived struct {
	Source Source
	Freq   Hz
}

// ClockPlan is the complete clock tree configuration. It is built once at boot
// and never modified afterwards.
type ClockPlan struct {
	// XOSC is the crystal frequency.
	XOSC    Hz
	Sys     PLLConfig
	USB     PLLConfig
	Derived [NumDomains]Derived
}

// DefaultPlan returns the reference clock plan:
//
//	xosc 12MHz
//	pll_sys 12MHz/1 * 125 = 1500MHz / 5 / 3 = 100MHz
//	pll_usb 12MHz/1 *  80 =  960MHz / 5 / 4 =  48MHz
//	clk_ref    = xosc            12MHz
//	clk_sys    = pll_sys        100MHz
//	clk_usb    = pll_usb         48MHz
//	clk_adc    = pll_usb         48MHz
//	clk_rtc    = pll_usb / 1024  46875Hz
//	clk_peri   = clk_sys        100MHz
//	clk_gpout0 = clk_sys / 2     50MHz, RMII reference clock
func DefaultPlan() ClockPlan {
	return ClockPlan{
		XOSC: 12 * MHz,
		Sys:  PLLConfig{VCO: 1500 * MHz, RefDiv: 1, PostDiv1: 5, PostDiv2: 3},
		USB:  PLLConfig{VCO: 960 * MHz, RefDiv: 1, PostDiv1: 5, PostDiv2: 4},
		Derived: [NumDomains]Derived{
			DomainRef:    {Source: SourceXOSC, Freq: 12 * MHz},
			DomainSys:    {Source: SourcePLLSys, Freq: 100 * MHz},
			DomainUSB:    {Source: SourcePLLUSB, Freq: 48 * MHz},
			DomainADC:    {Source: SourcePLLUSB, Freq: 48 * MHz},
			DomainRTC:    {Source: SourcePLLUSB, Freq: 46875},
			DomainPeri:   {Source: SourceClkSys, Freq: 100 * MHz},
			DomainGPOut0: {Source: SourceClkSys, Freq: 50 * MHz},
		},
	}
}

// Validate checks the plan without touching hardware. Every derived clock must be
// fed by the oscillator, a PLL or a domain configured before it, and must be
// reachable with the domain's divider. Errors are reported as in [Initialize].
func (plan *ClockPlan) Validate() error {
	_, err := plan.resolve()
	return err
}

// resolvedPlan holds the frequencies and dividers computed from a ClockPlan.
type resolvedPlan struct {
	sysOut, usbOut     Hz
	sysFBDiv, usbFBDiv uint32
	div                [NumDomains]uint32
	freq               [NumDomains]Hz
}

// resolve computes the plan's dividers. Errors are a [*StageError] naming the
// stage that cannot be configured, wrapping [phyboot.ErrInvalidConfig].
func (plan *ClockPlan) resolve() (r resolvedPlan, err error) {
	if plan.XOSC < 1*MHz || plan.XOSC%MHz != 0 || plan.XOSC/MHz > 255 {
		return r, &StageError{Stage: StageOscillator, Err: fmt.Errorf("%w: crystal %s must be a whole number of MHz", phyboot.ErrInvalidConfig, plan.XOSC)}
	}
	r.sysOut, r.sysFBDiv, err = plan.Sys.Output(plan.XOSC)
	if err != nil {
		return r, &StageError{Stage: StageSysPLL, Err: fmt.Errorf("%w: pll_sys: %w", phyboot.ErrInvalidConfig, err)}
	}
	r.usbOut, r.usbFBDiv, err = plan.USB.Output(plan.XOSC)
	if err != nil {
		return r, &StageError{Stage: StageUSBPLL, Err: fmt.Errorf("%w: pll_usb: %w", phyboot.ErrInvalidConfig, err)}
	}
	for d := Domain(0); d < NumDomains; d++ {
		dc := plan.Derived[d]
		info := &domainInfo[d]
		if !sourceAllowed(info.sources, dc.Source) {
			return r, &StageError{Stage: StageDerived, Domain: d, Err: fmt.Errorf("%w: cannot be fed from %s", phyboot.ErrInvalidConfig, dc.Source)}
		}
		var src Hz
		switch dc.Source {
		case SourceXOSC:
			src = plan.XOSC
		case SourcePLLSys:
			src = r.sysOut
		case SourcePLLUSB:
			src = r.usbOut
		default:
			upstream, _ := dc.Source.domain()
			if upstream >= d {
				return r, &StageError{Stage: StageDerived, Domain: d, Err: fmt.Errorf("%w: fed from %s which is not yet running", phyboot.ErrInvalidConfig, dc.Source)}
			}
			src = r.freq[upstream]
		}
		div, realized, err := divider(info.div, src, dc.Freq)
		if err != nil {
			return r, &StageError{Stage: StageDerived, Domain: d, Err: fmt.Errorf("%w: from %s: %w", phyboot.ErrInvalidConfig, dc.Source, err)}
		}
		r.div[d] = div
		r.freq[d] = realized
	}
	return r, nil
}

func sourceAllowed(allowed []Source, src Source) bool {
	for _, s := range allowed {
		if s == src {
			return true
		}
	}
	return false
}

// divider returns the 24.8 fixed point divider for a generator of the given kind
// and the frequency actually produced.
func divider(kind divKind, src, freq Hz) (div uint32, realized Hz, err error) {
	if freq == 0 {
		return 0, 0, errors.New("zero target frequency")
	} else if freq > src {
		return 0, 0, fmt.Errorf("target %s above source %s", freq, src)
	}
	switch kind {
	case divNone:
		if freq != src {
			return 0, 0, fmt.Errorf("no divider, target %s must equal source %s", freq, src)
		}
		return 1 << 8, src, nil
	case divInt:
		if src%freq != 0 || src/freq > 3 {
			return 0, 0, fmt.Errorf("integer divider cannot produce %s from %s", freq, src)
		}
		return uint32(src/freq) << 8, freq, nil
	}
	d := (uint64(src) << 8) / uint64(freq)
	if d > 1<<32-1 {
		return 0, 0, errors.New("divider overflow")
	}
	div = uint32(d)
	realized = Hz((uint64(src) << 8) / d)
	return div, realized, nil
}
