package ltesto

import (
	"fmt"

	"github.com/soypat/phyboot/pin"
)

// Bus is an electrical model of a two wire management bus. The station drives
// MDC and shares MDIO with the attached PHYs. MDIO idles high through a pull-up.
type Bus struct {
	mdc       bool
	mdcRole   pin.Role
	dataRole  pin.Role
	dataLevel bool
	phys      []*PHY
	latched   []bool

	// Violations holds electrical rule violations seen on the bus such as bus
	// contention or clocking with MDC not configured as output.
	Violations []string
}

// NewBus returns a bus with the given PHYs attached. Both station pins start as inputs.
func NewBus(phys ...*PHY) *Bus {
	return &Bus{phys: phys, mdcRole: pin.RoleInput, dataRole: pin.RoleInput}
}

// Attach connects another PHY to the bus.
func (b *Bus) Attach(p *PHY) { b.phys = append(b.phys, p) }

// MDC returns the station's clock pin.
func (b *Bus) MDC() pin.Pin { return (*mdcPin)(b) }

// MDIO returns the station's data pin.
func (b *Bus) MDIO() pin.Pin { return (*mdioPin)(b) }

// Latched returns the bits the station drove onto MDIO at each MDC rising edge, in order.
func (b *Bus) Latched() []bool { return b.latched }

// ResetLatched discards the latched bit record.
func (b *Bus) ResetLatched() { b.latched = b.latched[:0] }

// DataRole returns the current role of the station data pin.
func (b *Bus) DataRole() pin.Role { return b.dataRole }

func (b *Bus) level() bool {
	var phyDriving, phyLevel bool
	for _, p := range b.phys {
		if p.driving {
			if phyDriving {
				b.violation("two PHYs driving MDIO")
			}
			phyDriving = true
			phyLevel = p.out
		}
	}
	stationDriving := b.dataRole == pin.RoleOutput
	switch {
	case stationDriving && phyDriving:
		b.violation("bus contention: station and PHY driving MDIO")
		return b.dataLevel && phyLevel
	case stationDriving:
		return b.dataLevel
	case phyDriving:
		return phyLevel
	}
	return true // pull-up.
}

func (b *Bus) violation(msg string) {
	b.Violations = append(b.Violations, msg)
}

func (b *Bus) setMDC(high bool) {
	if b.mdcRole != pin.RoleOutput {
		b.violation("MDC driven while not an output")
		return
	}
	rising := high && !b.mdc
	b.mdc = high
	if !rising {
		return
	}
	lvl := b.level()
	stationDriving := b.dataRole == pin.RoleOutput
	if stationDriving {
		b.latched = append(b.latched, lvl)
	}
	for _, p := range b.phys {
		p.edge(lvl)
	}
}

type mdcPin Bus

func (p *mdcPin) SetRole(r pin.Role) error { p.mdcRole = r; return nil }
func (p *mdcPin) Set(high bool) error      { (*Bus)(p).setMDC(high); return nil }
func (p *mdcPin) Get() (bool, error)       { return p.mdc, nil }

type mdioPin Bus

func (p *mdioPin) SetRole(r pin.Role) error { p.dataRole = r; return nil }
func (p *mdioPin) Set(high bool) error      { p.dataLevel = high; return nil }
func (p *mdioPin) Get() (bool, error)       { return (*Bus)(p).level(), nil }

type frameState uint8

const (
	stIdle frameState = iota
	stStart
	stHeader
	stWriteTA
	stWriteData
	stReadTA
	stReadData
)

// PHY is a clause 22 PHY attached to a [Bus]. It decodes frames on MDC rising
// edges and answers reads addressed to it. Register behaviour is provided by [Regs].
type PHY struct {
	Addr uint8
	Regs Registers

	state   frameState
	ones    int
	n       int
	hdr     uint16
	data    uint16
	driving bool
	out     bool

	// Frames counts complete frames addressed to this PHY.
	Frames int
	// Errors records malformed frames addressed to this PHY.
	Errors []string
}

// Registers is the register file of a simulated PHY.
type Registers interface {
	Read(reg uint8) uint16
	Write(reg uint8, v uint16)
}

// edge advances the frame decoder on an MDC rising edge with bit the MDIO level.
func (p *PHY) edge(bit bool) {
	switch p.state {
	case stIdle:
		if bit {
			p.ones++
		} else {
			if p.ones >= 32 {
				p.state = stStart
			}
			p.ones = 0
		}
	case stStart:
		if bit {
			p.state = stHeader
			p.n = 0
			p.hdr = 0
		} else {
			p.idle()
		}
	case stHeader:
		p.hdr = p.hdr<<1 | b2u16(bit)
		p.n++
		if p.n < 12 {
			break
		}
		op := p.hdr >> 10
		addr := uint8(p.hdr>>5) & 0x1f
		p.n = 0
		switch {
		case op == 0b10 && addr == p.Addr:
			p.state = stReadTA
		case op == 0b01:
			p.state = stWriteTA
		default:
			p.idle()
		}
	case stReadTA:
		// End of first turnaround cell. Drive the second turnaround bit low.
		p.driving = true
		p.out = false
		p.data = p.Regs.Read(p.reg())
		p.state = stReadData
		p.n = 0
	case stReadData:
		if p.n < 16 {
			p.out = (p.data>>(15-p.n))&1 != 0
			p.n++
			break
		}
		p.Frames++
		p.idle()
	case stWriteTA:
		want := p.n == 0
		if bit != want {
			if p.addr() == p.Addr {
				p.Errors = append(p.Errors, fmt.Sprintf("bad write turnaround bit %d", p.n))
			}
			p.idle()
			break
		}
		p.n++
		if p.n == 2 {
			p.state = stWriteData
			p.n = 0
			p.data = 0
		}
	case stWriteData:
		p.data = p.data<<1 | b2u16(bit)
		p.n++
		if p.n < 16 {
			break
		}
		if p.addr() == p.Addr {
			p.Regs.Write(p.reg(), p.data)
			p.Frames++
		}
		p.idle()
	}
}

func (p *PHY) idle() {
	p.state = stIdle
	p.ones = 0
	p.driving = false
}

func (p *PHY) addr() uint8 { return uint8(p.hdr>>5) & 0x1f }
func (p *PHY) reg() uint8  { return uint8(p.hdr) & 0x1f }

func b2u16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// RegFile is a plain register file storing whatever is written.
type RegFile [32]uint16

func (r *RegFile) Read(reg uint8) uint16     { return r[reg&0x1f] }
func (r *RegFile) Write(reg uint8, v uint16) { r[reg&0x1f] = v }
