package phy

import (
	"fmt"
	"log/slog"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/delay"
	"github.com/soypat/phyboot/internal"
	"github.com/soypat/phyboot/pin"
)

var _ MDIOBus = (*MDIOBitBang)(nil) // compile time guarantee of interface implementation.

// BitBangConfig configures a [MDIOBitBang].
type BitBangConfig struct {
	// BitTimeUs is the wait after each clock edge in microseconds. A full bit
	// cell lasts twice this value. Zero selects 1us (~500kHz MDC), well below
	// the 2.5MHz clause 22 limit.
	BitTimeUs uint32
	Logger    *slog.Logger
}

// MDIOBitBang provides a software defined (bitbang) MDIO/MDC management interface for PHY register access
// as the STA (Management station, this implementation) which communicates to the PHY (Physical layer device).
// Inspired by linux/v3.13.1/source/drivers/net/phy/mdio-bitbang.c
//
// MDIOBitBang owns both lines: MDC is always a push-pull output and MDIO is
// switched between output and floating input only at frame boundaries, at the
// start of the preamble and right before the turnaround of a read.
//
//	var bus phy.MDIOBitBang
//	err := bus.Configure(machinepin.Pin(machine.GPIO17), machinepin.Pin(machine.GPIO16), delay.Busy{Counter: delay.Timer{}}, phy.BitBangConfig{})
type MDIOBitBang struct {
	mdc   pin.Pin
	mdio  pin.Pin
	delay delay.Delayer
	bitUs uint32
	// role of the MDIO line. Only changed by setRole.
	role pin.Role
	log  logger
}

// Configure takes ownership of the clock and data pins. MDC is set up as a
// low output and MDIO as a high output (idle bus).
func (m *MDIOBitBang) Configure(mdc, mdio pin.Pin, d delay.Delayer, cfg BitBangConfig) error {
	if mdc == nil || mdio == nil || d == nil {
		return phyboot.ErrInvalidConfig
	}
	bitUs := cfg.BitTimeUs
	if bitUs == 0 {
		bitUs = 1
	}
	*m = MDIOBitBang{
		mdc:   mdc,
		mdio:  mdio,
		delay: d,
		bitUs: bitUs,
		log:   logger{log: cfg.Logger},
	}
	err := mdc.SetRole(pin.RoleOutput)
	if err == nil {
		err = mdc.Set(false)
	}
	if err != nil {
		return pinFault("mdc", err)
	}
	err = mdio.SetRole(pin.RoleOutput)
	if err == nil {
		err = mdio.Set(true)
	}
	if err != nil {
		return pinFault("mdio", err)
	}
	m.role = pin.RoleOutput
	return nil
}

// Read performs a clause 22 read transaction. A PHY that does not answer
// leaves the line to the pull-up and the result is 0xffff; no error is
// reported in that case since clause 22 has no acknowledge.
func (m *MDIOBitBang) Read(phyAddr, regAddr uint8) (uint16, error) {
	f := Frame{PHY: phyAddr, Reg: regAddr, Op: OpRead}
	if err := f.Validate(); err != nil {
		return 0, err
	}
	err := m.preamble()
	if err != nil {
		return 0, err
	}
	err = m.sendBits(f.Encode(), headerBits)
	if err != nil {
		return 0, err
	}
	// Release the line, the PHY drives the second turnaround bit low.
	err = m.setRole(pin.RoleInput)
	if err != nil {
		return 0, err
	}
	ta, err := m.getBits(2)
	if err != nil {
		return 0, err
	}
	value, err := m.getBits(16)
	if err != nil {
		return 0, err
	}
	if m.log.enabled(internal.LevelTrace) {
		m.log.trace("mdio:read", slog.Uint64("phy", uint64(phyAddr)), slog.Uint64("reg", uint64(regAddr)),
			slog.Uint64("val", uint64(value)), slog.Bool("ta-driven", ta&1 == 0))
	}
	return value, nil
}

// Write performs a clause 22 write transaction.
func (m *MDIOBitBang) Write(phyAddr, regAddr uint8, value uint16) error {
	f := Frame{PHY: phyAddr, Reg: regAddr, Op: OpWrite, Data: value}
	if err := f.Validate(); err != nil {
		return err
	}
	err := m.preamble()
	if err != nil {
		return err
	}
	err = m.sendBits(f.Encode(), frameBits)
	if err != nil {
		return err
	}
	if m.log.enabled(internal.LevelTrace) {
		m.log.trace("mdio:write", slog.Uint64("phy", uint64(phyAddr)), slog.Uint64("reg", uint64(regAddr)), slog.Uint64("val", uint64(value)))
	}
	return nil
}

// preamble takes the line and sends 32 ones.
func (m *MDIOBitBang) preamble() error {
	err := m.setRole(pin.RoleOutput)
	if err != nil {
		return err
	}
	for i := 0; i < preambleBits; i++ {
		err = m.bitOut(true)
		if err != nil {
			return err
		}
	}
	return nil
}

// sendBits sends the n most significant bits of v, MSB first.
func (m *MDIOBitBang) sendBits(v uint32, n int) error {
	for i := 31; i > 31-n; i-- {
		err := m.bitOut(v>>i&1 != 0)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *MDIOBitBang) getBits(n int) (v uint16, err error) {
	for i := 0; i < n; i++ {
		bit, err := m.bitIn()
		if err != nil {
			return 0, err
		}
		v = v<<1 | uint16(b2u8(bit))
	}
	return v, nil
}

// MDIO low-level clock operations
// Reference: https://github.com/sandeepmistry/pico-rmii-ethernet/blob/main/examples/httpd/main.c
// Reference: netif_rmii_ethernet_mdio_clock_out() and netif_rmii_ethernet_mdio_clock_in()
// from rmii_ethernet.c

// bitOut drives one bit. The PHY latches it on the rising edge of MDC.
func (m *MDIOBitBang) bitOut(b bool) error {
	if m.role != pin.RoleOutput {
		panic("mdio: drive on released line")
	}
	err := m.mdc.Set(false)
	if err != nil {
		return pinFault("mdc", err)
	}
	err = m.mdio.Set(b)
	if err != nil {
		return pinFault("mdio", err)
	}
	m.delay.DelayUs(m.bitUs)
	err = m.mdc.Set(true)
	if err != nil {
		return pinFault("mdc", err)
	}
	m.delay.DelayUs(m.bitUs)
	return nil
}

// bitIn samples one bit while MDC is low, before the rising edge.
func (m *MDIOBitBang) bitIn() (bool, error) {
	if m.role != pin.RoleInput {
		panic("mdio: sample on driven line")
	}
	err := m.mdc.Set(false)
	if err != nil {
		return false, pinFault("mdc", err)
	}
	m.delay.DelayUs(m.bitUs)
	bit, err := m.mdio.Get()
	if err != nil {
		return false, pinFault("mdio", err)
	}
	err = m.mdc.Set(true)
	if err != nil {
		return false, pinFault("mdc", err)
	}
	m.delay.DelayUs(m.bitUs)
	return bit, nil
}

func (m *MDIOBitBang) setRole(r pin.Role) error {
	if m.role == r {
		return nil
	}
	err := m.mdio.SetRole(r)
	if err != nil {
		return pinFault("mdio", err)
	}
	m.role = r
	return nil
}

func pinFault(line string, err error) error {
	return fmt.Errorf("%w: %s: %w", phyboot.ErrPinFault, line, err)
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
