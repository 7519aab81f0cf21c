// Package phy provides Ethernet PHY management via a clause 22 MDIO bus:
// frame encoding, a bit-banged bus master, PHY discovery, autonegotiation
// and link monitoring of 10/100 transceivers such as the LAN8720A.
package phy

import (
	"errors"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/delay"
)

var (
	errResetTimeout = errors.New("phy: reset timeout")
	errIsolated     = errors.New("phy: isolated from MII")
	errPoweredDown  = errors.New("phy: powered down")
)

// ErrNegotiationPending is returned by link mode queries before
// auto-negotiation has completed.
var ErrNegotiationPending = errors.New("phy: auto-negotiation not complete")

// Device is a clause 22 PHY on a [MDIOBus].
type Device struct {
	mdio    MDIOBus
	phyaddr uint8
}

// Configure resets all state of device. Does not do a software reset.
func (phy *Device) Configure(mdio MDIOBus, phyAddr uint8) error {
	if phyAddr > phyboot.MaxPHYAddr {
		return phyboot.ErrInvalidAddr
	} else if mdio == nil {
		return phyboot.ErrInvalidConfig
	}
	phy.mdio = mdio
	phy.phyaddr = phyAddr
	return nil
}

// PHYAddr returns the PHY address on the MDIO bus (0-31).
func (phy *Device) PHYAddr() uint8 {
	return phy.phyaddr
}

// BasicControl reads the Basic Mode Control Register (BMCR, register 0).
func (phy *Device) BasicControl() (BMCR, error) {
	ctl, err := phy.rread(AddrBMCR)
	return BMCR(ctl), err
}

// BasicStatus reads the Basic Mode Status Register (BMSR, register 1).
func (phy *Device) BasicStatus() (BMSR, error) {
	stat, err := phy.rread(AddrBMSR)
	return BMSR(stat), err
}

// ID reads the PHY identifier registers 2 and 3 as a single 32 bit value,
// register 2 in the upper half. The LAN8720A reads 0x0007c0fx.
func (phy *Device) ID() (uint32, error) {
	id1, err := phy.rread(regPhyID1)
	if err != nil {
		return 0, err
	}
	id2, err := phy.rread(regPhyID2)
	if err != nil {
		return 0, err
	}
	return uint32(id1)<<16 | uint32(id2), nil
}

// ResetPHY performs a software reset and waits for completion.
// Returns an error on IO error on MDIO bus or on timeout during wait for register reset.
func (phy *Device) ResetPHY(d delay.Delayer) (err error) {
	err = phy.rwrite(AddrBMCR, uint16(BMCRReset))
	if err != nil {
		return err
	}
	// Wait for reset to complete (bit self-clears).
	// IEEE 802.3 allows up to 500ms.
	const maxPolls = 50
	const resetTimeoutMs = 500
	var ctl BMCR
	for i := 0; i < maxPolls; i++ {
		d.DelayMs(resetTimeoutMs / maxPolls)
		ctl, err = phy.BasicControl()
		if err != nil {
			return err
		}
		if ctl&BMCRReset == 0 {
			return nil
		}
	}
	return errResetTimeout
}

// SetupForced disables auto-negotiation and forces a specific link mode.
//
// Inspired by drivers/net/phy/phy_device.c
func (phy *Device) SetupForced(mode LinkMode) error {
	var ctl BMCR
	switch mode.SpeedMbps() {
	case 100:
		ctl |= BMCRSpeed100
	case 10:
		// No speed bits = 10Mbps
	default:
		return phyboot.ErrInvalidConfig
	}
	if mode.IsFullDuplex() {
		ctl |= BMCRFullDuplex
	}
	// Note: BMCRANEnable is NOT set, disabling auto-negotiation
	return phy.rwrite(AddrBMCR, uint16(ctl))
}

// Advertisement reads the current Auto-Negotiation Advertisement Register.
func (phy *Device) Advertisement() (ANAR, error) {
	val, err := phy.rread(AddrANAR)
	return ANAR(val), err
}

// SetAdvertisement writes to the Auto-Negotiation Advertisement Register.
// Does NOT restart auto-negotiation; call RestartAutoNeg() after if needed.
func (phy *Device) SetAdvertisement(ad ANAR) error {
	return phy.rwrite(AddrANAR, uint16(ad))
}

// LinkPartnerAdvertisement reads what the link partner is advertising (ANLPAR).
func (phy *Device) LinkPartnerAdvertisement() (ANAR, error) {
	val, err := phy.rread(AddrANLPAR)
	return ANAR(val), err
}

// RestartAutoNeg enables auto-negotiation and restarts it.
func (phy *Device) RestartAutoNeg() error {
	ctl, err := phy.BasicControl()
	if err != nil {
		return err
	}
	ctl |= BMCRANEnable | BMCRANRestart
	return phy.rwrite(AddrBMCR, uint16(ctl))
}

// Negotiate advertises ad and restarts auto-negotiation. It does not wait for
// negotiation to complete, see [Monitor] and [Device.WaitForLink].
// A zero ad advertises every 10/100 mode.
func (phy *Device) Negotiate(ad ANAR) error {
	if ad == 0 {
		ad = NewANAR().With10M().With100M()
	} else if ad&ANARSelector != ANARSelector8023 || ad&ANARSpeedMask == 0 {
		return phyboot.ErrInvalidConfig
	}
	err := phy.SetAdvertisement(ad)
	if err != nil {
		return err
	}
	return phy.RestartAutoNeg()
}

// IsLinkUp returns true if link is established.
func (phy *Device) IsLinkUp() (bool, error) {
	status, err := phy.BasicStatus()
	if err != nil {
		return false, err
	}
	return status.LinkUp(), nil
}

// WaitForLink polls the status register until the link is up or timeoutMs elapses.
// If auto-negotiation is enabled (BMCR.ANEnable=1), waits for AN to complete first.
// Returns true if link is up, false if the timeout expired.
//
// Per IEEE 802.3:
//   - BMSR.LinkStatus is latched-low, so first read clears any previous fault
//   - BMSR.ANComplete must be set before link parameters are valid (when AN enabled)
func (phy *Device) WaitForLink(d delay.Delayer, timeoutMs uint32) (bool, error) {
	const pollMs = 50
	// Early exit: link impossible if PHY isolated or powered down.
	ctl, err := phy.BasicControl()
	if err != nil {
		return false, err
	} else if ctl&BMCRIsolate != 0 {
		return false, errIsolated
	} else if ctl&BMCRPowerDown != 0 {
		return false, errPoweredDown
	}

	// First read clears latched-low bits (LinkStatus, ANComplete).
	_, err = phy.BasicStatus()
	if err != nil {
		return false, err
	}
	anEnabled := ctl&BMCRANEnable != 0
	for waited := uint32(0); ; waited += pollMs {
		status, err := phy.BasicStatus()
		if err != nil {
			return false, err
		}
		// No point checking link status until AN is done.
		if status.LinkUp() && (!anEnabled || status.AutoNegotiationComplete()) {
			return true, nil
		}
		if waited >= timeoutMs {
			return false, nil
		}
		d.DelayMs(pollMs)
	}
}

// NegotiatedLink returns the auto-negotiated link mode using standard MII registers.
// Returns LinkMode based on ANAR (our advertisement) AND ANLPAR (link partner ability).
// Priority order per IEEE 802.3 Annex 28B.3.
func (phy *Device) NegotiatedLink() (LinkMode, error) {
	status, err := phy.BasicStatus()
	if err != nil {
		return LinkUnknown, err
	}
	if !status.AutoNegotiationComplete() {
		return LinkUnknown, ErrNegotiationPending
	}
	anar, err := phy.Advertisement()
	if err != nil {
		return LinkUnknown, err
	}
	anlpar, err := phy.LinkPartnerAdvertisement()
	if err != nil {
		return LinkUnknown, err
	}
	// Common capabilities = what both sides support
	common := anar & anlpar
	return common.LinkMode(), nil
}

// VendorSpeed decodes the speed indication of the LAN8720A special
// control/status register (31). Returns [ErrNegotiationPending] if the
// autodone bit is clear and [LinkUnknown] if the indication is not one of the
// four valid encodings.
func (phy *Device) VendorSpeed() (LinkMode, error) {
	v, err := phy.rread(regLANSpecialStatus)
	if err != nil {
		return LinkUnknown, err
	}
	return decodeSpecialStatus(v)
}

const (
	lanAutodone  = 1 << 12
	lanSpeedMask = 0b111 << 2
)

func decodeSpecialStatus(v uint16) (LinkMode, error) {
	if v&lanAutodone == 0 {
		return LinkUnknown, ErrNegotiationPending
	}
	switch (v & lanSpeedMask) >> 2 {
	case 0b001:
		return Link10HDX, nil
	case 0b101:
		return Link10FDX, nil
	case 0b010:
		return Link100HDX, nil
	case 0b110:
		return Link100FDX, nil
	}
	return LinkUnknown, nil
}

func (phy *Device) rread(regaddr uint8) (uint16, error) {
	return phy.mdio.Read(phy.phyaddr, regaddr)
}

func (phy *Device) rwrite(regaddr uint8, value uint16) error {
	return phy.mdio.Write(phy.phyaddr, regaddr, value)
}
