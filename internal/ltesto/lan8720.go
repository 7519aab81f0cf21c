package ltesto

// LAN8720 models the register behaviour of a LAN8720A 10/100 PHY with a
// simulated cable and link partner. The zero value is not ready, see [NewLAN8720].
type LAN8720 struct {
	regs RegFile
	// CableUp reports whether a link partner is connected.
	CableUp bool
	// Partner is the link partner's advertisement (ANLPAR bit layout).
	Partner uint16
	// NegotiationReads is the number of status register reads after an
	// autonegotiation restart before negotiation completes.
	NegotiationReads int

	negotiating int
	anDone      bool
	// Resets counts software resets.
	Resets int
	// Restarts counts autonegotiation restarts.
	Restarts int
}

const (
	lanBMCRDefault = 0x3100 // 100Mbps, AN enable, full duplex.
	lanBMSRCaps    = 0x7809 // 100F 100H 10F 10H, AN capable, extended capability.
	lanID1         = 0x0007
	lanID2         = 0xc0f1
	lanANARDefault = 0x01e1

	lanRegSpecialStatus = 31
	lanAutodone         = 1 << 12
)

// NewLAN8720 returns a PHY with reset register values, cable disconnected and a
// partner advertising every 10/100 mode.
func NewLAN8720() *LAN8720 {
	l := &LAN8720{Partner: 0x41e1}
	l.reset()
	return l
}

func (l *LAN8720) reset() {
	l.regs = RegFile{}
	l.regs[0] = lanBMCRDefault
	l.regs[2] = lanID1
	l.regs[3] = lanID2
	l.regs[4] = lanANARDefault
	l.anDone = false
	l.negotiating = 0
}

// SetCable connects or disconnects the cable. Disconnecting clears negotiation.
// Connecting with autonegotiation enabled starts a new negotiation.
func (l *LAN8720) SetCable(up bool) {
	if up == l.CableUp {
		return
	}
	l.CableUp = up
	l.anDone = false
	if up && l.regs[0]&0x1000 != 0 {
		l.negotiating = l.NegotiationReads + 1
	}
}

// Negotiated returns the highest common mode bit of our and the partner's
// advertisement, or 0 if there is none.
func (l *LAN8720) Negotiated() uint16 {
	common := l.regs[4] & l.Partner
	for _, bit := range []uint16{0x0100, 0x0080, 0x0040, 0x0020} {
		if common&bit != 0 {
			return bit
		}
	}
	return 0
}

func (l *LAN8720) linkUp() bool {
	if !l.CableUp {
		return false
	}
	if l.regs[0]&0x1000 != 0 {
		return l.anDone && l.Negotiated() != 0
	}
	return true
}

func (l *LAN8720) Read(reg uint8) uint16 {
	reg &= 0x1f
	switch reg {
	case 1:
		if l.negotiating > 0 {
			l.negotiating--
			if l.negotiating == 0 && l.CableUp {
				l.anDone = true
			}
		}
		v := uint16(lanBMSRCaps)
		if l.linkUp() {
			v |= 0x0004
		}
		if l.anDone {
			v |= 0x0020
		}
		return v
	case 5:
		if !l.anDone {
			return 0
		}
		return l.Partner
	case lanRegSpecialStatus:
		return l.specialStatus()
	}
	return l.regs[reg]
}

func (l *LAN8720) specialStatus() uint16 {
	if !l.anDone {
		return 0x0040
	}
	v := uint16(lanAutodone | 0x0040)
	switch l.Negotiated() {
	case 0x0020:
		v |= 0b001 << 2
	case 0x0040:
		v |= 0b101 << 2
	case 0x0080:
		v |= 0b010 << 2
	case 0x0100:
		v |= 0b110 << 2
	}
	return v
}

func (l *LAN8720) Write(reg uint8, v uint16) {
	reg &= 0x1f
	switch reg {
	case 0:
		if v&0x8000 != 0 {
			l.Resets++
			l.reset()
			return
		}
		if v&0x0200 != 0 {
			l.Restarts++
			l.anDone = false
			if v&0x1000 != 0 && l.CableUp {
				l.negotiating = l.NegotiationReads + 1
			}
		}
		l.regs[0] = v &^ 0x0200 // restart bit self-clears.
	case 1, 2, 3, 5, lanRegSpecialStatus:
		// read only.
	default:
		l.regs[reg] = v
	}
}
