package phy

import (
	"github.com/soypat/phyboot"
)

// MDIOBus is a HAL for clause 22 management bus access.
// Register and PHY addresses are 5 bits wide, implementations return
// [phyboot.ErrInvalidAddr] for anything larger.
type MDIOBus interface {
	// Read reads a 16-bit register from the PHY.
	Read(phyAddr, regAddr uint8) (value uint16, err error)
	// Write writes a 16-bit value to a PHY register.
	Write(phyAddr, regAddr uint8, value uint16) error
}

// Op is the clause 22 operation code.
type Op uint8

const (
	OpWrite Op = 0b01
	OpRead  Op = 0b10
)

func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	}
	return "Op(?)"
}

const (
	preambleBits = 32
	frameBits    = 32 // frame length without the preamble.
	headerBits   = 14 // start, operation, PHY and register address fields.
	startOfFrame = 0b01
	turnaroundWr = 0b10
)

// Frame is a single clause 22 management transaction.
type Frame struct {
	PHY  uint8
	Reg  uint8
	Op   Op
	Data uint16
}

// Validate checks field ranges.
func (f Frame) Validate() error {
	if f.PHY > phyboot.MaxPHYAddr || f.Reg > 31 {
		return phyboot.ErrInvalidAddr
	} else if f.Op != OpRead && f.Op != OpWrite {
		return phyboot.ErrInvalidConfig
	}
	return nil
}

// Encode returns the 32 bits following the preamble, most significant bit sent first:
//
//	ST(2) OP(2) PHYAD(5) REGAD(5) TA(2) DATA(16)
//
// For reads the turnaround and data bits are zero; the station releases the
// line for those and the PHY drives them.
func (f Frame) Encode() uint32 {
	v := uint32(startOfFrame)<<30 |
		uint32(f.Op&0b11)<<28 |
		uint32(f.PHY&0x1f)<<23 |
		uint32(f.Reg&0x1f)<<18
	if f.Op == OpWrite {
		v |= turnaroundWr<<16 | uint32(f.Data)
	}
	return v
}
