package phy

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/internal/ltesto"
	"github.com/soypat/phyboot/pin"
)

func newSimBus(t *testing.T, phys ...*ltesto.PHY) (*MDIOBitBang, *ltesto.Bus, *ltesto.Delay) {
	t.Helper()
	bus := ltesto.NewBus(phys...)
	var d ltesto.Delay
	var m MDIOBitBang
	err := m.Configure(bus.MDC(), bus.MDIO(), &d, BitBangConfig{})
	if err != nil {
		t.Fatal(err)
	}
	return &m, bus, &d
}

func bitstring(bits []bool) string {
	var sb strings.Builder
	for _, b := range bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func TestFrameEncode(t *testing.T) {
	var tests = []struct {
		f    Frame
		want uint32
	}{
		{f: Frame{PHY: 0, Reg: 4, Op: OpWrite, Data: 0x01e1}, want: 0b01_01_00000_00100_10_0000000111100001},
		{f: Frame{PHY: 1, Reg: 1, Op: OpRead}, want: 0b01_10_00001_00001_00_0000000000000000},
		{f: Frame{PHY: 31, Reg: 31, Op: OpRead, Data: 0xffff}, want: 0b01_10_11111_11111_00_0000000000000000},
	}
	for _, test := range tests {
		if err := test.f.Validate(); err != nil {
			t.Fatal(err)
		}
		got := test.f.Encode()
		if got != test.want {
			t.Errorf("%+v: want %032b, got %032b", test.f, test.want, got)
		}
	}
	for _, f := range []Frame{{PHY: 32, Op: OpRead}, {Reg: 32, Op: OpWrite}, {PHY: 255, Reg: 255, Op: OpRead}} {
		if err := f.Validate(); err != phyboot.ErrInvalidAddr {
			t.Errorf("%+v: want ErrInvalidAddr, got %v", f, err)
		}
	}
	if err := (Frame{Op: 0b11}).Validate(); err == nil {
		t.Error("expected error for clause 45 opcode")
	}
}

func TestBitBangWriteBitstream(t *testing.T) {
	m, bus, _ := newSimBus(t)
	err := m.Write(0, 4, 0x01e1)
	if err != nil {
		t.Fatal(err)
	}
	const want = "11111111111111111111111111111111" + "01" + "01" + "00000" + "00100" + "10" + "0000000111100001"
	got := bitstring(bus.Latched())
	if got != want {
		t.Errorf("bitstream mismatch:\nwant %s\ngot  %s", want, got)
	}
	if bus.DataRole() != pin.RoleOutput {
		t.Error("data line should be left driven after write")
	}
}

func TestBitBangReadReleasesLine(t *testing.T) {
	p := &ltesto.PHY{Addr: 1, Regs: &ltesto.RegFile{1: 0x7809}}
	m, bus, _ := newSimBus(t, p)
	v, err := m.Read(1, 1)
	if err != nil {
		t.Fatal(err)
	} else if v != 0x7809 {
		t.Errorf("want 0x7809, got %#x", v)
	}
	// Only preamble and header are driven by the station.
	const want = "11111111111111111111111111111111" + "01" + "10" + "00001" + "00001"
	got := bitstring(bus.Latched())
	if got != want {
		t.Errorf("driven bits mismatch:\nwant %s\ngot  %s", want, got)
	}
	if len(bus.Violations) > 0 {
		t.Errorf("electrical violations: %v", bus.Violations)
	}
	if p.Frames != 1 {
		t.Errorf("want 1 frame, got %d", p.Frames)
	}
}

func TestBitBangRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var regs ltesto.RegFile
	p := &ltesto.PHY{Regs: &regs}
	m, bus, _ := newSimBus(t, p)
	for addr := uint8(0); addr <= phyboot.MaxPHYAddr; addr++ {
		p.Addr = addr
		for reg := uint8(0); reg < 32; reg++ {
			want := uint16(rng.Intn(1 << 16))
			err := m.Write(addr, reg, want)
			if err != nil {
				t.Fatal(err)
			}
			if regs[reg] != want {
				t.Fatalf("phy %d reg %d: register file %#x, wrote %#x", addr, reg, regs[reg], want)
			}
			got, err := m.Read(addr, reg)
			if err != nil {
				t.Fatal(err)
			} else if got != want {
				t.Fatalf("phy %d reg %d: want %#x, got %#x", addr, reg, want, got)
			}
			bus.ResetLatched()
		}
	}
	if len(bus.Violations) > 0 {
		t.Errorf("electrical violations: %v", bus.Violations)
	}
	if len(p.Errors) > 0 {
		t.Errorf("frame errors: %v", p.Errors)
	}
	if p.Frames != 2*32*32 {
		t.Errorf("want %d frames, got %d", 2*32*32, p.Frames)
	}
}

func TestBitBangAbsentPHY(t *testing.T) {
	p := &ltesto.PHY{Addr: 5, Regs: &ltesto.RegFile{}}
	m, _, _ := newSimBus(t, p)
	v, err := m.Read(6, 0)
	if err != nil {
		t.Fatal(err)
	} else if v != 0xffff {
		t.Errorf("absent PHY should read 0xffff, got %#x", v)
	}
	err = m.Write(6, 0, 0x1234)
	if err != nil {
		t.Fatal(err)
	}
	if p.Frames != 0 {
		t.Errorf("PHY 5 answered frames addressed to 6")
	}
}

func TestBitBangInvalidAddr(t *testing.T) {
	m, bus, _ := newSimBus(t)
	if _, err := m.Read(32, 0); err != phyboot.ErrInvalidAddr {
		t.Errorf("phy 32: want ErrInvalidAddr, got %v", err)
	}
	if _, err := m.Read(0, 32); err != phyboot.ErrInvalidAddr {
		t.Errorf("reg 32: want ErrInvalidAddr, got %v", err)
	}
	if err := m.Write(0, 40, 1); err != phyboot.ErrInvalidAddr {
		t.Errorf("write reg 40: want ErrInvalidAddr, got %v", err)
	}
	if n := len(bus.Latched()); n != 0 {
		t.Errorf("rejected transactions clocked %d bits", n)
	}
}

func TestBitBangPinFault(t *testing.T) {
	for _, line := range []string{"mdc", "mdio"} {
		t.Run(line, func(t *testing.T) {
			bus := ltesto.NewBus()
			mdc, mdio := bus.MDC(), bus.MDIO()
			fault := &ltesto.FaultPin{OpsLeft: 10}
			if line == "mdc" {
				fault.Pin, mdc = mdc, fault
			} else {
				fault.Pin, mdio = mdio, fault
			}
			var m MDIOBitBang
			err := m.Configure(mdc, mdio, &ltesto.Delay{}, BitBangConfig{})
			if err != nil {
				t.Fatal(err)
			}
			_, err = m.Read(0, 0)
			if !errors.Is(err, phyboot.ErrPinFault) {
				t.Fatalf("want ErrPinFault, got %v", err)
			} else if !errors.Is(err, ltesto.ErrInjected) {
				t.Fatalf("pin error not wrapped: %v", err)
			}
		})
	}
	var m MDIOBitBang
	err := m.Configure(&ltesto.FaultPin{Pin: &ltesto.LED{}}, &ltesto.LED{}, &ltesto.Delay{}, BitBangConfig{})
	if !errors.Is(err, phyboot.ErrPinFault) {
		t.Errorf("configure with failing clock pin: want ErrPinFault, got %v", err)
	}
}

func TestBitBangTiming(t *testing.T) {
	m, _, d := newSimBus(t)
	m.bitUs = 3
	err := m.Write(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Two waits per bit cell.
	const cells = preambleBits + frameBits
	if d.Calls != 2*cells {
		t.Errorf("want %d waits, got %d", 2*cells, d.Calls)
	}
	if d.TotalUs != 2*cells*3 {
		t.Errorf("want %dus, got %dus", 2*cells*3, d.TotalUs)
	}
}
