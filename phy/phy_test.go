package phy

import (
	"errors"
	"testing"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/internal/ltesto"
)

// regBus is a register level bus without the electrical layer.
type regBus struct {
	phys  map[uint8]ltesto.Registers
	reads int
	err   error
}

func (b *regBus) Read(phyAddr, regAddr uint8) (uint16, error) {
	if phyAddr > 31 || regAddr > 31 {
		return 0, phyboot.ErrInvalidAddr
	} else if b.err != nil {
		return 0, b.err
	}
	b.reads++
	r, ok := b.phys[phyAddr]
	if !ok {
		return 0xffff, nil
	}
	return r.Read(regAddr), nil
}

func (b *regBus) Write(phyAddr, regAddr uint8, v uint16) error {
	if phyAddr > 31 || regAddr > 31 {
		return phyboot.ErrInvalidAddr
	} else if b.err != nil {
		return b.err
	}
	if r, ok := b.phys[phyAddr]; ok {
		r.Write(regAddr, v)
	}
	return nil
}

func newLAN(t *testing.T, addr uint8) (*Device, *ltesto.LAN8720, *regBus) {
	t.Helper()
	lan := ltesto.NewLAN8720()
	bus := &regBus{phys: map[uint8]ltesto.Registers{addr: lan}}
	var dev Device
	err := dev.Configure(bus, addr)
	if err != nil {
		t.Fatal(err)
	}
	return &dev, lan, bus
}

func TestDeviceConfigure(t *testing.T) {
	var dev Device
	if err := dev.Configure(&regBus{}, 32); err != phyboot.ErrInvalidAddr {
		t.Errorf("want ErrInvalidAddr, got %v", err)
	}
	if err := dev.Configure(nil, 0); err != phyboot.ErrInvalidConfig {
		t.Errorf("want ErrInvalidConfig, got %v", err)
	}
}

func TestDeviceIDAndReset(t *testing.T) {
	dev, lan, _ := newLAN(t, 1)
	id, err := dev.ID()
	if err != nil {
		t.Fatal(err)
	} else if id != 0x0007c0f1 {
		t.Errorf("want id 0x0007c0f1, got %#08x", id)
	}
	err = dev.SetAdvertisement(NewANAR().With10M())
	if err != nil {
		t.Fatal(err)
	}
	var d ltesto.Delay
	err = dev.ResetPHY(&d)
	if err != nil {
		t.Fatal(err)
	}
	if lan.Resets != 1 {
		t.Errorf("want 1 reset, got %d", lan.Resets)
	}
	ad, _ := dev.Advertisement()
	if ad != 0x01e1 {
		t.Errorf("advertisement not restored by reset: %#x", ad)
	}
	if d.TotalUs > 500_000 {
		t.Errorf("reset wait exceeded 500ms: %dus", d.TotalUs)
	}
}

// stuckReset never clears the reset bit.
type stuckReset struct{ ltesto.RegFile }

func (s *stuckReset) Write(reg uint8, v uint16) { s.RegFile.Write(reg, v|uint16(BMCRReset)) }

func TestDeviceResetTimeout(t *testing.T) {
	bus := &regBus{phys: map[uint8]ltesto.Registers{0: &stuckReset{}}}
	var dev Device
	dev.Configure(bus, 0)
	var d ltesto.Delay
	err := dev.ResetPHY(&d)
	if err != errResetTimeout {
		t.Fatalf("want reset timeout, got %v", err)
	}
	if d.TotalUs != 500_000 {
		t.Errorf("want 500ms of polling, got %dus", d.TotalUs)
	}
}

func TestNegotiate(t *testing.T) {
	dev, lan, _ := newLAN(t, 0)
	lan.SetCable(true)
	err := dev.Negotiate(0)
	if err != nil {
		t.Fatal(err)
	}
	ad, _ := dev.Advertisement()
	if ad != 0x01e1 {
		t.Errorf("want default advertisement 0x01e1, got %#x", ad)
	}
	ctl, _ := dev.BasicControl()
	if ctl&BMCRANEnable == 0 {
		t.Error("autonegotiation not enabled")
	} else if ctl&BMCRANRestart != 0 {
		t.Error("restart bit should self-clear")
	}
	if lan.Restarts != 1 {
		t.Errorf("want 1 restart, got %d", lan.Restarts)
	}
	if err := dev.Negotiate(ANAR10Full); err != phyboot.ErrInvalidConfig {
		t.Errorf("advertisement without selector: want ErrInvalidConfig, got %v", err)
	}
	if err := dev.Negotiate(NewANAR()); err != phyboot.ErrInvalidConfig {
		t.Errorf("advertisement without modes: want ErrInvalidConfig, got %v", err)
	}
}

func TestNegotiateFullDuplexOnly(t *testing.T) {
	ad := NewANAR().With10M().With100M().FullDuplexOnly()
	if ad != 0x0141 {
		t.Fatalf("want full duplex advertisement 0x0141, got %#x", uint16(ad))
	}
	dev, lan, _ := newLAN(t, 0)
	lan.Partner = 0x40c1 // 100M half, 10M full.
	lan.SetCable(true)
	if err := dev.Negotiate(ad); err != nil {
		t.Fatal(err)
	}
	got, _ := dev.Advertisement()
	if got != ad {
		t.Errorf("advertisement not written: want %#x, got %#x", uint16(ad), uint16(got))
	}
	var d ltesto.Delay
	up, err := dev.WaitForLink(&d, 1000)
	if err != nil {
		t.Fatal(err)
	} else if !up {
		t.Fatal("link did not come up")
	}
	// 100M half is the best common mode with the default advertisement.
	mode, err := dev.NegotiatedLink()
	if err != nil {
		t.Fatal(err)
	} else if mode != Link10FDX {
		t.Errorf("want %s, got %s", Link10FDX, mode)
	}
	mode, err = dev.VendorSpeed()
	if err != nil {
		t.Fatal(err)
	} else if mode != Link10FDX {
		t.Errorf("vendor speed: want %s, got %s", Link10FDX, mode)
	}
}

func TestWaitForLink(t *testing.T) {
	dev, lan, _ := newLAN(t, 0)
	lan.NegotiationReads = 4
	lan.SetCable(true)
	if err := dev.Negotiate(0); err != nil {
		t.Fatal(err)
	}
	var d ltesto.Delay
	up, err := dev.WaitForLink(&d, 1000)
	if err != nil {
		t.Fatal(err)
	} else if !up {
		t.Fatal("link did not come up")
	}
	mode, err := dev.NegotiatedLink()
	if err != nil {
		t.Fatal(err)
	} else if mode != Link100FDX {
		t.Errorf("want %s, got %s", Link100FDX, mode)
	}
	vmode, err := dev.VendorSpeed()
	if err != nil {
		t.Fatal(err)
	} else if vmode != mode {
		t.Errorf("vendor speed %s disagrees with standard %s", vmode, mode)
	}

	lan.SetCable(false)
	d = ltesto.Delay{}
	up, err = dev.WaitForLink(&d, 200)
	if err != nil {
		t.Fatal(err)
	} else if up {
		t.Fatal("link up without cable")
	}
	if d.TotalUs != 200_000 {
		t.Errorf("want 200ms waited, got %dus", d.TotalUs)
	}
	_, err = dev.NegotiatedLink()
	if !errors.Is(err, ErrNegotiationPending) {
		t.Errorf("want ErrNegotiationPending, got %v", err)
	}
}

func TestSetupForced(t *testing.T) {
	dev, _, _ := newLAN(t, 0)
	err := dev.SetupForced(Link10FDX)
	if err != nil {
		t.Fatal(err)
	}
	ctl, _ := dev.BasicControl()
	if ctl != BMCRFullDuplex {
		t.Errorf("want %#x, got %#x", BMCRFullDuplex, ctl)
	}
	if err := dev.SetupForced(LinkUnknown); err != phyboot.ErrInvalidConfig {
		t.Errorf("want ErrInvalidConfig, got %v", err)
	}
}

func TestDecodeSpecialStatus(t *testing.T) {
	var tests = []struct {
		v       uint16
		want    LinkMode
		pending bool
	}{
		{v: 0x0040, pending: true},
		{v: 0x1040 | 0b001<<2, want: Link10HDX},
		{v: 0x1040 | 0b101<<2, want: Link10FDX},
		{v: 0x1040 | 0b010<<2, want: Link100HDX},
		{v: 0x1040 | 0b110<<2, want: Link100FDX},
		{v: 0x1040 | 0b111<<2, want: LinkUnknown},
		{v: 0x1040, want: LinkUnknown},
	}
	for _, test := range tests {
		got, err := decodeSpecialStatus(test.v)
		if test.pending != (err == ErrNegotiationPending) {
			t.Errorf("%#x: unexpected error %v", test.v, err)
		}
		if got != test.want {
			t.Errorf("%#x: want %s, got %s", test.v, test.want, got)
		}
	}
}

func TestLinkMode(t *testing.T) {
	var tests = []struct {
		mode   LinkMode
		str    string
		speed  int
		duplex bool
	}{
		{LinkUnknown, "unknown", 0, false},
		{Link10HDX, "10M-H", 10, false},
		{Link10FDX, "10M-F", 10, true},
		{Link100HDX, "100M-H", 100, false},
		{Link100FDX, "100M-F", 100, true},
	}
	for _, test := range tests {
		if s := test.mode.String(); s != test.str {
			t.Errorf("want %q, got %q", test.str, s)
		}
		if test.mode.SpeedMbps() != test.speed || test.mode.IsFullDuplex() != test.duplex {
			t.Errorf("%s: bad speed or duplex", test.mode)
		}
		if test.mode != LinkUnknown && test.mode.ANAR().LinkMode() != test.mode {
			t.Errorf("%s: ANAR round trip failed", test.mode)
		}
	}
	if NewANAR().With10M().With100M() != 0x01e1 {
		t.Error("default advertisement mismatch")
	}
	if (ANAR(0x01e1) & ANAR(0x0061)).LinkMode() != Link10FDX {
		t.Error("expected 10M-F common mode")
	}
}

func TestScanClause22(t *testing.T) {
	bus := &regBus{phys: map[uint8]ltesto.Registers{
		9: ltesto.NewLAN8720(),
		3: ltesto.NewLAN8720(),
	}}
	addr, ok, err := ScanClause22(bus)
	if err != nil || !ok || addr != 3 {
		t.Errorf("want lowest address 3, got %d ok=%v err=%v", addr, ok, err)
	}
	addr, ok, err = ScanClause22(&regBus{})
	if err != nil || ok {
		t.Errorf("empty bus: got addr=%d ok=%v err=%v", addr, ok, err)
	}
	injected := errors.New("bus broken")
	_, _, err = ScanClause22(&regBus{err: injected})
	if err != injected {
		t.Errorf("want bus error, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	lan := ltesto.NewLAN8720()
	p := &ltesto.PHY{Addr: 7, Regs: lan}
	m, bus, d := newSimBus(t, p)
	addr, err := Discover(m, DiscoverConfig{Delay: d})
	if err != nil {
		t.Fatal(err)
	} else if addr != 7 {
		t.Errorf("want address 7, got %d", addr)
	}
	if len(bus.Violations) > 0 {
		t.Errorf("electrical violations: %v", bus.Violations)
	}
}

func TestDiscoverNotFound(t *testing.T) {
	bus := &regBus{}
	var d ltesto.Delay
	_, err := Discover(bus, DiscoverConfig{MaxRounds: 3, Delay: &d})
	if err != phyboot.ErrPhyNotFound {
		t.Fatalf("want ErrPhyNotFound, got %v", err)
	}
	if bus.reads != 3*32 {
		t.Errorf("want %d reads, got %d", 3*32, bus.reads)
	}
	if d.Calls != 3 {
		t.Errorf("want a wait after each round, got %d waits", d.Calls)
	}
	// Backoff doubles from 1us.
	if d.TotalUs != 1+2+4 {
		t.Errorf("want 7us waited, got %dus", d.TotalUs)
	}
	if _, err := Discover(bus, DiscoverConfig{}); err != phyboot.ErrInvalidConfig {
		t.Errorf("missing delay: want ErrInvalidConfig, got %v", err)
	}
}

// lateBus starts answering after a number of reads.
type lateBus struct {
	regBus
	after int
}

func (b *lateBus) Read(phyAddr, regAddr uint8) (uint16, error) {
	if b.reads < b.after {
		b.reads++
		return 0xffff, nil
	}
	return b.regBus.Read(phyAddr, regAddr)
}

func TestDiscoverUnbounded(t *testing.T) {
	bus := &lateBus{
		regBus: regBus{phys: map[uint8]ltesto.Registers{12: ltesto.NewLAN8720()}},
		after:  100 * 32,
	}
	var d ltesto.Delay
	addr, err := Discover(bus, DiscoverConfig{MaxRounds: -1, Delay: &d})
	if err != nil || addr != 12 {
		t.Fatalf("want address 12, got %d err=%v", addr, err)
	}
	if d.Calls != 100 {
		t.Errorf("want 100 empty rounds, got %d", d.Calls)
	}
}
