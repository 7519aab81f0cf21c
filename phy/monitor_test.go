package phy

import (
	"errors"
	"slices"
	"testing"

	"github.com/soypat/phyboot/internal/ltesto"
)

// scriptBus answers status register reads from a script.
type scriptBus struct {
	bmsr    []uint16
	special uint16
	ads     [2]uint16 // ANAR, ANLPAR.
	err     error
}

func (b *scriptBus) Read(phyAddr, regAddr uint8) (uint16, error) {
	if b.err != nil {
		return 0, b.err
	}
	switch regAddr {
	case AddrBMSR:
		v := b.bmsr[0]
		b.bmsr = b.bmsr[1:]
		return v, nil
	case AddrANAR:
		return b.ads[0], nil
	case AddrANLPAR:
		return b.ads[1], nil
	case regLANSpecialStatus:
		return b.special, nil
	}
	return 0, nil
}

func (b *scriptBus) Write(phyAddr, regAddr uint8, v uint16) error { return b.err }

func newMonitor(t *testing.T, bus MDIOBus, src SpeedSource) *Monitor {
	t.Helper()
	var dev Device
	if err := dev.Configure(bus, 0); err != nil {
		t.Fatal(err)
	}
	var m Monitor
	if err := m.Configure(&dev, MonitorConfig{Speed: src}); err != nil {
		t.Fatal(err)
	}
	return &m
}

func TestMonitorLinkEdges(t *testing.T) {
	bus := &scriptBus{bmsr: []uint16{0, 0, 4, 4, 0}}
	m := newMonitor(t, bus, SpeedVendor)
	want := [][]LinkEvent{
		nil,
		nil,
		{{Kind: EventLinkUp}},
		nil,
		{{Kind: EventLinkDown}},
	}
	var buf [4]LinkEvent
	for i, w := range want {
		got, err := m.Poll(buf[:0])
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, w) {
			t.Errorf("poll %d: want %v, got %v", i, w, got)
		}
	}
	if m.State().Up {
		t.Error("state should be link down")
	}
}

func TestMonitorNegotiation(t *testing.T) {
	const done = 0x0020 | 0x0004
	bus := &scriptBus{
		bmsr:    []uint16{0, done, done, 0x0004, done},
		special: 0x1040 | 0b010<<2,
	}
	m := newMonitor(t, bus, SpeedVendor)
	want := [][]LinkEvent{
		nil,
		{{Kind: EventLinkUp}, {Kind: EventNegotiationDone, Speed: Link100HDX}},
		nil,
		{{Kind: EventNegotiationPending}},
		{{Kind: EventNegotiationDone, Speed: Link100HDX}},
	}
	for i, w := range want {
		got, err := m.Poll(nil)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, w) {
			t.Errorf("poll %d: want %v, got %v", i, w, got)
		}
	}
	st := m.State()
	if !st.Up || !st.Negotiated || st.Speed != Link100HDX {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestMonitorSpeedSources(t *testing.T) {
	const done = 0x0020 | 0x0004
	var tests = []struct {
		src     SpeedSource
		special uint16
		ads     [2]uint16
		want    LinkMode
	}{
		{src: SpeedVendor, special: 0x1040 | 0b101<<2, want: Link10FDX},
		{src: SpeedVendor, special: 0x1040 | 0b111<<2, want: LinkUnknown}, // undecodable.
		{src: SpeedVendor, special: 0x0040, want: LinkUnknown},            // autodone clear.
		{src: SpeedStandard, ads: [2]uint16{0x01e1, 0x0061}, want: Link10FDX},
		{src: SpeedStandard, ads: [2]uint16{0x0181, 0x0061}, want: LinkUnknown},
	}
	for _, test := range tests {
		bus := &scriptBus{bmsr: []uint16{done}, special: test.special, ads: test.ads}
		m := newMonitor(t, bus, test.src)
		got, err := m.Poll(nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[1].Kind != EventNegotiationDone || got[1].Speed != test.want {
			t.Errorf("%+v: got events %v", test, got)
		}
	}
}

func TestMonitorError(t *testing.T) {
	injected := errors.New("bus broken")
	bus := &scriptBus{err: injected}
	m := newMonitor(t, bus, SpeedVendor)
	_, err := m.Poll(nil)
	if err != injected {
		t.Fatalf("want bus error, got %v", err)
	}
	if m.State() != (LinkState{}) {
		t.Error("state changed on failed read")
	}
}

func TestMonitorLAN8720(t *testing.T) {
	lan := ltesto.NewLAN8720()
	lan.NegotiationReads = 2
	lan.Partner = 0x4061 // 10M only.
	p := &ltesto.PHY{Addr: 1, Regs: lan}
	bus, _, _ := newSimBus(t, p)
	var dev Device
	dev.Configure(bus, 1)
	if err := dev.Negotiate(0); err != nil {
		t.Fatal(err)
	}
	var m Monitor
	m.Configure(&dev, MonitorConfig{})
	lan.SetCable(true)
	var events []LinkEvent
	for i := 0; i < 5; i++ {
		var err error
		events, err = m.Poll(events)
		if err != nil {
			t.Fatal(err)
		}
	}
	want := []LinkEvent{{Kind: EventLinkUp}, {Kind: EventNegotiationDone, Speed: Link10FDX}}
	if !slices.Equal(events, want) {
		t.Errorf("want %v, got %v", want, events)
	}
	lan.SetCable(false)
	events, _ = m.Poll(events[:0])
	want = []LinkEvent{{Kind: EventLinkDown}, {Kind: EventNegotiationPending}}
	if !slices.Equal(events, want) {
		t.Errorf("want %v, got %v", want, events)
	}
}
