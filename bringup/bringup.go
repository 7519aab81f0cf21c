// Package bringup sequences the boot of an Ethernet capable board: clock tree,
// delay calibration, management bus, RMII data path, PHY discovery and
// autonegotiation, followed by a link monitoring loop with a heartbeat LED.
package bringup

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/clocks"
	"github.com/soypat/phyboot/delay"
	"github.com/soypat/phyboot/internal"
	"github.com/soypat/phyboot/phy"
	"github.com/soypat/phyboot/pin"
)

// ErrLinkTimeout is returned when the link does not come up within [Config.LinkTimeoutMs].
var ErrLinkTimeout = errors.New("bringup: link timeout")

// DataPath is the RMII data path that carries Ethernet frames once the link
// is up. Its arguments are board specific and passed through untouched.
type DataPath interface {
	InitEth(pins, io, dma, reset any) error
}

// Peripherals holds every hardware handle used during boot. It is constructed
// once by board code and handed over to [Boot].
type Peripherals struct {
	Clocks clocks.Hardware
	// Counter is a free-running microsecond counter. Used for delays
	// when Cycles is nil.
	Counter delay.Counter
	// Cycles is an optional system clock cycle counter, calibrated against
	// the realized system clock frequency.
	Cycles delay.CycleCounter
	MDC    pin.Pin
	MDIO   pin.Pin
	// LED is an optional heartbeat LED.
	LED pin.Pin
	// Eth is the optional data path, initialized with the Eth* handles.
	Eth      DataPath
	EthPins  any
	EthIO    any
	EthDMA   any
	EthReset any
}

// Config configures [Boot]. The zero value boots with the default clock plan,
// advertises every 10/100 mode and does not wait for the link.
type Config struct {
	// Plan is the clock plan. A zero XOSC selects [clocks.DefaultPlan].
	Plan clocks.ClockPlan
	// BitTimeUs is the MDIO half bit time, see [phy.BitBangConfig].
	BitTimeUs uint32
	// SettleMs is the wait before and after data path initialization. Zero selects 1000ms.
	SettleMs uint32
	// Discover bounds PHY discovery. The Delay field is ignored.
	Discover phy.DiscoverConfig
	// Advertisement is written before restarting autonegotiation. Zero advertises every 10/100 mode.
	Advertisement phy.ANAR
	// Forced disables autonegotiation and forces the link mode when not [phy.LinkUnknown].
	Forced phy.LinkMode
	// LinkTimeoutMs makes Boot wait for link when non-zero.
	LinkTimeoutMs uint32
	// PollMs is the link poll period of [System.Run]. Zero selects 500ms.
	PollMs uint32
	Speed  phy.SpeedSource
	Logger *slog.Logger
}

const (
	defaultSettleMs = 1000
	defaultPollMs   = 500
)

// System is a booted board. It owns the management bus and the PHY.
type System struct {
	clocks *clocks.RunningClocks
	delay  delay.Delayer
	bus    phy.MDIOBitBang
	dev    phy.Device
	mon    phy.Monitor
	led    pin.Pin
	ledOn  bool
	pollMs uint32
	events []phy.LinkEvent
	log    logger
}

// Boot brings the board up in order: clock tree, delay calibration, management
// bus, data path, PHY discovery and negotiation. The first failure is returned
// as a [*BootError] naming the stage. Invalid arguments are reported with
// [phyboot.ErrInvalidConfig] before any hardware is touched.
func Boot(p *Peripherals, cfg Config) (*System, error) {
	if p == nil || p.MDC == nil || p.MDIO == nil || (p.Counter == nil && p.Cycles == nil) {
		return nil, phyboot.ErrInvalidConfig
	}
	plan := cfg.Plan
	if plan.XOSC == 0 {
		plan = clocks.DefaultPlan()
	}
	settle := cfg.SettleMs
	if settle == 0 {
		settle = defaultSettleMs
	}
	s := &System{
		led:    p.LED,
		pollMs: cfg.PollMs,
		log:    logger{log: cfg.Logger},
	}
	if s.pollMs == 0 {
		s.pollMs = defaultPollMs
	}

	rc, err := clocks.Initialize(p.Clocks, plan, cfg.Logger)
	if err != nil {
		return nil, s.log.fail(StageClocks, err)
	}
	s.clocks = rc

	if p.Cycles != nil {
		cyc, err := delay.NewCycles(p.Cycles, uint32(rc.SysFreq()))
		if err != nil {
			return nil, s.log.fail(StageClocks, err)
		}
		s.delay = cyc
		s.log.debug("boot:delay", slog.String("src", "cycles"), slog.Uint64("per-us", uint64(cyc.CyclesPerMicro())))
	} else {
		s.delay = delay.Busy{Counter: p.Counter}
		s.log.debug("boot:delay", slog.String("src", "timer"))
	}

	err = s.bus.Configure(p.MDC, p.MDIO, s.delay, phy.BitBangConfig{BitTimeUs: cfg.BitTimeUs, Logger: cfg.Logger})
	if err != nil {
		return nil, s.log.fail(StageMDIO, err)
	}

	s.delay.DelayMs(settle)
	if p.Eth != nil {
		err = p.Eth.InitEth(p.EthPins, p.EthIO, p.EthDMA, p.EthReset)
		if err != nil {
			return nil, s.log.fail(StageDataPath, err)
		}
		s.log.debug("boot:datapath-ok")
	}
	s.delay.DelayMs(settle)

	dcfg := cfg.Discover
	dcfg.Delay = s.delay
	if dcfg.Logger == nil {
		dcfg.Logger = cfg.Logger
	}
	addr, err := phy.Discover(&s.bus, dcfg)
	if err != nil {
		return nil, s.log.fail(StageDiscover, err)
	}
	err = s.dev.Configure(&s.bus, addr)
	if err != nil {
		return nil, s.log.fail(StageDiscover, err)
	}
	if id, err := s.dev.ID(); err == nil {
		s.log.info("boot:phy", slog.Uint64("addr", uint64(addr)), slog.String("id", "0x"+strconv.FormatUint(uint64(id), 16)))
	}

	if cfg.Forced != phy.LinkUnknown {
		err = s.dev.SetupForced(cfg.Forced)
	} else {
		err = s.dev.Negotiate(cfg.Advertisement)
	}
	if err != nil {
		return nil, s.log.fail(StageNegotiate, err)
	}

	if cfg.LinkTimeoutMs > 0 {
		s.log.info("boot:waiting-link", slog.Uint64("timeout-ms", uint64(cfg.LinkTimeoutMs)))
		up, err := s.dev.WaitForLink(s.delay, cfg.LinkTimeoutMs)
		if err == nil && !up {
			err = ErrLinkTimeout
		}
		if err != nil {
			return nil, s.log.fail(StageLink, err)
		}
		s.log.info("boot:link-up")
	}

	err = s.mon.Configure(&s.dev, phy.MonitorConfig{Speed: cfg.Speed, Logger: cfg.Logger})
	if err != nil {
		return nil, s.log.fail(StageNegotiate, err)
	}
	if s.led != nil {
		err = s.led.SetRole(pin.RoleOutput)
		if err == nil {
			err = s.led.Set(false)
		}
		if err != nil {
			s.log.warn("boot:led", slog.String("err", err.Error()))
			s.led = nil
		}
	}
	return s, nil
}

// Clocks returns the running clock tree.
func (s *System) Clocks() *clocks.RunningClocks { return s.clocks }

// PHYAddr returns the address of the discovered PHY.
func (s *System) PHYAddr() uint8 { return s.dev.PHYAddr() }

// Device returns the discovered PHY.
func (s *System) Device() *phy.Device { return &s.dev }

// Link returns the link snapshot of the last poll.
func (s *System) Link() phy.LinkState { return s.mon.State() }

// Step polls the link once, logs transitions and toggles the heartbeat LED.
// The returned slice is reused by the next call.
func (s *System) Step() ([]phy.LinkEvent, error) {
	events, err := s.mon.Poll(s.events[:0])
	s.events = events
	for _, ev := range events {
		switch ev.Kind {
		case phy.EventLinkUp:
			s.log.info("link:up")
		case phy.EventLinkDown:
			s.log.info("link:down")
		case phy.EventNegotiationDone:
			s.log.info("link:negotiated", slog.String("speed", ev.Speed.String()))
		case phy.EventNegotiationPending:
			s.log.info("link:negotiating")
		}
	}
	if internal.HeapAllocDebugging {
		internal.LogAllocs("link:step")
	}
	if s.led != nil {
		s.ledOn = !s.ledOn
		if lerr := s.led.Set(s.ledOn); lerr != nil {
			s.log.warn("heartbeat", slog.String("err", lerr.Error()))
		}
	}
	return events, err
}

// Run calls [System.Step] every poll period until ctx is done or the bus fails.
func (s *System) Run(ctx context.Context) error {
	for {
		_, err := s.Step()
		if err != nil {
			s.log.error("link:poll-failed", slog.String("err", err.Error()))
			return err
		}
		s.delay.DelayMs(s.pollMs)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Halt reports a fatal boot error and never returns. A board without a
// valid clock tree or PHY cannot do anything useful.
func Halt(log *slog.Logger, err error) {
	attrs := []slog.Attr{slog.String("err", err.Error())}
	var berr *BootError
	if errors.As(err, &berr) {
		attrs = append(attrs, slog.String("stage", berr.Stage.String()))
	}
	internal.LogAttrs(log, slog.LevelError, "boot:halt", attrs...)
	for {
		time.Sleep(time.Second)
	}
}
