package phy

import (
	"errors"
	"log/slog"

	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/internal"
)

// SpeedSource selects how the negotiated link mode is decoded.
type SpeedSource uint8

const (
	// SpeedVendor decodes the LAN8720A special control/status register.
	SpeedVendor SpeedSource = iota
	// SpeedStandard decodes the common modes of ANAR and ANLPAR.
	SpeedStandard
)

// EventKind identifies a link state transition.
type EventKind uint8

const (
	_ EventKind = iota
	EventLinkUp
	EventLinkDown
	EventNegotiationDone
	EventNegotiationPending
)

func (k EventKind) String() string {
	switch k {
	case EventLinkUp:
		return "link-up"
	case EventLinkDown:
		return "link-down"
	case EventNegotiationDone:
		return "negotiation-done"
	case EventNegotiationPending:
		return "negotiation-pending"
	}
	return "EventKind(?)"
}

// LinkEvent is a transition observed by [Monitor.Poll]. Speed is only set
// for [EventNegotiationDone].
type LinkEvent struct {
	Kind  EventKind
	Speed LinkMode
}

// LinkState is the link snapshot kept by a [Monitor].
type LinkState struct {
	Up         bool
	Negotiated bool
	// Speed is the mode decoded on the last negotiation complete edge.
	Speed LinkMode
}

// MonitorConfig configures a [Monitor].
type MonitorConfig struct {
	Speed  SpeedSource
	Logger *slog.Logger
}

// Monitor detects link and auto-negotiation edges by polling the status
// register. The initial snapshot is link down, negotiation pending.
type Monitor struct {
	dev   *Device
	src   SpeedSource
	state LinkState
	log   logger
}

// Configure resets the monitor snapshot.
func (m *Monitor) Configure(dev *Device, cfg MonitorConfig) error {
	if dev == nil || dev.mdio == nil {
		return phyboot.ErrInvalidConfig
	} else if cfg.Speed > SpeedStandard {
		return phyboot.ErrInvalidConfig
	}
	*m = Monitor{
		dev: dev,
		src: cfg.Speed,
		log: logger{log: cfg.Logger},
	}
	return nil
}

// State returns the snapshot from the last successful status read.
func (m *Monitor) State() LinkState { return m.state }

// Poll reads the status register once and appends an event for each edge
// since the previous poll to dst: link edges first, then negotiation edges.
// The negotiated speed is only read on the negotiation complete edge.
func (m *Monitor) Poll(dst []LinkEvent) ([]LinkEvent, error) {
	status, err := m.dev.BasicStatus()
	if err != nil {
		return dst, err
	}
	up := status.LinkUp()
	done := status.AutoNegotiationComplete()
	prev := m.state
	m.state.Up = up
	m.state.Negotiated = done
	if up != prev.Up {
		if up {
			dst = append(dst, LinkEvent{Kind: EventLinkUp})
		} else {
			dst = append(dst, LinkEvent{Kind: EventLinkDown})
		}
		m.log.debug("link:edge", slog.Bool("up", up))
	}
	if done == prev.Negotiated {
		return dst, nil
	}
	if !done {
		m.state.Speed = LinkUnknown
		return append(dst, LinkEvent{Kind: EventNegotiationPending}), nil
	}
	speed, err := m.speed()
	if err != nil {
		// Report the edge again on the next poll.
		m.state.Negotiated = false
		return dst, err
	}
	m.state.Speed = speed
	m.log.debug("link:negotiated", slog.String("speed", speed.String()))
	return append(dst, LinkEvent{Kind: EventNegotiationDone, Speed: speed}), nil
}

func (m *Monitor) speed() (mode LinkMode, err error) {
	switch m.src {
	case SpeedStandard:
		var anar, anlpar ANAR
		anar, err = m.dev.Advertisement()
		if err == nil {
			anlpar, err = m.dev.LinkPartnerAdvertisement()
		}
		mode = (anar & anlpar).LinkMode()
	default:
		mode, err = m.dev.VendorSpeed()
	}
	if errors.Is(err, ErrNegotiationPending) {
		return LinkUnknown, nil
	} else if err != nil {
		return LinkUnknown, err
	}
	return mode, nil
}

type logger struct {
	log *slog.Logger
}

func (l logger) enabled(lvl slog.Level) bool { return internal.LogEnabled(l.log, lvl) }

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}
