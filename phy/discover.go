package phy

import (
	"log/slog"
	"time"

	"github.com/jpillora/backoff"
	"github.com/soypat/phyboot"
	"github.com/soypat/phyboot/delay"
)

// absent is the value read back from an address no PHY answers on; the line
// stays at the pull-up level for every data bit.
const absent = 0xffff

// ScanClause22 performs a single ascending scan of addresses 0..31, reading the
// control register of each. The first address that does not read back as
// 0xffff is returned with ok=true. Bus errors abort the scan.
func ScanClause22(mdio MDIOBus) (addr uint8, ok bool, err error) {
	for a := uint8(0); a <= phyboot.MaxPHYAddr; a++ {
		val, err := mdio.Read(a, AddrBMCR)
		if err != nil {
			return 0, false, err
		}
		if val != absent {
			return a, true, nil
		}
	}
	return 0, false, nil
}

// DiscoverConfig configures [Discover].
type DiscoverConfig struct {
	// MaxRounds bounds the number of full scans. Zero selects 16 rounds.
	// A negative value scans until a PHY answers, which may never return.
	MaxRounds int
	// MinWait and MaxWait bound the wait between rounds which grows
	// exponentially. Zero values select 1us and 100ms.
	MinWait time.Duration
	MaxWait time.Duration
	// Delay waits between rounds. Required.
	Delay  delay.Delayer
	Logger *slog.Logger
}

const defaultDiscoverRounds = 16

// Discover scans the bus until a PHY answers and returns its address.
// PHYs may take time to come out of reset after the data path is initialized,
// so scans are repeated with a backoff wait between rounds.
// Returns [phyboot.ErrPhyNotFound] when the rounds are exhausted.
func Discover(mdio MDIOBus, cfg DiscoverConfig) (uint8, error) {
	if mdio == nil || cfg.Delay == nil {
		return 0, phyboot.ErrInvalidConfig
	}
	rounds := cfg.MaxRounds
	if rounds == 0 {
		rounds = defaultDiscoverRounds
	}
	b := &backoff.Backoff{
		Min:    cfg.MinWait,
		Max:    cfg.MaxWait,
		Factor: 2,
		Jitter: false,
	}
	if b.Min <= 0 {
		b.Min = time.Microsecond
	}
	if b.Max <= 0 {
		b.Max = 100 * time.Millisecond
	}
	l := logger{log: cfg.Logger}
	for round := 0; rounds < 0 || round < rounds; round++ {
		addr, ok, err := ScanClause22(mdio)
		if err != nil {
			return 0, err
		} else if ok {
			l.info("phy:found", slog.Uint64("addr", uint64(addr)), slog.Int("round", round))
			return addr, nil
		}
		wait := b.Duration()
		l.debug("phy:scan-empty", slog.Int("round", round), slog.Duration("wait", wait))
		cfg.Delay.DelayUs(uint32(wait / time.Microsecond))
	}
	l.error("phy:not-found", slog.Int("rounds", rounds))
	return 0, phyboot.ErrPhyNotFound
}
