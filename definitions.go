// Package phyboot brings an Ethernet PHY online on a microcontroller: it starts
// the clock tree, bit-bangs the IEEE 802.3 clause 22 management interface (MDIO/MDC)
// over two GPIO lines and tracks the link state of the discovered transceiver.
//
// The subpackages are:
//   - [github.com/soypat/phyboot/clocks]: crystal oscillator, PLL and derived clock bring-up.
//   - [github.com/soypat/phyboot/delay]: wraparound-safe busy-wait delays.
//   - [github.com/soypat/phyboot/pin]: GPIO pin abstraction and backends.
//   - [github.com/soypat/phyboot/phy]: MDIO bit-bang engine, PHY register access, discovery and link monitor.
//   - [github.com/soypat/phyboot/bringup]: the boot sequence tying all of the above together.
package phyboot

// MaxPHYAddr is the largest address on a clause 22 management bus.
const MaxPHYAddr = 31
