// Package ports declares the external collaborator contracts: the
// downward driver shim and the upward network-stack delivery contract.
// The core engine depends only on these interfaces, not on any concrete
// driver or stack implementation.
package ports

import "time"

// Driver is the downward (driver-facing) contract: a capability set the
// hardware-specific radio driver supplies to the core.
type Driver interface {
	// SetChannel tunes the radio to the given channel. It fails with
	// domain.ErrUnsupported if the channel is not in the radio's supported
	// list.
	SetChannel(channel int) error

	// SetState acknowledges a hardware-filter state change driven by the
	// link's state machine.
	SetState(filterState HardwareFilterState) error

	// Submit hands a fully-formed MPDU to hardware for transmission.
	Submit(packet []byte) error

	// SupportedChannels reports the radio's static channel list, consulted
	// by the scan controller and by SetChannel's validation.
	SupportedChannels() []int
}

// HardwareFilterState is the coarse RX/TX filter configuration the driver
// is told to apply as the link moves through its lifecycle.
type HardwareFilterState int

const (
	FilterStateUnassociated HardwareFilterState = iota
	FilterStateConnecting
	FilterStateAssociated
)

// UpperStack is the upward (network-stack-facing) contract: how the core
// delivers decoded data frames and notifies the stack of link changes.
type UpperStack interface {
	// DeliverFrame hands a fully decoded Ethernet-shaped frame upward:
	// destination, source, EtherType and payload, recovered from the 802.11
	// + 802.2 SNAP encapsulation.
	DeliverFrame(dst, src [6]byte, etherType uint16, payload []byte)
}

// Clock abstracts time so state-timer and scan-dwell logic can be tested
// without real sleeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Sleep(d time.Duration)
}

// Timer is the handle returned by Clock.AfterFunc, the deferred-callback
// primitive the two-stage state timer is built on.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}
