package domain

// LinkState is the per-link 802.11 lifecycle state. It is
// totally ordered for monitoring purposes, but transitions between states
// are not monotonic: failures fall back to Initialized from any connected
// state.
type LinkState int

const (
	StateUninitialized LinkState = iota
	StateInitialized
	StateProbing
	StateAuthenticating
	StateAssociating
	StateEncrypted
	StateAssociated
	StateReassociating
)

func (s LinkState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateProbing:
		return "Probing"
	case StateAuthenticating:
		return "Authenticating"
	case StateAssociating:
		return "Associating"
	case StateEncrypted:
		return "Encrypted"
	case StateAssociated:
		return "Associated"
	case StateReassociating:
		return "Reassociating"
	default:
		return "Unknown"
	}
}

// IsConnected reports whether the state has an active BSS associated with
// it.
func (s LinkState) IsConnected() bool {
	switch s {
	case StateAssociating, StateEncrypted, StateAssociated, StateReassociating:
		return true
	default:
		return false
	}
}

// ExpectsTimer reports whether entering this state arms the state-transition
// timer.
func (s LinkState) ExpectsTimer() bool {
	switch s {
	case StateProbing, StateAuthenticating, StateAssociating, StateEncrypted:
		return true
	default:
		return false
	}
}

// LinkFlag is a bitmask flag on the Link.
type LinkFlag uint32

const (
	// FlagDataPaused holds outbound data traffic on the pause queue
	// instead of handing it to the driver.
	FlagDataPaused LinkFlag = 1 << iota
	// FlagTimerQueued is the epoch bit guarding the two-stage state timer
	// against stale completions.
	FlagTimerQueued
)

// BSSFlag is a bitmask flag on a BSSEntry.
type BSSFlag uint32

const (
	// FlagEncryptData marks a BSS entry as requiring the TX pipeline to
	// encrypt outbound data frames.
	FlagEncryptData BSSFlag = 1 << iota
)

// ScanFlag controls scan-controller behavior.
type ScanFlag uint32

const (
	ScanFlagBackground ScanFlag = 1 << iota
	ScanFlagBroadcast
	ScanFlagJoin
)
