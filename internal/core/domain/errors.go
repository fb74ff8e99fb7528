// Package domain holds the core 802.11 station data model: the per-link
// state, the BSS table entries, cipher keys, and the ephemeral scan
// parameter bundle. It has no dependency on gopacket, GORM, or any other
// adapter — those live in internal/core/codec, internal/adapters/*, etc.
package domain

import "errors"

// Error kinds raised by the core engine.
var (
	ErrInvalidState      = errors.New("net80211: event not valid for current link state")
	ErrTimeout           = errors.New("net80211: peer did not respond before state timeout")
	ErrAlreadyScanning   = errors.New("net80211: scan already in progress")
	ErrUnsupported       = errors.New("net80211: channel or feature not supported")
	ErrReplayDetected    = errors.New("net80211: packet number did not advance the replay counter")
	ErrIntegrityFailed   = errors.New("net80211: MIC verification failed")
	ErrMalformed         = errors.New("net80211: frame failed to parse")
	ErrHandshakeFailed   = errors.New("net80211: EAPOL handshake failed")
	ErrResourceExhausted = errors.New("net80211: allocation failure")

	// ErrKeyExhausted is returned by the transmit path when a key's packet
	// number would wrap past 2^48-1. Rekey is required; the core does not
	// auto-rekey.
	ErrKeyExhausted = errors.New("net80211: key packet number exhausted, rekey required")
)
