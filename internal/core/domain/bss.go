package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// MaxSSIDLength and MaxPassphraseLength bound SSID and passphrase inputs.
const (
	MaxSSIDLength       = 32
	MaxPassphraseLength = 64
)

// BSSDescriptor is the radio-observable description of a BSS, refreshed on
// every beacon/probe-response.
type BSSDescriptor struct {
	BSSID          [6]byte
	SSID           string
	Channel        int
	BeaconInterval time.Duration
	Capabilities   uint16
	RSSI           int
	SupportedRates []byte
	Timestamp      uint64 // TSF timestamp from the most recent beacon/probe resp
}

// Encryption holds the negotiated ciphers, installed keys and RSN element
// bytes for a BSS.
type Encryption struct {
	Pairwise   Cipher
	Group      Cipher
	Keys       [MaxKeyCount]*Key
	ApRSN      []byte // immutable once installed
	StationRSN []byte
}

// HandshakeHandle is satisfied by *eapol.Handshake; declared here (rather
// than imported) to avoid a domain -> eapol dependency cycle, since the
// handshake package needs domain types.
type HandshakeHandle interface {
	Cancel(reason error)
}

// BSSEntry is a discovered or targeted network. It is reference
// counted: list membership holds one reference, the active-BSS slot holds
// a distinct reference, and transient users (frame handlers, the state
// machine) acquire their own via AddRef/Release.
type BSSEntry struct {
	mu sync.Mutex

	refCount int32 // atomic

	Descriptor BSSDescriptor
	Encryption Encryption
	Handshake  HandshakeHandle // present only during the 4-way handshake

	Flags BSSFlag

	SSID       string // join-request copy, preserved across beacon refreshes
	Passphrase string

	onFree func(*BSSEntry) // invoked once, when refCount reaches zero
}

// NewBSSEntry creates an entry with reference count 1 (the caller's, which
// is normally immediately handed to the BSS table's list membership).
func NewBSSEntry(desc BSSDescriptor) *BSSEntry {
	return &BSSEntry{Descriptor: desc, refCount: 1}
}

// AddRef increments the reference count. Safe to call concurrently.
func (b *BSSEntry) AddRef() {
	atomic.AddInt32(&b.refCount, 1)
}

// Release decrements the reference count, invoking onFree exactly once when
// it reaches zero; an entry is freed exactly when its count reaches 0.
func (b *BSSEntry) Release() {
	if atomic.AddInt32(&b.refCount, -1) == 0 {
		if b.onFree != nil {
			b.onFree(b)
		}
	}
}

// RefCount returns the current reference count, for tests and invariants.
func (b *BSSEntry) RefCount() int32 {
	return atomic.LoadInt32(&b.refCount)
}

// setOnFree installs the callback Release invokes at zero. The BSS table
// does not install one, so its entries have no free callback.
func (b *BSSEntry) setOnFree(f func(*BSSEntry)) {
	b.onFree = f
}

// RefreshFromScan applies a beacon/probe-response update under the entry's
// own lock, implementing the BSS-table tie-breaking rule:
// signal strength, rates, capabilities and timestamp are overwritten; SSID
// and passphrase are preserved from the join request; the RSN element is
// replaced only when it differs byte-for-byte, and replacement invalidates
// any in-progress handshake.
func (b *BSSEntry) RefreshFromScan(desc BSSDescriptor, newApRSN []byte) (rsnChanged bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Descriptor.RSSI = desc.RSSI
	b.Descriptor.SupportedRates = desc.SupportedRates
	b.Descriptor.Capabilities = desc.Capabilities
	b.Descriptor.Timestamp = desc.Timestamp
	b.Descriptor.BeaconInterval = desc.BeaconInterval
	// BSSID/SSID/Channel are identity fields and not overwritten here; the
	// table looks the entry up by BSSID before calling RefreshFromScan.

	if !bytesEqual(b.Encryption.ApRSN, newApRSN) {
		rsnChanged = true
		b.Encryption.ApRSN = newApRSN
		if b.Handshake != nil {
			b.Handshake.Cancel(ErrHandshakeFailed)
			b.Handshake = nil
		}
	}
	return rsnChanged
}

// SetStationRSN records the RSN element the station advertised in its
// association request, the counterpart of ApRSN: both are present exactly
// when the pairwise cipher is not None. Immutable once the handshake
// starts.
func (b *BSSEntry) SetStationRSN(rsn []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Encryption.StationRSN = append([]byte(nil), rsn...)
}

// SetJoinParameters seeds SSID/passphrase from a join request; called once,
// before the first authenticate attempt.
func (b *BSSEntry) SetJoinParameters(ssid, passphrase string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SSID = ssid
	b.Passphrase = passphrase
}

// InstallKey installs a key at the given id. Spec §3 invariant: keys are
// installed only in ascending id order during the 4-way handshake; this is
// enforced by the EAPOL handshake, not here, since out-of-band
// (non-handshake, e.g. WEP) key installs are legal.
func (b *BSSEntry) InstallKey(k *Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Encryption.Keys[k.ID] = k
}

// Key returns the installed key for id, or nil.
func (b *BSSEntry) Key(id int) *Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 || id >= MaxKeyCount {
		return nil
	}
	return b.Encryption.Keys[id]
}

// RequiresEncryption reports whether outbound data frames on this BSS must
// be encrypted.
func (b *BSSEntry) RequiresEncryption() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Flags&FlagEncryptData != 0
}

func (b *BSSEntry) SetRequiresEncryption(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.Flags |= FlagEncryptData
	} else {
		b.Flags &^= FlagEncryptData
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
