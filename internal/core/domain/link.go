package domain

import (
	"sync"
	"sync/atomic"
)

// RadioProperties are the static capabilities of the underlying hardware.
type RadioProperties struct {
	MACAddress        [6]byte
	SupportedChannels []int
	Capabilities      uint16
}

// SupportsChannel reports whether ch is in the radio's supported list.
func (p RadioProperties) SupportsChannel(ch int) bool {
	for _, c := range p.SupportedChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// Link is the top-level per-interface object. All state mutation —
// transitions, BSS list changes, active-BSS swaps, pause/resume, scan
// start — is serialized by Lock. The sequence counter and per-key packet
// numbers are atomic and are NOT protected by Lock.
type Link struct {
	Lock sync.Mutex // the link lock: serializes everything below

	Name string // interface name, for logs/metrics labels

	State LinkState
	Flags LinkFlag

	// seq is the 12-bit outbound sequence counter, atomically
	// allocated and wrapping at 4096.
	seq uint32

	BSSList   []*BSSEntry
	ActiveBSS *BSSEntry // a counted reference distinct from list membership

	PausedPackets [][]byte

	Properties RadioProperties

	// refCount is the link's own reference count.
	refCount int32
}

// NewLink creates a link in the Uninitialized state with a reference count
// of 1. Data traffic starts paused; only entering Associated clears the
// flag.
func NewLink(name string, props RadioProperties) *Link {
	return &Link{Name: name, State: StateUninitialized, Flags: FlagDataPaused, Properties: props, refCount: 1}
}

// NextSequenceNumber atomically allocates the next sequence number,
// wrapping modulo 4096.
func (l *Link) NextSequenceNumber() uint16 {
	for {
		cur := atomic.LoadUint32(&l.seq)
		next := (cur + 1) % 4096
		if atomic.CompareAndSwapUint32(&l.seq, cur, next) {
			return uint16(next)
		}
	}
}

// CurrentSequenceNumber returns the last allocated sequence number, for
// tests.
func (l *Link) CurrentSequenceNumber() uint16 {
	return uint16(atomic.LoadUint32(&l.seq))
}

// AddRef/Release implement the link's own reference counting. Release only
// decrements the count and returns the new value; it tears nothing down,
// not even at zero. Timer and BSS-list teardown is done by Station.Close.
func (l *Link) AddRef() {
	atomic.AddInt32(&l.refCount, 1)
}

func (l *Link) Release() int32 {
	return atomic.AddInt32(&l.refCount, -1)
}

func (l *Link) RefCount() int32 {
	return atomic.LoadInt32(&l.refCount)
}

// IsDataPaused reports the data-paused flag. Caller must hold Lock for a
// consistent read relative to other flag/state mutation, though the flag
// itself is just a plain field guarded by convention like the rest of Link.
func (l *Link) IsDataPaused() bool {
	return l.Flags&FlagDataPaused != 0
}
