package eapol

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha1"
	"sync"
	"time"

	"github.com/net80211/station/internal/core/codec/ie"
	"github.com/net80211/station/internal/core/crypto"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
)

func fillRandom(b []byte) (int, error) {
	return crand.Read(b)
}

// Transmitter is the minimal outbound capability the handshake needs: hand
// a fully-formed EAPOL data frame to the TX pipeline. Implemented by
// internal/core/tx.
type Transmitter interface {
	SendEAPOL(dst [6]byte, payload []byte) error
}

// Handshake drives the active M1-M4 exchange for one BSS. It
// satisfies domain.HandshakeHandle so the BSS table can cancel it when a
// scan refresh invalidates the AP's RSN element mid-exchange.
type Handshake struct {
	mu sync.Mutex

	link       *domain.Link
	bss        *domain.BSSEntry
	tx         Transmitter
	clock      ports.Clock
	stationMAC [6]byte

	pmk    []byte
	snonce [32]byte
	ptk    []byte

	// OnComplete is invoked once M4 has been sent and keys installed; the
	// link orchestrator uses it to transition Encrypted -> Associated.
	OnComplete func()
	// OnFailed is invoked with the failure reason; the orchestrator
	// demotes the link to Initialized.
	OnFailed func(reason error)

	done    bool
	timeout ports.Timer
}

const handshakeTimeout = 5 * time.Second

// New starts a handshake awaiting M1 from the AP. The caller must have
// already derived pmk from the join passphrase and the BSS's SSID.
func New(link *domain.Link, bss *domain.BSSEntry, stationMAC [6]byte, pmk []byte, tx Transmitter, clock ports.Clock) *Handshake {
	h := &Handshake{link: link, bss: bss, tx: tx, clock: clock, stationMAC: stationMAC, pmk: pmk}
	h.timeout = clock.AfterFunc(handshakeTimeout, h.onTimeout)
	return h
}

func (h *Handshake) onTimeout() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.mu.Unlock()
	h.fail(domain.ErrTimeout)
}

// Cancel implements domain.HandshakeHandle: it aborts the exchange without
// installing any key, used when the AP's RSN element changes
// mid-handshake.
func (h *Handshake) Cancel(reason error) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.mu.Unlock()
	h.timeout.Stop()
	if h.OnFailed != nil {
		h.OnFailed(reason)
	}
}

func (h *Handshake) fail(reason error) {
	h.timeout.Stop()
	if h.OnFailed != nil {
		h.OnFailed(reason)
	}
}

// HandleFrame processes one inbound EAPOL-Key frame from the AP. The
// caller holds link.Lock (frames reach here from the data receive path,
// which is serialized the same as everything else that mutates handshake
// or key state).
func (h *Handshake) HandleFrame(apAddr [6]byte, payload []byte) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	frame, err := ParseKeyFrame(payload)
	if err != nil {
		return // malformed frames are silently dropped, not fatal to the handshake
	}

	switch frame.DetermineMessageNumber() {
	case 1:
		h.handleM1(apAddr, frame)
	case 3:
		h.handleM3(apAddr, frame)
	default:
		// M2/M4 are never sent by the AP to the station; ignore.
	}
}

func (h *Handshake) handleM1(apAddr [6]byte, m1 *KeyFrame) {
	// The only key data a PSK-mode M1 legitimately carries is a PMKID
	// hint. PMK caching is not implemented, so the hint is ignored and the
	// full derivation runs; anything else in M1's key data marks a frame
	// that belongs to some other exchange, so keep waiting for a real M1.
	if len(m1.KeyData) > 0 && !ie.HasPMKIDKDE(m1.KeyData) {
		return
	}

	if _, err := fillRandom(h.snonce[:]); err != nil {
		h.markDone()
		h.fail(domain.ErrResourceExhausted)
		return
	}

	ptk := crypto.DerivePTK(h.pmk, apAddr, h.stationMAC, m1.Nonce[:], h.snonce[:])

	// M2 carries the station's RSN element in Key Data so the AP can verify
	// the cipher selection was not downgraded in transit. Descriptor version
	// 2 is HMAC-SHA1 MIC with AES key wrap, the CCMP pairing.
	m2 := &KeyFrame{
		DescriptorType: m1.DescriptorType,
		KeyInformation: uint16(2) | keyInfoKeyMIC | keyInfoKeyType,
		ReplayCounter:  m1.ReplayCounter,
		KeyData:        h.bss.Encryption.StationRSN,
	}
	copy(m2.Nonce[:], h.snonce[:])

	if err := h.sendMICed(apAddr, m2, crypto.KCK(ptk)); err != nil {
		h.markDone()
		h.fail(err)
		return
	}

	h.ptk = ptk
}

func (h *Handshake) markDone() {
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()
}

func (h *Handshake) handleM3(apAddr [6]byte, m3 *KeyFrame) {
	if h.ptk == nil {
		return // M3 without a preceding M1 we answered; nothing to validate against
	}

	if !verifyMIC(m3, crypto.KCK(h.ptk)) {
		h.markDone()
		h.fail(domain.ErrIntegrityFailed)
		return
	}

	var gtk []byte
	var gtkKeyID int
	if len(m3.KeyData) > 0 {
		plainKD, err := AESUnwrap(crypto.KEK(h.ptk), m3.KeyData)
		if err == nil {
			gtk, gtkKeyID = ie.FindGTKKDE(plainKD)
		}
	}

	pairwise := domain.NewKey(0, domain.KeyDirectionPairwise, domain.CipherCCMP, crypto.TK(h.ptk))
	h.bss.InstallKey(pairwise)
	if gtk != nil {
		group := domain.NewKey(gtkKeyID, domain.KeyDirectionGroup, domain.CipherCCMP, gtk)
		h.bss.InstallKey(group)
	}
	h.bss.SetRequiresEncryption(true)

	m4 := &KeyFrame{
		DescriptorType: m3.DescriptorType,
		KeyInformation: uint16(2) | keyInfoKeyMIC | keyInfoKeyType | keyInfoSecure,
		ReplayCounter:  m3.ReplayCounter,
	}
	if err := h.sendMICed(apAddr, m4, crypto.KCK(h.ptk)); err != nil {
		h.markDone()
		h.fail(err)
		return
	}

	h.markDone()
	h.timeout.Stop()
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

// sendMICed serializes f, computes the EAPOL-Key MIC over the whole EAPOL
// frame (802.1X header through key data, MIC field zeroed, per IEEE
// 802.11i) and splices it into the MIC field before transmission. f.MIC
// must be its zero value on entry.
func (h *Handshake) sendMICed(apAddr [6]byte, f *KeyFrame, kck []byte) error {
	body := Build(f)
	full := append(EAPOLHeader(len(body)), body...)
	mic := computeMIC(kck, full)
	copy(full[4+keyFrameMICOffset:4+keyFrameMICOffset+16], mic)
	return h.tx.SendEAPOL(apAddr, full)
}

// computeMIC HMAC-SHA1s the full EAPOL frame (4-byte 802.1X header plus
// key body, MIC field zeroed) and truncates to 16 bytes, per IEEE
// 802.11i's EAPOL-Key MIC definition.
func computeMIC(kck, full []byte) []byte {
	mac := hmac.New(sha1.New, kck)
	mac.Write(full)
	sum := mac.Sum(nil)
	return sum[:16]
}

// verifyMIC recomputes the MIC over the full EAPOL frame with the MIC
// field zeroed and compares it against the MIC the AP sent.
func verifyMIC(f *KeyFrame, kck []byte) bool {
	body := Build(f)
	for i := range body[keyFrameMICOffset : keyFrameMICOffset+16] {
		body[keyFrameMICOffset+i] = 0
	}
	full := append(EAPOLHeader(len(body)), body...)
	expected := computeMIC(kck, full)
	return hmac.Equal(expected, f.MIC[:])
}
