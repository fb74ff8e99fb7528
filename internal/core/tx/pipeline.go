// Package tx implements the outbound data pipeline: SNAP encapsulation,
// 802.11 data header assembly, optional encryption, the pause queue, and
// sequence numbering. Frames are assembled with gopacket.SerializeLayers.
package tx

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/codec"
	"github.com/net80211/station/internal/core/crypto"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
)

// Pipeline assembles and, depending on link state, either queues or
// submits outbound frames. It holds no state of its own beyond its
// collaborators; all mutable state (pause queue, sequence counter,
// active BSS) lives on domain.Link.
type Pipeline struct {
	Link   *domain.Link
	Driver ports.Driver
}

// New constructs a Pipeline bound to link and driver.
func New(link *domain.Link, driver ports.Driver) *Pipeline {
	return &Pipeline{Link: link, Driver: driver}
}

// Send builds one outbound data MPDU and hands it to the driver, or to the
// pause queue if the link isn't ready. The caller must hold
// link.Lock; srcMAC/dstMAC are Ethernet-shape addresses, dstMAC the zero
// value meaning broadcast.
func (p *Pipeline) Send(srcMAC, dstMAC [6]byte, etherType uint16, payload []byte) error {
	l := p.Link

	active := l.ActiveBSS
	if active == nil {
		return domain.ErrInvalidState
	}

	if dstMAC == ([6]byte{}) {
		dstMAC = broadcastMAC
	}

	frame, err := p.assemble(active, srcMAC, dstMAC, etherType, payload, false)
	if err != nil {
		return err
	}

	if l.IsDataPaused() {
		l.PausedPackets = append(l.PausedPackets, frame)
		return nil
	}
	return p.Driver.Submit(frame)
}

// SendEAPOL implements eapol.Transmitter: EAPOL frames bypass the pause
// queue entirely, since they are exactly what completes the handshake that
// clears data-paused in the first place.
func (p *Pipeline) SendEAPOL(dst [6]byte, payload []byte) error {
	l := p.Link
	active := l.ActiveBSS
	if active == nil {
		return domain.ErrInvalidState
	}
	frame, err := p.assemble(active, l.Properties.MACAddress, dst, codec.EAPOLEtherType, payload, true)
	if err != nil {
		return err
	}
	return p.Driver.Submit(frame)
}

func (p *Pipeline) assemble(active *domain.BSSEntry, srcMAC, dstMAC [6]byte, etherType uint16, payload []byte, isEAPOL bool) ([]byte, error) {
	l := p.Link

	snap := &layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: layers.EthernetType(etherType)}
	llc := &layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03}

	seq := l.NextSequenceNumber()
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeData,
		Flags:          layers.Dot11Flags(0x01), // to-DS=1, from-DS=0
		Address1:       active.Descriptor.BSSID[:],
		Address2:       srcMAC[:],
		Address3:       dstMAC[:],
		SequenceNumber: seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &layers.RadioTap{}, dot11, llc, snap, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("net80211: assemble frame: %w", err)
	}
	plain := buf.Bytes()

	if !isEAPOL && active.RequiresEncryption() {
		key := active.Key(0) // pairwise key always installed at id 0
		if key == nil {
			return nil, domain.ErrInvalidState
		}
		return p.encryptFrame(plain, active, key)
	}
	return plain, nil
}

// encryptFrame re-serializes the 802.11 header followed by the CCMP
// header + ciphertext + MIC in place of the plaintext body.
func (p *Pipeline) encryptFrame(plain []byte, active *domain.BSSEntry, key *domain.Key) ([]byte, error) {
	c, err := codec.Classify(plain)
	if err != nil {
		return nil, err
	}
	df, err := codec.ParseDataFrame(c)
	if err != nil {
		return nil, err
	}

	// The cipher enum on the key picks the sealing path.
	var sealed []byte
	switch key.Cipher {
	case domain.CipherWEP:
		sealed, err = crypto.EncryptWEP(key, df.Payload)
	default:
		aad := crypto.BuildAAD(df.FrameControl, df.Address1, df.Address2, df.Address3, df.SequenceField, nil)
		sealed, err = crypto.Encrypt(key, 0, df.Transmitter, aad, df.Payload)
	}
	if err != nil {
		return nil, err
	}

	headerLen := len(plain) - len(df.Payload)
	out := make([]byte, 0, headerLen+len(sealed))
	out = append(out, plain[:headerLen]...)
	out = append(out, sealed...)
	// set the protected bit (bit 6 of the second frame-control byte)
	out[headerLenRadiotapOffset(out)+1] |= 0x40
	return out, nil
}

// Pause sets the data-paused flag directly, for callers (e.g. a background
// scan) that need to hold outbound traffic without a full state
// transition. The caller must hold link.Lock.
func (p *Pipeline) Pause() {
	p.Link.Flags |= domain.FlagDataPaused
}

// Drain flushes previously queued packets to the driver in FIFO order. It
// is installed as the state machine's DrainPaused hook. The caller must
// hold link.Lock.
func (p *Pipeline) Drain(packets [][]byte) {
	for _, frame := range packets {
		if err := p.Driver.Submit(frame); err != nil {
			// Submission failures here are not retried: the frame is
			// already built and sequenced, and retrying risks reordering
			// later-queued frames ahead of it.
			continue
		}
	}
}

var broadcastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// headerLenRadiotapOffset locates the frame-control field's offset within
// the fully serialized buffer, accounting for the variable-length radiotap
// header that precedes the 802.11 MAC header.
func headerLenRadiotapOffset(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}
	// RadioTap's length field is a little-endian uint16 at byte offset 2.
	return int(buf[2]) | int(buf[3])<<8
}
