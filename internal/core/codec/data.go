package codec

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/domain"
)

// DataFrame is a decoded 802.11 data MPDU's address and protection fields,
// the input to the decrypt/decap and handshake-dispatch steps of the
// receive path.
type DataFrame struct {
	// Receiver/Transmitter are Address1/Address2 exactly as carried on the
	// wire (RA/TA), independent of to-DS/from-DS direction: the CCMP
	// nonce's "source address" is always TA, and per-sender
	// duplicate suppression and the CCMP AAD must
	// key off the real MAC-layer addresses, not the logical source/
	// destination of the encapsulated payload.
	Receiver    [6]byte
	Transmitter [6]byte
	// Address1/Address2/Address3 are the raw MPDU addresses in wire order,
	// used directly to build the CCMP AAD.
	Address1    [6]byte
	Address2    [6]byte
	Address3    [6]byte
	BSSID       [6]byte
	Source      [6]byte
	Destination [6]byte

	SequenceNumber uint16
	Retry          bool
	Protected      bool

	FrameControl  uint16
	SequenceField uint16

	// Payload is everything after the 802.11 (and, for QoS, QoS control)
	// header: the CCMP header + ciphertext, or plaintext LLC/SNAP + data.
	Payload []byte
}

// ParseDataFrame extracts addressing from a classified data frame.
// Station traffic is sent to-DS=1/from-DS=0 and frames received from the
// AP carry from-DS=1; those two DS combinations are parsed, and any other
// combination is rejected with an error.
func ParseDataFrame(c *Classified) (*DataFrame, error) {
	d := c.Dot11
	f := &DataFrame{
		SequenceNumber: d.SequenceNumber,
		Retry:          d.Flags.Retry(),
		Protected:      d.Flags.WEP(),
		SequenceField:  d.SequenceNumber,
	}

	toDS, fromDS := d.Flags.ToDS(), d.Flags.FromDS()
	switch {
	case !toDS && fromDS: // AP -> station
		f.Destination = addr(d.Address1)
		f.BSSID = addr(d.Address2)
		f.Source = addr(d.Address3)
	case toDS && !fromDS: // station -> AP
		f.BSSID = addr(d.Address1)
		f.Source = addr(d.Address2)
		f.Destination = addr(d.Address3)
	default:
		return nil, domain.ErrUnsupported // IBSS/WDS frames are out of scope
	}
	f.Address1 = addr(d.Address1)
	f.Address2 = addr(d.Address2)
	f.Address3 = addr(d.Address3)
	f.Receiver = f.Address1
	f.Transmitter = f.Address2

	// Frame control and sequence control are read straight off the wire
	// bytes rather than re-derived from gopacket's decoded fields, so the
	// CCMP AAD is built from exactly what was transmitted.
	if raw := d.LayerContents(); len(raw) >= 4 {
		f.FrameControl = uint16(raw[0]) | uint16(raw[1])<<8
	}
	if raw := d.LayerContents(); len(raw) >= 24 {
		f.SequenceField = uint16(raw[22]) | uint16(raw[23])<<8
	}

	f.Payload = d.LayerPayload()
	return f, nil
}

func addr(hw []byte) (out [6]byte) {
	copy(out[:], hw)
	return out
}

// EAPOLEtherType marks the SNAP-encapsulated protocol carrying handshake
// traffic; frames with it are routed to the handshake handle instead of
// the upper stack.
const EAPOLEtherType = uint16(layers.EthernetTypeEAPOL)

// DecapSNAP strips the 802.2 LLC/SNAP header from a plaintext data
// payload, returning the recovered EtherType and inner payload.
func DecapSNAP(plaintext []byte) (etherType uint16, inner []byte, err error) {
	packet := gopacket.NewPacket(plaintext, layers.LayerTypeLLC, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	snapLayer := packet.Layer(layers.LayerTypeSNAP)
	if snapLayer == nil {
		return 0, nil, domain.ErrMalformed
	}
	snap, ok := snapLayer.(*layers.SNAP)
	if !ok {
		return 0, nil, domain.ErrMalformed
	}
	return uint16(snap.Type), snap.LayerPayload(), nil
}
