// Package eapol implements the station side of the WPA/WPA2-PSK 4-way
// handshake: parsing and building EAPOL-Key frames and driving the M1-M4
// exchange to derive and install the PTK/GTK.
package eapol

import (
	"encoding/binary"

	"github.com/net80211/station/internal/core/domain"
)

// Key Information field bit masks (IEEE 802.11i figure 8-33).
const (
	keyInfoDescriptorVersionMask = 0x0007
	keyInfoKeyType               = 1 << 3 // 1 = pairwise, 0 = group
	keyInfoKeyIndexMask          = 0x0030
	keyInfoInstall               = 1 << 6
	keyInfoKeyAck                = 1 << 7
	keyInfoKeyMIC                = 1 << 8
	keyInfoSecure                = 1 << 9
	keyInfoError                 = 1 << 10
	keyInfoRequest               = 1 << 11
	keyInfoEncryptedKeyData      = 1 << 12
)

const keyFrameFixedLen = 95 // everything up to and including KeyDataLength

// keyFrameMICOffset is the MIC field's byte offset within a serialized
// KeyFrame body (not counting the 4-byte EAPOL header in front of it).
const keyFrameMICOffset = 77

// KeyFrame is a parsed EAPOL-Key frame body (the payload following the
// 4-byte EAPOL header).
type KeyFrame struct {
	DescriptorType uint8
	KeyInformation uint16
	KeyLength      uint16
	ReplayCounter  uint64
	Nonce          [32]byte
	KeyIV          [16]byte
	KeyRSC         uint64
	MIC            [16]byte
	KeyData        []byte

	micOffset int // byte offset of MIC within the serialized frame, for MIC computation
}

func (f *KeyFrame) HasMIC() bool     { return f.KeyInformation&keyInfoKeyMIC != 0 }
func (f *KeyFrame) HasAck() bool     { return f.KeyInformation&keyInfoKeyAck != 0 }
func (f *KeyFrame) IsPairwise() bool { return f.KeyInformation&keyInfoKeyType != 0 }
func (f *KeyFrame) IsSecure() bool   { return f.KeyInformation&keyInfoSecure != 0 }
func (f *KeyFrame) KeyIndex() int    { return int(f.KeyInformation&keyInfoKeyIndexMask) >> 4 }

// ParseKeyFrame parses the payload of an EAPOL frame already classified as
// Type=Key (packet type 3 in the 802.1X header).
func ParseKeyFrame(payload []byte) (*KeyFrame, error) {
	if len(payload) < keyFrameFixedLen {
		return nil, domain.ErrMalformed
	}
	f := &KeyFrame{}
	f.DescriptorType = payload[0]
	f.KeyInformation = binary.BigEndian.Uint16(payload[1:3])
	f.KeyLength = binary.BigEndian.Uint16(payload[3:5])
	f.ReplayCounter = binary.BigEndian.Uint64(payload[5:13])
	copy(f.Nonce[:], payload[13:45])
	copy(f.KeyIV[:], payload[45:61])
	f.KeyRSC = binary.BigEndian.Uint64(payload[61:69])
	// bytes 69:77 are the reserved Key ID field, not decoded.
	copy(f.MIC[:], payload[keyFrameMICOffset:keyFrameMICOffset+16])
	f.micOffset = keyFrameMICOffset
	dataLen := int(binary.BigEndian.Uint16(payload[93:95]))
	if dataLen > 0 {
		if len(payload) < keyFrameFixedLen+dataLen {
			return nil, domain.ErrMalformed
		}
		f.KeyData = append([]byte(nil), payload[keyFrameFixedLen:keyFrameFixedLen+dataLen]...)
	}
	return f, nil
}

// DetermineMessageNumber infers which of M1-M4 a parsed frame is from its
// Ack/MIC/Secure/KeyData combination; the station has to recognize
// unsolicited or reordered frames from the AP, not just the expected next
// message.
func (f *KeyFrame) DetermineMessageNumber() int {
	if !f.IsPairwise() {
		return 0
	}
	if !f.HasMIC() {
		if f.HasAck() {
			return 1
		}
		return 0
	}
	if f.HasAck() {
		return 3
	}
	if !f.IsSecure() {
		if len(f.KeyData) == 0 {
			return 4
		}
		return 2
	}
	if len(f.KeyData) > 0 {
		return 2
	}
	return 4
}

// Build serializes a KeyFrame body (before MIC computation fills in the MIC
// field) for M2 or M4.
func Build(f *KeyFrame) []byte {
	out := make([]byte, keyFrameFixedLen+len(f.KeyData))
	out[0] = f.DescriptorType
	binary.BigEndian.PutUint16(out[1:3], f.KeyInformation)
	binary.BigEndian.PutUint16(out[3:5], f.KeyLength)
	binary.BigEndian.PutUint64(out[5:13], f.ReplayCounter)
	copy(out[13:45], f.Nonce[:])
	copy(out[45:61], f.KeyIV[:])
	binary.BigEndian.PutUint64(out[61:69], f.KeyRSC)
	copy(out[keyFrameMICOffset:keyFrameMICOffset+16], f.MIC[:])
	binary.BigEndian.PutUint16(out[93:95], uint16(len(f.KeyData)))
	copy(out[95:], f.KeyData)
	return out
}

// EAPOLHeader prepends the 4-byte 802.1X header (version, type=Key,
// length) in front of a serialized KeyFrame body.
func EAPOLHeader(bodyLen int) []byte {
	h := make([]byte, 4)
	h[0] = 1 // 802.1X-2001
	h[1] = 3 // EAPOL-Key
	binary.BigEndian.PutUint16(h[2:4], uint16(bodyLen))
	return h
}
