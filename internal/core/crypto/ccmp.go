// Package crypto implements CCMP: AES-CCM encryption and
// decryption of 802.11 data MPDUs, PN/replay bookkeeping via domain.Key,
// and PSK-to-PMK derivation for the EAPOL handshake.
//
// The standard library's crypto/cipher only ships GCM-based AEAD
// constructors, so CCM (RFC 3610) is built directly on crypto/aes's raw
// block cipher the way the standard itself defines it: AES-CTR for
// confidentiality, AES-CBC-MAC over {B0, AAD, payload} for the
// MIC. PSK derivation reuses golang.org/x/crypto/pbkdf2.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/net80211/station/internal/core/domain"
)

const (
	ccmpHeaderLen = 8
	ccmpMICLen    = 8  // M: MIC length in bytes
	ccmpNonceLen  = 13 // N: CCM nonce length in bytes
	ccmBlockLen   = aes.BlockSize
	ccmL          = 15 - ccmpNonceLen // L: length-field size (2, per CCMP)
)

// BuildCCMPHeader lays out the 8-byte CCMP header: PN0, PN1, reserved,
// key-id byte (ExtIV set), then PN2-PN5.
func BuildCCMPHeader(pn uint64, keyID int) []byte {
	h := make([]byte, ccmpHeaderLen)
	h[0] = byte(pn)
	h[1] = byte(pn >> 8)
	h[2] = 0
	h[3] = 0x20 | byte(keyID&0x03)<<6 // bit5 = ExtIV
	h[4] = byte(pn >> 16)
	h[5] = byte(pn >> 24)
	h[6] = byte(pn >> 32)
	h[7] = byte(pn >> 40)
	return h
}

// ParseCCMPHeader recovers the packet number and key id from an 8-byte
// CCMP header.
func ParseCCMPHeader(h []byte) (pn uint64, keyID int, err error) {
	if len(h) < ccmpHeaderLen {
		return 0, 0, domain.ErrMalformed
	}
	pn = uint64(h[0]) | uint64(h[1])<<8 |
		uint64(h[4])<<16 | uint64(h[5])<<24 | uint64(h[6])<<32 | uint64(h[7])<<40
	keyID = int(h[3]>>6) & 0x03
	return pn, keyID, nil
}

func buildNonce(priority byte, addr [6]byte, pn uint64) []byte {
	n := make([]byte, ccmpNonceLen)
	n[0] = priority
	copy(n[1:7], addr[:])
	n[7] = byte(pn >> 40)
	n[8] = byte(pn >> 32)
	n[9] = byte(pn >> 24)
	n[10] = byte(pn >> 16)
	n[11] = byte(pn >> 8)
	n[12] = byte(pn)
	return n
}

// BuildAAD constructs the Additional Authenticated Data mandated for
// CCMP: frame control with the mutable bits (retry, pwr mgmt, more
// data, order) cleared and the protected bit forced on — the TX path
// computes the AAD before the bit is spliced into the outgoing frame, the
// RX path after, and both must agree — the three mandatory addresses, a
// sequence-control field with only the fragment number retained, and
// address4 when present.
func BuildAAD(frameControl uint16, addr1, addr2, addr3 [6]byte, seqControl uint16, addr4 *[6]byte) []byte {
	const mutableMask = 0x0800 | 0x1000 | 0x2000 | 0x8000 // retry, pwrmgmt, moredata, order
	const protectedBit = 0x4000
	fc := frameControl&^mutableMask | protectedBit

	aad := make([]byte, 0, 22+6)
	aad = append(aad, byte(fc), byte(fc>>8))
	aad = append(aad, addr1[:]...)
	aad = append(aad, addr2[:]...)
	aad = append(aad, addr3[:]...)
	sc := seqControl & 0x000f // fragment number only
	aad = append(aad, byte(sc), byte(sc>>8))
	if addr4 != nil {
		aad = append(aad, addr4[:]...)
	}
	return aad
}

func newBlockCipher(keyValue []byte) (cipher.Block, error) {
	block, err := aes.NewCipher(keyValue)
	if err != nil {
		return nil, fmt.Errorf("net80211: ccmp key setup: %w", err)
	}
	return block, nil
}

// counterBlock formats the RFC 3610 Ai counter block for the given 16-bit
// counter value: Flags(L-1, Adata=0, M=0) || nonce || counter.
func counterBlock(nonce []byte, counter uint16) []byte {
	b := make([]byte, ccmBlockLen)
	b[0] = byte(ccmL - 1)
	copy(b[1:1+ccmpNonceLen], nonce)
	binary.BigEndian.PutUint16(b[1+ccmpNonceLen:], counter)
	return b
}

// ctrCrypt XORs data against the AES-CTR keystream starting at counter
// block A1 (RFC 3610 §2.3: encryption/decryption use counters 1..); A0 is
// reserved for masking the MIC. CTR mode's block-wide increment only ever
// touches the low two (L) bytes here since no 802.11 MPDU approaches
// 65536 blocks, so it matches the standard's "increment the L-byte
// counter field" rule exactly.
func ctrCrypt(block cipher.Block, nonce, data []byte) []byte {
	out := make([]byte, len(data))
	stream := cipher.NewCTR(block, counterBlock(nonce, 1))
	stream.XORKeyStream(out, data)
	return out
}

// cbcMAC computes the RFC 3610 CBC-MAC over B0 (built from the flags byte,
// nonce and payload length), the length-prefixed-and-padded AAD blocks,
// and the zero-padded payload blocks. The result is a full 16-byte block;
// callers mask it with S0 and truncate to ccmpMICLen.
func cbcMAC(block cipher.Block, nonce, aad, payload []byte) []byte {
	b0 := make([]byte, ccmBlockLen)
	var adataFlag byte
	if len(aad) > 0 {
		adataFlag = 1 << 6
	}
	b0[0] = adataFlag | byte((ccmpMICLen-2)/2)<<3 | byte(ccmL-1)
	copy(b0[1:1+ccmpNonceLen], nonce)
	binary.BigEndian.PutUint16(b0[1+ccmpNonceLen:], uint16(len(payload)))

	mac := make([]byte, ccmBlockLen)
	block.Encrypt(mac, b0)

	for _, blk := range formatAAD(aad) {
		xorBlock(mac, blk)
		block.Encrypt(mac, mac)
	}
	for _, blk := range splitPadded(payload) {
		xorBlock(mac, blk)
		block.Encrypt(mac, mac)
	}
	return mac
}

// formatAAD encodes the AAD per RFC 3610 §2.2: a 2-byte big-endian length
// field (sufficient for any 802.11 AAD, always well under 0xFF00) followed
// by the AAD bytes, zero-padded and split into 16-byte blocks.
func formatAAD(aad []byte) [][]byte {
	if len(aad) == 0 {
		return nil
	}
	buf := make([]byte, 2+len(aad))
	binary.BigEndian.PutUint16(buf, uint16(len(aad)))
	copy(buf[2:], aad)
	return splitPadded(buf)
}

func splitPadded(buf []byte) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	n := (len(buf) + ccmBlockLen - 1) / ccmBlockLen
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		blk := make([]byte, ccmBlockLen)
		start := i * ccmBlockLen
		end := start + ccmBlockLen
		if end > len(buf) {
			end = len(buf)
		}
		copy(blk, buf[start:end])
		out[i] = blk
	}
	return out
}

func xorBlock(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// ccmEncrypt returns the AES-CTR ciphertext and the ccmpMICLen-byte MIC
// (RFC 3610 §2.1: T XOR S0, truncated).
func ccmEncrypt(block cipher.Block, nonce, aad, plaintext []byte) (ciphertext, mic []byte) {
	tag := cbcMAC(block, nonce, aad, plaintext)

	s0 := make([]byte, ccmBlockLen)
	block.Encrypt(s0, counterBlock(nonce, 0))
	xorBlock(tag, s0)

	return ctrCrypt(block, nonce, plaintext), tag[:ccmpMICLen]
}

// ccmDecrypt reverses ccmEncrypt, verifying the MIC in constant time
// before returning plaintext.
func ccmDecrypt(block cipher.Block, nonce, aad, ciphertext, mic []byte) ([]byte, error) {
	plaintext := ctrCrypt(block, nonce, ciphertext)

	tag := cbcMAC(block, nonce, aad, plaintext)
	s0 := make([]byte, ccmBlockLen)
	block.Encrypt(s0, counterBlock(nonce, 0))
	xorBlock(tag, s0)

	if subtle.ConstantTimeCompare(tag[:ccmpMICLen], mic) != 1 {
		return nil, domain.ErrIntegrityFailed
	}
	return plaintext, nil
}

// Encrypt allocates the next transmit packet number on key, builds the
// CCMP header, and returns header||ciphertext||MIC. sourceAddr feeds the
// nonce.
func Encrypt(key *domain.Key, priority byte, sourceAddr [6]byte, aad, plaintext []byte) ([]byte, error) {
	pn, err := key.NextPacketNumber()
	if err != nil {
		return nil, err
	}
	block, err := newBlockCipher(key.Value)
	if err != nil {
		return nil, err
	}
	nonce := buildNonce(priority, sourceAddr, pn)
	ciphertext, mic := ccmEncrypt(block, nonce, aad, plaintext)

	out := make([]byte, 0, ccmpHeaderLen+len(ciphertext)+len(mic))
	out = append(out, BuildCCMPHeader(pn, key.ID)...)
	out = append(out, ciphertext...)
	out = append(out, mic...)
	return out, nil
}

// Decrypt validates the replay counter, verifies the MIC and returns the
// recovered plaintext. The replay counter advances only when verification
// succeeds.
func Decrypt(key *domain.Key, priority byte, sourceAddr [6]byte, aad, header []byte) ([]byte, error) {
	if len(header) < ccmpHeaderLen+ccmpMICLen {
		return nil, domain.ErrMalformed
	}
	pn, _, err := ParseCCMPHeader(header[:ccmpHeaderLen])
	if err != nil {
		return nil, err
	}
	if err := key.CheckReplay(pn); err != nil {
		return nil, err
	}

	block, err := newBlockCipher(key.Value)
	if err != nil {
		return nil, err
	}
	nonce := buildNonce(priority, sourceAddr, pn)
	body := header[ccmpHeaderLen:]
	ciphertext := body[:len(body)-ccmpMICLen]
	mic := body[len(body)-ccmpMICLen:]

	plaintext, err := ccmDecrypt(block, nonce, aad, ciphertext, mic)
	if err != nil {
		return nil, err
	}

	key.AdvanceReplay(pn)
	return plaintext, nil
}
