package crypto

import (
	"crypto/rc4"
	"crypto/subtle"
	"encoding/binary"
	"hash/crc32"

	"github.com/net80211/station/internal/core/domain"
)

const (
	wepHeaderLen = 4 // IV0, IV1, IV2, key-id byte
	wepICVLen    = 4
)

// EncryptWEP seals a data payload under a static WEP key: a 3-byte IV drawn
// from the key's packet-number counter, RC4 over IV||key, and a CRC-32 ICV
// appended to the plaintext before encryption. Returns
// header||ciphertext||ICV, the WEP analogue of Encrypt's CCMP layout.
func EncryptWEP(key *domain.Key, payload []byte) ([]byte, error) {
	pn, err := key.NextPacketNumber()
	if err != nil {
		return nil, err
	}
	iv := [3]byte{byte(pn), byte(pn >> 8), byte(pn >> 16)}

	seed := make([]byte, 0, 3+len(key.Value))
	seed = append(seed, iv[:]...)
	seed = append(seed, key.Value...)
	c, err := rc4.NewCipher(seed)
	if err != nil {
		return nil, err
	}

	body := make([]byte, len(payload)+wepICVLen)
	copy(body, payload)
	binary.LittleEndian.PutUint32(body[len(payload):], crc32.ChecksumIEEE(payload))
	c.XORKeyStream(body, body)

	out := make([]byte, 0, wepHeaderLen+len(body))
	out = append(out, iv[0], iv[1], iv[2], byte(key.ID&0x03)<<6)
	return append(out, body...), nil
}

// DecryptWEP reverses EncryptWEP, verifying the ICV. WEP has no replay
// protection; that weakness is inherent to the protocol, not to this
// implementation.
func DecryptWEP(key *domain.Key, sealed []byte) ([]byte, error) {
	if len(sealed) < wepHeaderLen+wepICVLen {
		return nil, domain.ErrMalformed
	}

	seed := make([]byte, 0, 3+len(key.Value))
	seed = append(seed, sealed[:3]...)
	seed = append(seed, key.Value...)
	c, err := rc4.NewCipher(seed)
	if err != nil {
		return nil, err
	}

	body := make([]byte, len(sealed)-wepHeaderLen)
	c.XORKeyStream(body, sealed[wepHeaderLen:])

	plaintext := body[:len(body)-wepICVLen]
	var want [wepICVLen]byte
	binary.LittleEndian.PutUint32(want[:], crc32.ChecksumIEEE(plaintext))
	if subtle.ConstantTimeCompare(body[len(plaintext):], want[:]) != 1 {
		return nil, domain.ErrIntegrityFailed
	}
	return plaintext, nil
}
