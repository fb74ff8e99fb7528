package eapol

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/net80211/station/internal/core/domain"
)

// defaultIV is the AES Key Wrap default integrity check value (RFC 3394
// §2.2.3.1), used to unwrap the GTK KDE carried in M3's encrypted Key Data.
var defaultIV = [8]byte{0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6}

// AESWrap implements RFC 3394 AES key wrap, the counterpart to AESUnwrap.
// The core station never wraps a GTK itself (only the AP does, in M3); this
// exists so tests can construct realistic M3 Key Data without a second
// implementation to cross-check against.
func AESWrap(kek, plaintext []byte) ([]byte, error) {
	if len(plaintext)%8 != 0 {
		return nil, domain.ErrMalformed
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(plaintext) / 8
	a := defaultIV
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], plaintext[8*i:8*i+8])
	}

	buf := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], a[:])
			copy(buf[8:], r[i-1][:])
			enc := make([]byte, 16)
			block.Encrypt(enc, buf)

			t := uint64(n*j + i)
			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)
			for k := range tb {
				enc[k] ^= tb[k]
			}
			copy(a[:], enc[:8])
			copy(r[i-1][:], enc[8:])
		}
	}

	out := make([]byte, 0, 8+len(plaintext))
	out = append(out, a[:]...)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// AESUnwrap implements RFC 3394 AES key unwrap. No library in the
// retrieval pack implements key wrap/unwrap (it is a narrow primitive used
// almost exclusively by 802.11i and a handful of cloud KMS SDKs not present
// here), so this is built directly on crypto/aes.
func AESUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped)%8 != 0 || len(wrapped) < 16 {
		return nil, domain.ErrMalformed
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/8 - 1
	var a [8]byte
	copy(a[:], wrapped[:8])
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], wrapped[8*(i+1):8*(i+2)])
	}

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)

			copy(buf[:8], a[:])
			copy(buf[8:], r[i-1][:])
			for k := range tb {
				buf[k] ^= tb[k]
			}
			dec := make([]byte, 16)
			block.Decrypt(dec, buf)
			copy(a[:], dec[:8])
			copy(r[i-1][:], dec[8:])
		}
	}

	for i := 0; i < 8; i++ {
		if a[i] != defaultIV[i] {
			return nil, domain.ErrIntegrityFailed
		}
	}

	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}
