package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"
)

const pmkLength = 32

// DerivePMK derives the Pairwise Master Key from a WPA-PSK passphrase and
// SSID, per IEEE 802.11i Annex H: PBKDF2-HMAC-SHA1 with 4096 iterations.
func DerivePMK(passphrase, ssid string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, pmkLength, sha1.New)
}

// PTKLength is the total byte length of a CCMP pairwise transient key
// expansion: KCK(16) || KEK(16) || TK(16).
const PTKLength = 48

// DerivePTK runs the 802.11i pseudo-random function (PRF-384, HMAC-SHA1
// based) over the PMK, the two station/AP MAC addresses (min/max ordered)
// and the two nonces (min/max ordered), producing KCK, KEK and the CCMP
// temporal key.
func DerivePTK(pmk []byte, aAddr, sAddr [6]byte, aNonce, sNonce []byte) []byte {
	aAddrB, sAddrB := aAddr[:], sAddr[:]
	lo, hi := aAddrB, sAddrB
	if bytes.Compare(sAddrB, aAddrB) < 0 {
		lo, hi = sAddrB, aAddrB
	}
	nlo, nhi := aNonce, sNonce
	if bytes.Compare(sNonce, aNonce) < 0 {
		nlo, nhi = sNonce, aNonce
	}

	data := make([]byte, 0, len(lo)+len(hi)+len(nlo)+len(nhi))
	data = append(data, lo...)
	data = append(data, hi...)
	data = append(data, nlo...)
	data = append(data, nhi...)

	return prf(pmk, "Pairwise key expansion", data, PTKLength)
}

// KCK, KEK and TK slice out the three PTK components.
func KCK(ptk []byte) []byte { return ptk[0:16] }
func KEK(ptk []byte) []byte { return ptk[16:32] }
func TK(ptk []byte) []byte  { return ptk[32:48] }

// prf implements IEEE 802.11i's PRF-X: a counter-indexed sequence of
// HMAC-SHA1(key, label || 0x00 || data || counter) blocks concatenated and
// truncated to length bytes.
func prf(key []byte, label string, data []byte, length int) []byte {
	out := make([]byte, 0, length+sha1.Size)
	for i := 0; len(out) < length; i++ {
		h := hmac.New(sha1.New, key)
		h.Write([]byte(label))
		h.Write([]byte{0x00})
		h.Write(data)
		h.Write([]byte{byte(i)})
		out = h.Sum(out)
	}
	return out[:length]
}
