package ie

import (
	"encoding/binary"

	"github.com/net80211/station/internal/core/domain"
)

// RSN is a parsed RSN (IEEE 802.11i, tag 48) information element.
type RSN struct {
	Version         uint16
	GroupCipher     domain.Cipher
	PairwiseCiphers []domain.Cipher
	AKMSuites       []byte // last byte of each 4-byte AKM suite selector
	Capabilities    uint16
}

// ParseRSN decodes an RSN element body. Cipher suites are resolved to
// domain.Cipher values since the result feeds key installation.
func ParseRSN(data []byte) (*RSN, error) {
	if len(data) < 2 {
		return nil, domain.ErrMalformed
	}
	r := &RSN{}
	offset := 0

	r.Version = binary.LittleEndian.Uint16(data[offset : offset+2])
	offset += 2

	if offset+4 <= len(data) {
		r.GroupCipher = cipherSuite(data[offset : offset+4])
		offset += 4
	}

	if offset+2 <= len(data) {
		count := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2
		for i := 0; i < count && offset+4 <= len(data); i++ {
			r.PairwiseCiphers = append(r.PairwiseCiphers, cipherSuite(data[offset:offset+4]))
			offset += 4
		}
	}

	if offset+2 <= len(data) {
		count := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2
		for i := 0; i < count && offset+4 <= len(data); i++ {
			r.AKMSuites = append(r.AKMSuites, data[offset+3])
			offset += 4
		}
	}

	if offset+2 <= len(data) {
		r.Capabilities = binary.LittleEndian.Uint16(data[offset : offset+2])
	}

	return r, nil
}

func cipherSuite(data []byte) domain.Cipher {
	if len(data) < 4 {
		return domain.CipherNone
	}
	switch data[3] {
	case 1, 5:
		return domain.CipherWEP
	case 2:
		return domain.CipherTKIP
	case 4, 10:
		return domain.CipherCCMP
	default:
		return domain.CipherNone
	}
}

const (
	akmPSK   = 2
	akm8021X = 1
)

// RequiresPSK reports whether any AKM suite in the element is a
// pre-shared-key suite, the only AKM this station supports; enterprise
// 802.1X is out of scope.
func (r *RSN) RequiresPSK() bool {
	for _, akm := range r.AKMSuites {
		if akm == akmPSK {
			return true
		}
	}
	return false
}
