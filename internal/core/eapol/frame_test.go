package eapol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	f := &KeyFrame{
		DescriptorType: 2,
		KeyInformation: keyInfoKeyMIC | keyInfoKeyType | keyInfoKeyAck,
		ReplayCounter:  7,
		KeyData:        []byte{0xde, 0xad, 0xbe, 0xef},
	}
	f.Nonce[0] = 0x42

	body := Build(f)
	parsed, err := ParseKeyFrame(body)
	require.NoError(t, err)

	assert.Equal(t, f.DescriptorType, parsed.DescriptorType)
	assert.Equal(t, f.KeyInformation, parsed.KeyInformation)
	assert.Equal(t, f.ReplayCounter, parsed.ReplayCounter)
	assert.Equal(t, f.Nonce, parsed.Nonce)
	assert.Equal(t, f.KeyData, parsed.KeyData)
}

func TestDetermineMessageNumber(t *testing.T) {
	cases := []struct {
		name string
		f    KeyFrame
		want int
	}{
		{"m1", KeyFrame{KeyInformation: keyInfoKeyType | keyInfoKeyAck}, 1},
		{"m2", KeyFrame{KeyInformation: keyInfoKeyType | keyInfoKeyMIC, KeyData: []byte{1}}, 2},
		{"m3", KeyFrame{KeyInformation: keyInfoKeyType | keyInfoKeyMIC | keyInfoKeyAck}, 3},
		{"m4", KeyFrame{KeyInformation: keyInfoKeyType | keyInfoKeyMIC | keyInfoSecure}, 4},
		{"group-handshake-ignored", KeyFrame{KeyInformation: 0}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.f.DetermineMessageNumber())
		})
	}
}

func TestParseKeyFrameRejectsShortPayload(t *testing.T) {
	_, err := ParseKeyFrame([]byte{1, 2, 3})
	assert.Error(t, err)
}
