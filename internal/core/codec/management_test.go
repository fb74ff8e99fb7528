package codec

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serializeBeacon(t *testing.T, ssid string, channel byte, rsn []byte) []byte {
	t.Helper()
	bssid, _ := net.ParseMAC("02:11:22:33:44:55")
	broadcast, _ := net.ParseMAC("ff:ff:ff:ff:ff:ff")

	dot11 := &layers.Dot11{
		Type:     layers.Dot11TypeMgmtBeacon,
		Address1: broadcast,
		Address2: bssid,
		Address3: bssid,
	}
	beacon := &layers.Dot11MgmtBeacon{Interval: 100, Flags: 0x0001}

	var ies []byte
	ies = append(ies, 0, byte(len(ssid)))
	ies = append(ies, []byte(ssid)...)
	ies = append(ies, 3, 1, channel)
	if rsn != nil {
		ies = append(ies, 48, byte(len(rsn)))
		ies = append(ies, rsn...)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts,
		&layers.RadioTap{},
		dot11,
		beacon,
		gopacket.Payload(ies),
	))
	return buf.Bytes()
}

func TestParseBeaconOpenNetwork(t *testing.T) {
	raw := serializeBeacon(t, "cafe", 6, nil)
	c, err := Classify(raw)
	require.NoError(t, err)
	require.Equal(t, ClassManagement, c.Class)

	info, err := ParseBeaconOrProbeResp(c, -50)
	require.NoError(t, err)
	assert.Equal(t, "cafe", info.Descriptor.SSID)
	assert.Equal(t, 6, info.Descriptor.Channel)
	assert.Equal(t, -50, info.Descriptor.RSSI)
	assert.Nil(t, info.RSN)
}

func TestParseBeaconWithRSN(t *testing.T) {
	rsn := []byte{1, 0, 0x00, 0x0f, 0xac, 4, 1, 0, 0x00, 0x0f, 0xac, 4, 1, 0, 0x00, 0x0f, 0xac, 2, 0, 0}
	raw := serializeBeacon(t, "home", 11, rsn)
	c, err := Classify(raw)
	require.NoError(t, err)

	info, err := ParseBeaconOrProbeResp(c, -40)
	require.NoError(t, err)
	assert.Equal(t, rsn, info.RSN)
}
