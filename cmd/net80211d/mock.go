package main

import (
	"fmt"
	"net"

	"github.com/net80211/station/internal/core/ports"
)

// mockDriver is a ports.Driver that logs instead of touching hardware,
// for -mock runs against no real radio.
type mockDriver struct {
	channels []int
}

func newMockDriver() *mockDriver {
	return &mockDriver{channels: []int{1, 6, 11}}
}

func (m *mockDriver) SetChannel(ch int) error {
	fmt.Printf("mock: set channel %d\n", ch)
	return nil
}

func (m *mockDriver) SetState(ports.HardwareFilterState) error { return nil }

func (m *mockDriver) Submit(packet []byte) error {
	fmt.Printf("mock: submit %d bytes\n", len(packet))
	return nil
}

func (m *mockDriver) SupportedChannels() []int { return m.channels }

// interfaceMAC resolves iface's hardware address, or a fixed locally
// administered address in mock mode where the interface need not exist.
func interfaceMAC(iface string, mock bool) ([6]byte, error) {
	if mock {
		return [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, nil
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return [6]byte{}, err
	}
	var mac [6]byte
	copy(mac[:], ifi.HardwareAddr)
	return mac, nil
}
