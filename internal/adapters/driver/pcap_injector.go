package driver

import (
	"fmt"

	"github.com/google/gopacket/pcap"
)

// pcapInjector injects via a pcap live handle, the fallback when raw
// sockets aren't available.
type pcapInjector struct {
	handle *pcap.Handle
}

func newPcapInjector(iface string) (PacketInjector, error) {
	handle, err := pcap.OpenLive(iface, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("pcap open failed: %w", err)
	}
	return &pcapInjector{handle: handle}, nil
}

func (p *pcapInjector) Inject(packet []byte) error {
	return p.handle.WritePacketData(packet)
}

func (p *pcapInjector) Close() {
	p.handle.Close()
}
