package driver

import "log"

// PacketInjector is the transmit-side mechanism Radio.Submit hands
// packets to: an AF_PACKET raw socket on Linux, or a pcap live handle
// elsewhere.
type PacketInjector interface {
	Inject(packet []byte) error
	Close()
}

func newInjector(iface string) (PacketInjector, error) {
	inj, err := newRawInjector(iface)
	if err == nil {
		return inj, nil
	}
	log.Printf("driver: raw injection unavailable on %s (%v), falling back to pcap", iface, err)
	return newPcapInjector(iface)
}
