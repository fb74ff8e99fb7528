package driver

import (
	"context"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Listen opens a pcap capture handle on the interface and hands every
// received frame to onFrame until ctx is cancelled, the receive-path half
// of the driver contract that Submit provides the transmit-path half of.
func (r *Radio) Listen(ctx context.Context, onFrame func([]byte)) error {
	handle, err := pcap.OpenLive(r.Interface, 65536, true, pcap.BlockForever)
	if err != nil {
		return err
	}
	defer handle.Close()

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := source.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			data := packet.Data()
			if data == nil {
				continue
			}
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						log.Printf("driver: recovered from panic handling frame: %v", rec)
					}
				}()
				onFrame(data)
			}()
		}
	}
}
