// Package codec classifies and parses inbound 802.11 MPDUs and serializes
// outbound ones, built on gopacket and its 802.11 layer decoders.
package codec

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/domain"
)

// Class is the coarse dispatch category for a classified frame.
type Class int

const (
	ClassManagement Class = iota
	ClassControl
	ClassData
	ClassUnknown
)

// Classified is the result of parsing one MPDU: the gopacket parse tree
// plus the coarse class and the raw Dot11 header, handed to the
// appropriate dispatch path.
type Classified struct {
	Class  Class
	Dot11  *layers.Dot11
	Packet gopacket.Packet
}

// Classify parses raw radio-tap-prefixed bytes (or bare 802.11 bytes, if
// the driver strips radiotap) and determines the dispatch class.
func Classify(raw []byte) (*Classified, error) {
	firstLayer := layers.LayerTypeRadioTap
	if len(raw) >= 2 && raw[0]&0xf0 != 0 && raw[0] != 0x00 {
		// Heuristic: radiotap always starts with version byte 0x00.
		firstLayer = layers.LayerTypeDot11
	}

	packet := gopacket.NewPacket(raw, firstLayer, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	if err := packet.ErrorLayer(); err != nil {
		return nil, domain.ErrMalformed
	}

	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return nil, domain.ErrMalformed
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return nil, domain.ErrMalformed
	}

	return &Classified{Class: classOf(dot11.Type), Dot11: dot11, Packet: packet}, nil
}

func classOf(t layers.Dot11Type) Class {
	switch t.MainType() {
	case layers.Dot11TypeMgmt:
		return ClassManagement
	case layers.Dot11TypeCtrl:
		return ClassControl
	case layers.Dot11TypeData:
		return ClassData
	default:
		return ClassUnknown
	}
}
