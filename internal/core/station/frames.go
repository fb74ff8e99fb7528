package station

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/codec"
	"github.com/net80211/station/internal/core/codec/ie"
)

// buildAuthRequest serializes an open-system authentication request,
// sequence 1 of the 2-frame open-system exchange. Management frames do
// not draw from the link's data sequence counter; hardware numbers them
// itself.
func buildAuthRequest(srcMAC, bssid [6]byte) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:     layers.Dot11TypeMgmtAuthentication,
		Address1: bssid[:],
		Address2: srcMAC[:],
		Address3: bssid[:],
	}
	auth := &layers.Dot11MgmtAuthentication{
		Algorithm: layers.Dot11AlgorithmOpen,
		Sequence:  1,
		Status:    layers.Dot11StatusSuccess,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &layers.RadioTap{}, dot11, auth); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildAssocRequest serializes an association request, echoing the AP's
// RSN element verbatim as the station RSN element when the BSS requires
// RSN negotiation.
func buildAssocRequest(srcMAC, bssid [6]byte, apRSN []byte) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:     layers.Dot11TypeMgmtAssociationReq,
		Address1: bssid[:],
		Address2: srcMAC[:],
		Address3: bssid[:],
	}
	assoc := &layers.Dot11MgmtAssociationReq{
		CapabilityInfo: 0x0001, // ESS
		ListenInterval: 1,
	}

	var ies []byte
	if len(apRSN) > 0 {
		ies = append(ies, ie.Build(ie.TagRSN, apRSN)...)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &layers.RadioTap{}, dot11, assoc, gopacket.Payload(ies)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// authStatusOK reports whether a classified authentication-response frame
// carries a success status.
func authStatusOK(c *codec.Classified) bool {
	layer := c.Packet.Layer(layers.LayerTypeDot11MgmtAuthentication)
	if layer == nil {
		return false
	}
	a, ok := layer.(*layers.Dot11MgmtAuthentication)
	if !ok {
		return false
	}
	return a.Status == layers.Dot11StatusSuccess
}

// assocStatusOK reports whether a classified (re)association-response
// frame carries a success status.
func assocStatusOK(c *codec.Classified) bool {
	if layer := c.Packet.Layer(layers.LayerTypeDot11MgmtAssociationResp); layer != nil {
		if r, ok := layer.(*layers.Dot11MgmtAssociationResp); ok {
			return r.Status == layers.Dot11StatusSuccess
		}
	}
	if layer := c.Packet.Layer(layers.LayerTypeDot11MgmtReassociationResp); layer != nil {
		if r, ok := layer.(*layers.Dot11MgmtReassociationResp); ok {
			return r.Status == layers.Dot11StatusSuccess
		}
	}
	return false
}
