package codec

import (
	"time"

	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/codec/ie"
	"github.com/net80211/station/internal/core/domain"
)

// beaconTimeUnit is 1.024ms, the 802.11 "time unit" beacon intervals are
// expressed in.
const beaconTimeUnit = 1024 * time.Microsecond

// ManagementSubtype narrows a management frame's Dot11Type down to the
// subset the state machine cares about.
type ManagementSubtype int

const (
	MgmtBeacon ManagementSubtype = iota
	MgmtProbeRequest
	MgmtProbeResponse
	MgmtAuthentication
	MgmtAssociationRequest
	MgmtAssociationResponse
	MgmtReassociationRequest
	MgmtReassociationResponse
	MgmtDeauthentication
	MgmtDisassociation
	MgmtOther
)

// SubtypeOf maps a gopacket Dot11Type to the management subtype the state
// machine dispatches on.
func SubtypeOf(t layers.Dot11Type) ManagementSubtype {
	switch t {
	case layers.Dot11TypeMgmtBeacon:
		return MgmtBeacon
	case layers.Dot11TypeMgmtProbeReq:
		return MgmtProbeRequest
	case layers.Dot11TypeMgmtProbeResp:
		return MgmtProbeResponse
	case layers.Dot11TypeMgmtAuthentication:
		return MgmtAuthentication
	case layers.Dot11TypeMgmtAssociationReq:
		return MgmtAssociationRequest
	case layers.Dot11TypeMgmtAssociationResp:
		return MgmtAssociationResponse
	case layers.Dot11TypeMgmtReassociationReq:
		return MgmtReassociationRequest
	case layers.Dot11TypeMgmtReassociationResp:
		return MgmtReassociationResponse
	case layers.Dot11TypeMgmtDeauthentication:
		return MgmtDeauthentication
	case layers.Dot11TypeMgmtDisassociation:
		return MgmtDisassociation
	default:
		return MgmtOther
	}
}

// BeaconInfo is everything the BSS table and scan controller need from a
// beacon or probe response.
type BeaconInfo struct {
	Subtype ManagementSubtype
	BSSID   [6]byte
	RSSI    int

	Descriptor domain.BSSDescriptor
	RSN        []byte // raw RSN element bytes, nil if the network is open
}

// ParseBeaconOrProbeResp extracts the BSS descriptor and RSN element from a
// beacon or probe-response management frame.
func ParseBeaconOrProbeResp(c *Classified, rssi int) (*BeaconInfo, error) {
	sub := SubtypeOf(c.Dot11.Type)
	if sub != MgmtBeacon && sub != MgmtProbeResponse {
		return nil, domain.ErrMalformed
	}

	var body []byte
	var timestamp uint64
	var capabilities uint16
	var beaconInterval uint16

	if beaconLayer := c.Packet.Layer(layers.LayerTypeDot11MgmtBeacon); beaconLayer != nil {
		b := beaconLayer.(*layers.Dot11MgmtBeacon)
		timestamp = b.Timestamp
		capabilities = b.Flags
		beaconInterval = b.Interval
		body = b.LayerPayload()
	} else if respLayer := c.Packet.Layer(layers.LayerTypeDot11MgmtProbeResp); respLayer != nil {
		r := respLayer.(*layers.Dot11MgmtProbeResp)
		timestamp = r.Timestamp
		capabilities = r.Flags
		beaconInterval = r.Interval
		body = r.LayerPayload()
	} else {
		return nil, domain.ErrMalformed
	}

	info := &BeaconInfo{Subtype: sub, BSSID: addr(c.Dot11.Address3), RSSI: rssi}
	ssid, _ := ie.ParseSSID(body)
	info.Descriptor = domain.BSSDescriptor{
		BSSID:          info.BSSID,
		SSID:           ssid,
		Channel:        ie.ParseChannel(body),
		BeaconInterval: time.Duration(beaconInterval) * beaconTimeUnit,
		Capabilities:   capabilities,
		RSSI:           rssi,
		SupportedRates: ie.ParseSupportedRates(body),
		Timestamp:      timestamp,
	}
	info.RSN = ie.Find(body, ie.TagRSN)
	return info, nil
}
