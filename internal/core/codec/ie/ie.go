// Package ie parses and builds IEEE 802.11 Information Elements: the
// tag-length-value records carried in beacon, probe and association frame
// bodies. The frame codec and the EAPOL handshake both call it to extract
// SSID, channel and RSN fields from live frames.
package ie

// Element is a single parsed Information Element.
type Element struct {
	ID   int
	Data []byte
}

// Iterate walks the TLV-encoded data, invoking fn for each well-formed
// element. It stops silently at the first element whose declared length
// would run past the end of data, matching the permissive parse the rest
// of the 802.11 ecosystem uses for malformed trailing IEs.
func Iterate(data []byte, fn func(id int, val []byte)) {
	offset := 0
	limit := len(data)
	for offset < limit {
		if offset+2 > limit {
			return
		}
		id := int(data[offset])
		length := int(data[offset+1])
		offset += 2
		if offset+length > limit {
			return
		}
		fn(id, data[offset:offset+length])
		offset += length
	}
}

// Find returns the first element with the given tag id, or nil.
func Find(data []byte, id int) []byte {
	var out []byte
	Iterate(data, func(gotID int, val []byte) {
		if out == nil && gotID == id {
			out = val
		}
	})
	return out
}

// Build serializes id/data into a single TLV element.
func Build(id int, data []byte) []byte {
	out := make([]byte, 0, 2+len(data))
	out = append(out, byte(id), byte(len(data)))
	return append(out, data...)
}

const (
	TagSSID           = 0
	TagSupportedRates = 1
	TagDSParameterSet = 3
	TagRSN            = 48
	TagExtendedRates  = 50
	TagVendorSpecific = 221
)

// ParseSSID extracts the SSID element. A present-but-zeroed element (a
// hidden-SSID beacon) returns ok=false.
func ParseSSID(data []byte) (ssid string, ok bool) {
	val := Find(data, TagSSID)
	if val == nil {
		return "", false
	}
	if len(val) == 0 || val[0] == 0x00 {
		return "", false
	}
	return string(val), true
}

// ParseChannel extracts the channel number from the DS Parameter Set.
func ParseChannel(data []byte) int {
	val := Find(data, TagDSParameterSet)
	if len(val) >= 1 {
		return int(val[0])
	}
	return 0
}

// ParseSupportedRates concatenates the basic and extended rate elements.
func ParseSupportedRates(data []byte) []byte {
	rates := append([]byte(nil), Find(data, TagSupportedRates)...)
	return append(rates, Find(data, TagExtendedRates)...)
}
