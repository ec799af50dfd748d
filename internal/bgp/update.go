package bgp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParseUpdate parses a complete BGP message (19-byte header included)
// and, when it is an UPDATE, decodes withdrawn routes, path attributes,
// IPv4-unicast NLRI, and the MP_REACH families of interest. Non-UPDATE
// messages return (nil, nil).
func ParseUpdate(data []byte) (*Update, error) {
	if len(data) < BGPHeaderSize {
		return nil, fmt.Errorf("bgp: message too short (%d bytes)", len(data))
	}

	msgType := data[18]
	if msgType != BGPMsgTypeUpdate {
		return nil, nil
	}

	return parseUpdatePayload(data[BGPHeaderSize:])
}

func parseUpdatePayload(data []byte) (*Update, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bgp: update payload too short (%d bytes)", len(data))
	}

	offset := 0

	withdrawnLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+withdrawnLen > len(data) {
		return nil, fmt.Errorf("bgp: withdrawn length %d exceeds data", withdrawnLen)
	}
	withdrawn := parsePrefixesV4(data[offset : offset+withdrawnLen])
	offset += withdrawnLen

	if offset+2 > len(data) {
		return nil, fmt.Errorf("bgp: no room for path attr length")
	}
	pathAttrLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+pathAttrLen > len(data) {
		return nil, fmt.Errorf("bgp: path attr length %d exceeds data", pathAttrLen)
	}

	attrs, err := ParsePathAttributes(data[offset : offset+pathAttrLen])
	if err != nil {
		return nil, fmt.Errorf("bgp: parse path attrs: %w", err)
	}
	offset += pathAttrLen

	update := &Update{
		WithdrawnPrefixes: withdrawn,
		NLRIPrefixes:      parsePrefixesV4(data[offset:]),
		Attrs:             attrs,
	}

	// MP_REACH_NLRI families: VPNv4 and FlowSpec.
	if len(attrs.MPReach) >= 3 {
		afi := binary.BigEndian.Uint16(attrs.MPReach[0:2])
		safi := attrs.MPReach[2]
		if afi == AFIIPv4 {
			switch safi {
			case SAFIFlowSpec:
				update.FlowSpecRules = ParseFlowSpecNLRI(attrs.MPReach)
			case SAFIMPLSVPN:
				update.VPNRoutes = ParseVPNNLRI(attrs.MPReach)
			}
		}
	}

	return update, nil
}

// parsePrefixesV4 walks the (length, prefix-bytes) encodings of IPv4
// NLRI. A truncated trailing prefix ends the walk.
func parsePrefixesV4(data []byte) []string {
	var prefixes []string
	offset := 0
	for offset < len(data) {
		prefixLen := int(data[offset])
		offset++
		if prefixLen > 32 {
			break
		}
		byteLen := (prefixLen + 7) / 8
		if offset+byteLen > len(data) {
			break
		}
		ipBytes := make([]byte, 4)
		copy(ipBytes, data[offset:offset+byteLen])
		offset += byteLen
		prefixes = append(prefixes, fmt.Sprintf("%s/%d", net.IP(ipBytes).String(), prefixLen))
	}
	return prefixes
}
