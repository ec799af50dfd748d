package bgp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParsePathAttributes parses the path attributes section of a BGP UPDATE.
// Truncated attributes terminate the walk with whatever was decoded so
// far; a malformed attribute never unwinds past the message.
func ParsePathAttributes(data []byte) (*PathAttributes, error) {
	attrs := &PathAttributes{}

	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return attrs, fmt.Errorf("bgp: attr header truncated at offset %d", offset)
		}

		flags := data[offset]
		typeCode := data[offset+1]
		offset += 2

		// Attribute length: 1 byte or 2 bytes depending on Extended Length flag.
		var attrLen int
		if flags&0x10 != 0 {
			if offset+2 > len(data) {
				return attrs, fmt.Errorf("bgp: extended attr length truncated")
			}
			attrLen = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
		} else {
			if offset+1 > len(data) {
				return attrs, fmt.Errorf("bgp: attr length truncated")
			}
			attrLen = int(data[offset])
			offset++
		}

		if offset+attrLen > len(data) {
			return attrs, fmt.Errorf("bgp: attr data truncated (type %d, need %d, have %d)", typeCode, attrLen, len(data)-offset)
		}

		attrData := data[offset : offset+attrLen]
		offset += attrLen

		switch typeCode {
		case AttrTypeOrigin:
			parseOrigin(attrData, attrs)
		case AttrTypeASPath:
			parseASPath(attrData, attrs)
		case AttrTypeNextHop:
			parseNextHop(attrData, attrs)
		case AttrTypeMED:
			parseMED(attrData, attrs)
		case AttrTypeLocalPref:
			parseLocalPref(attrData, attrs)
		case AttrTypeCommunity:
			parseCommunity(attrData, attrs)
		case AttrTypeMPReachNLRI:
			attrs.MPReach = attrData
		case AttrTypeMPUnreachNLRI:
			attrs.MPUnreach = attrData
		}
	}

	return attrs, nil
}

func parseOrigin(data []byte, attrs *PathAttributes) {
	if len(data) < 1 {
		return
	}
	if v, ok := OriginValues[data[0]]; ok {
		attrs.Origin = v
	} else {
		attrs.Origin = fmt.Sprintf("UNKNOWN(%d)", data[0])
	}
}

// parseASPath decodes 4-byte ASN segments. AS_SEQUENCE members appear
// in order; an AS_SET collapses to a single "{a,b}" element.
func parseASPath(data []byte, attrs *PathAttributes) {
	var path []string
	offset := 0
	for offset+2 <= len(data) {
		segType := data[offset]
		segLen := int(data[offset+1])
		offset += 2

		if offset+segLen*4 > len(data) {
			break
		}

		asns := make([]string, segLen)
		for i := 0; i < segLen; i++ {
			asns[i] = fmt.Sprintf("%d", binary.BigEndian.Uint32(data[offset:offset+4]))
			offset += 4
		}

		switch segType {
		case ASPathSegmentSequence:
			path = append(path, asns...)
		case ASPathSegmentSet:
			set := "{"
			for i, a := range asns {
				if i > 0 {
					set += ","
				}
				set += a
			}
			path = append(path, set+"}")
		}
	}

	attrs.ASPath = path
}

func parseNextHop(data []byte, attrs *PathAttributes) {
	if len(data) == 4 {
		attrs.NextHop = net.IP(data).String()
	}
}

func parseMED(data []byte, attrs *PathAttributes) {
	if len(data) == 4 {
		v := binary.BigEndian.Uint32(data)
		attrs.MED = &v
	}
}

func parseLocalPref(data []byte, attrs *PathAttributes) {
	if len(data) == 4 {
		v := binary.BigEndian.Uint32(data)
		attrs.LocalPref = &v
	}
}

func parseCommunity(data []byte, attrs *PathAttributes) {
	for i := 0; i+4 <= len(data); i += 4 {
		hi := binary.BigEndian.Uint16(data[i : i+2])
		lo := binary.BigEndian.Uint16(data[i+2 : i+4])
		attrs.Communities = append(attrs.Communities, fmt.Sprintf("%d:%d", hi, lo))
	}
}
