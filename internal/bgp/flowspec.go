package bgp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParseFlowSpecNLRI decodes the FlowSpec NLRI carried in an MP_REACH_NLRI
// attribute (AFI 1, SAFI 133): after the next-hop and reserved byte, a
// sequence of length-prefixed rule encodings.
func ParseFlowSpecNLRI(data []byte) []FlowSpecRule {
	if len(data) < 4 {
		return nil
	}

	// Skip AFI (2) + SAFI (1); the caller has already dispatched on them.
	offset := 3

	nhLen := int(data[offset])
	offset += 1 + nhLen
	// Reserved byte.
	offset++

	var rules []FlowSpecRule
	for offset+2 <= len(data) {
		nlriLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if offset+nlriLen > len(data) {
			break
		}

		rule, ok := parseFlowSpecComponents(data[offset : offset+nlriLen])
		if ok {
			rules = append(rules, rule)
		}
		offset += nlriLen
	}

	return rules
}

// parseFlowSpecComponents walks the typed components of one rule. The
// numeric components carry operator bytes; only the first value is kept.
// An unknown component type stops the walk since its length is unknown.
func parseFlowSpecComponents(data []byte) (FlowSpecRule, bool) {
	var rule FlowSpecRule
	offset := 0

	for offset < len(data) {
		compType := data[offset]
		offset++

		switch compType {
		case FlowSpecTypeDstPrefix, FlowSpecTypeSrcPrefix:
			prefix, n, err := flowSpecPrefix(data[offset:])
			if err != nil {
				return rule, !rule.Empty()
			}
			if compType == FlowSpecTypeDstPrefix {
				rule.Destination = prefix
			} else {
				rule.Source = prefix
			}
			offset += n

		case FlowSpecTypeProtocol, FlowSpecTypeICMPType, FlowSpecTypeICMPCode:
			// Operator byte, then a one-byte value.
			if offset+2 > len(data) {
				return rule, !rule.Empty()
			}
			v := data[offset+1]
			switch compType {
			case FlowSpecTypeProtocol:
				rule.Protocol = &v
			case FlowSpecTypeICMPType:
				rule.ICMPType = &v
			case FlowSpecTypeICMPCode:
				rule.ICMPCode = &v
			}
			offset += 2

		case FlowSpecTypePort, FlowSpecTypeDstPort, FlowSpecTypeSrcPort:
			// Operator byte, then a two-byte value.
			if offset+3 > len(data) {
				return rule, !rule.Empty()
			}
			port := binary.BigEndian.Uint16(data[offset+1 : offset+3])
			switch compType {
			case FlowSpecTypePort:
				rule.Port = &port
			case FlowSpecTypeDstPort:
				rule.DestPort = &port
			case FlowSpecTypeSrcPort:
				rule.SourcePort = &port
			}
			offset += 3

		default:
			return rule, !rule.Empty()
		}
	}

	return rule, !rule.Empty()
}

// flowSpecPrefix decodes the (length, prefix-bytes) encoding of a
// FlowSpec prefix component, returning the CIDR string and bytes
// consumed.
func flowSpecPrefix(data []byte) (string, int, error) {
	if len(data) < 1 {
		return "", 0, fmt.Errorf("bgp: flowspec prefix truncated")
	}
	prefixLen := int(data[0])
	if prefixLen > 32 {
		return "", 0, fmt.Errorf("bgp: flowspec prefix length %d exceeds /32", prefixLen)
	}
	byteLen := (prefixLen + 7) / 8
	if 1+byteLen > len(data) {
		return "", 0, fmt.Errorf("bgp: flowspec prefix truncated")
	}

	ipBytes := make([]byte, 4)
	copy(ipBytes, data[1:1+byteLen])
	return fmt.Sprintf("%s/%d", net.IP(ipBytes).String(), prefixLen), 1 + byteLen, nil
}

// Key returns the route-store dedup key for a flowspec rule: the
// destination prefix when present, otherwise the source, otherwise
// "unknown".
func (r FlowSpecRule) Key() string {
	switch {
	case r.Destination != "":
		return "flowspec:" + r.Destination
	case r.Source != "":
		return "flowspec:" + r.Source
	default:
		return "flowspec:unknown"
	}
}
