package bgp

import (
	"encoding/binary"
	"testing"
)

// attr builds a path attribute with the standard 1-byte length encoding.
func attr(typeCode uint8, value []byte) []byte {
	out := []byte{0x40, typeCode, byte(len(value))}
	return append(out, value...)
}

// attrExtended builds a path attribute with the extended-length flag set.
func attrExtended(typeCode uint8, value []byte) []byte {
	out := []byte{0x50, typeCode, 0, 0}
	binary.BigEndian.PutUint16(out[2:4], uint16(len(value)))
	return append(out, value...)
}

// buildUpdate wraps withdrawn routes, path attributes, and NLRI in a
// complete BGP message with header.
func buildUpdate(withdrawn, pathAttrs, nlri []byte) []byte {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body[0:2], uint16(len(withdrawn)))
	body = append(body, withdrawn...)

	attrLen := make([]byte, 2)
	binary.BigEndian.PutUint16(attrLen, uint16(len(pathAttrs)))
	body = append(body, attrLen...)
	body = append(body, pathAttrs...)
	body = append(body, nlri...)

	msg := make([]byte, BGPHeaderSize)
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(BGPHeaderSize+len(body)))
	msg[18] = BGPMsgTypeUpdate
	return append(msg, body...)
}

func asPathSegment(segType uint8, asns ...uint32) []byte {
	out := []byte{segType, byte(len(asns))}
	for _, a := range asns {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, a)
		out = append(out, b...)
	}
	return out
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func TestParseUpdate_UnicastAnnouncement(t *testing.T) {
	var pathAttrs []byte
	pathAttrs = append(pathAttrs, attr(AttrTypeOrigin, []byte{0})...)
	pathAttrs = append(pathAttrs, attr(AttrTypeASPath, asPathSegment(ASPathSegmentSequence, 64500, 64501))...)
	pathAttrs = append(pathAttrs, attr(AttrTypeNextHop, []byte{10, 0, 0, 254})...)
	pathAttrs = append(pathAttrs, attr(AttrTypeMED, u32be(100))...)
	pathAttrs = append(pathAttrs, attr(AttrTypeLocalPref, u32be(200))...)
	// Communities 64500:100, 64500:200.
	comm := append(append([]byte{}, 0xFB, 0xF4, 0x00, 0x64), 0xFB, 0xF4, 0x00, 0xC8)
	pathAttrs = append(pathAttrs, attr(AttrTypeCommunity, comm)...)

	// NLRI: 192.0.2.0/24 and 10.0.0.0/8.
	nlri := []byte{24, 192, 0, 2, 8, 10}

	update, err := ParseUpdate(buildUpdate(nil, pathAttrs, nlri))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(update.NLRIPrefixes) != 2 {
		t.Fatalf("expected 2 prefixes, got %d", len(update.NLRIPrefixes))
	}
	if update.NLRIPrefixes[0] != "192.0.2.0/24" || update.NLRIPrefixes[1] != "10.0.0.0/8" {
		t.Errorf("unexpected prefixes: %v", update.NLRIPrefixes)
	}
	if update.Attrs.Origin != "IGP" {
		t.Errorf("expected origin IGP, got %q", update.Attrs.Origin)
	}
	if len(update.Attrs.ASPath) != 2 || update.Attrs.ASPath[0] != "64500" || update.Attrs.ASPath[1] != "64501" {
		t.Errorf("unexpected as_path: %v", update.Attrs.ASPath)
	}
	if update.Attrs.NextHop != "10.0.0.254" {
		t.Errorf("expected next_hop 10.0.0.254, got %q", update.Attrs.NextHop)
	}
	if update.Attrs.MED == nil || *update.Attrs.MED != 100 {
		t.Error("expected MED 100")
	}
	if update.Attrs.LocalPref == nil || *update.Attrs.LocalPref != 200 {
		t.Error("expected local_pref 200")
	}
	if len(update.Attrs.Communities) != 2 || update.Attrs.Communities[0] != "64500:100" {
		t.Errorf("unexpected communities: %v", update.Attrs.Communities)
	}
}

func TestParseUpdate_ASSet(t *testing.T) {
	seg := append(asPathSegment(ASPathSegmentSequence, 64500), asPathSegment(ASPathSegmentSet, 64501, 64502)...)
	pathAttrs := attr(AttrTypeASPath, seg)

	update, err := ParseUpdate(buildUpdate(nil, pathAttrs, []byte{8, 10}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(update.Attrs.ASPath) != 2 {
		t.Fatalf("expected 2 path elements, got %v", update.Attrs.ASPath)
	}
	if update.Attrs.ASPath[1] != "{64501,64502}" {
		t.Errorf("expected AS_SET element, got %q", update.Attrs.ASPath[1])
	}
}

func TestParseUpdate_ExtendedLengthAttribute(t *testing.T) {
	pathAttrs := attrExtended(AttrTypeNextHop, []byte{172, 16, 0, 1})

	update, err := ParseUpdate(buildUpdate(nil, pathAttrs, []byte{8, 10}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Attrs.NextHop != "172.16.0.1" {
		t.Errorf("expected next_hop from extended-length attr, got %q", update.Attrs.NextHop)
	}
}

func TestParseUpdate_WithdrawnRoutes(t *testing.T) {
	withdrawn := []byte{24, 192, 0, 2}

	update, err := ParseUpdate(buildUpdate(withdrawn, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(update.WithdrawnPrefixes) != 1 || update.WithdrawnPrefixes[0] != "192.0.2.0/24" {
		t.Errorf("unexpected withdrawn prefixes: %v", update.WithdrawnPrefixes)
	}
	if len(update.NLRIPrefixes) != 0 {
		t.Errorf("expected no announcements, got %v", update.NLRIPrefixes)
	}
}

func TestParseUpdate_NonUpdateSkipped(t *testing.T) {
	msg := make([]byte, BGPHeaderSize)
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], BGPHeaderSize)
	msg[18] = 1 // OPEN

	update, err := ParseUpdate(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update != nil {
		t.Error("expected nil update for non-UPDATE message")
	}
}

func TestParseUpdate_TooShort(t *testing.T) {
	if _, err := ParseUpdate([]byte{0xFF, 0xFF}); err == nil {
		t.Fatal("expected error for truncated message")
	}
}

func TestParseUpdate_WithdrawnLenExceedsData(t *testing.T) {
	msg := buildUpdate(nil, nil, nil)
	// Corrupt the withdrawn length to exceed the body.
	binary.BigEndian.PutUint16(msg[BGPHeaderSize:BGPHeaderSize+2], 9999)

	if _, err := ParseUpdate(msg); err == nil {
		t.Fatal("expected error for oversized withdrawn length")
	}
}

// buildFlowSpecMPReach encodes an MP_REACH_NLRI payload (AFI 1 SAFI 133)
// carrying a single rule.
func buildFlowSpecMPReach(components []byte) []byte {
	payload := []byte{0, 1, SAFIFlowSpec, 0 /* nh len */, 0 /* reserved */}
	nlriLen := make([]byte, 2)
	binary.BigEndian.PutUint16(nlriLen, uint16(len(components)))
	payload = append(payload, nlriLen...)
	return append(payload, components...)
}

func TestParseUpdate_FlowSpecNLRI(t *testing.T) {
	// destination 192.0.2.0/24, protocol 6, dest_port 80.
	components := []byte{
		FlowSpecTypeDstPrefix, 24, 192, 0, 2,
		FlowSpecTypeProtocol, 0x81, 6,
		FlowSpecTypeDstPort, 0x91, 0, 80,
	}
	pathAttrs := attr(AttrTypeMPReachNLRI, buildFlowSpecMPReach(components))

	update, err := ParseUpdate(buildUpdate(nil, pathAttrs, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(update.FlowSpecRules) != 1 {
		t.Fatalf("expected 1 flowspec rule, got %d", len(update.FlowSpecRules))
	}

	rule := update.FlowSpecRules[0]
	if rule.Destination != "192.0.2.0/24" {
		t.Errorf("expected destination 192.0.2.0/24, got %q", rule.Destination)
	}
	if rule.Protocol == nil || *rule.Protocol != 6 {
		t.Error("expected protocol 6")
	}
	if rule.DestPort == nil || *rule.DestPort != 80 {
		t.Error("expected dest_port 80")
	}
	if rule.Key() != "flowspec:192.0.2.0/24" {
		t.Errorf("unexpected rule key %q", rule.Key())
	}
}

func TestParseUpdate_FlowSpecSourceAndPorts(t *testing.T) {
	components := []byte{
		FlowSpecTypeSrcPrefix, 32, 10, 0, 0, 1,
		FlowSpecTypePort, 0x91, 0, 53,
		FlowSpecTypeSrcPort, 0x91, 0xC0, 0x00, // 49152
	}
	pathAttrs := attr(AttrTypeMPReachNLRI, buildFlowSpecMPReach(components))

	update, err := ParseUpdate(buildUpdate(nil, pathAttrs, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rule := update.FlowSpecRules[0]
	if rule.Source != "10.0.0.1/32" {
		t.Errorf("expected source 10.0.0.1/32, got %q", rule.Source)
	}
	if rule.Port == nil || *rule.Port != 53 {
		t.Error("expected port 53")
	}
	if rule.SourcePort == nil || *rule.SourcePort != 49152 {
		t.Error("expected source_port 49152")
	}
	if rule.Key() != "flowspec:10.0.0.1/32" {
		t.Errorf("expected source-keyed rule, got %q", rule.Key())
	}
}

// buildVPNMPReach encodes an MP_REACH_NLRI payload (AFI 1 SAFI 128) with
// one labeled VPNv4 prefix.
func buildVPNMPReach(label uint32, rd []byte, prefix []byte, prefixBits int) []byte {
	// Next hop: 8-byte zero RD + IPv4.
	payload := []byte{0, 1, SAFIMPLSVPN, 12}
	payload = append(payload, make([]byte, 8)...)
	payload = append(payload, 172, 16, 0, 9)
	payload = append(payload, 0) // reserved

	// Prefix body: label(3) + RD(8) + prefix bytes.
	body := []byte{byte(label >> 12), byte(label >> 4), byte(label<<4) | 0x01}
	body = append(body, rd...)
	body = append(body, prefix...)

	payload = append(payload, byte(len(body)*8-len(prefix)*8+prefixBits))
	return append(payload, body...)
}

func TestParseUpdate_VPNv4NLRI(t *testing.T) {
	rd := make([]byte, 8)
	binary.BigEndian.PutUint16(rd[0:2], 0) // type 0
	binary.BigEndian.PutUint16(rd[2:4], 64500)
	binary.BigEndian.PutUint32(rd[4:8], 1)

	pathAttrs := attr(AttrTypeMPReachNLRI, buildVPNMPReach(1000, rd, []byte{10, 1, 2}, 24))

	update, err := ParseUpdate(buildUpdate(nil, pathAttrs, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(update.VPNRoutes) != 1 {
		t.Fatalf("expected 1 VPN route, got %d", len(update.VPNRoutes))
	}

	route := update.VPNRoutes[0]
	if route.Prefix != "10.1.2.0/24" {
		t.Errorf("expected prefix 10.1.2.0/24, got %q", route.Prefix)
	}
	if route.RD != "64500:1" {
		t.Errorf("expected RD 64500:1, got %q", route.RD)
	}
	if len(route.Labels) != 1 || route.Labels[0] != 1000 {
		t.Errorf("expected label 1000, got %v", route.Labels)
	}
	if route.NextHop != "172.16.0.9" {
		t.Errorf("expected next_hop 172.16.0.9, got %q", route.NextHop)
	}
}

func TestDecodeRD_Type1(t *testing.T) {
	rd := make([]byte, 8)
	binary.BigEndian.PutUint16(rd[0:2], 1)
	copy(rd[2:6], []byte{10, 0, 0, 1})
	binary.BigEndian.PutUint16(rd[6:8], 100)

	if got := decodeRD(rd); got != "10.0.0.1:100" {
		t.Errorf("expected 10.0.0.1:100, got %q", got)
	}
}

func TestDecodeRD_UnknownType(t *testing.T) {
	rd := make([]byte, 8)
	binary.BigEndian.PutUint16(rd[0:2], 7)

	if got := decodeRD(rd); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
}

func TestParseFlowSpecComponents_TruncatedStops(t *testing.T) {
	// Protocol component with the value byte missing.
	rule, ok := parseFlowSpecComponents([]byte{FlowSpecTypeProtocol, 0x81})
	if ok {
		t.Errorf("expected no rule from truncated component, got %+v", rule)
	}
}

func TestParsePathAttributes_TruncatedAttr(t *testing.T) {
	// Declares a 10-byte attribute but supplies 2.
	data := []byte{0x40, AttrTypeNextHop, 10, 1, 2}
	attrs, err := ParsePathAttributes(data)
	if err == nil {
		t.Fatal("expected error for truncated attribute")
	}
	if attrs == nil {
		t.Fatal("expected partial attributes alongside the error")
	}
}
